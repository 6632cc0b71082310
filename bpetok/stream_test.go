package bpetok

import (
	"math/rand"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeStreaming(t *testing.T, enc *Encoding, input []byte, chunkSizes []int) []int {
	t.Helper()
	es := enc.NewStreamEncoder()
	var out []int

	pos := 0
	for _, sz := range chunkSizes {
		if pos >= len(input) {
			break
		}
		end := pos + sz
		if end > len(input) {
			end = len(input)
		}
		emitted := es.Feed(input[pos:end])
		out = append(out, emitted...)
		pos = end
	}

	// whatever the chunk list did not cover goes in as one last chunk
	if pos < len(input) {
		out = append(out, es.Feed(input[pos:])...)
	}
	out = append(out, es.Flush()...)
	return out
}

func TestStreamingMatchesEncode_SimpleChunkings(t *testing.T) {
	enc := newTestEncoding(t)

	cases := []struct {
		name string
		s    string
	}{
		{"empty", ""},
		{"ascii_short", "hello world"},
		{"ascii_punct", "hello, world! this is bpe-tok :)"},
		{"utf8_simple", "नमस्ते दुनिया"},
		{"emoji", "hi 👋🏽 this is 🔥 tokenizer"},
		{"repeated_patterns", "aaaaaaabaaaaaaabaaaaaaab"},
		{"whitespace", "a   b\n\n  \n  c \t\n"},
		{"digits", "1234567 89 0123456789"},
		{"contractions", "it's what we'd've said, isn't it"},
		{"long_tail", strings.Repeat("hello world, ", 6) + "日本語 👋🏽 tail"},
	}

	chunkings := [][]int{
		{1 << 20},                // 1 chunk (whole string)
		{1},                      // 1 byte at a time
		{2},                      // 2 bytes at a time
		{3},                      // 3 bytes at a time
		{4, 4, 4, 4, 4, 4, 4, 4}, // fixed window, then the rest in one chunk
	}

	for _, tc := range cases {
		for i, chunks := range chunkings {
			input := []byte(tc.s)

			// repeat single sizes across the whole input
			if len(chunks) == 1 && chunks[0] < len(input) {
				chunks = repeatChunk(chunks[0], len(input))
			}

			want := enc.Encode(tc.s)
			got := encodeStreaming(t, enc, input, chunks)
			assert.Equal(t, want, got, "case %q chunking %d", tc.name, i)
		}
	}
}

func repeatChunk(size, total int) []int {
	var out []int
	for n := 0; n < total; n += size {
		out = append(out, size)
	}
	return out
}

var streamWords = []string{
	"hello", " world", " the", "  ", "   ", "\n", "\n\n", "\t", "123", "4567",
	"é", " über", "日本語", "'s", "'t", "!", ",", " :)", "ab", "aaaa", "x", "👋🏽",
}

func TestStreamingMatchesEncode_Randomized(t *testing.T) {
	enc := newTestEncoding(t)

	const (
		numCases  = 200
		maxWords  = 64
		maxChunks = 16
	)
	r := rand.New(rand.NewSource(1))

	for caseIdx := 0; caseIdx < numCases; caseIdx++ {
		var sb strings.Builder
		for n := r.Intn(maxWords + 1); n > 0; n-- {
			sb.WriteString(streamWords[r.Intn(len(streamWords))])
		}
		input := []byte(sb.String())

		var chunkSizes []int
		remaining := len(input)
		for remaining > 0 && len(chunkSizes) < maxChunks {
			sz := 1 + r.Intn(remaining)
			chunkSizes = append(chunkSizes, sz)
			remaining -= sz
		}

		want := enc.Encode(string(input))
		got := encodeStreaming(t, enc, input, chunkSizes)
		require.Equal(t, want, got, "random case %d\ninput: %q\nchunks: %v", caseIdx, input, chunkSizes)
	}
}

func TestStreamEncoderEmitsBeforeFlush(t *testing.T) {
	enc := newTestEncoding(t)
	es := enc.NewStreamEncoder()

	assert.Nil(t, es.Feed([]byte("hello")))
	assert.Nil(t, es.Feed([]byte(" world")))
	assert.Equal(t, []int{301}, es.Feed([]byte(" hello")))
	assert.Equal(t, []int{306, 302}, es.Flush())

	// reusable after Flush
	assert.Nil(t, es.Flush())
	assert.Nil(t, es.Feed([]byte("hello")))
	assert.Equal(t, []int{301}, es.Flush())
}

func TestStreamEncoderHoldsSplitCodePoint(t *testing.T) {
	enc := newTestEncoding(t)
	es := enc.NewStreamEncoder()

	e := []byte("é")
	var out []int
	out = append(out, es.Feed([]byte("a b c"))...)
	out = append(out, es.Feed(e[:1])...)
	out = append(out, es.Feed(e[1:])...)
	out = append(out, es.Flush()...)
	assert.Equal(t, enc.Encode("a b cé"), out)
}

func TestCompleteUTF8(t *testing.T) {
	e := []byte("é")
	emoji := []byte("👋")

	cases := []struct {
		in   []byte
		want int
	}{
		{nil, 0},
		{[]byte("abc"), 3},
		{e, 2},
		{e[:1], 0},
		{append([]byte("ab"), e[:1]...), 2},
		{append([]byte("ab"), emoji[:3]...), 2},
		{emoji, 4},
		{[]byte{'a', 0xff}, 2},
		{[]byte{'a', 0x80, 0x80}, 3},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, completeUTF8(tc.in), "%q", tc.in)
	}
}

func TestStreamDecoder(t *testing.T) {
	enc := newTestEncoding(t)
	text := "héllo 日本語 👋🏽 ok"
	ids := enc.Encode(text)

	dec := enc.NewStreamDecoder()
	var sb strings.Builder
	for _, id := range ids {
		chunk, err := dec.Feed([]int{id})
		require.NoError(t, err)
		assert.True(t, utf8.Valid(chunk), "chunk %q", chunk)
		sb.Write(chunk)
	}
	sb.Write(dec.Flush())

	assert.Equal(t, text, sb.String())
}

func TestStreamDecoderFlushesPartial(t *testing.T) {
	enc := newTestEncoding(t)
	dec := enc.NewStreamDecoder()

	chunk, err := dec.Feed([]int{'a', 0xe6})
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), chunk)
	assert.Equal(t, []byte{0xe6}, dec.Flush())
	assert.Nil(t, dec.Flush())

	_, err = dec.Feed([]int{enc.MaxTokenValue() + 1})
	require.ErrorIs(t, err, ErrUnknownToken)
}

func benchCorpus() []byte {
	r := rand.New(rand.NewSource(7))
	var sb strings.Builder
	for sb.Len() < 256<<10 {
		sb.WriteString(streamWords[r.Intn(len(streamWords))])
	}
	return []byte(sb.String())
}

func feedChunks(es *StreamEncoder, input []byte, chunkSize int) {
	for pos := 0; pos < len(input); pos += chunkSize {
		end := min(pos+chunkSize, len(input))
		_ = es.Feed(input[pos:end])
	}
	_ = es.Flush()
}

func BenchmarkStreamEncode_WholeChunk(b *testing.B) {
	enc := newTestEncoding(b)
	input := benchCorpus()

	b.SetBytes(int64(len(input)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		feedChunks(enc.NewStreamEncoder(), input, len(input))
	}
}

func BenchmarkStreamEncode_4KBChunks(b *testing.B) {
	enc := newTestEncoding(b)
	input := benchCorpus()

	const chunkSize = 4 << 10 // 4 KiB
	b.SetBytes(int64(len(input)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		feedChunks(enc.NewStreamEncoder(), input, chunkSize)
	}
}

func BenchmarkStreamEncode_8Parallel_4KBChunks(b *testing.B) {
	enc := newTestEncoding(b)
	input := benchCorpus()

	const chunkSize = 4 << 10         // 4 KiB
	b.SetBytes(int64(len(input)) * 8) // total bytes processed across 8 streams
	b.ResetTimer()

	for n := 0; n < b.N; n++ {
		var wg sync.WaitGroup
		wg.Add(8)
		for streamID := 0; streamID < 8; streamID++ {
			go func() {
				defer wg.Done()
				feedChunks(enc.NewStreamEncoder(), input, chunkSize)
			}()
		}
		wg.Wait()
	}
}
