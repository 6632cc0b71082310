package core

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiktokbpe/internal/ranks"
	"github.com/tiktokbpe/internal/vocab"
	"github.com/tiktokbpe/internal/vocabtest"
)

func newTestTokenizer(t testing.TB, table ranks.Table, special map[string]int) *Tokenizer {
	t.Helper()

	d, err := vocab.New("test", vocabtest.Pattern(), table, special)
	require.NoError(t, err)

	tok, err := New(d)
	require.NoError(t, err)
	return tok
}

func syntheticTokenizer(t testing.TB) *Tokenizer {
	t.Helper()
	return newTestTokenizer(t, vocabtest.Ranks(), vocabtest.Special())
}

// helloRanks ranks the merge chain of "hello" first, then every remaining
// single byte.
func helloRanks() ranks.Table {
	table := ranks.Table{
		"h": 0, "e": 1, "l": 2, "o": 3,
		"he": 4, "ll": 5, "hell": 6, "hello": 7,
	}
	next := 8
	for b := 0; b < 256; b++ {
		k := string([]byte{byte(b)})
		if _, ok := table[k]; !ok {
			table[k] = next
			next++
		}
	}
	return table
}

func TestEncodeHello(t *testing.T) {
	tok := newTestTokenizer(t, helloRanks(), nil)

	ids := tok.EncodeOrdinary("hello", nil)
	assert.Equal(t, []int{7}, ids)

	text, err := tok.Decode([]int{7})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	// the merge alone reaches the same token: he, ll, hell, hello
	assert.Equal(t, []int{7}, bytePairMerge([]byte("hello"), helloRanks()))
	assert.Equal(t, []int{7, 6}, bytePairMerge([]byte("hellohell"), helloRanks()))
}

func TestMergeLeftmostTieBreak(t *testing.T) {
	table := ranks.Table{"a": 0, "b": 1, "c": 2, "ab": 5, "bc": 5}

	assert.Equal(t, []int{5, 2}, bytePairMergeScan([]byte("abc"), table))
	assert.Equal(t, []int{5, 2}, bytePairMergeLarge([]byte("abc"), table))
}

func TestMergeLowestRankFirst(t *testing.T) {
	table := ranks.Table{"a": 0, "b": 1, "c": 2, "ab": 6, "bc": 5}

	assert.Equal(t, []int{0, 5}, bytePairMergeScan([]byte("abc"), table))
	assert.Equal(t, []int{0, 5}, bytePairMergeLarge([]byte("abc"), table))
}

func TestWholePieceFastPath(t *testing.T) {
	table := vocabtest.Ranks()
	// no pair of "xyz" is mergeable, so only the whole-piece lookup can
	// produce a single token
	table["xyz"] = table.Max() + 1

	assert.Equal(t, []int{table["xyz"]}, bytePairEncode([]byte("xyz"), table))
	assert.Equal(t, []int{'x', 'y', 'z'}, bytePairMerge([]byte("xyz"), table))

	long := strings.Repeat("q", 1<<16)
	table[long] = table.Max() + 1

	tok := newTestTokenizer(t, table, nil)
	assert.Equal(t, []int{table[long]}, tok.EncodeOrdinary(long, nil))
	assert.Equal(t, []int{table[long]}, tok.EncodePiece([]byte(long)))
}

func TestSingleByteCoverage(t *testing.T) {
	tok := syntheticTokenizer(t)

	for b := 0; b < 256; b++ {
		in := string([]byte{byte(b)})

		ids := tok.EncodeOrdinary(in, nil)
		require.Len(t, ids, 1, "byte 0x%02x", b)
		require.Equal(t, b, ids[0], "byte 0x%02x", b)

		out, err := tok.DecodeBytes(ids)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(b)}, out, "byte 0x%02x", b)
	}
}

var roundTripCases = []string{
	"",
	"hello",
	"hello world",
	"Hello, world! It's 12345 o'clock.",
	"tabs\tnewlines\n\r\n\n  trailing   ",
	"日本語のテキスト and English",
	"émigré über naïve",
	"💥🔥 the 💥",
	"<|endoftext|> is not special here",
	"\x00\xff\x10\x7f",
	"\xe6\x97",
	"aaaaaaabaaaaaaabaaaaaaab",
	strings.Repeat("abab", 200),
	strings.Repeat(" ", 300),
}

func TestRoundTrip(t *testing.T) {
	tok := syntheticTokenizer(t)

	for _, in := range roundTripCases {
		ids := tok.EncodeOrdinary(in, nil)

		out, err := tok.DecodeBytes(ids)
		require.NoError(t, err)
		require.Equal(t, in, string(out), "input %q", in)
	}
}

func TestRoundTripRandomBytes(t *testing.T) {
	tok := syntheticTokenizer(t)
	r := rand.New(rand.NewSource(1))

	for _, n := range []int{0, 1, 2, 3, 7, 31, 255, 1024} {
		buf := make([]byte, n)
		for i := range buf {
			// bias toward readable ASCII, but allow the full byte range
			if r.Float64() < 0.8 {
				buf[i] = byte(32 + r.Intn(95))
			} else {
				buf[i] = byte(r.Intn(256))
			}
		}

		ids := tok.EncodeOrdinary(string(buf), nil)
		out, err := tok.DecodeBytes(ids)
		require.NoError(t, err)
		require.Equal(t, string(buf), string(out), "n=%d", n)
	}
}

func TestDeterminism(t *testing.T) {
	tok := syntheticTokenizer(t)

	in := "determinism determinism determinism"
	a := tok.EncodeOrdinary(in, nil)
	b := tok.EncodeOrdinary(in, nil)
	assert.Equal(t, a, b)

	out, err := tok.Decode(a)
	require.NoError(t, err)
	assert.Equal(t, a, tok.EncodeOrdinary(out, nil))
}

func TestPieces(t *testing.T) {
	tok := syntheticTokenizer(t)

	var got []string
	for p := range tok.Pieces("Hello world, it's 12345!") {
		got = append(got, p)
	}
	assert.Equal(t, []string{"Hello", " world", ",", " it", "'s", " ", "123", "45", "!"}, got)
}

func TestPiecesCoverInput(t *testing.T) {
	tok := syntheticTokenizer(t)

	for _, in := range roundTripCases {
		var sb strings.Builder
		for p := range tok.Pieces(in) {
			require.NotEmpty(t, p)
			sb.WriteString(p)
		}
		require.Equal(t, in, sb.String())
	}
}

func TestPiecesStopEarly(t *testing.T) {
	tok := syntheticTokenizer(t)

	n := 0
	for range tok.Pieces("one two three four") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestEncodeOrdinaryIgnoresSpecial(t *testing.T) {
	tok := syntheticTokenizer(t)
	eot, ok := tok.SpecialToken(vocab.EndOfText)
	require.True(t, ok)

	ids := tok.EncodeOrdinary("a<|endoftext|>b", nil)
	assert.NotContains(t, ids, eot)

	out, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "a<|endoftext|>b", out)
}

func TestEncodeWithSpecial(t *testing.T) {
	tok := syntheticTokenizer(t)
	eot, _ := tok.SpecialToken(vocab.EndOfText)
	fim, _ := tok.SpecialToken(vocab.FimPrefix)

	allowed := map[string]struct{}{vocab.EndOfText: {}}

	ids := tok.Encode("hello<|endoftext|> world<|fim_prefix|>", allowed, nil)

	want := tok.EncodeOrdinary("hello", nil)
	want = append(want, eot)
	want = append(want, tok.EncodeOrdinary(" world<|fim_prefix|>", nil)...)
	assert.Equal(t, want, ids)
	assert.NotContains(t, ids, fim)

	out, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "hello<|endoftext|> world<|fim_prefix|>", out)

	all := map[string]struct{}{vocab.EndOfText: {}, vocab.FimPrefix: {}}
	ids = tok.Encode("<|fim_prefix|><|endoftext|>", all, nil)
	assert.Equal(t, []int{fim, eot}, ids)

	// unknown literals in the allowed set are ignored
	ids = tok.Encode("<|nope|>", map[string]struct{}{"<|nope|>": {}}, nil)
	assert.Equal(t, tok.EncodeOrdinary("<|nope|>", nil), ids)
}

func TestFindSpecial(t *testing.T) {
	tok := syntheticTokenizer(t)
	set := map[string]struct{}{vocab.EndOfText: {}, vocab.EndOfPrompt: {}}

	s, ok := tok.FindSpecial("x <|endofprompt|> y <|endoftext|>", set)
	assert.True(t, ok)
	assert.Equal(t, vocab.EndOfPrompt, s)

	_, ok = tok.FindSpecial("plain text", set)
	assert.False(t, ok)
}

func TestDecodeUnknownID(t *testing.T) {
	tok := syntheticTokenizer(t)

	for _, id := range []int{tok.MaxTokenValue() + 1, -1, 1 << 30} {
		out, err := tok.Decode([]int{104, id})
		require.ErrorIs(t, err, ErrUnknownToken)
		assert.Empty(t, out)

		var decErr *DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, id, decErr.ID)
		assert.Contains(t, err.Error(), "unknown token id")
	}
}

func TestDecodeSpecialAndPartialUTF8(t *testing.T) {
	tok := syntheticTokenizer(t)
	eot, _ := tok.SpecialToken(vocab.EndOfText)

	out, err := tok.Decode([]int{'h', 'i', eot})
	require.NoError(t, err)
	assert.Equal(t, "hi<|endoftext|>", out)

	// the first two bytes of 日 are not valid on their own
	out, err = tok.Decode([]int{0xe6, 0x97})
	require.NoError(t, err)
	assert.False(t, utf8.ValidString(out))
	assert.Equal(t, "\xe6\x97", out)
}

func TestDecodeSingleCopies(t *testing.T) {
	tok := syntheticTokenizer(t)

	b, err := tok.DecodeSingle('h')
	require.NoError(t, err)
	assert.Equal(t, []byte("h"), b)

	b[0] = 'x'
	again, err := tok.TokenBytes('h')
	require.NoError(t, err)
	assert.Equal(t, []byte("h"), again)

	_, err = tok.DecodeSingle(-1)
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestNewRejectsSparseRanks(t *testing.T) {
	table := vocabtest.Ranks()
	table["\x00\x01sparse"] = 1 << 62

	d, err := vocab.New("sparse", vocabtest.Pattern(), table, nil)
	require.NoError(t, err)

	_, err = New(d)
	require.ErrorIs(t, err, ranks.ErrSparseRanks)
}

func TestMergeEmptyPiece(t *testing.T) {
	table := vocabtest.Ranks()
	assert.Nil(t, bytePairMergeScan(nil, table))
	assert.Nil(t, bytePairMergeLarge(nil, table))

	tok := syntheticTokenizer(t)
	assert.Empty(t, tok.EncodeOrdinary("", nil))

	out, err := tok.DecodeBytes(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHeapMergeMatchesScan(t *testing.T) {
	table := vocabtest.Ranks()
	r := rand.New(rand.NewSource(7))
	alphabet := []byte("ab lohe")

	for n := 0; n < 700; n += 7 {
		piece := make([]byte, n)
		for i := range piece {
			piece[i] = alphabet[r.Intn(len(alphabet))]
		}

		want := bytePairMergeScan(piece, table)
		got := bytePairMergeLarge(piece, table)
		require.Equal(t, want, got, "piece %q", piece)
	}
}

func TestParityWithTiktokenGo(t *testing.T) {
	tok := syntheticTokenizer(t)

	encoder := make(map[string]int)
	for k, v := range vocabtest.Ranks() {
		encoder[k] = v
	}

	bpe, err := tiktoken.NewCoreBPE(encoder, vocabtest.Special(), vocabtest.Pattern())
	require.NoError(t, err)
	ref := tiktoken.NewTiktoken(bpe, &tiktoken.Encoding{
		Name:           vocabtest.Name,
		PatStr:         vocabtest.Pattern(),
		MergeableRanks: encoder,
		SpecialTokens:  vocabtest.Special(),
	}, map[string]any{})

	for _, in := range roundTripCases {
		if in == "" || !utf8.ValidString(in) {
			continue
		}
		assert.Equal(t, ref.EncodeOrdinary(in), tok.EncodeOrdinary(in, nil), "input %q", in)
	}
}

func BenchmarkEncodeOrdinary(b *testing.B) {
	tok := syntheticTokenizer(b)
	input := strings.Repeat("Hello world, the quick brown fox jumps over the lazy dog. ", 64)

	b.SetBytes(int64(len(input)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = tok.EncodeOrdinary(input, nil)
	}
}

func BenchmarkMergeScan(b *testing.B) {
	table := vocabtest.Ranks()
	piece := []byte(strings.Repeat("abaloh", 40))

	for i := 0; i < b.N; i++ {
		_ = bytePairMergeScan(piece, table)
	}
}

func BenchmarkMergeLarge(b *testing.B) {
	table := vocabtest.Ranks()
	piece := []byte(strings.Repeat("abaloh", 40))

	for i := 0; i < b.N; i++ {
		_ = bytePairMergeLarge(piece, table)
	}
}
