package bpetok

import "unicode/utf8"

// holdBackPieces is the number of trailing pieces a StreamEncoder keeps
// buffered. Appending text can change the last piece, and through regex
// lookahead the one before it, but never an earlier one.
const holdBackPieces = 2

// StreamEncoder implements Encoder by buffering input bytes and emitting
// the tokens of every piece that later input can no longer change. The
// concatenated output of Feed and Flush equals Encode of the whole input.
type StreamEncoder struct {
	enc *Encoding

	buf    []byte
	ends   []int
	outBuf []int
}

var _ Encoder = (*StreamEncoder)(nil)

// NewStreamEncoder returns a streaming encoder over e.
func (e *Encoding) NewStreamEncoder() *StreamEncoder {
	return &StreamEncoder{enc: e}
}

// Feed consumes the next chunk and emits any finalized tokens.
func (st *StreamEncoder) Feed(chunk []byte) []int {
	st.outBuf = st.outBuf[:0]
	if len(chunk) > 0 {
		st.buf = append(st.buf, chunk...)
	}

	st.emitCommitted()

	if len(st.outBuf) == 0 {
		return nil
	}
	return append([]int(nil), st.outBuf...)
}

// Flush encodes whatever bytes remain buffered and resets the encoder.
func (st *StreamEncoder) Flush() []int {
	st.outBuf = st.outBuf[:0]
	if len(st.buf) > 0 {
		st.outBuf = st.enc.tok.EncodeOrdinary(string(st.buf), st.enc.pieceCache())
		st.buf = st.buf[:0]
	}

	if len(st.outBuf) == 0 {
		return nil
	}
	return append([]int(nil), st.outBuf...)
}

func (st *StreamEncoder) emitCommitted() {
	// a split code point would segment differently once completed
	text := string(st.buf[:completeUTF8(st.buf)])

	st.ends = st.ends[:0]
	end := 0
	for piece := range st.enc.tok.Pieces(text) {
		end += len(piece)
		st.ends = append(st.ends, end)
	}

	if len(st.ends) <= holdBackPieces {
		return
	}

	committed := st.ends[:len(st.ends)-holdBackPieces]
	start := 0
	cache := st.enc.pieceCache()
	for _, e := range committed {
		st.outBuf = st.enc.tok.AppendPiece(st.outBuf, text[start:e], cache)
		start = e
	}

	st.buf = append(st.buf[:0], st.buf[start:]...)
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside an incomplete UTF-8 sequence. Invalid bytes count as complete.
func completeUTF8(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-(utf8.UTFMax-1); i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

// StreamDecoder implements Decoder. It holds back a trailing partial UTF-8
// sequence so every chunk it returns is whole code points.
type StreamDecoder struct {
	enc     *Encoding
	pending []byte
}

var _ Decoder = (*StreamDecoder)(nil)

// NewStreamDecoder returns a streaming decoder over e.
func (e *Encoding) NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{enc: e}
}

// Feed decodes tokens and returns the bytes that complete a code point. On
// error nothing is consumed.
func (sd *StreamDecoder) Feed(tokens []int) ([]byte, error) {
	b, err := sd.enc.tok.DecodeBytes(tokens)
	if err != nil {
		return nil, err
	}

	sd.pending = append(sd.pending, b...)
	n := completeUTF8(sd.pending)
	if n == 0 {
		return nil, nil
	}

	out := append([]byte(nil), sd.pending[:n]...)
	sd.pending = append(sd.pending[:0], sd.pending[n:]...)
	return out, nil
}

// Flush returns the held back bytes and resets the decoder.
func (sd *StreamDecoder) Flush() []byte {
	if len(sd.pending) == 0 {
		return nil
	}

	out := append([]byte(nil), sd.pending...)
	sd.pending = sd.pending[:0]
	return out
}
