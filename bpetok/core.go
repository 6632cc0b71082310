// Package bpetok encodes text into byte-level BPE token ids and back, for
// the OpenAI tiktoken family of vocabularies.
//
// An Encoding binds one vocabulary to encode and decode operations and
// memoises merges of pieces it has already seen. A Registry resolves model
// names such as "gpt-4" to an Encoding, loading each vocabulary once.
//
//	ids, err := bpetok.Encode(ctx, "gpt-4", "hello world")
//	text, err := bpetok.Decode(ctx, "gpt-4", ids)
package bpetok

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tiktokbpe/internal/logutil"
	"github.com/tiktokbpe/internal/tokenizer/core"
	"github.com/tiktokbpe/internal/vocab"
)

// AllSpecial selects every special token in EncodeWithSpecial.
const AllSpecial = "all"

var (
	// ErrUnknownToken matches decode failures on ids with no byte sequence.
	ErrUnknownToken = core.ErrUnknownToken

	// ErrUnknownSpecial is returned when EncodeWithSpecial names a special
	// token the vocabulary does not have.
	ErrUnknownSpecial = errors.New("bpetok: unknown special token")
)

// DisallowedSpecialError reports a disallowed special token found in the
// text given to EncodeWithSpecial.
type DisallowedSpecialError struct {
	Token string
}

func (e *DisallowedSpecialError) Error() string {
	return fmt.Sprintf("bpetok: text contains disallowed special token %q", e.Token)
}

// Encoder interface
type Encoder interface {
	/*
		Feed consumes the next chunk of raw bytes from the input stream. It may emit zero or more
		completed token IDs.
		The returned slice is owned by the caller.
	*/
	Feed(chunk []byte) []int

	/*
		Flush tells the encoder that the stream is complete. It returns any remaining token IDs that were buffered
		because more input could still have changed them. After flush, the encoder is reset to a clean state and
		can be reused for a new stream.
	*/
	Flush() []int
}

// Decoder interface
type Decoder interface {
	/*
		Feed consumes token IDs and returns the decoded bytes that form complete UTF-8 sequences. A trailing
		partial sequence is buffered until the tokens that complete it arrive.
	*/
	Feed(tokens []int) ([]byte, error)

	/*
		Flush returns whatever bytes are still buffered, valid UTF-8 or not, and resets the decoder.
	*/
	Flush() []byte
}

type config struct {
	noCache bool
}

// Option configures an Encoding.
type Option func(*config)

// WithoutCache disables merge memoisation.
func WithoutCache() Option {
	return func(c *config) { c.noCache = true }
}

// Encoding is the entry point for one vocabulary. It is safe for concurrent
// use.
type Encoding struct {
	desc  *vocab.Descriptor
	tok   *core.Tokenizer
	cache *mergeCache
}

// NewEncoding builds an Encoding for d.
func NewEncoding(d *vocab.Descriptor, opts ...Option) (*Encoding, error) {
	var c config
	for _, opt := range opts {
		opt(&c)
	}

	tok, err := core.New(d)
	if err != nil {
		return nil, err
	}

	e := &Encoding{desc: d, tok: tok}
	if !c.noCache {
		e.cache = newMergeCache()
	}
	return e, nil
}

// pieceCache avoids handing core a non-nil interface around a nil pointer.
func (e *Encoding) pieceCache() core.PieceCache {
	if e.cache == nil {
		return nil
	}
	return e.cache
}

// Name returns the encoding name.
func (e *Encoding) Name() string { return e.desc.Name() }

// Descriptor returns the vocabulary behind the encoding.
func (e *Encoding) Descriptor() *vocab.Descriptor { return e.desc }

// MaxTokenValue returns the highest token id of the vocabulary.
func (e *Encoding) MaxTokenValue() int { return e.desc.MaxTokenValue() }

// SpecialTokens returns a copy of the special token table.
func (e *Encoding) SpecialTokens() map[string]int { return e.desc.SpecialTokens() }

// CacheLen returns the number of memoised pieces.
func (e *Encoding) CacheLen() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.Len()
}

// Encode converts text to token ids. Special token literals in text are
// encoded as ordinary bytes.
func (e *Encoding) Encode(text string) []int {
	ids := e.tok.EncodeOrdinary(text, e.pieceCache())
	logutil.Trace("encoded", "encoding", e.Name(), "bytes", len(text), "tokens", len(ids))
	return ids
}

// EncodeOrdinary is Encode.
func (e *Encoding) EncodeOrdinary(text string) []int {
	return e.Encode(text)
}

// EncodeWithSpecial converts text to token ids, emitting reserved ids for
// the allowed special tokens. A special token that is disallowed and occurs
// in text is an error. A nil disallowedSpecial means every special token
// that is not allowed. AllSpecial may be used in either list.
func (e *Encoding) EncodeWithSpecial(text string, allowedSpecial, disallowedSpecial []string) ([]int, error) {
	allowed, err := e.specialSet(allowedSpecial)
	if err != nil {
		return nil, err
	}

	var disallowed map[string]struct{}
	if disallowedSpecial == nil || slices.Contains(disallowedSpecial, AllSpecial) {
		disallowed = make(map[string]struct{})
		for _, s := range e.tok.SpecialTokens() {
			if _, ok := allowed[s]; !ok {
				disallowed[s] = struct{}{}
			}
		}
	} else if disallowed, err = e.specialSet(disallowedSpecial); err != nil {
		return nil, err
	}

	if s, found := e.tok.FindSpecial(text, disallowed); found {
		return nil, &DisallowedSpecialError{Token: s}
	}

	ids := e.tok.Encode(text, allowed, e.pieceCache())
	logutil.Trace("encoded", "encoding", e.Name(), "bytes", len(text), "tokens", len(ids), "special", true)
	return ids, nil
}

func (e *Encoding) specialSet(names []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(names))
	if slices.Contains(names, AllSpecial) {
		for _, s := range e.tok.SpecialTokens() {
			set[s] = struct{}{}
		}
		return set, nil
	}

	for _, s := range names {
		if _, ok := e.tok.SpecialToken(s); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSpecial, s)
		}
		set[s] = struct{}{}
	}
	return set, nil
}

// Count returns the number of tokens Encode would produce.
func (e *Encoding) Count(text string) int {
	return len(e.tok.EncodeOrdinary(text, e.pieceCache()))
}

// DecodeBytes converts token ids back to bytes. The bytes need not be valid
// UTF-8 when ids do not come from Encode.
func (e *Encoding) DecodeBytes(ids []int) ([]byte, error) {
	return e.tok.DecodeBytes(ids)
}

// Decode converts token ids back to text.
func (e *Encoding) Decode(ids []int) (string, error) {
	text, err := e.tok.Decode(ids)
	if err != nil {
		return "", err
	}

	logutil.Trace("decoded", "encoding", e.Name(), "tokens", len(ids), "bytes", len(text))
	return text, nil
}
