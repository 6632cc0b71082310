// Package core is the byte-level BPE engine: regex segmentation, the
// priority merge over a rank table, and decoding.
package core

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"github.com/tiktokbpe/internal/ranks"
	"github.com/tiktokbpe/internal/vocab"
)

// PieceCache memoises the merge result of pieces that are not themselves in
// the rank table. Implementations must be safe for concurrent use. Values
// handed to Put must not be modified afterwards, and values returned by Get
// are only read.
type PieceCache interface {
	Get(piece string) ([]int, bool)
	Put(piece string, ids []int)
}

// Tokenizer holds immutable tables derived from a vocab.Descriptor and is
// safe for concurrent use.
// Invariants we maintain:
//   - encoder holds every single byte, so any input is representable.
//   - decoder[id] is the exact byte sequence of rank id, nil for unused ids.
//   - specialDecoder ids never appear in encoder.
type Tokenizer struct {
	name    string
	pattern *regexp2.Regexp

	encoder ranks.Table
	decoder [][]byte

	specialEncoder map[string]int
	specialDecoder map[int][]byte

	maxTokenValue int
}

// New builds a tokenizer for d.
func New(d *vocab.Descriptor) (*Tokenizer, error) {
	decoder, err := d.Ranks().Inverse()
	if err != nil {
		return nil, fmt.Errorf("vocab %s: %w", d.Name(), err)
	}

	special := d.SpecialTokens()
	specialDecoder := make(map[int][]byte, len(special))
	for s, id := range special {
		specialDecoder[id] = []byte(s)
	}

	return &Tokenizer{
		name:           d.Name(),
		pattern:        d.Pattern(),
		encoder:        d.Ranks(),
		decoder:        decoder,
		specialEncoder: special,
		specialDecoder: specialDecoder,
		maxTokenValue:  d.MaxTokenValue(),
	}, nil
}

// Name returns the encoding name.
func (t *Tokenizer) Name() string { return t.name }

// MaxTokenValue returns the highest id the tokenizer knows.
func (t *Tokenizer) MaxTokenValue() int { return t.maxTokenValue }

// SpecialToken returns the id reserved for the special token s.
func (t *Tokenizer) SpecialToken(s string) (int, bool) {
	id, ok := t.specialEncoder[s]
	return id, ok
}

// SpecialTokens lists the special token literals.
func (t *Tokenizer) SpecialTokens() []string {
	out := make([]string, 0, len(t.specialEncoder))
	for s := range t.specialEncoder {
		out = append(out, s)
	}
	return out
}
