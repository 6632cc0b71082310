// Package vocab describes byte-level BPE vocabularies: the splitting
// pattern, the mergeable ranks and the reserved special tokens of one
// encoding, bundled into an immutable Descriptor.
package vocab

import (
	"errors"
	"fmt"
	"maps"

	"github.com/dlclark/regexp2"

	"github.com/tiktokbpe/internal/ranks"
)

var (
	// ErrPattern is returned when the splitting pattern does not compile.
	ErrPattern = errors.New("vocab: invalid splitting pattern")

	// ErrOverlap is returned when a special token id is also a rank.
	ErrOverlap = errors.New("vocab: special token id collides with a mergeable rank")

	// ErrVocabSize is returned when an explicit vocabulary size does not
	// match the ranks and special tokens.
	ErrVocabSize = errors.New("vocab: vocabulary size mismatch")
)

// Descriptor is the immutable bundle identifying one tokenizer. It is safe
// for concurrent use.
type Descriptor struct {
	name          string
	patternSource string
	pattern       *regexp2.Regexp
	ranks         ranks.Table
	special       map[string]int
	specialIDs    map[int]string
	maxTokenValue int
}

type options struct {
	explicitNVocab int
}

// Option configures New.
type Option func(*options)

// WithExplicitVocabSize asserts that ranks and special tokens together hold
// exactly n ids, numbered 0..n-1.
func WithExplicitVocabSize(n int) Option {
	return func(o *options) { o.explicitNVocab = n }
}

// New validates and bundles a vocabulary. The ranks table must already be
// complete (see ranks.Table.Validate); it is not copied and must not be
// modified afterwards.
func New(name, pattern string, mergeable ranks.Table, special map[string]int, opts ...Option) (*Descriptor, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPattern, name, err)
	}

	if err := mergeable.Validate(); err != nil {
		return nil, fmt.Errorf("vocab %s: %w", name, err)
	}

	maxRank := mergeable.Max()

	// the rank set is only materialised when a special id could collide
	var rankIDs map[int]struct{}
	specialIDs := make(map[int]string, len(special))
	maxTokenValue := maxRank
	for s, id := range special {
		if id < 0 {
			return nil, fmt.Errorf("%w: %s: special token %q has negative id %d", ErrOverlap, name, s, id)
		}

		if id <= maxRank {
			if rankIDs == nil {
				rankIDs = make(map[int]struct{}, len(mergeable))
				for _, r := range mergeable {
					rankIDs[r] = struct{}{}
				}
			}
			if _, ok := rankIDs[id]; ok {
				return nil, fmt.Errorf("%w: %s: special token %q has id %d", ErrOverlap, name, s, id)
			}
		}

		if other, ok := specialIDs[id]; ok {
			return nil, fmt.Errorf("%w: %s: special tokens %q and %q share id %d", ErrOverlap, name, other, s, id)
		}
		specialIDs[id] = s

		if id > maxTokenValue {
			maxTokenValue = id
		}
	}

	if n := o.explicitNVocab; n > 0 {
		if len(mergeable)+len(special) != n {
			return nil, fmt.Errorf("%w: %s: %d ranks + %d special tokens != %d", ErrVocabSize, name, len(mergeable), len(special), n)
		}
		if maxTokenValue != n-1 {
			return nil, fmt.Errorf("%w: %s: max token value %d != %d", ErrVocabSize, name, maxTokenValue, n-1)
		}
	}

	return &Descriptor{
		name:          name,
		patternSource: pattern,
		pattern:       re,
		ranks:         mergeable,
		special:       maps.Clone(special),
		specialIDs:    specialIDs,
		maxTokenValue: maxTokenValue,
	}, nil
}

// Name returns the encoding name, e.g. "cl100k_base".
func (d *Descriptor) Name() string { return d.name }

// Pattern returns the compiled splitting pattern.
func (d *Descriptor) Pattern() *regexp2.Regexp { return d.pattern }

// PatternSource returns the pattern as it was given to New.
func (d *Descriptor) PatternSource() string { return d.patternSource }

// Ranks returns the mergeable rank table. Callers must not modify it.
func (d *Descriptor) Ranks() ranks.Table { return d.ranks }

// SpecialTokens returns a copy of the special token table.
func (d *Descriptor) SpecialTokens() map[string]int { return maps.Clone(d.special) }

// SpecialToken returns the id reserved for s.
func (d *Descriptor) SpecialToken(s string) (int, bool) {
	id, ok := d.special[s]
	return id, ok
}

// IsSpecial reports whether id is a special token id.
func (d *Descriptor) IsSpecial(id int) bool {
	_, ok := d.specialIDs[id]
	return ok
}

// MaxTokenValue returns the highest id in use, ranks and special tokens
// combined.
func (d *Descriptor) MaxTokenValue() int { return d.maxTokenValue }

// VocabSize returns the number of ids in use.
func (d *Descriptor) VocabSize() int { return len(d.ranks) + len(d.special) }
