// Package ranks loads mergeable-rank tables for byte-level BPE vocabularies.
//
// A Table maps a byte sequence (held in a string) to its rank. The rank is
// both the merge priority of the sequence and its token id. Two on-disk
// formats are understood: the native ".tiktoken" format (LoadNative) and the
// GPT-2 "data gym" format made of vocab.bpe plus encoder.json (LoadLegacy).
package ranks

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete is returned when a table lacks one of the 256 single-byte
	// sequences. Such a table cannot represent every input.
	ErrIncomplete = errors.New("ranks: missing single-byte entries")

	// ErrDuplicateRank is returned when two byte sequences share a rank and an
	// inverse table is requested.
	ErrDuplicateRank = errors.New("ranks: duplicate rank")

	// ErrNegativeRank is returned when a table holds a rank below zero.
	ErrNegativeRank = errors.New("ranks: negative rank")

	// ErrSparseRanks is returned when the highest rank is far beyond the
	// number of entries, so that an inverse table indexed by rank would be
	// mostly empty.
	ErrSparseRanks = errors.New("ranks: ranks too sparse")
)

// Table maps a byte sequence to its rank. It is read-only once loaded.
type Table map[string]int

// Validate checks that all 256 single-byte sequences are present and that no
// rank is negative.
func (t Table) Validate() error {
	var missing []int
	for b := 0; b < 256; b++ {
		if _, ok := t[string([]byte{byte(b)})]; !ok {
			missing = append(missing, b)
		}
	}

	if len(missing) > 0 {
		if len(missing) > 8 {
			return fmt.Errorf("%w: %d bytes absent, first 0x%02x", ErrIncomplete, len(missing), missing[0])
		}
		return fmt.Errorf("%w: %v", ErrIncomplete, missing)
	}

	for k, r := range t {
		if r < 0 {
			return fmt.Errorf("%w: %q has rank %d", ErrNegativeRank, k, r)
		}
	}

	return nil
}

// Max returns the highest rank in the table, or -1 for an empty table.
func (t Table) Max() int {
	maxRank := -1
	for _, r := range t {
		if r > maxRank {
			maxRank = r
		}
	}
	return maxRank
}

// Inverse builds the rank -> bytes table used for decoding. The result is
// indexed by rank; ranks that are absent from the table map to nil. At
// least half of the ids up to the highest rank must be in use.
func (t Table) Inverse() ([][]byte, error) {
	maxRank := t.Max()
	if maxRank < 0 {
		return nil, nil
	}
	if maxRank/2 >= len(t) {
		return nil, fmt.Errorf("%w: highest rank %d for %d entries", ErrSparseRanks, maxRank, len(t))
	}

	inv := make([][]byte, maxRank+1)
	for k, r := range t {
		if r < 0 {
			return nil, fmt.Errorf("%w: %q has rank %d", ErrNegativeRank, k, r)
		}
		if inv[r] != nil {
			return nil, fmt.Errorf("%w: %d is held by %q and %q", ErrDuplicateRank, r, inv[r], k)
		}
		inv[r] = []byte(k)
	}

	return inv, nil
}
