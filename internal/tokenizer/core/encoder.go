package core

import (
	"math"
	"strings"

	"github.com/tiktokbpe/internal/ranks"
)

// noRank marks an adjacent pair whose concatenation is not in the table.
const noRank = math.MaxInt

// largePieceLen is the piece length from which the heap merge replaces the
// linear scan. Both produce the same tokens.
const largePieceLen = 256

// EncodePiece encodes one segmented piece.
func (t *Tokenizer) EncodePiece(piece []byte) []int {
	return bytePairEncode(piece, t.encoder)
}

// EncodeOrdinary encodes text without looking for special tokens: a
// substring equal to a special token literal is encoded as ordinary bytes.
// cache may be nil.
func (t *Tokenizer) EncodeOrdinary(text string, cache PieceCache) []int {
	return t.appendOrdinary(nil, text, cache)
}

// Encode encodes text, emitting the reserved id for every occurrence of a
// special token listed in allowed. Everything between those occurrences is
// encoded ordinarily. cache may be nil.
func (t *Tokenizer) Encode(text string, allowed map[string]struct{}, cache PieceCache) []int {
	var out []int
	for text != "" {
		idx, special := t.nextSpecial(text, allowed)
		if idx < 0 {
			return t.appendOrdinary(out, text, cache)
		}

		out = t.appendOrdinary(out, text[:idx], cache)
		out = append(out, t.specialEncoder[special])
		text = text[idx+len(special):]
	}
	return out
}

// FindSpecial returns the first special token of set that occurs in text.
func (t *Tokenizer) FindSpecial(text string, set map[string]struct{}) (string, bool) {
	idx, special := t.nextSpecial(text, set)
	return special, idx >= 0
}

// nextSpecial finds the leftmost occurrence of a known special token from
// set, preferring the longest literal when several start at the same index.
func (t *Tokenizer) nextSpecial(text string, set map[string]struct{}) (int, string) {
	best, bestSpecial := -1, ""
	for s := range set {
		if _, ok := t.specialEncoder[s]; !ok || s == "" {
			continue
		}

		idx := strings.Index(text, s)
		if idx < 0 {
			continue
		}

		if best < 0 || idx < best || (idx == best && len(s) > len(bestSpecial)) {
			best, bestSpecial = idx, s
		}
	}
	return best, bestSpecial
}

func (t *Tokenizer) appendOrdinary(out []int, text string, cache PieceCache) []int {
	for piece := range t.Pieces(text) {
		out = t.AppendPiece(out, piece, cache)
	}
	return out
}

// AppendPiece appends the tokens of one segmented piece to out. cache may be
// nil.
func (t *Tokenizer) AppendPiece(out []int, piece string, cache PieceCache) []int {
	if id, ok := t.encoder[piece]; ok {
		return append(out, id)
	}

	if cache != nil {
		if ids, ok := cache.Get(piece); ok {
			return append(out, ids...)
		}
	}

	ids := bytePairMerge([]byte(piece), t.encoder)
	if cache != nil {
		cache.Put(piece, ids)
	}
	return append(out, ids...)
}

// bytePairEncode returns the single rank of piece when the whole piece is in
// the table, and otherwise merges it.
func bytePairEncode(piece []byte, table ranks.Table) []int {
	if id, ok := table[string(piece)]; ok {
		return []int{id}
	}
	return bytePairMerge(piece, table)
}

// bytePairMerge starts from single bytes and repeatedly merges the adjacent
// pair whose concatenation has the lowest rank, leftmost first on ties,
// until no adjacent pair is in the table.
func bytePairMerge(piece []byte, table ranks.Table) []int {
	if len(piece) >= largePieceLen {
		return bytePairMergeLarge(piece, table)
	}
	return bytePairMergeScan(piece, table)
}

// mergePart is a part of the piece starting at byte start. rank is the rank
// of this part merged with the next one.
type mergePart struct {
	start int
	rank  int
}

// bytePairMergeScan rescans every adjacent pair after each merge. It is
// O(n^2) in the piece length in the worst case, which is fine for the short
// pieces regex segmentation produces.
func bytePairMergeScan(piece []byte, table ranks.Table) []int {
	if len(piece) == 0 {
		return nil
	}

	// one part per byte plus a sentinel holding len(piece)
	parts := make([]mergePart, len(piece)+1)
	for i := range parts {
		parts[i] = mergePart{start: i, rank: noRank}
	}

	// rankAt is the rank of parts[i] merged with parts[i+1]
	rankAt := func(i int) int {
		if i+2 < len(parts) {
			if r, ok := table[string(piece[parts[i].start:parts[i+2].start])]; ok {
				return r
			}
		}
		return noRank
	}

	for i := 0; i+2 < len(parts); i++ {
		parts[i].rank = rankAt(i)
	}

	for len(parts) > 2 {
		minRank, minIdx := noRank, -1
		for i := 0; i < len(parts)-1; i++ {
			if parts[i].rank < minRank {
				minRank, minIdx = parts[i].rank, i
			}
		}

		if minIdx < 0 {
			break
		}

		parts = append(parts[:minIdx+1], parts[minIdx+2:]...)
		parts[minIdx].rank = rankAt(minIdx)
		if minIdx > 0 {
			parts[minIdx-1].rank = rankAt(minIdx - 1)
		}
	}

	out := make([]int, 0, len(parts)-1)
	for i := 0; i+1 < len(parts); i++ {
		out = append(out, table[string(piece[parts[i].start:parts[i+1].start])])
	}
	return out
}
