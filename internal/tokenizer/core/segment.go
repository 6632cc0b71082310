package core

import (
	"iter"
	"unicode/utf8"
)

// Pieces splits text with the vocabulary pattern. The pieces cover text
// left to right with no gaps and no overlaps: stretches the pattern does not
// match are yielded as pieces of their own. Offsets are taken on the raw
// bytes, so invalid UTF-8 comes back unchanged.
func (t *Tokenizer) Pieces(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if text == "" {
			return
		}

		runes, offsets := runeOffsets(text)

		// pos is the rune index up to which text has been yielded
		pos := 0
		m, err := t.pattern.FindRunesMatch(runes)
		for ; m != nil && err == nil; m, err = t.pattern.FindNextMatch(m) {
			if m.Length == 0 {
				continue
			}

			if m.Index > pos {
				if !yield(text[offsets[pos]:offsets[m.Index]]) {
					return
				}
			}

			end := m.Index + m.Length
			if !yield(text[offsets[m.Index]:offsets[end]]) {
				return
			}
			pos = end
		}

		if pos < len(runes) {
			yield(text[offsets[pos]:])
		}
	}
}

// runeOffsets decodes text into runes and records the byte offset at which
// each rune starts, plus len(text) as a final entry. An invalid byte decodes
// to one utf8.RuneError of width one.
func runeOffsets(text string) ([]rune, []int) {
	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		runes = append(runes, r)
		offsets = append(offsets, i)
		i += size
	}
	offsets = append(offsets, len(text))
	return runes, offsets
}
