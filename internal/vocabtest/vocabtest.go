// Package vocabtest builds a small synthetic vocabulary for tests so they do
// not depend on downloaded rank files.
package vocabtest

import (
	"bytes"

	"github.com/tiktokbpe/internal/ranks"
	"github.com/tiktokbpe/internal/vocab"
)

// Name is the encoding name of the synthetic vocabulary.
const Name = "synthetic"

// merges are added after the 256 single bytes, in priority order.
var merges = []string{
	" t", "he", " a", "in", "re", "on", " the", "er", " s", "at",
	" w", " o", "en", " c", "it", "is", "an", "or", "es", " b",
	"ed", " f", "ing", " p", "ou", " an", "al", "ar", " to", " m",
	" of", " in", " d", " h", " and", "ic", "as", "le", " th", "ll",
	"el", "lo", "llo", "ello", "hell", "hello", " hello", "wor", "ld", "orld",
	" world", "  ", "   ", "\n\n", "12", "123", "é", " é", "ü", "日本",
	"語", "ab", "aa", "aaaa", "abab", ",", "!", "'s", "'t", " is",
}

// Ranks returns the synthetic rank table: every byte at rank == byte value,
// then merges in order.
func Ranks() ranks.Table {
	t := make(ranks.Table, 256+len(merges))
	for b := 0; b < 256; b++ {
		t[string([]byte{byte(b)})] = b
	}

	next := 256
	for _, m := range merges {
		if _, ok := t[m]; ok {
			continue
		}
		t[m] = next
		next++
	}
	return t
}

// Special returns the synthetic special tokens, placed after the ranks.
func Special() map[string]int {
	base := Ranks().Max() + 1
	return map[string]int{
		vocab.EndOfText:   base,
		vocab.FimPrefix:   base + 1,
		vocab.EndOfPrompt: base + 2,
	}
}

// Pattern returns the cl100k splitting pattern.
func Pattern() string {
	def, err := vocab.Lookup("cl100k_base")
	if err != nil {
		panic(err)
	}
	return def.Pattern
}

// Descriptor returns the synthetic vocabulary descriptor.
func Descriptor() (*vocab.Descriptor, error) {
	return vocab.New(Name, Pattern(), Ranks(), Special())
}

// MustDescriptor is Descriptor for tests that cannot continue without it.
func MustDescriptor() *vocab.Descriptor {
	d, err := Descriptor()
	if err != nil {
		panic(err)
	}
	return d
}

// Native returns the synthetic rank table in the native file format.
func Native() []byte {
	var buf bytes.Buffer
	if err := ranks.WriteNative(&buf, Ranks()); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
