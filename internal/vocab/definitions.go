package vocab

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnknownEncoding is returned for an encoding name with no definition.
	ErrUnknownEncoding = errors.New("vocab: unknown encoding")

	// ErrUnknownModel is returned for a model name that maps to no encoding.
	ErrUnknownModel = errors.New("vocab: no encoding for model")
)

// Format is the on-disk layout of a vocabulary.
type Format int

const (
	// FormatNative is the "<base64> <rank>" per-line .tiktoken format.
	FormatNative Format = iota
	// FormatLegacy is the GPT-2 vocab.bpe + encoder.json pair.
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatNative:
		return "native"
	case FormatLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Special token literals shared by the built-in encodings.
const (
	EndOfText   = "<|endoftext|>"
	FimPrefix   = "<|fim_prefix|>"
	FimMiddle   = "<|fim_middle|>"
	FimSuffix   = "<|fim_suffix|>"
	EndOfPrompt = "<|endofprompt|>"
)

// Splitting patterns. Possessive quantifiers of the upstream patterns are
// written as their greedy equivalents, which regexp2 accepts.
const (
	patternR50k = `'(?:[sdmt]|ll|ve|re)| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

	patternCL100k = `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`

	patternO200k = `[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]*[\p{Ll}\p{Lm}\p{Lo}\p{M}]+(?i:'s|'t|'re|'ve|'m|'ll|'d)?` +
		`|[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]+[\p{Ll}\p{Lm}\p{Lo}\p{M}]*(?i:'s|'t|'re|'ve|'m|'ll|'d)?` +
		`|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n/]*|\s*[\r\n]+|\s+(?!\S)|\s+`
)

// Definition describes where a built-in vocabulary lives and how to
// assemble its Descriptor.
type Definition struct {
	Name    string
	Pattern string
	Special map[string]int
	Format  Format

	// Files lists the files to fetch, relative to the source base. Native
	// vocabularies have one; legacy vocabularies have vocab.bpe then
	// encoder.json.
	Files []string

	// ExplicitNVocab, when non-zero, is asserted by New.
	ExplicitNVocab int
}

var definitions = []Definition{
	{
		Name:           "gpt2",
		Pattern:        patternR50k,
		Special:        map[string]int{EndOfText: 50256},
		Format:         FormatLegacy,
		Files:          []string{"gpt-2/encodings/main/vocab.bpe", "gpt-2/encodings/main/encoder.json"},
		ExplicitNVocab: 50257,
	},
	{
		Name:           "r50k_base",
		Pattern:        patternR50k,
		Special:        map[string]int{EndOfText: 50256},
		Format:         FormatNative,
		Files:          []string{"encodings/r50k_base.tiktoken"},
		ExplicitNVocab: 50257,
	},
	{
		Name:           "p50k_base",
		Pattern:        patternR50k,
		Special:        map[string]int{EndOfText: 50256},
		Format:         FormatNative,
		Files:          []string{"encodings/p50k_base.tiktoken"},
		ExplicitNVocab: 50281,
	},
	{
		Name:    "p50k_edit",
		Pattern: patternR50k,
		Special: map[string]int{
			EndOfText: 50256,
			FimPrefix: 50281,
			FimMiddle: 50282,
			FimSuffix: 50283,
		},
		Format: FormatNative,
		Files:  []string{"encodings/p50k_base.tiktoken"},
	},
	{
		Name:    "cl100k_base",
		Pattern: patternCL100k,
		Special: map[string]int{
			EndOfText:   100257,
			FimPrefix:   100258,
			FimMiddle:   100259,
			FimSuffix:   100260,
			EndOfPrompt: 100276,
		},
		Format: FormatNative,
		Files:  []string{"encodings/cl100k_base.tiktoken"},
	},
	{
		Name:    "o200k_base",
		Pattern: patternO200k,
		Special: map[string]int{
			EndOfText:   199999,
			EndOfPrompt: 200018,
		},
		Format: FormatNative,
		Files:  []string{"encodings/o200k_base.tiktoken"},
	},
}

// Definitions returns the built-in vocabulary definitions.
func Definitions() []Definition {
	return slices.Clone(definitions)
}

// Lookup returns the definition of the named encoding.
func Lookup(name string) (Definition, error) {
	for _, d := range definitions {
		if d.Name == name {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// modelEncodings maps exact model names to encodings.
var modelEncodings = map[string]string{
	// chat
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
	"gpt-3.5":       "cl100k_base",
	"gpt-35-turbo":  "cl100k_base",
	// base
	"davinci-002": "cl100k_base",
	"babbage-002": "cl100k_base",
	// embeddings
	"text-embedding-ada-002": "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	// instruct
	"text-davinci-003": "p50k_base",
	"text-davinci-002": "p50k_base",
	"text-davinci-001": "r50k_base",
	"text-curie-001":   "r50k_base",
	"text-babbage-001": "r50k_base",
	"text-ada-001":     "r50k_base",
	"davinci":          "r50k_base",
	"curie":            "r50k_base",
	"babbage":          "r50k_base",
	"ada":              "r50k_base",
	// code
	"code-davinci-002": "p50k_base",
	"code-davinci-001": "p50k_base",
	"code-cushman-002": "p50k_base",
	"code-cushman-001": "p50k_base",
	"davinci-codex":    "p50k_base",
	"cushman-codex":    "p50k_base",
	// edit
	"text-davinci-edit-001": "p50k_edit",
	"code-davinci-edit-001": "p50k_edit",
	// old embeddings
	"text-similarity-davinci-001":  "r50k_base",
	"text-similarity-curie-001":    "r50k_base",
	"text-similarity-babbage-001":  "r50k_base",
	"text-similarity-ada-001":      "r50k_base",
	"text-search-davinci-doc-001":  "r50k_base",
	"text-search-curie-doc-001":    "r50k_base",
	"text-search-babbage-doc-001":  "r50k_base",
	"text-search-ada-doc-001":      "r50k_base",
	"code-search-babbage-code-001": "r50k_base",
	"code-search-ada-code-001":     "r50k_base",
	// open source
	"gpt2":  "gpt2",
	"gpt-2": "gpt2",
}

// modelPrefixes is consulted in order when no exact name matches.
var modelPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"o1-", "o200k_base"},
	{"o3-", "o200k_base"},
	{"chatgpt-4o-", "o200k_base"},
	{"gpt-4o-", "o200k_base"},
	{"gpt-4-", "cl100k_base"},
	{"gpt-3.5-turbo-", "cl100k_base"},
	{"gpt-35-turbo-", "cl100k_base"},
	{"ft:gpt-4o", "o200k_base"},
	{"ft:gpt-4", "cl100k_base"},
	{"ft:gpt-3.5-turbo", "cl100k_base"},
	{"ft:davinci-002", "cl100k_base"},
	{"ft:babbage-002", "cl100k_base"},
}

// EncodingForModel returns the encoding name used by a model.
func EncodingForModel(model string) (string, error) {
	if name, ok := modelEncodings[model]; ok {
		return name, nil
	}

	for _, p := range modelPrefixes {
		if strings.HasPrefix(model, p.prefix) {
			return p.encoding, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
}
