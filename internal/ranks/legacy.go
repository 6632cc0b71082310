package ranks

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrLegacyMismatch is returned when encoder.json disagrees with the ranks
// derived from vocab.bpe.
var ErrLegacyMismatch = errors.New("ranks: encoder.json does not match vocab.bpe")

// byteEncoder is the GPT-2 byte -> printable rune table. Bytes that are
// printable and not a space stand for themselves; the remaining 68 bytes
// are shifted to U+0100 onwards in ascending byte order, so 0x20 becomes
// 'Ġ' (U+0120) and 0x0a becomes 'Ċ' (U+010A).
var byteEncoder = [256]rune{
	0x0100, 0x0101, 0x0102, 0x0103, 0x0104, 0x0105, 0x0106, 0x0107,
	0x0108, 0x0109, 0x010a, 0x010b, 0x010c, 0x010d, 0x010e, 0x010f,
	0x0110, 0x0111, 0x0112, 0x0113, 0x0114, 0x0115, 0x0116, 0x0117,
	0x0118, 0x0119, 0x011a, 0x011b, 0x011c, 0x011d, 0x011e, 0x011f,
	0x0120, 0x0021, 0x0022, 0x0023, 0x0024, 0x0025, 0x0026, 0x0027,
	0x0028, 0x0029, 0x002a, 0x002b, 0x002c, 0x002d, 0x002e, 0x002f,
	0x0030, 0x0031, 0x0032, 0x0033, 0x0034, 0x0035, 0x0036, 0x0037,
	0x0038, 0x0039, 0x003a, 0x003b, 0x003c, 0x003d, 0x003e, 0x003f,
	0x0040, 0x0041, 0x0042, 0x0043, 0x0044, 0x0045, 0x0046, 0x0047,
	0x0048, 0x0049, 0x004a, 0x004b, 0x004c, 0x004d, 0x004e, 0x004f,
	0x0050, 0x0051, 0x0052, 0x0053, 0x0054, 0x0055, 0x0056, 0x0057,
	0x0058, 0x0059, 0x005a, 0x005b, 0x005c, 0x005d, 0x005e, 0x005f,
	0x0060, 0x0061, 0x0062, 0x0063, 0x0064, 0x0065, 0x0066, 0x0067,
	0x0068, 0x0069, 0x006a, 0x006b, 0x006c, 0x006d, 0x006e, 0x006f,
	0x0070, 0x0071, 0x0072, 0x0073, 0x0074, 0x0075, 0x0076, 0x0077,
	0x0078, 0x0079, 0x007a, 0x007b, 0x007c, 0x007d, 0x007e, 0x0121,
	0x0122, 0x0123, 0x0124, 0x0125, 0x0126, 0x0127, 0x0128, 0x0129,
	0x012a, 0x012b, 0x012c, 0x012d, 0x012e, 0x012f, 0x0130, 0x0131,
	0x0132, 0x0133, 0x0134, 0x0135, 0x0136, 0x0137, 0x0138, 0x0139,
	0x013a, 0x013b, 0x013c, 0x013d, 0x013e, 0x013f, 0x0140, 0x0141,
	0x0142, 0x00a1, 0x00a2, 0x00a3, 0x00a4, 0x00a5, 0x00a6, 0x00a7,
	0x00a8, 0x00a9, 0x00aa, 0x00ab, 0x00ac, 0x0143, 0x00ae, 0x00af,
	0x00b0, 0x00b1, 0x00b2, 0x00b3, 0x00b4, 0x00b5, 0x00b6, 0x00b7,
	0x00b8, 0x00b9, 0x00ba, 0x00bb, 0x00bc, 0x00bd, 0x00be, 0x00bf,
	0x00c0, 0x00c1, 0x00c2, 0x00c3, 0x00c4, 0x00c5, 0x00c6, 0x00c7,
	0x00c8, 0x00c9, 0x00ca, 0x00cb, 0x00cc, 0x00cd, 0x00ce, 0x00cf,
	0x00d0, 0x00d1, 0x00d2, 0x00d3, 0x00d4, 0x00d5, 0x00d6, 0x00d7,
	0x00d8, 0x00d9, 0x00da, 0x00db, 0x00dc, 0x00dd, 0x00de, 0x00df,
	0x00e0, 0x00e1, 0x00e2, 0x00e3, 0x00e4, 0x00e5, 0x00e6, 0x00e7,
	0x00e8, 0x00e9, 0x00ea, 0x00eb, 0x00ec, 0x00ed, 0x00ee, 0x00ef,
	0x00f0, 0x00f1, 0x00f2, 0x00f3, 0x00f4, 0x00f5, 0x00f6, 0x00f7,
	0x00f8, 0x00f9, 0x00fa, 0x00fb, 0x00fc, 0x00fd, 0x00fe, 0x00ff,
}

// byteDecoder inverts byteEncoder.
var byteDecoder = func() map[rune]byte {
	m := make(map[rune]byte, len(byteEncoder))
	for b, r := range byteEncoder {
		m[r] = byte(b)
	}
	return m
}()

// legacyByteOrder lists the bytes in the order data gym assigns their
// single-byte ranks: printable bytes first, then the shifted ones.
var legacyByteOrder = func() [256]byte {
	var order [256]byte
	n := 0
	for b, r := range byteEncoder {
		if r < 0x100 {
			order[n] = byte(b)
			n++
		}
	}
	for b, r := range byteEncoder {
		if r >= 0x100 {
			order[n] = byte(b)
			n++
		}
	}
	return order
}()

// EncodeLegacyToken renders raw bytes in the GPT-2 printable alphabet.
func EncodeLegacyToken(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(byteEncoder[c])
	}
	return sb.String()
}

// DecodeLegacyToken turns a token written in the GPT-2 printable alphabet
// back into its raw bytes. Every rune must be one of the 256 stand-ins.
func DecodeLegacyToken(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			return nil, fmt.Errorf("invalid utf8 in token string at %q", s)
		}

		b, ok := byteDecoder[r]
		if !ok {
			return nil, fmt.Errorf("rune %U is not a byte stand-in", r)
		}
		out = append(out, b)

		s = s[size:]
	}

	return out, nil
}

// LoadLegacy builds a table from the GPT-2 data gym files. vocabBPE holds a
// version header followed by one merge per line; encoderJSON is optional and,
// when given, must agree with the derived table.
func LoadLegacy(vocabBPE io.Reader, encoderJSON io.Reader, opts ...Option) (Table, error) {
	o := newOptions(opts)

	table := make(Table, 50257)
	for rank, b := range legacyByteOrder {
		table[string([]byte{b})] = rank
	}

	scanner := bufio.NewScanner(vocabBPE)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	next := len(table)
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			// "#version: 0.2"
			continue
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		// the slot is consumed even when the line turns out to be malformed
		rank := next
		next++

		token, err := parseMerge(line)
		if err != nil {
			if err := o.reject(lineNo, err); err != nil {
				return nil, err
			}
			continue
		}

		table[string(token)] = rank
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error while reading vocab.bpe: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}

	if encoderJSON != nil {
		if err := checkEncoderJSON(table, encoderJSON); err != nil {
			return nil, err
		}
	}

	return table, nil
}

func parseMerge(line string) ([]byte, error) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected two fields, got %d", len(parts))
	}

	first, err := DecodeLegacyToken(parts[0])
	if err != nil {
		return nil, err
	}

	second, err := DecodeLegacyToken(parts[1])
	if err != nil {
		return nil, err
	}

	return append(first, second...), nil
}

// checkEncoderJSON compares the token -> id map of encoder.json with the
// table. The two special entries GPT-2 ships in that file are not mergeable
// and are ignored.
func checkEncoderJSON(table Table, r io.Reader) error {
	var encoder map[string]int
	if err := json.NewDecoder(r).Decode(&encoder); err != nil {
		return fmt.Errorf("error while unmarshalling encoder.json: %w", err)
	}

	delete(encoder, "<|endoftext|>")
	delete(encoder, "<|startoftext|>")

	if len(encoder) != len(table) {
		return fmt.Errorf("%w: %d entries, expected %d", ErrLegacyMismatch, len(encoder), len(table))
	}

	for tokenStr, id := range encoder {
		tokenBytes, err := DecodeLegacyToken(tokenStr)
		if err != nil {
			return fmt.Errorf("%w: token %q: %v", ErrLegacyMismatch, tokenStr, err)
		}

		rank, ok := table[string(tokenBytes)]
		if !ok || rank != id {
			return fmt.Errorf("%w: token %q has id %d", ErrLegacyMismatch, tokenStr, id)
		}
	}

	return nil
}
