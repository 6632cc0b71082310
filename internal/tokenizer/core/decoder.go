package core

import (
	"errors"
	"fmt"
)

// ErrUnknownToken matches every *DecodeError.
var ErrUnknownToken = errors.New("core: unknown token id")

// DecodeError names a token id that has no byte sequence.
type DecodeError struct {
	ID int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("core: unknown token id %d", e.ID)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrUnknownToken
}

// TokenBytes returns the bytes of a single id, special tokens included. The
// result aliases internal memory and must be treated as read-only.
func (t *Tokenizer) TokenBytes(id int) ([]byte, error) {
	if id >= 0 && id < len(t.decoder) && t.decoder[id] != nil {
		return t.decoder[id], nil
	}
	if b, ok := t.specialDecoder[id]; ok {
		return b, nil
	}
	return nil, &DecodeError{ID: id}
}

// DecodeSingle is TokenBytes returning a copy the caller may keep.
func (t *Tokenizer) DecodeSingle(id int) ([]byte, error) {
	b, err := t.TokenBytes(id)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// DecodeBytes concatenates the byte sequences of ids. The result need not be
// valid UTF-8 when ids split a code point.
func (t *Tokenizer) DecodeBytes(ids []int) ([]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	total := 0
	for _, id := range ids {
		b, err := t.TokenBytes(id)
		if err != nil {
			return nil, err
		}
		total += len(b)
	}

	out := make([]byte, 0, total)
	for _, id := range ids {
		b, _ := t.TokenBytes(id)
		out = append(out, b...)
	}

	return out, nil
}

// Decode is DecodeBytes returned as a string. Invalid UTF-8 is passed
// through untouched.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	b, err := t.DecodeBytes(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
