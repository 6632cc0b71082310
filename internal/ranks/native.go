package ranks

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// LineError describes a malformed record in a vocabulary file.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("ranks: line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

var (
	errFieldCount = errors.New("expected \"<base64> <rank>\"")
	errEmptyToken = errors.New("empty token")
)

type options struct {
	strict bool
	onSkip func(line int, err error)
}

// Option configures a loader.
type Option func(*options)

// Strict makes the loader fail on the first malformed line instead of
// skipping it.
func Strict() Option {
	return func(o *options) { o.strict = true }
}

// OnSkip registers a callback invoked for every malformed line the lenient
// loader skips.
func OnSkip(fn func(line int, err error)) Option {
	return func(o *options) { o.onSkip = fn }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// reject reports a malformed line. It returns a non-nil error only in strict
// mode.
func (o options) reject(line int, err error) error {
	if o.strict {
		return &LineError{Line: line, Err: err}
	}
	if o.onSkip != nil {
		o.onSkip(line, err)
	}
	return nil
}

// LoadNative parses the native rank format: one "<base64 bytes> <rank>"
// record per line. Blank lines are ignored. Malformed lines are skipped
// unless Strict is given. The resulting table must contain every single
// byte.
func LoadNative(r io.Reader, opts ...Option) (Table, error) {
	o := newOptions(opts)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	table := make(Table)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}

		token, rank, err := parseNativeLine(line)
		if err != nil {
			if err := o.reject(lineNo, err); err != nil {
				return nil, err
			}
			continue
		}

		table[string(token)] = rank
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error while reading rank file: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}

	return table, nil
}

func parseNativeLine(line []byte) ([]byte, int, error) {
	fields := bytes.Split(line, []byte{' '})
	if len(fields) != 2 {
		return nil, 0, errFieldCount
	}

	token := make([]byte, base64.StdEncoding.DecodedLen(len(fields[0])))
	n, err := base64.StdEncoding.Decode(token, fields[0])
	if err != nil {
		return nil, 0, fmt.Errorf("bad base64: %w", err)
	}
	if n == 0 {
		return nil, 0, errEmptyToken
	}

	rank, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return nil, 0, fmt.Errorf("bad rank: %w", err)
	}
	if rank < 0 {
		return nil, 0, ErrNegativeRank
	}

	return token[:n], rank, nil
}

// WriteNative writes t in the native format, ordered by rank, so that
// LoadNative(WriteNative(t)) == t.
func WriteNative(w io.Writer, t Table) error {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if t[a] != t[b] {
			return t[a] - t[b]
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	bw := bufio.NewWriter(w)
	for _, k := range keys {
		if _, err := fmt.Fprintf(bw, "%s %d\n", base64.StdEncoding.EncodeToString([]byte(k)), t[k]); err != nil {
			return err
		}
	}

	return bw.Flush()
}
