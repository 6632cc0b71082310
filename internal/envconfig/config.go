// Package envconfig reads BPETOK_* environment variables. Every accessor
// reads the environment on each call so tests can use t.Setenv.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tiktokbpe/internal/logutil"
)

const defaultBaseURL = "https://openaipublic.blob.core.windows.net"

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BPETOK_BASE_URL":  {"BPETOK_BASE_URL", BaseURL(), "Base URL rank files are downloaded from (default " + defaultBaseURL + ")"},
		"BPETOK_CACHE_DIR": {"BPETOK_CACHE_DIR", CacheDir(), "Directory downloaded rank files are kept in (default $HOME/.cache/bpetok)"},
		"BPETOK_DEBUG":     {"BPETOK_DEBUG", LogLevel(), "Show debug logging (1), or trace logging (2)"},
		"BPETOK_NO_CACHE":  {"BPETOK_NO_CACHE", NoCache(), "Do not memoise merged pieces"},
		"BPETOK_VOCAB_DIR": {"BPETOK_VOCAB_DIR", VocabDir(), "Read rank files from this directory and never download"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

// BaseURL is the download root, without a trailing slash.
func BaseURL() string {
	if s := clean("BPETOK_BASE_URL"); s != "" {
		return strings.TrimRight(s, "/")
	}
	return defaultBaseURL
}

// CacheDir is where downloaded rank files are stored.
func CacheDir() string {
	if s := clean("BPETOK_CACHE_DIR"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "bpetok")
	}
	return filepath.Join(home, ".cache", "bpetok")
}

// VocabDir is an offline directory of rank files. Empty means download.
func VocabDir() string {
	return clean("BPETOK_VOCAB_DIR")
}

// NoCache disables per-encoding merge memoisation.
func NoCache() bool {
	s := clean("BPETOK_NO_CACHE")
	if s == "" {
		return false
	}

	b, err := strconv.ParseBool(s)
	if err != nil {
		return true
	}
	return b
}

// LogLevel maps BPETOK_DEBUG to a slog level: unset or false is Info, true
// or 1 is Debug, and 2 or higher is Trace.
func LogLevel() slog.Level {
	s := clean("BPETOK_DEBUG")
	if s == "" {
		return slog.LevelInfo
	}

	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n <= 0:
			return slog.LevelInfo
		case n == 1:
			return slog.LevelDebug
		default:
			return logutil.LevelTrace
		}
	}

	if b, err := strconv.ParseBool(s); err == nil && !b {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
