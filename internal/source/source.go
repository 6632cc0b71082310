// Package source locates rank files, either in a local directory or by
// downloading them into an on-disk cache, and assembles vocabularies from
// them.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/tiktokbpe/internal/envconfig"
)

// Source opens the rank file at file, a slash separated path relative to
// the source root such as "encodings/cl100k_base.tiktoken".
type Source interface {
	Open(ctx context.Context, file string) (io.ReadCloser, error)
}

// Dir is a local directory of rank files. A file is looked up at its
// relative path first and then by its base name, so both a mirror of the
// download tree and a flat directory work.
type Dir string

func (d Dir) Open(_ context.Context, file string) (io.ReadCloser, error) {
	candidates := []string{
		filepath.Join(string(d), filepath.FromSlash(file)),
		filepath.Join(string(d), path.Base(file)),
	}

	for _, p := range candidates {
		f, err := os.Open(p)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%s not found in %s: %w", file, string(d), fs.ErrNotExist)
}

// FromEnv returns the source selected by the environment: BPETOK_VOCAB_DIR
// when set, otherwise downloads from BPETOK_BASE_URL cached in
// BPETOK_CACHE_DIR.
func FromEnv() Source {
	if dir := envconfig.VocabDir(); dir != "" {
		slog.Debug("using local vocabulary directory", "dir", dir)
		return Dir(dir)
	}
	return &HTTP{BaseURL: envconfig.BaseURL(), CacheDir: envconfig.CacheDir()}
}

// Prefetch opens every file once so a caching source has them on disk.
// At most limit files are fetched concurrently.
func Prefetch(ctx context.Context, src Source, files []string, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, file := range files {
		g.Go(func() error {
			rc, err := src.Open(ctx, file)
			if err != nil {
				return err
			}
			return rc.Close()
		})
	}

	return g.Wait()
}
