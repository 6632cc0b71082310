package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTTP downloads rank files from BaseURL. When CacheDir is set each file is
// downloaded once and served from disk afterwards.
type HTTP struct {
	BaseURL  string
	CacheDir string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (h *HTTP) url(file string) string {
	return strings.TrimRight(h.BaseURL, "/") + "/" + strings.TrimLeft(file, "/")
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

// CachePath returns where file is kept on disk, or "" without a cache.
func (h *HTTP) CachePath(file string) string {
	if h.CacheDir == "" {
		return ""
	}
	return filepath.Join(h.CacheDir, filepath.FromSlash(strings.TrimLeft(file, "/")))
}

func (h *HTTP) Open(ctx context.Context, file string) (io.ReadCloser, error) {
	dest := h.CachePath(file)
	if dest == "" {
		resp, err := h.get(ctx, h.url(file))
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	f, err := os.Open(dest)
	if err == nil {
		slog.Debug("using cached rank file", "file", file, "path", dest)
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := h.download(ctx, h.url(file), dest); err != nil {
		return nil, err
	}
	return os.Open(dest)
}

func (h *HTTP) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	return resp, nil
}

// download writes url to destPath through a temporary file so a reader
// never sees a partial download.
func (h *HTTP) download(ctx context.Context, url, destPath string) error {
	start := time.Now()
	slog.Info("downloading rank file", "url", url)

	resp, err := h.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(destPath), err)
	}

	out, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".partial-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer os.Remove(out.Name())

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if n == 0 {
		return fmt.Errorf("download %s: got 0 bytes", url)
	}

	if err := os.Rename(out.Name(), destPath); err != nil {
		return fmt.Errorf("rename %s: %w", destPath, err)
	}

	slog.Info("downloaded rank file", "url", url, "bytes", n, "elapsed", time.Since(start))
	return nil
}
