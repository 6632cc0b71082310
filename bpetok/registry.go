package bpetok

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tiktokbpe/internal/envconfig"
	"github.com/tiktokbpe/internal/source"
	"github.com/tiktokbpe/internal/vocab"
)

// Source opens a rank file by its slash separated path relative to the
// source root, e.g. "encodings/cl100k_base.tiktoken".
type Source interface {
	Open(ctx context.Context, file string) (io.ReadCloser, error)
}

// DirSource reads rank files from a local directory, either mirroring the
// download tree or flat.
func DirSource(dir string) Source {
	return source.Dir(dir)
}

// HTTPSource downloads rank files from baseURL, keeping them in cacheDir
// when it is not empty.
func HTTPSource(baseURL, cacheDir string) Source {
	return &source.HTTP{BaseURL: baseURL, CacheDir: cacheDir}
}

// Registry resolves encoding and model names to Encodings. Each vocabulary
// is loaded at most once, however many goroutines ask for it at the same
// time. The zero value is not usable; call NewRegistry.
type Registry struct {
	src  Source
	opts []Option

	mu          sync.RWMutex
	definitions map[string]vocab.Definition
	encodings   map[string]*Encoding
	generation  map[string]int

	group singleflight.Group
}

// NewRegistry returns a registry of the built-in vocabularies read from src.
// opts apply to every Encoding it creates.
func NewRegistry(src Source, opts ...Option) *Registry {
	r := &Registry{
		src:         src,
		opts:        opts,
		definitions: make(map[string]vocab.Definition),
		encodings:   make(map[string]*Encoding),
		generation:  make(map[string]int),
	}
	for _, def := range vocab.Definitions() {
		r.definitions[def.Name] = def
	}
	return r
}

// Register adds or replaces a vocabulary definition. An Encoding already
// loaded under the same name is dropped, and a load of the old definition
// that is still running will not be kept.
func (r *Registry) Register(def vocab.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.definitions[def.Name] = def
	r.generation[def.Name]++
	delete(r.encodings, def.Name)
	r.group.Forget(def.Name)
}

// Definition returns the definition registered under name.
func (r *Registry) Definition(name string) (vocab.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[name]
	if !ok {
		return vocab.Definition{}, fmt.Errorf("%w: %q", vocab.ErrUnknownEncoding, name)
	}
	return def, nil
}

// Get returns the Encoding registered under name, loading it on first use.
// The load is shared by every concurrent caller and is not canceled with
// ctx; a caller whose ctx ends stops waiting and gets ctx.Err().
func (r *Registry) Get(ctx context.Context, name string) (*Encoding, error) {
	r.mu.RLock()
	enc, ok := r.encodings[name]
	r.mu.RUnlock()
	if ok {
		return enc, nil
	}

	if _, err := r.Definition(name); err != nil {
		return nil, err
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (any, error) {
		return r.load(loadCtx, name)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.Debug("shared encoding load", "encoding", name)
		}
		return res.Val.(*Encoding), nil
	}
}

func (r *Registry) load(ctx context.Context, name string) (*Encoding, error) {
	r.mu.RLock()
	enc, ok := r.encodings[name]
	def, known := r.definitions[name]
	gen := r.generation[name]
	r.mu.RUnlock()
	if ok {
		return enc, nil
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", vocab.ErrUnknownEncoding, name)
	}

	start := time.Now()
	d, err := source.Load(ctx, r.src, def)
	if err != nil {
		return nil, err
	}

	enc, err = NewEncoding(d, r.opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// Register replaced the definition while this load ran
	stale := r.generation[name] != gen
	if !stale {
		r.encodings[name] = enc
	}
	r.mu.Unlock()

	if stale {
		slog.Debug("discarding stale encoding load", "encoding", name)
	} else {
		slog.Info("loaded encoding", "encoding", name, "vocab", d.VocabSize(), "elapsed", time.Since(start))
	}
	return enc, nil
}

// ForModel returns the Encoding used by a model such as "gpt-4o" or
// "text-davinci-003". An encoding name is accepted as well.
func (r *Registry) ForModel(ctx context.Context, model string) (*Encoding, error) {
	name, err := vocab.EncodingForModel(model)
	if err != nil {
		if _, derr := r.Definition(model); derr != nil {
			return nil, err
		}
		name = model
	}
	return r.Get(ctx, name)
}

// Encode encodes text with the encoding of model.
func (r *Registry) Encode(ctx context.Context, model, text string) ([]int, error) {
	enc, err := r.ForModel(ctx, model)
	if err != nil {
		return nil, err
	}
	return enc.Encode(text), nil
}

// Decode decodes ids with the encoding of model.
func (r *Registry) Decode(ctx context.Context, model string, ids []int) (string, error) {
	enc, err := r.ForModel(ctx, model)
	if err != nil {
		return "", err
	}
	return enc.Decode(ids)
}

// Count returns the number of tokens text encodes to under model.
func (r *Registry) Count(ctx context.Context, model, text string) (int, error) {
	enc, err := r.ForModel(ctx, model)
	if err != nil {
		return 0, err
	}
	return enc.Count(text), nil
}

// EnvOptions returns the Encoding options selected by the environment.
func EnvOptions() []Option {
	if envconfig.NoCache() {
		return []Option{WithoutCache()}
	}
	return nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(source.FromEnv(), EnvOptions()...)
})

// Default returns the process wide registry configured from BPETOK_*
// environment variables.
func Default() *Registry {
	return defaultRegistry()
}

// Encode encodes text with the encoding of model using the default
// registry.
func Encode(ctx context.Context, model, text string) ([]int, error) {
	return Default().Encode(ctx, model, text)
}

// Decode decodes ids with the encoding of model using the default registry.
func Decode(ctx context.Context, model string, ids []int) (string, error) {
	return Default().Decode(ctx, model, ids)
}

// Count counts the tokens of text under model using the default registry.
func Count(ctx context.Context, model, text string) (int, error) {
	return Default().Count(ctx, model, text)
}
