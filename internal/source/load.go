package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tiktokbpe/internal/ranks"
	"github.com/tiktokbpe/internal/vocab"
)

// Load reads the rank files of def from src and builds its descriptor.
// Malformed lines are skipped and logged unless opts include ranks.Strict.
func Load(ctx context.Context, src Source, def vocab.Definition, opts ...ranks.Option) (*vocab.Descriptor, error) {
	start := time.Now()

	skipped := 0
	opts = append([]ranks.Option{ranks.OnSkip(func(line int, err error) {
		skipped++
		slog.Debug("skipping malformed rank line", "encoding", def.Name, "line", line, "error", err)
	})}, opts...)

	table, err := loadTable(ctx, src, def, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", def.Name, err)
	}

	var vopts []vocab.Option
	if def.ExplicitNVocab > 0 {
		vopts = append(vopts, vocab.WithExplicitVocabSize(def.ExplicitNVocab))
	}

	d, err := vocab.New(def.Name, def.Pattern, table, def.Special, vopts...)
	if err != nil {
		return nil, err
	}

	if skipped > 0 {
		slog.Warn("rank file had malformed lines", "encoding", def.Name, "skipped", skipped)
	}
	slog.Debug("loaded vocabulary", "encoding", def.Name, "ranks", len(table), "elapsed", time.Since(start))
	return d, nil
}

func loadTable(ctx context.Context, src Source, def vocab.Definition, opts []ranks.Option) (ranks.Table, error) {
	switch def.Format {
	case vocab.FormatNative:
		if len(def.Files) != 1 {
			return nil, fmt.Errorf("native format wants 1 file, got %d", len(def.Files))
		}

		rc, err := src.Open(ctx, def.Files[0])
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		return ranks.LoadNative(rc, opts...)
	case vocab.FormatLegacy:
		if len(def.Files) == 0 || len(def.Files) > 2 {
			return nil, fmt.Errorf("legacy format wants 1 or 2 files, got %d", len(def.Files))
		}

		bpe, err := src.Open(ctx, def.Files[0])
		if err != nil {
			return nil, err
		}
		defer bpe.Close()

		var encoderJSON io.Reader
		if len(def.Files) == 2 {
			rc, err := src.Open(ctx, def.Files[1])
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			encoderJSON = rc
		}

		return ranks.LoadLegacy(bpe, encoderJSON, opts...)
	default:
		return nil, fmt.Errorf("unknown format %v", def.Format)
	}
}
