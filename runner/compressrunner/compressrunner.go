// Package compressrunner gzips (or gunzips) recorded market files across the
// day/sport tree, scoped by a recency window and a sport allow-list.
package compressrunner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/profitbox/betops/gzcodec"
	"github.com/profitbox/betops/runner"
	"github.com/profitbox/betops/store"
	"github.com/profitbox/betops/tally"
	"github.com/profitbox/betops/tlmt"
)

type compressRunner struct {
	cfg    *runner.Config
	codec  *gzcodec.Codec
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeCompress && cfg.RunMode != runner.RunModeDecompress {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("%w: -base is required", runner.ErrPrecondition)
	}

	codec, err := gzcodec.New(cfg.GzipLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	logger, err := runner.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	return &compressRunner{
		cfg:    cfg,
		codec:  codec,
		logger: logger,
	}, nil
}

func (r *compressRunner) Run(ctx context.Context) (err error) {
	t0 := time.Now().UTC()
	tl := tally.New()

	eventName := "compress"
	if r.cfg.RunMode == runner.RunModeDecompress {
		eventName = "decompress"
	}

	defer func() {
		params := map[string]any{
			"attempted": tl.Attempted(),
			"succeeded": tl.Succeeded(),
			"duration":  time.Now().UTC().Sub(t0).String(),
		}

		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent(eventName, params))
	}()

	folders, err := store.SelectDateFolders(r.cfg.BaseDir, r.cfg.MaxAgeDays, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	for _, folder := range folders {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cats, cerr := store.SelectCategoryFolders(folder, r.cfg.Sports, r.cfg.AnyCategory)
		if cerr != nil {
			r.logger.Warn("cannot enumerate sports", zap.String("folder", folder.Name), zap.Error(cerr))

			continue
		}

		for _, cat := range cats {
			files, ferr := store.ListFiles(cat.Path, r.eligible)
			if ferr != nil {
				r.logger.Warn("cannot list files", zap.String("dir", cat.Path), zap.Error(ferr))

				continue
			}

			for _, file := range files {
				out, aerr := r.apply(file)
				tl.Add(file, aerr)

				if aerr != nil {
					r.logger.Error("item failed", zap.String("file", file), zap.Error(aerr))

					continue
				}

				r.logger.Info("done", zap.String("file", file), zap.String("out", out))
			}
		}
	}

	r.logger.Info("batch complete",
		zap.Int("attempted", tl.Attempted()),
		zap.Int("succeeded", tl.Succeeded()),
		zap.Int("failed", tl.Failed()),
	)

	if r.cfg.Strict && tl.Failed() > 0 {
		return fmt.Errorf("%d item(s) failed", tl.Failed())
	}

	return nil
}

func (r *compressRunner) eligible(name string) bool {
	if r.cfg.RunMode == runner.RunModeCompress {
		return !gzcodec.IsCompressed(name)
	}

	return gzcodec.IsCompressed(name)
}

func (r *compressRunner) apply(file string) (string, error) {
	if r.cfg.RunMode == runner.RunModeCompress {
		return r.codec.Compress(file, r.cfg.KeepOriginal)
	}

	return r.codec.Decompress(file, r.cfg.KeepCompressed)
}

func (r *compressRunner) Close(context.Context) error {
	_ = r.logger.Sync()

	return nil
}
