// Package archiverunner uploads day folders older than today to S3 and
// deletes the local copy once the upload is confirmed.
package archiverunner

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/profitbox/betops/runner"
	"github.com/profitbox/betops/store"
	"github.com/profitbox/betops/tlmt"
)

type archiveRunner struct {
	cfg    *runner.Config
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeArchive {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("%w: -base is required", runner.ErrPrecondition)
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: -dest is required", runner.ErrPrecondition)
	}

	if !cfg.DryRun && cfg.Syncer == nil {
		return nil, fmt.Errorf("%w: AWS credentials not configured (MY_AWS_ACCESS_KEY, MY_AWS_SECRET_KEY, MY_AWS_REGION)", runner.ErrPrecondition)
	}

	var extra []string
	if cfg.ArchiveLog != "" {
		extra = append(extra, cfg.ArchiveLog)
	}

	logger, err := runner.NewLogger(cfg.Debug, extra...)
	if err != nil {
		return nil, err
	}

	return &archiveRunner{
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (r *archiveRunner) Run(ctx context.Context) (err error) {
	t0 := time.Now().UTC()

	var archived, failed int

	defer func() {
		params := map[string]any{
			"archived": archived,
			"failed":   failed,
			"duration": time.Now().UTC().Sub(t0).String(),
		}

		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("archive", params))
	}()

	now := time.Now()

	folders, err := store.SelectDateFolders(r.cfg.BaseDir, -1, now)
	if err != nil {
		return fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	for _, folder := range folders {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// today's folder may still be receiving writes, future dates are
		// clock skew: neither is archived
		if store.AgeDays(now, folder.Date) < 1 {
			r.logger.Debug("leaving folder untouched", zap.String("folder", folder.Name))

			continue
		}

		empty, eerr := store.IsEmptyTree(folder.Path)
		if eerr != nil {
			r.logger.Warn("cannot inspect folder", zap.String("folder", folder.Name), zap.Error(eerr))
			failed++

			continue
		}

		if empty {
			r.logger.Debug("skipping empty folder", zap.String("folder", folder.Name))

			continue
		}

		keyPrefix := folder.Name
		if r.cfg.KeyPrefix != "" {
			keyPrefix = r.cfg.KeyPrefix + "/" + folder.Name
		}

		if r.cfg.DryRun {
			r.logger.Info("dry-run: would sync and delete",
				zap.String("folder", folder.Path),
				zap.String("dest", fmt.Sprintf("s3://%s/%s", r.cfg.Bucket, keyPrefix)),
			)

			continue
		}

		uploaded, skipped, serr := r.cfg.Syncer.Sync(ctx, folder.Path, keyPrefix)
		if serr != nil {
			// the local folder stays: deletion is gated on this folder's own
			// confirmed upload, never on the batch
			r.logger.Error("sync failed, keeping local folder",
				zap.String("folder", folder.Name),
				zap.Int("uploaded", uploaded),
				zap.Error(serr),
			)
			failed++

			continue
		}

		if derr := os.RemoveAll(folder.Path); derr != nil {
			r.logger.Error("uploaded but local delete failed", zap.String("folder", folder.Name), zap.Error(derr))
			failed++

			continue
		}

		archived++

		r.logger.Info("archived",
			zap.String("folder", folder.Name),
			zap.Int("uploaded", uploaded),
			zap.Int("skipped", skipped),
		)
	}

	r.logger.Info("archive run complete",
		zap.Int("archived", archived),
		zap.Int("failed", failed),
		zap.Bool("dry_run", r.cfg.DryRun),
	)

	if r.cfg.Strict && failed > 0 {
		return fmt.Errorf("%d folder(s) failed to archive", failed)
	}

	return nil
}

func (r *archiveRunner) Close(context.Context) error {
	_ = r.logger.Sync()

	return nil
}
