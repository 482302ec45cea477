// Package logsrunner prints recent journal lines for each deployed service.
package logsrunner

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/profitbox/betops/runner"
	"github.com/profitbox/betops/sysd"
)

type logsRunner struct {
	cfg    *runner.Config
	mgr    *sysd.Manager
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeTailLogs {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if err := sysd.CheckTools("journalctl"); err != nil {
		return nil, fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	logger, err := runner.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	return &logsRunner{
		cfg:    cfg,
		mgr:    sysd.NewManager(sysd.NewRunner(cfg.Timeout), ""),
		logger: logger,
	}, nil
}

func (r *logsRunner) Run(ctx context.Context) error {
	services, err := sysd.ListUnits(r.cfg.UnitsDir, ".service")
	if err != nil {
		return fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	if len(services) == 0 {
		r.logger.Info("no service files found", zap.String("dir", r.cfg.UnitsDir))

		return nil
	}

	failed := 0

	for _, service := range services {
		out, terr := r.mgr.TailLogs(ctx, service, r.cfg.LogLines)
		if terr != nil {
			r.logger.Warn("cannot read journal", zap.String("unit", service), zap.Error(terr))
			failed++

			continue
		}

		fmt.Fprintf(os.Stdout, "===== %s =====\n%s\n", service, strings.TrimRight(out, "\n"))
	}

	if r.cfg.Strict && failed > 0 {
		return fmt.Errorf("%d service journal(s) unavailable", failed)
	}

	return nil
}

func (r *logsRunner) Close(context.Context) error {
	_ = r.logger.Sync()

	return nil
}
