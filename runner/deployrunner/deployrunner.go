// Package deployrunner installs the recorder's systemd units and brings
// them up.
package deployrunner

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/profitbox/betops/runner"
	"github.com/profitbox/betops/sysd"
	"github.com/profitbox/betops/tlmt"
)

type deployRunner struct {
	cfg    *runner.Config
	mgr    *sysd.Manager
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeDeployUnits {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if os.Geteuid() != 0 {
		return nil, fmt.Errorf("%w: deploy-units must run as root", runner.ErrPrecondition)
	}

	if err := sysd.CheckTools("systemctl"); err != nil {
		return nil, fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	logger, err := runner.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	return &deployRunner{
		cfg:    cfg,
		mgr:    sysd.NewManager(sysd.NewRunner(cfg.Timeout), cfg.UnitDest),
		logger: logger,
	}, nil
}

func (r *deployRunner) Run(ctx context.Context) (err error) {
	defer func() {
		params := map[string]any{}
		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("deploy_units", params))
	}()

	units, err := sysd.ListUnits(r.cfg.UnitsDir, ".service", ".timer")
	if err != nil {
		return fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	if len(units) == 0 {
		r.logger.Info("no unit files found", zap.String("dir", r.cfg.UnitsDir))

		return nil
	}

	if err := r.mgr.Install(ctx, r.cfg.UnitsDir, units); err != nil {
		return fmt.Errorf("%w: %v", runner.ErrPrecondition, err)
	}

	r.logger.Info("installed unit files", zap.Strings("units", units), zap.String("dest", r.cfg.UnitDest))

	failed := 0

	for _, unit := range units {
		attempts, uerr := r.mgr.BringUp(ctx, unit)

		for _, attempt := range attempts {
			if attempt.Err != nil {
				r.logger.Warn("attempt failed", zap.String("unit", unit), zap.String("command", attempt.Command), zap.Error(attempt.Err))
			} else {
				r.logger.Info("unit up", zap.String("unit", unit), zap.String("command", attempt.Command))
			}
		}

		if uerr != nil {
			failed++

			continue
		}

		if strings.HasSuffix(unit, ".timer") {
			next, terr := r.mgr.NextTrigger(ctx, unit)
			if terr == nil && next != "" {
				r.logger.Info("timer scheduled", zap.String("unit", unit), zap.String("next", next))
			}
		}
	}

	r.logger.Info("deploy complete", zap.Int("units", len(units)), zap.Int("failed", failed))

	if r.cfg.Strict && failed > 0 {
		return fmt.Errorf("%d unit(s) failed to start", failed)
	}

	return nil
}

func (r *deployRunner) Close(context.Context) error {
	_ = r.logger.Sync()

	return nil
}
