package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/profitbox/betops/runner"
	"github.com/profitbox/betops/runner/archiverunner"
	"github.com/profitbox/betops/runner/compressrunner"
	"github.com/profitbox/betops/runner/deployrunner"
	"github.com/profitbox/betops/runner/logsrunner"
)

func main() {
	_ = godotenv.Load() // Load .env file if present
	ctx, cancel := context.WithCancel(context.Background())

	cfg, err := runner.ParseConfig()
	if err != nil {
		cancel()
		os.Stderr.WriteString(err.Error() + "\n")

		os.Exit(1)
	}

	runner.Banner()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		log.Println("Received signal, shutting down...")

		cancel()
	}()

	runnerInstance, err := runnerFactory(cfg)
	if err != nil {
		cancel()
		os.Stderr.WriteString(err.Error() + "\n")

		runner.Telemetry().Close()

		os.Exit(1)
	}

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString(err.Error() + "\n")

		_ = runnerInstance.Close(ctx)
		runner.Telemetry().Close()

		cancel()

		os.Exit(1)
	}

	_ = runnerInstance.Close(ctx)
	runner.Telemetry().Close()

	cancel()

	os.Exit(0)
}

func runnerFactory(cfg *runner.Config) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeDeployUnits:
		return deployrunner.New(cfg)
	case runner.RunModeTailLogs:
		return logsrunner.New(cfg)
	case runner.RunModeArchive:
		return archiverunner.New(cfg)
	case runner.RunModeCompress, runner.RunModeDecompress:
		return compressrunner.New(cfg)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
