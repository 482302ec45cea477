// Package sysd deploys systemd unit files and reads service journals. The
// service manager itself stays an opaque external command behind the
// CommandRunner seam, so everything above it is testable with a fake.
package sysd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrToolMissing = errors.New("required external tool not found")

// CommandRunner runs one external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct {
	timeout time.Duration
}

// NewRunner returns a CommandRunner executing real processes, each bounded
// by timeout.
func NewRunner(timeout time.Duration) CommandRunner {
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return string(out), nil
}

// CheckTools verifies every named command is on PATH. Called once at
// startup, not per invocation.
func CheckTools(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%w: %s", ErrToolMissing, name)
		}
	}

	return nil
}

// Attempt records one step of a fallback chain.
type Attempt struct {
	Command string
	Err     error
}

type Manager struct {
	runner  CommandRunner
	unitDir string
}

func NewManager(runner CommandRunner, unitDir string) *Manager {
	return &Manager{
		runner:  runner,
		unitDir: unitDir,
	}
}

// ListUnits returns the unit file names (sorted) in dir matching the given
// suffixes, e.g. ".service", ".timer".
func ListUnits(dir string, suffixes ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var ans []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		for _, suffix := range suffixes {
			if strings.HasSuffix(entry.Name(), suffix) {
				ans = append(ans, entry.Name())

				break
			}
		}
	}

	sort.Strings(ans)

	return ans, nil
}

// Install copies the named unit files from srcDir into the systemd
// configuration directory and reloads the manager.
func (m *Manager) Install(ctx context.Context, srcDir string, units []string) error {
	for _, unit := range units {
		data, err := os.ReadFile(filepath.Join(srcDir, unit))
		if err != nil {
			return err
		}

		if err := os.WriteFile(filepath.Join(m.unitDir, unit), data, 0o644); err != nil {
			return err
		}
	}

	_, err := m.runner.Run(ctx, "systemctl", "daemon-reload")

	return err
}

// BringUp starts a unit through an ordered fallback chain: enable --now,
// then restart, then start. The first success short-circuits; every attempt
// is recorded for diagnostics.
func (m *Manager) BringUp(ctx context.Context, unit string) ([]Attempt, error) {
	chain := [][]string{
		{"enable", "--now", unit},
		{"restart", unit},
		{"start", unit},
	}

	var attempts []Attempt

	for _, args := range chain {
		_, err := m.runner.Run(ctx, "systemctl", args...)
		attempts = append(attempts, Attempt{
			Command: "systemctl " + strings.Join(args, " "),
			Err:     err,
		})

		if err == nil {
			return attempts, nil
		}
	}

	return attempts, fmt.Errorf("all attempts to bring up %s failed", unit)
}

// NextTrigger returns the next scheduled elapse time of a timer unit.
func (m *Manager) NextTrigger(ctx context.Context, timer string) (string, error) {
	out, err := m.runner.Run(ctx, "systemctl", "show", timer, "-p", "NextElapseUSecRealtime", "--value")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// TailLogs returns the last n journal lines for a service unit.
func (m *Manager) TailLogs(ctx context.Context, service string, n int) (string, error) {
	return m.runner.Run(ctx, "journalctl", "-u", service, "-n", fmt.Sprintf("%d", n), "--no-pager")
}
