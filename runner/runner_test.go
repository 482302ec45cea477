package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigCompress(t *testing.T) {
	cfg, err := parseConfig([]string{"compress", "-base", "/data/self_recorded", "-nprev", "7", "-sport", "1, 4,7", "-keep"})
	require.NoError(t, err)

	assert.Equal(t, RunModeCompress, cfg.RunMode)
	assert.Equal(t, "/data/self_recorded", cfg.BaseDir)
	assert.Equal(t, 7, cfg.MaxAgeDays)
	assert.Equal(t, []string{"1", "4", "7"}, cfg.Sports)
	assert.True(t, cfg.KeepOriginal)
	assert.False(t, cfg.KeepCompressed)
	assert.Equal(t, 6, cfg.GzipLevel)
}

func TestParseConfigDecompressKeep(t *testing.T) {
	cfg, err := parseConfig([]string{"decompress", "-base", "/data", "-keep"})
	require.NoError(t, err)

	assert.Equal(t, RunModeDecompress, cfg.RunMode)
	assert.True(t, cfg.KeepCompressed)
	assert.False(t, cfg.KeepOriginal)
	assert.Equal(t, -1, cfg.MaxAgeDays)
	assert.Empty(t, cfg.Sports)
}

func TestParseConfigArchive(t *testing.T) {
	cfg, err := parseConfig([]string{"archive", "-base", "/data", "-dest", "s3://hist/bflw", "-dry-run"})
	require.NoError(t, err)

	assert.Equal(t, RunModeArchive, cfg.RunMode)
	assert.Equal(t, "hist", cfg.Bucket)
	assert.Equal(t, "bflw", cfg.KeyPrefix)
	assert.True(t, cfg.DryRun)
	assert.Nil(t, cfg.Syncer)
	assert.Equal(t, time.Minute, cfg.Timeout)
}

func TestParseConfigArchiveDryRunEnv(t *testing.T) {
	t.Setenv("DRY_RUN", "1")

	cfg, err := parseConfig([]string{"archive", "-base", "/data", "-dest", "s3://hist"})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestParseConfigTailLogs(t *testing.T) {
	cfg, err := parseConfig([]string{"tail-logs", "-units", "deploy/units", "-n", "50"})
	require.NoError(t, err)

	assert.Equal(t, RunModeTailLogs, cfg.RunMode)
	assert.Equal(t, "deploy/units", cfg.UnitsDir)
	assert.Equal(t, 50, cfg.LogLines)
}

func TestParseConfigDeployUnitsDefaults(t *testing.T) {
	cfg, err := parseConfig([]string{"deploy-units"})
	require.NoError(t, err)

	assert.Equal(t, RunModeDeployUnits, cfg.RunMode)
	assert.Equal(t, "/etc/systemd/system", cfg.UnitDest)
}

func TestParseConfigRejectsUnknownCommand(t *testing.T) {
	_, err := parseConfig([]string{"frobnicate"})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	_, err := parseConfig([]string{"compress", "-wat"})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestParseConfigRejectsMissingCommand(t *testing.T) {
	_, err := parseConfig(nil)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestParseConfigBadDestination(t *testing.T) {
	_, err := parseConfig([]string{"archive", "-base", "/data", "-dest", "http://nope"})
	assert.ErrorIs(t, err, ErrPrecondition)
}
