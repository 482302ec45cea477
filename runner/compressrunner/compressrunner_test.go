package compressrunner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profitbox/betops/gzcodec"
	"github.com/profitbox/betops/runner"
	"github.com/profitbox/betops/runner/compressrunner"
)

func dayName(daysAgo int) string {
	return time.Now().UTC().AddDate(0, 0, -daysAgo).Format("2006-01-02")
}

func seed(t *testing.T, base, day, sport, name string, content []byte) string {
	t.Helper()

	dir := filepath.Join(base, day, sport)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	return path
}

func newCfg(mode int, base string) *runner.Config {
	return &runner.Config{
		RunMode:    mode,
		BaseDir:    base,
		MaxAgeDays: -1,
		GzipLevel:  6,
	}
}

func TestCompressRespectsSportFilter(t *testing.T) {
	base := t.TempDir()
	day := dayName(1)

	tennis := seed(t, base, day, "4", "1.234.jsonl", []byte("tennis\n"))
	soccer := seed(t, base, day, "1", "1.987.jsonl", []byte("soccer\n"))

	cfg := newCfg(runner.RunModeCompress, base)
	cfg.Sports = []string{"4"}

	r, err := compressrunner.New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.FileExists(t, tennis+".gz")
	assert.NoFileExists(t, tennis)

	// the unfiltered sport is untouched
	assert.FileExists(t, soccer)
	assert.NoFileExists(t, soccer+".gz")
}

func TestCompressSkipsAlreadyCompressed(t *testing.T) {
	base := t.TempDir()
	day := dayName(1)

	gz := seed(t, base, day, "4", "old.jsonl.gz", []byte("whatever"))
	plain := seed(t, base, day, "4", "new.jsonl", []byte("fresh\n"))

	r, err := compressrunner.New(newCfg(runner.RunModeCompress, base))
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	// pre-existing .gz content is not double compressed
	data, rerr := os.ReadFile(gz)
	require.NoError(t, rerr)
	assert.Equal(t, []byte("whatever"), data)

	assert.FileExists(t, plain+".gz")
}

func TestCompressWindowScopesFolders(t *testing.T) {
	base := t.TempDir()

	recent := seed(t, base, dayName(1), "4", "a.jsonl", []byte("a\n"))
	old := seed(t, base, dayName(30), "4", "b.jsonl", []byte("b\n"))

	cfg := newCfg(runner.RunModeCompress, base)
	cfg.MaxAgeDays = 7

	r, err := compressrunner.New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.FileExists(t, recent+".gz")
	assert.FileExists(t, old)
	assert.NoFileExists(t, old+".gz")
}

func TestRoundTripThroughRunners(t *testing.T) {
	base := t.TempDir()
	day := dayName(1)
	content := []byte(`{"op":"mcm"}` + "\n")

	path := seed(t, base, day, "4", "1.234.jsonl", content)

	c, err := compressrunner.New(newCfg(runner.RunModeCompress, base))
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.NoFileExists(t, path)

	d, err := compressrunner.New(newCfg(runner.RunModeDecompress, base))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.NoFileExists(t, path+".gz")
}

func TestDecompressFailSoftMiddleItem(t *testing.T) {
	base := t.TempDir()
	day := dayName(1)

	codec, err := gzcodec.New(6)
	require.NoError(t, err)

	first := seed(t, base, day, "4", "a.jsonl", []byte("a\n"))
	_, err = codec.Compress(first, false)
	require.NoError(t, err)

	// item 2 is not actually gzip data
	corrupt := seed(t, base, day, "4", "b.jsonl.gz", []byte("garbage"))

	third := seed(t, base, day, "4", "c.jsonl", []byte("c\n"))
	_, err = codec.Compress(third, false)
	require.NoError(t, err)

	r, err := compressrunner.New(newCfg(runner.RunModeDecompress, base))
	require.NoError(t, err)

	// items 1 and 3 complete despite item 2 failing
	require.NoError(t, r.Run(context.Background()))
	assert.FileExists(t, first)
	assert.FileExists(t, third)
	assert.FileExists(t, corrupt)
}

func TestDecompressStrictSurfacesFailures(t *testing.T) {
	base := t.TempDir()
	day := dayName(1)

	seed(t, base, day, "4", "b.jsonl.gz", []byte("garbage"))

	cfg := newCfg(runner.RunModeDecompress, base)
	cfg.Strict = true

	r, err := compressrunner.New(cfg)
	require.NoError(t, err)
	assert.Error(t, r.Run(context.Background()))
}

func TestMissingBaseIsPrecondition(t *testing.T) {
	cfg := newCfg(runner.RunModeCompress, filepath.Join(t.TempDir(), "nope"))

	r, err := compressrunner.New(cfg)
	require.NoError(t, err)

	err = r.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrPrecondition)
}

func TestKeepOriginalLeavesBothFiles(t *testing.T) {
	base := t.TempDir()
	day := dayName(1)

	path := seed(t, base, day, "4", "a.jsonl", []byte("a\n"))

	cfg := newCfg(runner.RunModeCompress, base)
	cfg.KeepOriginal = true

	r, err := compressrunner.New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.FileExists(t, path)
	assert.FileExists(t, path+".gz")
}
