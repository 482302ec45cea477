package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/profitbox/betops/s3sync"
	"github.com/profitbox/betops/tlmt"
	"github.com/profitbox/betops/tlmt/gonoop"
	"github.com/profitbox/betops/tlmt/goposthog"
)

const (
	RunModeDeployUnits = iota + 1
	RunModeTailLogs
	RunModeArchive
	RunModeCompress
	RunModeDecompress
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
	ErrPrecondition   = errors.New("precondition failed")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// FolderSyncer uploads one local folder to remote storage. It never deletes
// anything remote.
type FolderSyncer interface {
	Sync(ctx context.Context, localDir, keyPrefix string) (uploaded, skipped int, err error)
}

type Config struct {
	RunMode int

	// data tree
	BaseDir     string
	MaxAgeDays  int // -1 means no window bound
	Sports      []string
	AnyCategory bool

	// compress / decompress
	GzipLevel      int
	KeepOriginal   bool
	KeepCompressed bool

	// archive
	DestPrefix string // s3://bucket/prefix
	Bucket     string
	KeyPrefix  string
	DryRun     bool
	ArchiveLog string
	Syncer     FolderSyncer

	// units
	UnitsDir string
	UnitDest string
	LogLines int

	// shared
	Concurrency int
	Timeout     time.Duration
	Strict      bool
	Debug       bool

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
}

const usage = `usage: betops <command> [flags]

commands:
  deploy-units   install systemd unit files and bring the units up
  tail-logs      print recent journal lines for each deployed service
  archive        upload day folders older than today to S3, then delete them
  compress       gzip recorded market files inside the day/sport tree
  decompress     gunzip recorded market files inside the day/sport tree
`

// ParseConfig parses os.Args into a Config. Defaults live here, at the CLI
// boundary, never in the packages below.
func ParseConfig() (*Config, error) {
	return parseConfig(os.Args[1:])
}

func parseConfig(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing command\n%s", ErrPrecondition, usage)
	}

	cfg := Config{
		MaxAgeDays:  -1,
		GzipLevel:   6,
		Concurrency: 4,
		LogLines:    15,
	}

	var sports string

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	fs.BoolVar(&cfg.Strict, "strict", false, "exit nonzero if any item in the batch failed")
	fs.DurationVar(&cfg.Timeout, "timeout", time.Minute, "timeout applied to each external call")

	switch args[0] {
	case "deploy-units":
		cfg.RunMode = RunModeDeployUnits

		fs.StringVar(&cfg.UnitsDir, "units", "units", "directory containing *.service and *.timer files")
		fs.StringVar(&cfg.UnitDest, "dest", "/etc/systemd/system", "systemd configuration directory")
	case "tail-logs":
		cfg.RunMode = RunModeTailLogs

		fs.StringVar(&cfg.UnitsDir, "units", "units", "directory containing *.service files")
		fs.IntVar(&cfg.LogLines, "n", 15, "number of journal lines per service")
	case "archive":
		cfg.RunMode = RunModeArchive

		fs.StringVar(&cfg.BaseDir, "base", "", "root of the per-day data tree")
		fs.StringVar(&cfg.DestPrefix, "dest", "", "destination, e.g. s3://bucket/hist_data")
		fs.BoolVar(&cfg.DryRun, "dry-run", false, "log intended actions without uploading or deleting")
		fs.StringVar(&cfg.ArchiveLog, "log-file", "", "append run output to this file as well")
		fs.IntVar(&cfg.Concurrency, "c", 4, "concurrent uploads within one day folder")
	case "compress", "decompress":
		if args[0] == "compress" {
			cfg.RunMode = RunModeCompress
		} else {
			cfg.RunMode = RunModeDecompress
		}

		fs.StringVar(&cfg.BaseDir, "base", "", "root of the per-day data tree")
		fs.IntVar(&cfg.MaxAgeDays, "nprev", -1, "only touch day folders at most N days old (-1: no bound)")
		fs.StringVar(&sports, "sport", "", "comma separated sport ids, e.g. '1,4,7' (empty: all)")
		fs.BoolVar(&cfg.AnyCategory, "any-category", false, "without -sport, accept non-numeric category directories too")
		fs.IntVar(&cfg.GzipLevel, "level", 6, "gzip compression level (1-9)")

		if args[0] == "compress" {
			fs.BoolVar(&cfg.KeepOriginal, "keep", false, "keep the uncompressed originals")
		} else {
			fs.BoolVar(&cfg.KeepCompressed, "keep", false, "keep the .gz files")
		}
	default:
		return nil, fmt.Errorf("%w: unknown command %q\n%s", ErrPrecondition, args[0], usage)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	if sports != "" {
		for _, s := range strings.Split(sports, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Sports = append(cfg.Sports, s)
			}
		}
	}

	if os.Getenv("DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	cfg.AwsAccessKey = os.Getenv("MY_AWS_ACCESS_KEY")
	cfg.AwsSecretKey = os.Getenv("MY_AWS_SECRET_KEY")
	cfg.AwsRegion = os.Getenv("MY_AWS_REGION")

	if cfg.RunMode == RunModeArchive && cfg.DestPrefix != "" {
		var err error

		cfg.Bucket, cfg.KeyPrefix, err = s3sync.ParseDestination(cfg.DestPrefix)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
		}
	}

	if cfg.RunMode == RunModeArchive && !cfg.DryRun &&
		cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" && cfg.AwsRegion != "" {
		client, err := s3sync.NewClient(cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.AwsRegion)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
		}

		cfg.Syncer = s3sync.New(client, cfg.Bucket, cfg.Concurrency, cfg.Timeout)
	}

	return &cfg, nil
}

// NewLogger builds the process logger. extraPaths are appended as additional
// sinks (the archive command tees into its append-only log file this way).
func NewLogger(debug bool, extraPaths ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = append([]string{"stderr"}, extraPaths...)

	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

func Telemetry() tlmt.Telemetry {
	telemetryOnce.Do(func() {
		if os.Getenv("DISABLE_TELEMETRY") == "1" {
			telemetry = gonoop.New()

			return
		}

		key := os.Getenv("BETOPS_POSTHOG_KEY")
		if key == "" {
			telemetry = gonoop.New()

			return
		}

		val, err := goposthog.New(key, "https://eu.i.posthog.com")
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}

func wrapText(text string, width int) []string {
	var lines []string

	currentLine := ""
	currentWidth := 0

	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width {
			lines = append(lines, currentLine)
			currentLine = string(r)
			currentWidth = runeWidth
		} else {
			currentLine += string(r)
			currentWidth += runeWidth
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(0)
		if err != nil {
			width = 80
		}
	}

	if width < 20 {
		width = 20
	}

	contentWidth := width - 4

	var wrappedLines []string
	for _, message := range messages {
		wrappedLines = append(wrappedLines, wrapText(message, contentWidth)...)
	}

	var builder strings.Builder

	builder.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrappedLines {
		lineWidth := runewidth.StringWidth(line)
		paddingRight := contentWidth - lineWidth

		if paddingRight < 0 {
			paddingRight = 0
		}

		builder.WriteString(fmt.Sprintf("║ %s%s ║\n", line, strings.Repeat(" ", paddingRight)))
	}

	builder.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return builder.String()
}

func Banner() {
	message1 := "🏇 betops: betting data operations"
	message2 := "deploys recorder units and shuttles historical market files between disk and S3"

	fmt.Fprintln(os.Stderr, banner([]string{message1, message2}, 0))
}
