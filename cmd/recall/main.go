package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/recall/internal/config"
	"github.com/bamsammich/recall/internal/engine"
	"github.com/bamsammich/recall/internal/event"
	"github.com/bamsammich/recall/internal/filter"
	"github.com/bamsammich/recall/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

// logFlags are shared by every subcommand.
type logFlags struct {
	verbose bool
	quiet   bool
	logFile string
	closer  io.Closer
}

// setup configures the default slog logger: text on stderr at a level
// chosen by --verbose/--quiet, plus a Debug-level JSON log with --log.
func (l *logFlags) setup() error {
	logLevel := slog.LevelInfo
	if l.verbose {
		logLevel = slog.LevelDebug
	} else if l.quiet {
		logLevel = slog.LevelWarn
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if l.logFile != "" {
		lf, err := os.Create(l.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		l.closer = lf
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return nil
}

func (l *logFlags) close() {
	if l.closer != nil {
		_ = l.closer.Close()
	}
}

type backupFlags struct {
	workers      int
	scanWorkers  int
	keep         int
	checkContent bool
	useSnapshot  bool
	dryRun       bool
	showVersion  bool
	hash         string
	crossVolume  string
	bwLimitStr   string
	profile      string
	project      string
	mtimeWindow  time.Duration
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all flag parsing and mode selection
func run() int {
	var (
		flags backupFlags
		logs  logFlags
	)
	defer logs.close()

	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "recall [flags] <source> <destination>",
		Short: "Incremental hardlink snapshots of a directory tree",
		Long: `recall copies a source tree into a new timestamped snapshot under
<destination>/<project>/. Files unchanged since the previous snapshot are
hardlinked to it instead of copied, so every snapshot is a complete tree
while only changed files take new space.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.showVersion {
				return nil
			}
			if flags.profile != "" {
				return cobra.MaximumNArgs(2)(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logs.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.showVersion {
				fmt.Fprintf(os.Stdout, "recall %s\n", version)
				return nil
			}

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			ui.ApplyTheme(cfg.Theme)

			engineCfg, err := buildConfig(cmd.Flags(), args, cfg, &flags, chain)
			if err != nil {
				return err
			}

			// Set up context with signal handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result := runBackup(ctx, engineCfg, logs)
			stop()

			if !logs.quiet || result.Verdict != engine.Success {
				fmt.Fprintln(os.Stderr, ui.Summary(result, ui.StyledOutput(os.Stderr)))
			}
			code := result.Verdict.ExitCode()
			if result.Err != nil {
				slog.Error("backup failed", "error", result.Err)
			}

			if flags.keep > 0 && result.Committed && !flags.dryRun {
				pr, err := engine.Prune(context.Background(), engine.PruneConfig{
					Root: engineCfg.ProjectDir(),
					Keep: flags.keep,
				})
				if err != nil {
					slog.Error("prune failed", "error", err)
					code = max(code, 1)
				} else {
					if !logs.quiet {
						fmt.Fprintln(os.Stderr, ui.PruneSummary(pr, false))
					}
					if len(pr.Errors) > 0 {
						code = max(code, 1)
					}
				}
			}

			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	// Version flag handled in RunE, but also register the flag.
	rootCmd.Flags().BoolVar(&flags.showVersion, "version", false, "print version and exit")

	rootCmd.PersistentFlags().BoolVarP(&logs.verbose, "verbose", "v", false, "verbose output (one line per file)")
	rootCmd.PersistentFlags().BoolVarP(&logs.quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVar(&logs.logFile, "log", "", "write structured JSON log to FILE")

	registerBackupFlags(rootCmd.Flags(), &flags, chain)

	// Register subcommands.
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

// registerBackupFlags binds the backup flags of the root command.
func registerBackupFlags(fs *pflag.FlagSet, flags *backupFlags, chain *filter.Chain) {
	fs.IntVarP(&flags.workers, "workers", "n", 0, "number of copy workers (default: NumCPU)")
	fs.IntVar(&flags.scanWorkers, "scan-workers", 0, "concurrent directory reads (default: min(NumCPU, 8))")
	fs.BoolVar(&flags.checkContent, "check-content", false, "hash metadata-equal files before linking them")
	fs.BoolVar(&flags.useSnapshot, "use-snapshot", false, "read the source through a frozen volume snapshot")
	fs.StringVar(&flags.hash, "hash", "blake3", "content hash for --check-content (blake3 or xxh3)")
	fs.DurationVar(&flags.mtimeWindow, "mtime-window", engine.DefaultModTimeWindow, "mtime difference still treated as unchanged")
	fs.StringVar(&flags.crossVolume, "cross-volume", "fail", "baseline on another volume: fail, copy or abort")
	fs.StringVar(&flags.bwLimitStr, "bwlimit", "", "bandwidth limit for copies (e.g. 100MB, 1GiB)")
	fs.IntVar(&flags.keep, "keep", 0, "after a committed backup, prune all but the newest N snapshots")
	fs.BoolVar(&flags.dryRun, "dry-run", false, "show what would be done without writing")
	fs.StringVar(&flags.profile, "profile", "", "use a saved profile from the config file")
	fs.StringVar(&flags.project, "project", "", "snapshot directory under the destination (default: source base name)")

	// Filter flags use a custom pflag.Value to preserve CLI ordering.
	fs.VarP(&filterFlag{chain: chain, include: false}, "exclude", "", "exclude files matching PATTERN (repeatable)")
	fs.VarP(&filterFlag{chain: chain, include: true}, "include", "", "include files matching PATTERN (repeatable)")
}

// buildConfig merges positional arguments, the selected profile, config
// file defaults and flags into an engine config. Flags set explicitly on
// the command line always win.
func buildConfig(
	fs *pflag.FlagSet,
	args []string,
	cfg config.Config,
	flags *backupFlags,
	chain *filter.Chain,
) (engine.Config, error) {
	var profile config.Profile
	if flags.profile != "" {
		p, err := cfg.Profile(flags.profile)
		if err != nil {
			return engine.Config{}, err
		}
		profile = p
	}

	source, destination := profile.Source, profile.Destination
	if len(args) > 0 {
		source = args[0]
	}
	if len(args) > 1 {
		destination = args[1]
	}
	if source == "" || destination == "" {
		return engine.Config{}, errors.New("source and destination are required (as arguments or from --profile)")
	}

	if err := applyConfigDefaults(fs, cfg.Defaults, flags); err != nil {
		return engine.Config{}, err
	}
	if !fs.Changed("check-content") && profile.CheckContent != nil {
		flags.checkContent = *profile.CheckContent
	}
	if !fs.Changed("use-snapshot") && profile.UseSnapshot != nil {
		flags.useSnapshot = *profile.UseSnapshot
	}

	hash, err := engine.ParseHashAlgorithm(flags.hash)
	if err != nil {
		return engine.Config{}, err
	}
	policy, err := engine.ParseCrossVolumePolicy(flags.crossVolume)
	if err != nil {
		return engine.Config{}, err
	}

	// Parse bandwidth limit.
	var bwLimit int64
	if flags.bwLimitStr != "" {
		n, err := humanize.ParseBytes(flags.bwLimitStr)
		if err != nil {
			return engine.Config{}, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		bwLimit = int64(n) //nolint:gosec // G115: a byte rate never approaches MaxInt64
	}

	if flags.keep < 0 {
		return engine.Config{}, fmt.Errorf("--keep must not be negative, got %d", flags.keep)
	}

	// First match wins: CLI rules override the ignore file at the source
	// root, which overrides profile excludes.
	ignore := filter.NewChain()
	ignorePath := filepath.Join(source, filter.IgnoreFileName)
	loaded, err := ignore.LoadOptional(ignorePath)
	if err != nil {
		return engine.Config{}, fmt.Errorf("load %s: %w", ignorePath, err)
	}
	if loaded {
		slog.Debug("loaded ignore file", "path", ignorePath, "rules", len(ignore.Patterns()))
	}
	rules := chain.Concat(ignore)

	// Zero selects the default; negative counts are mistakes.
	if flags.workers < 0 {
		return engine.Config{}, fmt.Errorf("--workers must not be negative, got %d", flags.workers)
	}
	if flags.scanWorkers < 0 {
		return engine.Config{}, fmt.Errorf("--scan-workers must not be negative, got %d", flags.scanWorkers)
	}
	workers := flags.workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	engineCfg := engine.DefaultConfig(source, destination)
	engineCfg.Project = flags.project
	engineCfg.Workers = workers
	engineCfg.ScanWorkers = flags.scanWorkers
	engineCfg.CheckContent = flags.checkContent
	engineCfg.UseSnapshot = flags.useSnapshot
	engineCfg.Hash = hash
	engineCfg.CrossVolume = policy
	engineCfg.ModTimeWindow = flags.mtimeWindow
	engineCfg.BWLimit = bwLimit
	engineCfg.DryRun = flags.dryRun
	engineCfg.Excludes = profile.Exclude
	// Only set filter if it has rules.
	if !rules.Empty() {
		engineCfg.Filter = rules
	}
	return engineCfg, engineCfg.Validate()
}

// runBackup runs the engine with a presenter consuming its events. With
// --log every event is also written to the JSON log.
func runBackup(ctx context.Context, cfg engine.Config, logs logFlags) engine.Result {
	events := make(chan event.Event, 256)
	cfg.Events = events

	presenterEvents := (<-chan event.Event)(events)
	if logs.logFile != "" {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				ui.LogEvent(context.Background(), ev)
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Quiet:     logs.quiet,
		Verbose:   logs.verbose,
	})

	if cfg.DryRun {
		slog.Info("dry run mode")
	}
	slog.Debug("starting backup",
		"source", cfg.Source,
		"destination", cfg.Destination,
		"workers", cfg.Workers,
		"check_content", cfg.CheckContent,
	)

	// Inline mode: run presenter in background, engine in foreground.
	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	result := engine.Run(ctx, cfg)
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}
	return result
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(fs *pflag.FlagSet, defaults config.DefaultsConfig, flags *backupFlags) error {
	if !fs.Changed("workers") && defaults.Workers != nil {
		flags.workers = *defaults.Workers
	}
	if !fs.Changed("check-content") && defaults.CheckContent != nil {
		flags.checkContent = *defaults.CheckContent
	}
	if !fs.Changed("keep") && defaults.Keep != nil {
		flags.keep = *defaults.Keep
	}
	if !fs.Changed("bwlimit") && defaults.BWLimit != nil {
		flags.bwLimitStr = *defaults.BWLimit
	}
	if !fs.Changed("hash") && defaults.Hash != nil {
		flags.hash = *defaults.Hash
	}
	if !fs.Changed("cross-volume") && defaults.CrossVolume != nil {
		flags.crossVolume = *defaults.CrossVolume
	}
	if !fs.Changed("mtime-window") && defaults.MtimeWindow != nil {
		d, err := time.ParseDuration(*defaults.MtimeWindow)
		if err != nil {
			return fmt.Errorf("config mtime_window: %w", err)
		}
		flags.mtimeWindow = d
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
