package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bitslides/bitslides/internal/config"
	"github.com/bitslides/bitslides/internal/engine"
	"github.com/bitslides/bitslides/internal/plan"
	"github.com/bitslides/bitslides/internal/trace"
	"github.com/bitslides/bitslides/internal/volume"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// exitError carries a process exit code through cobra's error path.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

//nolint:gocyclo // main CLI entry point orchestrates all flag parsing
func run() int {
	var (
		configPaths  []string
		workers      int
		fileWorkers  int
		retries      int
		checksumStr  string
		collisionStr string
		bwLimitStr   string
		timeout      time.Duration
		noSafe       bool
		dryRun       bool
		showVersion  bool
		verbosity    int
	)

	rootCmd := &cobra.Command{
		Use:   "bitslides [flags]",
		Short: "Move files between volumes through their slide folders",
		Long: `bitslides scans the configured roots for mounted volumes, each carrying a
slides container, and drains every slide toward the volume it is addressed
to. Files travel directly when the destination is mounted, or hop through a
routed intermediate volume when it is not.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "bitslides %s\n", version)
				return nil
			}

			logLevel := slog.LevelWarn
			switch {
			case verbosity >= 2:
				logLevel = slog.LevelDebug
			case verbosity == 1:
				logLevel = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			}))
			slog.SetDefault(logger)

			defaults, err := config.LoadDefaults()
			if err != nil {
				slog.Warn("ignoring defaults file", "path", config.DefaultsPath(), "error", err)
			}
			applyDefaults(cmd.Flags(), defaults,
				&workers, &fileWorkers, &retries,
				&checksumStr, &collisionStr, &bwLimitStr, &noSafe)

			checksum, err := engine.ParseAlgorithm(checksumStr)
			if err != nil {
				return err
			}
			collision, err := engine.ParseCollision(collisionStr)
			if err != nil {
				return err
			}
			bwLimit, err := engine.ParseBWLimit(bwLimitStr)
			if err != nil {
				return err
			}

			if len(configPaths) == 0 {
				return fmt.Errorf("at least one --config file is required")
			}

			var rootsets []config.Rootset
			for _, path := range configPaths {
				rs, err := config.Load(path)
				if err != nil {
					return err
				}
				rootsets = append(rootsets, rs)
			}

			volumes := make(map[string]*volume.Volume)
			for _, rs := range rootsets {
				for name, v := range volume.Identify(rs.Keyword, rs.Roots) {
					if prev, ok := volumes[name]; ok {
						slog.Warn("duplicate volume name across rootsets, keeping first",
							"name", name, "kept", prev.Path, "dropped", v.Path)
						continue
					}
					volumes[name] = v
				}
			}
			if len(volumes) == 0 {
				slog.Info("no volumes found, nothing to do")
				return nil
			}

			var traceTemplate string
			for _, rs := range rootsets {
				if rs.Trace != "" {
					traceTemplate = rs.Trace
					break
				}
			}
			tracer, err := trace.New(traceTemplate)
			if err != nil {
				return err
			}

			origin, err := os.Hostname()
			if err != nil {
				origin = "local"
			}
			jobs, err := plan.Build(volumes, plan.NewToken(origin))
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				slog.Info("no deliverable slides, nothing to do")
				return tracer.Close()
			}
			for _, job := range jobs {
				slog.Info("planned job", "job", job.String())
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng := engine.New(engine.Config{
				Workers:     workers,
				FileWorkers: fileWorkers,
				Retries:     retries,
				DryRun:      dryRun,
				Safe:        !noSafe,
				Collision:   collision,
				Checksum:    checksum,
				BWLimit:     bwLimit,
				FileTimeout: timeout,
				Trace:       tracer,
			})

			res, runErr := eng.Run(ctx, volumes, jobs)
			printSummary(res, dryRun)

			if cerr := tracer.Close(); cerr != nil {
				slog.Warn("trace sink", "error", cerr)
			}

			if runErr != nil {
				slog.Error("run finished with failures", "error", runErr)
				if res.JobsFailed > 0 && res.JobsFailed < res.Jobs {
					return &exitError{code: 1} // partial failure
				}
				return &exitError{code: 2}
			}
			if res.Stats.FilesFailed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringArrayVarP(&configPaths, "config", "c", nil,
		"rootset configuration file (repeatable)")
	flags.IntVar(&workers, "workers", 4, "concurrent sync jobs")
	flags.IntVar(&fileWorkers, "file-workers", 4, "concurrent files per job")
	flags.IntVar(&retries, "retries", 5, "per-file retry budget for transient failures")
	flags.StringVar(&checksumStr, "checksum", string(engine.SHA256),
		"verification digest: sha256, blake3 or xxhash")
	flags.StringVar(&collisionStr, "collision", string(engine.CollisionDefault),
		"collision policy: default, skip, overwrite or fail")
	flags.StringVar(&bwLimitStr, "bwlimit", "",
		"bandwidth limit in bytes/s, accepts K/M/G suffixes")
	flags.DurationVar(&timeout, "timeout", engine.DefaultFileTimeout,
		"per-file move timeout")
	flags.BoolVar(&noSafe, "no-safe", false,
		"stream copies straight to their final name instead of staging through hidden work files")
	flags.BoolVarP(&dryRun, "dry-run", "n", false,
		"report what would move without moving any file (missing destination slide folders are still created)")
	flags.CountVarP(&verbosity, "verbose", "v",
		"increase log verbosity (-v info, -vv debug)")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "bitslides: %v\n", err)
		return 2
	}
	return 0
}

// applyDefaults overlays the defaults file onto flags not explicitly set
// on the command line.
func applyDefaults(
	flags *pflag.FlagSet,
	d config.Defaults,
	workers, fileWorkers, retries *int,
	checksum, collision, bwLimit *string,
	noSafe *bool,
) {
	if !flags.Changed("workers") && d.Workers != nil {
		*workers = *d.Workers
	}
	if !flags.Changed("file-workers") && d.FileWorkers != nil {
		*fileWorkers = *d.FileWorkers
	}
	if !flags.Changed("retries") && d.Retries != nil {
		*retries = *d.Retries
	}
	if !flags.Changed("checksum") && d.Checksum != nil {
		*checksum = *d.Checksum
	}
	if !flags.Changed("collision") && d.Collision != nil {
		*collision = *d.Collision
	}
	if !flags.Changed("bwlimit") && d.BWLimit != nil {
		*bwLimit = *d.BWLimit
	}
	if !flags.Changed("no-safe") && d.Safe != nil {
		*noSafe = !*d.Safe
	}
}

func printSummary(res engine.Result, dryRun bool) {
	verb := "moved"
	if dryRun {
		verb = "would move"
	}
	fmt.Fprintf(os.Stdout, "%s %d files (%d bytes) across %d jobs in %s\n",
		verb, res.Stats.FilesMoved, res.Stats.BytesMoved, res.Jobs,
		res.Stats.Elapsed.Round(time.Millisecond))
	if res.Stats.FilesSkipped > 0 {
		fmt.Fprintf(os.Stdout, "skipped %d files\n", res.Stats.FilesSkipped)
	}
	if res.Stats.FilesFailed > 0 || res.JobsFailed > 0 {
		fmt.Fprintf(os.Stdout, "failed: %d files, %d jobs\n",
			res.Stats.FilesFailed, res.JobsFailed)
	}
}
