// Command systemd-cron-generator is the boot-time unit generator: it
// reads the classical cron tables and synthesises timer/service units
// plus their cron.target enlistment symlinks into the directory the
// service manager hands it (spec §6 "External interfaces").
//
// Grounded on cmd/provisr/main.go's single cobra.Command construction,
// reduced to one positional-arg root: the systemd generator calling
// convention (`program normal-dir [early-dir late-dir]`) is strictly
// positional, unlike provisr's own multi-subcommand CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sysdcron/generator/internal/buildcfg"
	"github.com/sysdcron/generator/internal/genlog"
	"github.com/sysdcron/generator/internal/generator"
	"github.com/sysdcron/generator/internal/metrics"
	"github.com/sysdcron/generator/internal/stampstore"
)

func main() {
	var (
		togglesFile    string
		traceFile      string
		metricsFile    string
		stampstorePath string
	)

	root := &cobra.Command{
		Use:           "systemd-cron-generator <normal-dir> [early-dir] [late-dir]",
		Short:         "Synthesise systemd timer/service units from classical cron tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, togglesFile, traceFile, metricsFile, stampstorePath)
		},
	}
	root.Flags().StringVar(&togglesFile, "toggles-file", "/etc/systemd/system-generators/systemd-cron-generator.toml", "optional build-time toggle override file")
	root.Flags().StringVar(&traceFile, "trace-file", "", "optional rotating trace-log path for verbose diagnostics")
	root.Flags().StringVar(&metricsFile, "metrics-textfile", "", "optional node_exporter textfile-collector path for this run's summary")
	root.Flags().StringVar(&stampstorePath, "stampstore", "/var/lib/systemd-cron-generator/runs.db", "path to the run ledger used by cron-stamp-gc and cron-inspect")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "systemd-cron-generator: %v\n", err)
		os.Exit(1)
	}
}

// run performs one generation pass. The destination directory must
// already exist (spec §6); everything else is optional tooling wired
// around the core pipeline.
func run(args []string, togglesFile, traceFile, metricsFile, stampstorePath string) error {
	targetDir := args[0]
	generatorMode := len(args) == 3

	fi, err := os.Stat(targetDir)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("usage: systemd-cron-generator <normal-dir> [early-dir] [late-dir]: %s is not a directory", targetDir)
	}

	logger, err := genlog.New("systemd-cron-generator", generatorMode, traceFile)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logger.Close()

	toggles, err := buildcfg.Load(togglesFile)
	if err != nil {
		logger.Log(genlog.DirectiveBad, "ignoring build-time toggle file: %v", err)
		toggles = buildcfg.Defaults()
	}

	r := &generator.Run{
		TargetDir:   targetDir,
		TimersDir:   filepath.Join(targetDir, "cron.target.wants"),
		StateDir:    toggles.StateDir,
		Toggles:     toggles,
		Logger:      logger,
		HasSendmail: hasSendmail(),
	}

	sum, runErr := r.Execute()
	if runErr != nil {
		if generatorMode {
			logger.Log(genlog.Fatal, "generation failed: %v", runErr)
			os.Exit(1)
		}
		return runErr
	}

	if metricsFile != "" {
		m := metrics.NewRun()
		m.Observe(metrics.Summary{
			TablesProcessed: sum.TablesProcessed,
			JobsTruncated:   sum.JobsTruncated,
			JobsSkipped:     sum.JobsSkipped,
			JobsMasked:      sum.JobsMasked,
			UnitsWritten:    sum.UnitsWritten,
		}, time.Now().Unix())
		if err := m.WriteTextfile(metricsFile); err != nil {
			logger.Log(genlog.DirectiveBad, "failed to write metrics textfile: %v", err)
		}
	}

	if stampstorePath != "" {
		if err := recordRun(stampstorePath, targetDir, sum); err != nil {
			logger.Log(genlog.DirectiveBad, "failed to record run in stamp store: %v", err)
		}
	}

	return nil
}

func recordRun(path, targetDir string, sum generator.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stamp store dir: %w", err)
	}
	store, err := stampstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.RecordRun(context.Background(), stampstore.Run{
		DestinationDir:  targetDir,
		TablesProcessed: sum.TablesProcessed,
		JobsTruncated:   sum.JobsTruncated,
		JobsSkipped:     sum.JobsSkipped,
		JobsMasked:      sum.JobsMasked,
		UnitsWritten:    sum.UnitsWritten,
		UnitNames:       sum.UnitNames,
	}, time.Now().Unix())
	return err
}

// sendmailPaths are the two fixed locations the original probes, not a
// $PATH lookup (spec supplement, SPEC_FULL.md §4).
var sendmailPaths = []string{"/usr/sbin/sendmail", "/usr/lib/sendmail"}

func hasSendmail() bool {
	for _, p := range sendmailPaths {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return true
		}
	}
	return false
}
