// Command cron-stamp-gc removes stale Persistent= timer stamp files
// under /var/lib/systemd/timers. It is the mechanical stale-stamp
// cleaner the spec calls out as out-of-core (spec §1 "Out of scope"),
// reimplemented with access to internal/stampstore's record of exactly
// which unit names the most recent generation run emitted, which is
// sharper than the original's plain glob-diff against
// /run/systemd/generator (remove_stale_stamps.py): a stamp is kept
// whenever stampstore still lists its owning unit, regardless of
// whether the timer symlink itself happens to still be present on disk.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sysdcron/generator/internal/stampstore"
)

// builtinStamps are always kept: they belong to the legacy
// cron.<period> directory timers, which aren't tied to any one
// generation run's unit-name set (remove_stale_stamps.py lines 9-14).
var builtinStamps = []string{
	"stamp-cron-daily.timer",
	"stamp-cron-weekly.timer",
	"stamp-cron-monthly.timer",
	"stamp-cron-quarterly.timer",
	"stamp-cron-semi-annually.timer",
	"stamp-cron-yearly.timer",
}

func main() {
	var (
		stampDir       string
		stampstorePath string
		staleAfter     time.Duration
		dryRun         bool
	)

	root := &cobra.Command{
		Use:           "cron-stamp-gc",
		Short:         "Remove stamp-cron-* files no longer needed by any live or recently generated timer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sweep(stampDir, stampstorePath, staleAfter, dryRun)
		},
	}
	root.Flags().StringVar(&stampDir, "stamp-dir", "/var/lib/systemd/timers", "directory holding stamp-cron-* files")
	root.Flags().StringVar(&stampstorePath, "stampstore", "/var/lib/systemd-cron-generator/runs.db", "path to the generator's run ledger")
	root.Flags().DurationVar(&staleAfter, "stale-after", 10*24*time.Hour, "minimum age before an orphaned stamp is removed")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be removed instead of removing it")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cron-stamp-gc: %v\n", err)
		os.Exit(1)
	}
}

func sweep(stampDir, stampstorePath string, staleAfter time.Duration, dryRun bool) error {
	needed := map[string]bool{}
	for _, b := range builtinStamps {
		needed[b] = true
	}

	if store, err := stampstore.Open(stampstorePath); err == nil {
		defer store.Close()
		if last, ok, err := store.LastRun(context.Background()); err == nil && ok {
			for _, name := range last.UnitNames {
				needed["stamp-"+name+".timer"] = true
			}
		}
	}
	// A missing or unreadable stampstore just means every stamp is
	// judged solely by age, same as the original's glob-diff approach.

	entries, err := os.ReadDir(stampDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", stampDir, err)
	}

	cutoff := time.Now().Add(-staleAfter)
	for _, e := range entries {
		name := e.Name()
		if ok, _ := filepath.Match("stamp-cron-*", name); !ok || needed[name] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(stampDir, name)
		if dryRun {
			fmt.Println(path)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}
