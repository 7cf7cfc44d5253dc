// Package generator drives a single generation pass: it walks every
// classical cron source in the fixed order the original used, feeding
// each job through normalize -> schedule -> unit, and records a summary
// for internal/metrics and internal/stampstore (spec §4.7).
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sysdcron/generator/internal/buildcfg"
	"github.com/sysdcron/generator/internal/genlog"
	"github.com/sysdcron/generator/internal/job"
	"github.com/sysdcron/generator/internal/normalize"
	"github.com/sysdcron/generator/internal/schedule"
	"github.com/sysdcron/generator/internal/table"
	"github.com/sysdcron/generator/internal/unit"
)

// partToTimer maps a legacy cron.<period> script basename to the native
// timer unit name it's superseded by on certain distros, so the legacy
// script is skipped in favour of the native one.
var partToTimer = map[string]string{
	"apt-compat": "apt-daily",
	"dpkg":       "dpkg-db-backup",
	"plocate":    "plocate-updatedb",
	"sysstat":    "sysstat-summary",
}

// cronDToTimer maps a /etc/cron.d file basename to the native timer unit
// name it's superseded by, so an /etc/cron.d entry already covered by a
// native timer of a *different* name is still recognised as masked
// (spec §6 alias tables, "cron.d name -> native timer name").
var cronDToTimer = map[string]string{
	"ntpsec":  "ntpsec-rotate-stats",
	"sysstat": "sysstat-collect",
}

const (
	rebootFile   = "/run/crond.reboot"
	runPartsFlag = "/run/systemd/use_run_parts"
)

// Run holds everything one generation pass needs.
type Run struct {
	TargetDir   string
	TimersDir   string
	StateDir    string // per-user crontab directory (spec's configured state dir)
	Toggles     buildcfg.Toggles
	Logger      *genlog.Logger
	HasSendmail bool
}

// Summary totals one pass's outcome, consumed by internal/metrics and
// internal/stampstore.
type Summary struct {
	TablesProcessed int
	JobsTruncated   int
	JobsSkipped     int
	JobsMasked      int
	UnitsWritten    int
	UnitNames       []string
}

// Execute performs the full walk: /etc/crontab, /etc/cron.d, legacy
// cron.<period> directories, /etc/anacrontab, then the per-user state
// directory (or its cron-after-var.service fallback).
func (r *Run) Execute() (Summary, error) {
	var sum Summary

	if err := os.MkdirAll(r.TimersDir, 0o755); err != nil {
		return sum, fmt.Errorf("create %s: %w", r.TimersDir, err)
	}

	alloc := unit.NewAllocator()
	daemonReload := fileExists(rebootFile)

	unitOpts := unit.Options{
		TargetDir:         r.TargetDir,
		TimersDir:         r.TimersDir,
		RandomizedDelay:   r.Toggles.RandomizedDelay,
		PersistentEnabled: r.Toggles.Persistent,
		UseLogLevelMax:    r.Toggles.UseLogLevelMax,
		LibDir:            r.Toggles.LibDir,
		Package:           r.Toggles.Package,
		HasSendmail:       r.HasSendmail,
		StateDirRootPath:  filepath.Join(r.StateDir, "root"),
	}

	runParts := r.Toggles.UseRunParts
	fallbackMailto := ""
	haveFallbackMailto := false

	if fileExists("/etc/crontab") {
		jobs, err := table.ParseFile("/etc/crontab", table.Options{
			WithUser:        true,
			DefaultRunParts: r.Toggles.UseRunParts,
			HasSendmail:     r.HasSendmail,
		}, r.Logger)
		if err != nil {
			return sum, err
		}
		sum.TablesProcessed++
		for _, j := range jobs {
			if j.Truncated {
				r.Logger.Log(genlog.MalformedDrop, "truncated line in /etc/crontab: %s", j.SourceLine)
				sum.JobsTruncated++
				continue
			}
			runParts = j.RunParts
			if v, ok := j.Environment["MAILTO"]; ok {
				fallbackMailto, haveFallbackMailto = v, true
			}
			if isLegacyCronDirCommand(j.CommandString()) {
				continue
			}
			r.process(j, daemonReload, unitOpts, alloc, &sum)
		}
	}

	for _, path := range listFiles("/etc/cron.d") {
		basename := filepath.Base(path)
		if strings.HasPrefix(basename, ".") || strings.Contains(basename, ".dpkg-") || strings.Contains(basename, "~") {
			r.Logger.Log(genlog.Info, "ignoring %s", path)
			continue
		}
		if masked, viaDevNull := r.nativeTimerMasks(basename); masked {
			if viaDevNull {
				r.Logger.Log(genlog.Info, "ignoring %s because it is masked", path)
			} else {
				r.Logger.Log(genlog.Info, "ignoring %s because native timer is present", path)
			}
			sum.JobsMasked++
			continue
		}

		jobs, err := table.ParseFile(path, table.Options{WithUser: true, HasSendmail: r.HasSendmail}, r.Logger)
		if err != nil {
			return sum, err
		}
		sum.TablesProcessed++
		for _, j := range jobs {
			if j.Truncated {
				r.Logger.Log(genlog.MalformedDrop, "truncated line in %s: %s", path, j.SourceLine)
				sum.JobsTruncated++
				continue
			}
			if haveFallbackMailto {
				if _, ok := j.Environment["MAILTO"]; !ok {
					j.Environment["MAILTO"] = fallbackMailto
				}
			}
			r.process(j, daemonReload, unitOpts, alloc, &sum)
		}
	}

	if runParts {
		_ = touch(runPartsFlag)
	} else {
		if fileExists(runPartsFlag) {
			_ = os.Remove(runPartsFlag)
		}
		if err := r.legacyPeriodDirectories(unitOpts, &sum); err != nil {
			return sum, err
		}
	}

	if fileExists("/etc/anacrontab") {
		jobs, err := table.ParseFile("/etc/anacrontab", table.Options{Monotonic: true, HasSendmail: r.HasSendmail}, r.Logger)
		if err != nil {
			return sum, err
		}
		sum.TablesProcessed++
		for _, j := range jobs {
			if j.Truncated {
				r.Logger.Log(genlog.MalformedDrop, "truncated line in /etc/anacrontab: %s", j.SourceLine)
				sum.JobsTruncated++
				continue
			}
			r.process(j, daemonReload, unitOpts, alloc, &sum)
		}
	}

	if dirExists(r.StateDir) {
		for _, path := range listFiles(r.StateDir) {
			basename := filepath.Base(path)
			if strings.Contains(basename, ".") {
				continue
			}
			jobs, err := table.ParseFile(path, table.Options{WithUser: false, HasSendmail: r.HasSendmail}, r.Logger)
			if err != nil {
				return sum, err
			}
			sum.TablesProcessed++
			for _, j := range jobs {
				if j.Truncated {
					r.Logger.Log(genlog.MalformedDrop, "truncated line in %s: %s", path, j.SourceLine)
					sum.JobsTruncated++
					continue
				}
				r.process(j, daemonReload, unitOpts, alloc, &sum)
			}
		}
		_ = touch(rebootFile)
	} else if err := r.writeCronAfterVarFallback(); err != nil {
		return sum, err
	}

	return sum, nil
}

// process runs one job through normalize -> schedule -> unit.
func (r *Run) process(j *job.Job, daemonReload bool, opts unit.Options, alloc *unit.Allocator, sum *Summary) {
	if res := normalize.Normalize(j); res.Drop {
		sum.JobsSkipped++
		return
	}
	sr := schedule.Compile(j, daemonReload)
	if sr.Skip {
		sum.JobsSkipped++
		return
	}
	name, err := unit.Synthesize(j, sr, opts, alloc)
	if err != nil {
		r.Logger.Log(genlog.Fatal, "failed to write unit for %s: %v", j.SourceLine, err)
		return
	}
	sum.UnitsWritten++
	sum.UnitNames = append(sum.UnitNames, name)
}

// nativeTimerMasks reports whether a /etc/cron.d entry is already
// covered by a native systemd timer of the same basename (or of its
// cronDToTimer alias, looked up in the unit directory only), and whether
// that timer is an explicit /dev/null mask as opposed to a genuinely
// shipped unit (spec §4.7 step 2).
func (r *Run) nativeTimerMasks(basename string) (masked bool, viaDevNull bool) {
	candidates := []string{
		filepath.Join(r.Toggles.UnitDir, basename+".timer"),
		"/etc/systemd/system/" + basename + ".timer",
		"/run/systemd/system/" + basename + ".timer",
	}
	if alias, ok := cronDToTimer[basename]; ok {
		candidates = append(candidates, filepath.Join(r.Toggles.UnitDir, alias+".timer"))
	}
	for _, c := range candidates {
		if !fileExists(c) {
			continue
		}
		real, err := filepath.EvalSymlinks(c)
		return true, err == nil && real == "/dev/null"
	}
	return false, false
}

// legacyPeriodDirectories handles /etc/cron.{hourly,daily,weekly,monthly,yearly}:
// each regular file is wrapped in a unit with a caller-supplied name, a
// boot delay that climbs by 5 minutes per period, and no command
// normalisation (these scripts are executed directly).
func (r *Run) legacyPeriodDirectories(opts unit.Options, sum *Summary) error {
	periods := []string{"hourly", "daily", "weekly", "monthly", "yearly"}
	for i, period := range periods {
		delay := (i + 1) * 5
		dir := "/etc/cron." + period
		if !dirExists(dir) {
			continue
		}
		for _, path := range listFiles(dir) {
			basename := filepath.Base(path)
			if strings.HasPrefix(basename, ".") || strings.Contains(basename, ".dpkg-") {
				r.Logger.Log(genlog.Info, "ignoring %s", path)
				continue
			}
			distroBasename := basename
			if mapped, ok := partToTimer[basename]; ok {
				distroBasename = mapped
			}
			if fileExists(filepath.Join(r.Toggles.UnitDir, basename+".timer")) ||
				fileExists(filepath.Join(r.Toggles.UnitDir, distroBasename+".timer")) ||
				fileExists("/etc/systemd/system/"+basename+".timer") {
				r.Logger.Log(genlog.Info, "ignoring %s because native timer is present", path)
				sum.JobsMasked++
				continue
			}

			j := &job.Job{
				SourcePath:     path,
				SourceLine:     path,
				Environment:    map[string]string{},
				Shell:          "/bin/sh",
				User:           "root",
				JobID:          period + "-" + basename,
				Command:        []string{path},
				Kind:           job.KindKeyword,
				Keyword:        period,
				BootDelay:      delay,
				Persistent:     r.Toggles.Persistent,
				RandomDelay:    1,
				CallerUnitName: "cron-" + period + "-" + basename,
			}
			sr := schedule.Compile(j, false)
			if sr.Skip {
				sum.JobsSkipped++
				continue
			}
			name, err := unit.Synthesize(j, sr, opts, unit.NewAllocator())
			if err != nil {
				return fmt.Errorf("synthesize %s: %w", path, err)
			}
			sum.UnitsWritten++
			sum.UnitNames = append(sum.UnitNames, name)
		}
	}
	return nil
}

func (r *Run) writeCronAfterVarFallback() error {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=Rerun the cron table generator because the state directory is a separate mount\n")
	b.WriteString("Documentation=man:systemd.cron(7)\n")
	b.WriteString("After=cron.target\n")
	fmt.Fprintf(&b, "ConditionDirectoryNotEmpty=%s\n", r.StateDir)
	b.WriteString("\n[Service]\n")
	b.WriteString("Type=oneshot\n")
	b.WriteString("ExecStart=/bin/sh -c \"systemctl daemon-reload ; systemctl try-restart cron.target\"\n")

	path := filepath.Join(r.TargetDir, "cron-after-var.service")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	multiUserDir := filepath.Join(r.TargetDir, "multi-user.target.wants")
	if err := os.MkdirAll(multiUserDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", multiUserDir, err)
	}
	link := filepath.Join(multiUserDir, "cron-after-var.service")
	if err := os.Symlink(path, link); err != nil && !os.IsExist(err) {
		return fmt.Errorf("symlink %s: %w", link, err)
	}
	return nil
}

// isLegacyCronDirCommand drops /etc/crontab lines that merely invoke the
// legacy run-parts directories: those are handled by
// legacyPeriodDirectories instead, to avoid double-scheduling them.
func isLegacyCronDirCommand(command string) bool {
	for _, dir := range []string{"/etc/cron.hourly", "/etc/cron.daily", "/etc/cron.weekly", "/etc/cron.monthly"} {
		if strings.Contains(command, dir) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// listFiles returns the regular files directly inside dir, sorted for
// deterministic processing order, or an empty slice if dir can't be read
// (matching the original's files() helper swallowing OSError).
func listFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if fileExists(full) {
			out = append(out, full)
		}
	}
	sort.Strings(out)
	return out
}
