// Package unit synthesises .timer/.service unit files (and their .sh
// command wrappers) from a compiled job, and enlists the timer into the
// boot target via a symlink (spec §4.6, §6 unit file shapes). Grounded
// on generate_timer_unit in the original source.
package unit

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sysdcron/generator/internal/job"
	"github.com/sysdcron/generator/internal/schedule"
)

// Allocator hands out per-(jobID,user) sequence numbers for non-persistent
// jobs, mirroring the original's module-level `seqs` dict of
// itertools.count() generators: one counter per key, shared across every
// table processed in a run, starting at zero.
type Allocator struct {
	mu   sync.Mutex
	next map[string]int
}

func NewAllocator() *Allocator {
	return &Allocator{next: make(map[string]int)}
}

func (a *Allocator) allocate(jobID, user string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := jobID + "\x00" + user
	n := a.next[key]
	a.next[key] = n + 1
	return n
}

// Options carries the build-time toggles and directory layout the
// synthesiser needs; see internal/buildcfg.Toggles for where these come
// from in the running generator.
type Options struct {
	TargetDir string // directory the generator was asked to populate
	TimersDir string // TargetDir/cron.target.wants

	RandomizedDelay   bool
	PersistentEnabled bool
	UseLogLevelMax    string
	LibDir            string
	Package           string
	HasSendmail       bool

	// StateDirRootPath is the per-user crontab path for root
	// (state-dir/root); jobs sourced from it get the same
	// systemd-user-sessions Requires= as any non-root job, matching the
	// "@statedir@/root" special case in the original.
	StateDirRootPath string
}

// Synthesize writes unitName.timer, unitName.service and, if the command
// isn't already a single existing regular file on disk, unitName.sh, then
// symlinks the timer into opts.TimersDir. Callers must have already
// checked sr.Skip. Returns the synthesised unit's base name.
func Synthesize(j *job.Job, sr schedule.Result, opts Options, alloc *Allocator) (string, error) {
	command := j.CommandString()

	unitName := j.CallerUnitName
	if unitName == "" {
		var unitID string
		if sr.Persistent {
			sum := md5.Sum([]byte(sr.Schedule + "\x00" + command))
			unitID = fmt.Sprintf("%x", sum)
		} else {
			unitID = strconv.Itoa(alloc.allocate(j.JobID, j.User))
		}
		unitName = fmt.Sprintf("cron-%s-%s-%s", j.JobID, j.User, unitID)
	}

	execStart := command
	if !(len(j.Command) == 1 && isRegularFile(j.Command[0])) {
		shPath := filepath.Join(opts.TargetDir, unitName+".sh")
		if err := os.WriteFile(shPath, []byte(command), 0o755); err != nil {
			return "", fmt.Errorf("write %s: %w", shPath, err)
		}
		execStart = j.Shell + " " + shPath
	}

	if err := writeTimerUnit(j, sr, opts, unitName); err != nil {
		return "", err
	}

	timerSrc := filepath.Join(opts.TargetDir, unitName+".timer")
	timerDst := filepath.Join(opts.TimersDir, unitName+".timer")
	if err := os.Symlink(timerSrc, timerDst); err != nil && !os.IsExist(err) {
		return "", fmt.Errorf("symlink %s: %w", timerDst, err)
	}

	if err := writeServiceUnit(j, sr, opts, unitName, execStart); err != nil {
		return "", err
	}

	return unitName, nil
}

func isRegularFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func writeTimerUnit(j *job.Job, sr schedule.Result, opts Options, unitName string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[Unit]\n")
	fmt.Fprintf(&b, "Description=[Timer] \"%s\"\n", escapePercent(j.SourceLine))
	fmt.Fprintf(&b, "Documentation=man:systemd-crontab-generator(8)\n")
	fmt.Fprintf(&b, "PartOf=cron.target\n")
	fmt.Fprintf(&b, "SourcePath=%s\n", j.SourcePath)
	if j.TestRemoved != "" {
		fmt.Fprintf(&b, "ConditionFileIsExecutable=%s\n", j.TestRemoved)
	}

	fmt.Fprintf(&b, "\n[Timer]\n")
	fmt.Fprintf(&b, "Unit=%s.service\n", unitName)
	if sr.Schedule != "" {
		fmt.Fprintf(&b, "OnCalendar=%s\n", sr.Schedule)
	} else {
		fmt.Fprintf(&b, "OnBootSec=%dm\n", sr.Delay)
	}
	if j.RandomDelay != 1 {
		if opts.RandomizedDelay {
			fmt.Fprintf(&b, "RandomizedDelaySec=%dm\n", j.RandomDelay)
		} else {
			fmt.Fprintf(&b, "AccuracySec=%dm\n", j.RandomDelay)
		}
	}
	if opts.PersistentEnabled && sr.Persistent {
		fmt.Fprintf(&b, "Persistent=true\n")
	}

	return os.WriteFile(filepath.Join(opts.TargetDir, unitName+".timer"), []byte(b.String()), 0o644)
}

func writeServiceUnit(j *job.Job, sr schedule.Result, opts Options, unitName, execStart string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[Unit]\n")
	fmt.Fprintf(&b, "Description=[Cron] \"%s\"\n", escapePercent(j.SourceLine))
	fmt.Fprintf(&b, "Documentation=man:systemd-crontab-generator(8)\n")
	fmt.Fprintf(&b, "SourcePath=%s\n", j.SourcePath)

	mailtoEmpty := false
	if v, ok := j.Environment["MAILTO"]; ok && strings.TrimSpace(v) == "" {
		mailtoEmpty = true
	}
	if !mailtoEmpty && opts.HasSendmail {
		fmt.Fprintf(&b, "OnFailure=cron-failure@%%i.service\n")
	}

	if j.User != "root" || (opts.StateDirRootPath != "" && j.SourcePath == opts.StateDirRootPath) {
		fmt.Fprintf(&b, "Requires=systemd-user-sessions.service\n")
		if j.Home != "" {
			fmt.Fprintf(&b, "RequiresMountsFor=%s\n", j.Home)
		}
	}

	fmt.Fprintf(&b, "\n[Service]\n")
	fmt.Fprintf(&b, "Type=oneshot\n")
	fmt.Fprintf(&b, "IgnoreSIGPIPE=false\n")
	fmt.Fprintf(&b, "KillMode=process\n")
	if opts.UseLogLevelMax != "" && opts.UseLogLevelMax != "no" {
		fmt.Fprintf(&b, "LogLevelMax=%s\n", opts.UseLogLevelMax)
	}
	if sr.Schedule != "" && sr.Delay != 0 {
		fmt.Fprintf(&b, "ExecStartPre=-%s/%s/boot_delay %d\n", opts.LibDir, opts.Package, sr.Delay)
	}
	fmt.Fprintf(&b, "ExecStart=%s\n", execStart)
	if env := environmentString(j.Environment); env != "" {
		fmt.Fprintf(&b, "Environment=%s\n", env)
	}
	if j.User != "root" {
		fmt.Fprintf(&b, "User=%s\n", j.User)
	}
	if j.StandardOutputNull {
		fmt.Fprintf(&b, "StandardOutput=/dev/null\n")
	}
	if j.Batch {
		fmt.Fprintf(&b, "CPUSchedulingPolicy=idle\n")
		fmt.Fprintf(&b, "IOSchedulingClass=idle\n")
	}

	return os.WriteFile(filepath.Join(opts.TargetDir, unitName+".service"), []byte(b.String()), 0o644)
}

func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// environmentString renders a job's environment map the way
// environment_string() does (systemd-crontab-generator.py:75-82):
// wrap "k=v" in plain double quotes when v contains a literal space,
// otherwise emit it bare. Map iteration in Go has no stable order, so
// keys are sorted for reproducible unit files; the original preserves
// crontab directive order, which this doesn't change the semantics of
// (systemd doesn't care about Environment= key order).
func environmentString(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		kv := k + "=" + env[k]
		if strings.Contains(env[k], " ") {
			parts = append(parts, "\""+kv+"\"")
		} else {
			parts = append(parts, kv)
		}
	}
	return strings.Join(parts, " ")
}
