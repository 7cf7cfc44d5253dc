// Package table implements the classical-cron-table parser (spec §4.3):
// it turns a crontab-syntax file into a stream of job.Job records,
// tracking the rolling environment/directive state the original's
// parse_crontab keeps across lines of a single table.
package table

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/sysdcron/generator/internal/genlog"
	"github.com/sysdcron/generator/internal/job"
	"github.com/sysdcron/generator/internal/lexer"
	"github.com/sysdcron/generator/internal/timefield"
)

// persistentState mirrors the original's three-valued Persistent class:
// an explicit yes/no overrides the per-job-kind default, "auto" defers to
// it (systemd-crontab-generator.py's Persistent.yes/no/auto).
type persistentState int

const (
	persistentAuto persistentState = iota
	persistentYes
	persistentNo
)

func parsePersistent(v string) persistentState {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return persistentYes
	case "no", "false", "0":
		return persistentNo
	default:
		return persistentAuto
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}

// Options selects which of the table's three syntaxes to parse (spec
// §4.3): /etc/crontab and /etc/cron.d tables carry a user column;
// per-user state-dir tables have none (the table's basename is the
// user); only /etc/anacrontab runs in monotonic mode. Legacy
// cron.<period> directory scripts have neither a user column nor
// per-line periods (handled by the generator directly, not this
// package). DefaultRunParts seeds the RUN_PARTS directive's default
// from the build-time toggle (spec §6 use_runparts).
type Options struct {
	WithUser        bool
	Monotonic       bool
	DefaultRunParts bool
	HasSendmail     bool
}

// numericPeriodAliases maps anacrontab-style numeric/day-count periods
// and legacy spellings to their canonical keyword, matching the period
// dict in parse_crontab's monotonic branch.
var numericPeriodAliases = map[string]string{
	"1":              "daily",
	"7":              "weekly",
	"30":             "monthly",
	"31":             "monthly",
	"@biannually":    "semi-annually",
	"@bi-annually":   "semi-annually",
	"@semiannually":  "semi-annually",
	"@anually":       "yearly",
	"@annually":      "yearly",
}

// keywordPeriodAliases is the smaller alias table used for "@period user
// command" lines (no numeric day-count forms apply there).
var keywordPeriodAliases = map[string]string{
	"@biannually":   "semi-annually",
	"@bi-annually":  "semi-annually",
	"@semiannually": "semi-annually",
	"@anually":      "yearly",
	"@annually":     "yearly",
}

func normalizePeriod(raw string, aliases map[string]string) string {
	if v, ok := aliases[raw]; ok {
		return v
	}
	return strings.TrimPrefix(raw, "@")
}

// ParseFile reads path and returns the jobs it yields. Lines that fail to
// parse cleanly (truncated job lines, garbled time fields) are still
// yielded with Truncated set, or with empty field sets plus a logged
// diagnostic, exactly as the original tolerates and reports them rather
// than aborting the whole table.
func ParseFile(path string, opts Options, logger *genlog.Logger) ([]*job.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	basename := basenameOf(path)

	environment := map[string]string{}
	randomDelay := 1
	startHoursRange := 0
	bootDelay := 0
	persistent := persistentAuto
	if opts.Monotonic {
		persistent = persistentYes
	}
	batch := false
	runParts := opts.DefaultRunParts

	var jobs []*job.Job

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := sc.Text()
		ln := lexer.Lex(raw)
		if ln.Blank {
			continue
		}

		if ln.Assignment != nil {
			name, value := ln.Assignment.Name, ln.Assignment.Value
			switch {
			case name == "RANDOM_DELAY":
				if v, err := strconv.Atoi(value); err == nil {
					randomDelay = v
				} else {
					logger.Log(genlog.DirectiveBad, "invalid RANDOM_DELAY in %s: %s=%s", path, name, value)
				}
			case name == "START_HOURS_RANGE":
				head := strings.SplitN(value, "-", 2)[0]
				if v, err := strconv.Atoi(head); err == nil {
					startHoursRange = v
				} else {
					logger.Log(genlog.DirectiveBad, "invalid START_HOURS_RANGE in %s: %s=%s", path, name, value)
				}
			case name == "DELAY":
				if v, err := strconv.Atoi(value); err == nil {
					bootDelay = v
				} else {
					logger.Log(genlog.DirectiveBad, "invalid DELAY in %s: %s=%s", path, name, value)
				}
			case name == "PERSISTENT":
				persistent = parsePersistent(value)
			case !opts.WithUser && name == "PATH":
				environment["PATH"] = expandHomePath(value, basename)
			case name == "BATCH":
				batch = truthy(value)
			case name == "RUN_PARTS":
				runParts = truthy(value)
			case name == "MAILTO":
				environment[name] = value
				if value != "" && !opts.HasSendmail {
					logger.Log(genlog.DirectiveBad, "a MTA is not installed, but MAILTO is set in %s", path)
				}
			default:
				environment[name] = value
			}
			continue
		}

		parts := ln.Tokens
		line := ln.Joined

		switch {
		case opts.Monotonic:
			jobs = append(jobs, parseMonotonicLine(path, line, parts, environment, randomDelay, startHoursRange, bootDelay, persistent, batch, logger)...)

		case len(parts) > 0 && strings.HasPrefix(parts[0], "@"):
			minArgs := 2
			if opts.WithUser {
				minArgs = 3
			}
			if len(parts) < minArgs {
				jobs = append(jobs, &job.Job{SourcePath: path, SourceLine: line, Truncated: true})
				continue
			}
			jobs = append(jobs, parseKeywordLine(path, line, parts, opts, basename, environment, randomDelay, startHoursRange, bootDelay, persistent, batch, runParts))

		default:
			minArgs := 6
			if opts.WithUser {
				minArgs = 7
			}
			if len(parts) < minArgs {
				jobs = append(jobs, &job.Job{SourcePath: path, SourceLine: line, Truncated: true})
				continue
			}
			jobs = append(jobs, parseTimespecLine(path, line, parts, opts, basename, environment, randomDelay, startHoursRange, bootDelay, persistent, batch, runParts, logger))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return jobs, nil
}

func parseMonotonicLine(path, line string, parts []string, environment map[string]string, randomDelay, startHoursRange, bootDelay int, persistent persistentState, batch bool, logger *genlog.Logger) []*job.Job {
	if len(parts) < 4 {
		return []*job.Job{{SourcePath: path, SourceLine: line, Truncated: true}}
	}

	periodTok, delayTok, jobIDTok := parts[0], parts[1], parts[2]
	command := parts[3:]

	period := normalizePeriod(periodTok, numericPeriodAliases)

	delay, err := strconv.Atoi(delayTok)
	if err != nil {
		logger.Log(genlog.DirectiveBad, "invalid DELAY in %s: %s", path, line)
		delay = 0
	}
	if delay < 0 {
		delay = 0
	}

	jobID := sanitizeJobID(jobIDTok)

	j := &job.Job{
		SourcePath:  path,
		SourceLine:  line,
		Environment: cloneEnv(environment),
		Shell:       shellOf(environment),
		RandomDelay: randomDelay,
		StartHour:   startHoursRange,
		BootDelay:   delay,
		Persistent:  persistent != persistentNo,
		JobID:       jobID,
		User:        "root",
		Command:     command,
		Batch:       batch,
	}
	setKindFromPeriod(j, strings.ToLower(period))
	resolveHome(j)
	return []*job.Job{j}
}

func parseKeywordLine(path, line string, parts []string, opts Options, basename string, environment map[string]string, randomDelay, startHoursRange, bootDelay int, persistent persistentState, batch, runParts bool) *job.Job {
	period := normalizePeriod(parts[0], keywordPeriodAliases)

	var user string
	var command []string
	if opts.WithUser {
		user, command = parts[1], parts[2:]
	} else {
		user, command = basename, parts[1:]
	}

	j := &job.Job{
		SourcePath:  path,
		SourceLine:  line,
		Environment: cloneEnv(environment),
		Shell:       shellOf(environment),
		RandomDelay: randomDelay,
		StartHour:   startHoursRange,
		BootDelay:   bootDelay,
		Persistent:  persistent != persistentNo,
		JobID:       sanitizeJobID(basename),
		User:        user,
		Command:     command,
		Batch:       batch,
		RunParts:    runParts,
	}
	setKindFromPeriod(j, strings.ToLower(period))
	resolveHome(j)
	return j
}

func parseTimespecLine(path, line string, parts []string, opts Options, basename string, environment map[string]string, randomDelay, startHoursRange, bootDelay int, persistent persistentState, batch, runParts bool, logger *genlog.Logger) *job.Job {
	minutesTok, hoursTok, daysTok := parts[0], parts[1], parts[2]
	monthsTok, dowsTok := parts[3], parts[4]

	var user string
	var command []string
	if opts.WithUser {
		user, command = parts[5], parts[6:]
	} else {
		user, command = basename, parts[5:]
	}

	j := &job.Job{
		SourcePath:  path,
		SourceLine:  line,
		Environment: cloneEnv(environment),
		Shell:       shellOf(environment),
		RandomDelay: randomDelay,
		StartHour:   startHoursRange,
		BootDelay:   bootDelay,
		Persistent:  persistent == persistentYes,
		JobID:       sanitizeJobID(basename),
		User:        user,
		Command:     command,
		Batch:       batch,
		RunParts:    runParts,
	}

	ts := job.Timespec{}
	ts.Minutes, ts.MinutesStar = compileField(path, line, minutesTok, 60, false, timefield.Identity, logger)
	ts.Hours, ts.HoursStar = compileField(path, line, hoursTok, 24, false, timefield.Identity, logger)
	ts.Days, ts.DaysStar = compileField(path, line, daysTok, 31, true, timefield.Identity, logger)
	ts.Months, ts.MonthsStar = compileField(path, line, monthsTok, 12, true, timefield.Month, logger)
	// Weekdays compile against Sun..Sat plus a second Sun at index 7, so a
	// range ending in 7 keeps its Sunday; 7 is then folded back to 0.
	weekdays, weekdaysStar := compileField(path, line, dowsTok, 8, false, func(tok string) (int, bool) {
		if v, ok := timefield.Identity(tok); ok {
			return v, true
		}
		return timefield.Weekday(tok)
	}, logger)
	if n := len(weekdays); n > 0 && weekdays[n-1] == 7 {
		weekdays = weekdays[:n-1]
		if len(weekdays) == 0 || weekdays[0] != 0 {
			weekdays = append([]int{0}, weekdays...)
		}
	}
	ts.Weekdays, ts.WeekdaysStar = weekdays, weekdaysStar
	ts.WeekdayStartsSunday = strings.HasSuffix(dowsTok, "7") || strings.HasSuffix(strings.ToLower(dowsTok), "sun")
	j.Timespec = ts
	resolveHome(j)
	return j
}

func compileField(path, line, field string, length int, oneBased bool, mapping func(string) (int, bool), logger *genlog.Logger) ([]int, bool) {
	values, star, ok := timefield.Compile(field, length, oneBased, mapping)
	if !ok {
		logger.Log(genlog.MalformedDrop, "garbled time in %s [%s]: %s", path, line, field)
		return nil, false
	}
	return values, star
}

func setKindFromPeriod(j *job.Job, period string) {
	if n, err := strconv.Atoi(period); err == nil && n > 0 {
		j.Kind = job.KindDays
		j.DayCount = n
		return
	}
	j.Kind = job.KindKeyword
	j.Keyword = period
}

func cloneEnv(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func shellOf(environment map[string]string) string {
	if v, ok := environment["SHELL"]; ok && v != "" {
		return v
	}
	return "/bin/sh"
}

// expandHomePath replicates expand_home_path: for a colon-separated PATH
// value, rewrites any "~/"-prefixed component against the home directory
// of the given user name, leaving the value untouched if that user
// cannot be resolved.
func expandHomePath(value, userName string) string {
	u, err := user.Lookup(userName)
	if err != nil {
		return value
	}
	parts := strings.Split(value, ":")
	for i, part := range parts {
		if strings.HasPrefix(part, "~/") {
			parts[i] = u.HomeDir + part[1:]
		}
	}
	return strings.Join(parts, ":")
}

// resolveHome fills j.Home from j.User, leaving it blank when the user
// can't be resolved on this system (spec §4.4 needs this for tilde
// expansion in the command normaliser).
func resolveHome(j *job.Job) {
	u, err := user.Lookup(j.User)
	if err != nil {
		return
	}
	j.Home = u.HomeDir
}

// sanitizeJobID keeps only the characters the original allows through
// its valid_chars filter: ASCII letters, digits, '-' and '_'.
func sanitizeJobID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func basenameOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}
