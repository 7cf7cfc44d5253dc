package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sysdcron/generator/internal/genlog"
	"github.com/sysdcron/generator/internal/job"
)

func newTestLogger(t *testing.T) *genlog.Logger {
	t.Helper()
	l, err := genlog.New("table-test", false, "")
	if err != nil {
		t.Fatalf("genlog.New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func writeTable(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "crontab")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp table: %v", err)
	}
	return path
}

func TestParseFile_KeywordLine(t *testing.T) {
	path := writeTable(t, "@daily dummy true\n")
	jobs, err := ParseFile(path, Options{WithUser: true}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	j := jobs[0]
	if j.Kind != job.KindKeyword {
		t.Fatalf("unexpected kind: %v", j.Kind)
	}
	if j.Keyword != "daily" {
		t.Fatalf("keyword = %q", j.Keyword)
	}
	if j.User != "dummy" {
		t.Fatalf("user = %q", j.User)
	}
	if len(j.Command) != 1 || j.Command[0] != "true" {
		t.Fatalf("command = %v", j.Command)
	}
}

func TestParseFile_TimespecLine(t *testing.T) {
	path := writeTable(t, "5 6 * * * dummy true\n")
	jobs, err := ParseFile(path, Options{WithUser: true}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	j := jobs[0]
	if len(j.Timespec.Minutes) != 1 || j.Timespec.Minutes[0] != 5 {
		t.Fatalf("minutes = %v", j.Timespec.Minutes)
	}
	if len(j.Timespec.Hours) != 1 || j.Timespec.Hours[0] != 6 {
		t.Fatalf("hours = %v", j.Timespec.Hours)
	}
	if !j.Timespec.DaysStar || !j.Timespec.MonthsStar || !j.Timespec.WeekdaysStar {
		t.Fatalf("expected remaining fields to be star: %+v", j.Timespec)
	}
}

func TestParseFile_WeekdayRange(t *testing.T) {
	path := writeTable(t, "1 * * * mon-wed dummy true\n")
	jobs, err := ParseFile(path, Options{WithUser: true}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	want := []int{1, 2, 3}
	got := jobs[0].Timespec.Weekdays
	if len(got) != len(want) {
		t.Fatalf("weekdays = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("weekdays = %v, want %v", got, want)
		}
	}
}

func TestParseFile_MonotonicLine(t *testing.T) {
	path := writeTable(t, "7 5 myjob dummy true\n")
	jobs, err := ParseFile(path, Options{Monotonic: true}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	j := jobs[0]
	if j.Keyword != "weekly" {
		t.Fatalf("keyword = %q", j.Keyword)
	}
	if j.BootDelay != 5 {
		t.Fatalf("boot delay = %d", j.BootDelay)
	}
	if j.JobID != "myjob" {
		t.Fatalf("job id = %q", j.JobID)
	}
	if j.User != "root" {
		t.Fatalf("user = %q", j.User)
	}
}

func TestParseFile_TruncatedLineIsFlagged(t *testing.T) {
	path := writeTable(t, "5 6 * * * dummy\n")
	jobs, err := ParseFile(path, Options{WithUser: true}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(jobs) != 1 || !jobs[0].Truncated {
		t.Fatalf("expected a single truncated job, got %+v", jobs)
	}
}

func TestParseFile_RunPartsDirective(t *testing.T) {
	path := writeTable(t, "RUN_PARTS=yes\n@daily dummy true\n")
	jobs, err := ParseFile(path, Options{WithUser: true, DefaultRunParts: false}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if !jobs[0].RunParts {
		t.Fatalf("expected RUN_PARTS directive to flip RunParts to true")
	}
}

func TestParseFile_PersistentDirectiveTimespec(t *testing.T) {
	path := writeTable(t, "PERSISTENT=yes\n5 6 * * * dummy true\n")
	jobs, err := ParseFile(path, Options{WithUser: true}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if !jobs[0].Persistent {
		t.Fatalf("expected PERSISTENT=yes to set Persistent true on a timespec job")
	}
}

func TestParseFile_MalformedFieldLogsAndContinues(t *testing.T) {
	path := writeTable(t, "7-abc 6 * * * dummy true\n")
	jobs, err := ParseFile(path, Options{WithUser: true}, newTestLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected job to still be yielded despite the garbled field")
	}
	if jobs[0].Timespec.Minutes != nil {
		t.Fatalf("expected empty minute set, got %v", jobs[0].Timespec.Minutes)
	}
}
