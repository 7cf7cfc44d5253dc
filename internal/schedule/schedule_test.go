package schedule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sysdcron/generator/internal/genlog"
	"github.com/sysdcron/generator/internal/table"
)

func newLogger(t *testing.T) *genlog.Logger {
	t.Helper()
	l, err := genlog.New("schedule-test", false, "")
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

func TestCompile_DailyKeyword(t *testing.T) {
	path := writeTable(t, "@daily dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	got := Compile(jobs[0], false)
	if got.Skip {
		t.Fatal("unexpected skip")
	}
	if got.Schedule != "daily" {
		t.Fatalf("schedule = %q, want %q", got.Schedule, "daily")
	}
}

func TestCompile_TimespecHourMinute(t *testing.T) {
	path := writeTable(t, "5 6 * * * dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	got := Compile(jobs[0], false)
	if got.Schedule != "*-*-* 6:5:00" {
		t.Fatalf("schedule = %q, want %q", got.Schedule, "*-*-* 6:5:00")
	}
}

func TestCompile_WeekdayRange(t *testing.T) {
	path := writeTable(t, "1 * * * mon-wed dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	got := Compile(jobs[0], false)
	want := "Mon,Tue,Wed *-*-* *:1:00"
	if got.Schedule != want {
		t.Fatalf("schedule = %q, want %q", got.Schedule, want)
	}
}

func TestCompile_WeekdayRangeSundayFirst(t *testing.T) {
	path := writeTable(t, "1 * * * 5-7 dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if !jobs[0].Timespec.WeekdayStartsSunday {
		t.Fatalf("expected WeekdayStartsSunday to be set for a field ending in 7")
	}
	got := Compile(jobs[0], false)
	want := "Sun,Fri,Sat *-*-* *:1:00"
	if got.Schedule != want {
		t.Fatalf("schedule = %q, want %q", got.Schedule, want)
	}
}

func TestCompile_RebootDelayDefaultsToOne(t *testing.T) {
	path := writeTable(t, "@reboot dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	got := Compile(jobs[0], false)
	if got.Schedule != "" {
		t.Fatalf("expected empty schedule (OnBootSec path), got %q", got.Schedule)
	}
	if got.Delay != 1 {
		t.Fatalf("delay = %d, want 1", got.Delay)
	}
	if got.Persistent {
		t.Fatal("reboot jobs must never be persistent")
	}
}

func TestCompile_RebootSkippedAfterDaemonReload(t *testing.T) {
	path := writeTable(t, "@reboot dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	got := Compile(jobs[0], true)
	if !got.Skip {
		t.Fatal("expected @reboot job to be skipped once the daemon-reload marker exists")
	}
}

func TestCompile_MinutelyNeverPersistent(t *testing.T) {
	path := writeTable(t, "PERSISTENT=yes\n@minutely dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	got := Compile(jobs[0], false)
	if got.Persistent {
		t.Fatal("minutely jobs must never be persistent regardless of PERSISTENT")
	}
}

func TestCompile_EmptyTimespecFieldSkips(t *testing.T) {
	path := writeTable(t, "7-abc 6 * * * dummy true\n")
	jobs, err := table.ParseFile(path, table.Options{WithUser: true}, newLogger(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	got := Compile(jobs[0], false)
	if !got.Skip {
		t.Fatal("expected job with an empty compiled minute field to be skipped")
	}
}
