package unit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sysdcron/generator/internal/job"
	"github.com/sysdcron/generator/internal/schedule"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	target := t.TempDir()
	timers := filepath.Join(target, "cron.target.wants")
	if err := os.MkdirAll(timers, 0o755); err != nil {
		t.Fatalf("mkdir timers dir: %v", err)
	}
	return Options{
		TargetDir:         target,
		TimersDir:         timers,
		RandomizedDelay:   true,
		PersistentEnabled: true,
		UseLogLevelMax:    "no",
		LibDir:            "/usr/lib",
		Package:           "systemd-cron",
		HasSendmail:       false,
	}
}

func baseJob() *job.Job {
	return &job.Job{
		SourcePath:  "/etc/crontab",
		SourceLine:  "@daily dummy true",
		Environment: map[string]string{},
		Shell:       "/bin/sh",
		User:        "dummy",
		JobID:       "crontab",
		Command:     []string{"true"},
		RandomDelay: 1,
		Persistent:  true,
	}
}

func TestSynthesize_PersistentJobHashesName(t *testing.T) {
	j := baseJob()
	sr := schedule.Result{Schedule: "daily", Persistent: true}
	opts := testOptions(t)

	name, err := Synthesize(j, sr, opts, NewAllocator())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(name, "cron-crontab-dummy-") {
		t.Fatalf("unit name = %q", name)
	}

	timerPath := filepath.Join(opts.TargetDir, name+".timer")
	data, err := os.ReadFile(timerPath)
	if err != nil {
		t.Fatalf("read timer unit: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "OnCalendar=daily\n") {
		t.Fatalf("timer content missing OnCalendar: %s", content)
	}
	if !strings.Contains(content, "Persistent=true\n") {
		t.Fatalf("timer content missing Persistent=true: %s", content)
	}

	linkPath := filepath.Join(opts.TimersDir, name+".timer")
	if fi, err := os.Lstat(linkPath); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected a symlink at %s", linkPath)
	}

	servicePath := filepath.Join(opts.TargetDir, name+".service")
	svcData, err := os.ReadFile(servicePath)
	if err != nil {
		t.Fatalf("read service unit: %v", err)
	}
	if !strings.Contains(string(svcData), "User=dummy\n") {
		t.Fatalf("service content missing User=dummy: %s", svcData)
	}
}

func TestSynthesize_NonPersistentUsesAllocatorCounter(t *testing.T) {
	opts := testOptions(t)
	alloc := NewAllocator()

	j1 := baseJob()
	sr1 := schedule.Result{Schedule: "", Delay: 1, Persistent: false}
	name1, err := Synthesize(j1, sr1, opts, alloc)
	if err != nil {
		t.Fatalf("Synthesize 1: %v", err)
	}

	j2 := baseJob()
	sr2 := schedule.Result{Schedule: "", Delay: 1, Persistent: false}
	name2, err := Synthesize(j2, sr2, opts, alloc)
	if err != nil {
		t.Fatalf("Synthesize 2: %v", err)
	}

	if name1 == name2 {
		t.Fatalf("expected distinct counter-allocated names, both got %q", name1)
	}
	if !strings.HasSuffix(name1, "-0") || !strings.HasSuffix(name2, "-1") {
		t.Fatalf("expected sequential counters, got %q then %q", name1, name2)
	}
}

func TestSynthesize_CallerUnitNameBypassesAllocator(t *testing.T) {
	j := baseJob()
	j.CallerUnitName = "cron-hourly-myscript"
	sr := schedule.Result{Schedule: "hourly", Persistent: true}
	opts := testOptions(t)

	name, err := Synthesize(j, sr, opts, NewAllocator())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if name != "cron-hourly-myscript" {
		t.Fatalf("name = %q, want caller-supplied name", name)
	}
}

func TestSynthesize_SingleExistingFileSkipsShWrapper(t *testing.T) {
	opts := testOptions(t)
	script := filepath.Join(opts.TargetDir, "myscript")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	j := baseJob()
	j.Command = []string{script}
	sr := schedule.Result{Schedule: "daily", Persistent: true}

	name, err := Synthesize(j, sr, opts, NewAllocator())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, err := os.Stat(filepath.Join(opts.TargetDir, name+".sh")); !os.IsNotExist(err) {
		t.Fatalf("expected no .sh wrapper when command is a single existing file")
	}
	svc, err := os.ReadFile(filepath.Join(opts.TargetDir, name+".service"))
	if err != nil {
		t.Fatalf("read service: %v", err)
	}
	if !strings.Contains(string(svc), "ExecStart="+script+"\n") {
		t.Fatalf("expected ExecStart to reference the script directly, got %s", svc)
	}
}

func TestSynthesize_StandardOutputNullUsesDevNullPath(t *testing.T) {
	j := baseJob()
	j.StandardOutputNull = true
	sr := schedule.Result{Schedule: "daily", Persistent: true}
	opts := testOptions(t)

	name, err := Synthesize(j, sr, opts, NewAllocator())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	svc, err := os.ReadFile(filepath.Join(opts.TargetDir, name+".service"))
	if err != nil {
		t.Fatalf("read service: %v", err)
	}
	if !strings.Contains(string(svc), "StandardOutput=/dev/null\n") {
		t.Fatalf("expected StandardOutput=/dev/null, got %s", svc)
	}
}

func TestSynthesize_EnvironmentQuotesOnlyLiteralSpace(t *testing.T) {
	j := baseJob()
	j.Environment = map[string]string{
		"PATH":  "/usr/bin:/bin",
		"FLAGS": "a\tb",
		"NAME":  "a b",
	}
	sr := schedule.Result{Schedule: "daily", Persistent: true}
	opts := testOptions(t)

	name, err := Synthesize(j, sr, opts, NewAllocator())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	svc, err := os.ReadFile(filepath.Join(opts.TargetDir, name+".service"))
	if err != nil {
		t.Fatalf("read service: %v", err)
	}
	content := string(svc)
	if !strings.Contains(content, "FLAGS=a\tb") || strings.Contains(content, "\"FLAGS=a\tb\"") {
		t.Fatalf("a tab-only value must not be quoted, got %s", content)
	}
	if !strings.Contains(content, "\"NAME=a b\"") {
		t.Fatalf("a space-containing value must be quoted unescaped, got %s", content)
	}
	if !strings.Contains(content, "PATH=/usr/bin:/bin") {
		t.Fatalf("a plain value must be emitted bare, got %s", content)
	}
}

func TestSynthesize_MailtoEmptySuppressesOnFailure(t *testing.T) {
	j := baseJob()
	j.Environment = map[string]string{"MAILTO": ""}
	sr := schedule.Result{Schedule: "daily", Persistent: true}
	opts := testOptions(t)
	opts.HasSendmail = true

	name, err := Synthesize(j, sr, opts, NewAllocator())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	svc, err := os.ReadFile(filepath.Join(opts.TargetDir, name+".service"))
	if err != nil {
		t.Fatalf("read service: %v", err)
	}
	if strings.Contains(string(svc), "OnFailure=") {
		t.Fatalf("expected no OnFailure with an explicitly empty MAILTO, got %s", svc)
	}
}
