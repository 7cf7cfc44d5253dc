// Package genlog implements the generator's severity-tagged diagnostics
// channel (spec §6/§7): "<N>"-prefixed lines to /dev/kmsg when invoked by
// the service manager, or plain "program: message" lines on stderr when
// invoked interactively. Each diagnostic is formatted and written straight
// to the chosen sink; log/slog is used only for the optional rotating
// trace file, through its stock text handler.
package genlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Severity mirrors the kernel-style log levels the original Python used
// verbatim when writing to /dev/kmsg.
type Severity int

const (
	Fatal         Severity = 2
	MalformedDrop Severity = 3
	DirectiveBad  Severity = 4
	Info          Severity = 5
)

// Logger is the generator's diagnostics sink.
type Logger struct {
	self    string
	kmsg    io.Writer // non-nil only in generator mode
	trace   *slog.Logger
	traceFd io.WriteCloser
}

// New builds a Logger. generatorMode selects the kmsg-tagged output
// format (spec §6: "when called with exactly three extra arguments");
// self is the program basename used in both output shapes. tracePath, if
// non-empty, additionally mirrors every diagnostic to a rotating trace
// file via lumberjack, using the same defaults as the teacher's
// logger.Config.Writers.
func New(self string, generatorMode bool, tracePath string) (*Logger, error) {
	l := &Logger{self: self}
	if generatorMode {
		kmsg, err := os.OpenFile("/dev/kmsg", os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("open /dev/kmsg: %w", err)
		}
		l.kmsg = kmsg
	}
	if tracePath != "" {
		w := &lj.Logger{
			Filename:   tracePath,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		}
		l.traceFd = w
		l.trace = slog.New(slog.NewTextHandler(w, nil))
	}
	return l, nil
}

// Close releases the trace file handle, if any.
func (l *Logger) Close() error {
	if l.traceFd != nil {
		return l.traceFd.Close()
	}
	return nil
}

// Log emits one diagnostic at the given severity, formatted per spec §6.
func (l *Logger) Log(sev Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.kmsg != nil {
		fmt.Fprintf(l.kmsg, "<%d>%s[%d]: %s\n", sev, l.self, os.Getpid(), msg)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s\n", l.self, msg)
	}
	if l.trace != nil {
		l.trace.Log(context.Background(), traceLevel(sev), msg, "severity", int(sev))
	}
}

func traceLevel(sev Severity) slog.Level {
	switch sev {
	case Fatal:
		return slog.LevelError
	case DirectiveBad, MalformedDrop:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
