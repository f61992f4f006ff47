// Package sylog implements the leveled, colorized logger Droidspaces hands
// down to every subsystem. Unlike a process-global logger, a Sink is a value
// injected by the caller (CLI, UI, or test) — the engine itself never reaches
// for a package-level logger, matching the injected-handle design used for
// the platform probe and other formerly-global state.
package sylog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Level is the verbosity of a single log line.
type Level int

const (
	FatalLevel Level = iota - 4
	ErrorLevel
	WarnLevel
	InfoLevel
	VerboseLevel
	DebugLevel
)

func (l Level) String() string {
	switch l {
	case FatalLevel:
		return "FATAL"
	case ErrorLevel:
		return "ERROR"
	case WarnLevel:
		return "WARNING"
	case InfoLevel:
		return "INFO"
	case VerboseLevel:
		return "VERBOSE"
	case DebugLevel:
		return "DEBUG"
	default:
		return "LOG"
	}
}

// Sink is the interface every Droidspaces subsystem logs through. Callers
// that don't care about structured logging can use NewDefault(), which
// writes the same colorized, leveled lines the teacher's apptainer binary
// writes to stderr.
type Sink interface {
	Debugf(format string, a ...interface{})
	Verbosef(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Warningf(format string, a ...interface{})
	Errorf(format string, a ...interface{})
	Fatalf(format string, a ...interface{})
}

var messageColors = map[Level]string{
	FatalLevel: "\x1b[31m",
	ErrorLevel: "\x1b[31m",
	WarnLevel:  "\x1b[33m",
	InfoLevel:  "\x1b[34m",
}

// writer is the default Sink implementation: a leveled writer to an
// io.Writer, gated by an env-var-configurable threshold, same shape as the
// teacher's APPTAINER_MESSAGELEVEL-driven sylog package.
type writer struct {
	out   io.Writer
	level Level
	color bool
}

// NewDefault builds the default Sink, reading its level from
// DROIDSPACES_LOG_LEVEL (an integer matching the Level consts above,
// default InfoLevel) the same way the teacher reads APPTAINER_MESSAGELEVEL.
func NewDefault() Sink {
	level := InfoLevel
	if v := os.Getenv("DROIDSPACES_LOG_LEVEL"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			level = Level(l)
		}
	}
	return &writer{out: os.Stderr, level: level, color: true}
}

// NewWithWriter builds a Sink writing to an arbitrary io.Writer at a fixed
// level — used by tests that want to capture log output.
func NewWithWriter(out io.Writer, level Level) Sink {
	return &writer{out: out, level: level, color: false}
}

func (w *writer) writef(msgLevel Level, format string, a ...interface{}) {
	if w.level < msgLevel {
		return
	}
	message := fmt.Sprintf(format, a...)
	message = strings.TrimRight(message, "\n")

	color, reset := "", ""
	if w.color {
		if c, ok := messageColors[msgLevel]; ok {
			color, reset = c, "\x1b[0m"
		}
	}
	fmt.Fprintf(w.out, "%s%-8s%s %s\n", color, msgLevel.String()+":", reset, message)
}

func (w *writer) Debugf(format string, a ...interface{})   { w.writef(DebugLevel, format, a...) }
func (w *writer) Verbosef(format string, a ...interface{}) { w.writef(VerboseLevel, format, a...) }
func (w *writer) Infof(format string, a ...interface{})    { w.writef(InfoLevel, format, a...) }
func (w *writer) Warningf(format string, a ...interface{}) { w.writef(WarnLevel, format, a...) }
func (w *writer) Errorf(format string, a ...interface{})   { w.writef(ErrorLevel, format, a...) }
func (w *writer) Fatalf(format string, a ...interface{}) {
	w.writef(FatalLevel, format, a...)
	os.Exit(1)
}

// Discard is a Sink that drops everything, useful for tests that don't want
// log noise but still need to satisfy the Sink parameter.
var Discard Sink = discard{}

type discard struct{}

func (discard) Debugf(string, ...interface{})   {}
func (discard) Verbosef(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})    {}
func (discard) Warningf(string, ...interface{}) {}
func (discard) Errorf(string, ...interface{})   {}
func (discard) Fatalf(string, ...interface{})   {}
