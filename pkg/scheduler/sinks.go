package scheduler

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

// Output is where one execution's stdout and stderr go.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
	// Flush emits a trailing partial line. The writers stay usable.
	Flush func()
}

// Sinks decides where a function's output goes for one execution.
type Sinks interface {
	Open(eventID, functionID string) Output
	// Diagnose writes a scheduler-generated line into the function's channel.
	Diagnose(eventID, functionID, line string)
}

// LoggerSinks captures function output as structured log lines.
type LoggerSinks struct {
	log *zap.Logger
}

func NewLoggerSinks(log *zap.Logger) *LoggerSinks {
	return &LoggerSinks{log: log.Named("function")}
}

func (l *LoggerSinks) Open(eventID, functionID string) Output {
	log := l.with(eventID, functionID)
	stdout := &lineWriter{w: &zapio.Writer{Log: log, Level: zapcore.InfoLevel}}
	stderr := &lineWriter{w: &zapio.Writer{Log: log, Level: zapcore.ErrorLevel}}
	return Output{
		Stdout: stdout,
		Stderr: stderr,
		Flush: func() {
			stdout.Sync()
			stderr.Sync()
		},
	}
}

func (l *LoggerSinks) Diagnose(eventID, functionID, line string) {
	l.with(eventID, functionID).Info(line)
}

func (l *LoggerSinks) with(eventID, functionID string) *zap.Logger {
	return l.log.With(zap.String("event_id", eventID), zap.String("function_id", functionID))
}

// lineWriter lets the scheduler flush a zapio.Writer the process is still
// writing to.
type lineWriter struct {
	mu sync.Mutex
	w  *zapio.Writer
}

func (l *lineWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

func (l *lineWriter) Sync() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.w.Sync()
}

// StdSinks passes function output straight through to the scheduler's own
// stdout and stderr.
type StdSinks struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewStdSinks() *StdSinks {
	return &StdSinks{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (s *StdSinks) Open(string, string) Output {
	return Output{Stdout: s.Stdout, Stderr: s.Stderr, Flush: func() {}}
}

func (s *StdSinks) Diagnose(_, _, line string) {
	_, _ = fmt.Fprintln(s.Stderr, color.RedString(line))
}

func timeoutMessage(handler string, seconds int) string {
	return fmt.Sprintf("Function (%s) did timeout after %d seconds.", handler, seconds)
}
