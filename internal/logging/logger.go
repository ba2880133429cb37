// Package logging provides the three append-only sinks the drawing server
// writes to: the operational log, the changelog (who did what), and the
// error stream. Each sink is guarded by its own mutex so concurrent writers
// never interleave a single line.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const timestampLayout = "02/01/2006 15:04:05"

func timestamp() string {
	return "[" + time.Now().Format(timestampLayout) + "] "
}

// Logger owns the three sinks and the lockable scratch buffer used to
// compose multi-part lines atomically.
type Logger struct {
	logMu       sync.Mutex
	changelogMu sync.Mutex
	errMu       sync.Mutex

	logWriter       io.Writer
	changelogWriter io.Writer
	errWriter       io.Writer

	scratchMu sync.Mutex
	scratch   strings.Builder

	// exit is called after a fatal error has been flushed. Overridden in
	// tests so logging an unsafe error doesn't kill the test binary.
	exit func(code int)
}

// New creates a Logger writing to stdout/stderr until SetStreams is called.
func New() *Logger {
	return &Logger{
		logWriter:       os.Stdout,
		changelogWriter: os.Stdout,
		errWriter:       os.Stderr,
		exit:            os.Exit,
	}
}

// SetStreams redirects the three sinks. A nil argument leaves that sink
// untouched.
func (l *Logger) SetStreams(logW, changelogW, errW io.Writer) {
	if logW != nil {
		l.logMu.Lock()
		l.logWriter = logW
		l.logMu.Unlock()
	}
	if changelogW != nil {
		l.changelogMu.Lock()
		l.changelogWriter = changelogW
		l.changelogMu.Unlock()
	}
	if errW != nil {
		l.errMu.Lock()
		l.errWriter = errW
		l.errMu.Unlock()
	}
}

// Log writes a line to the operational log.
func (l *Logger) Log(format string, args ...any) {
	l.logMu.Lock()
	defer l.logMu.Unlock()
	fmt.Fprintf(l.logWriter, "%s%s\n", timestamp(), fmt.Sprintf(format, args...))
}

// Changelog writes a line recording a user-visible state change.
func (l *Logger) Changelog(format string, args ...any) {
	l.changelogMu.Lock()
	defer l.changelogMu.Unlock()
	fmt.Fprintf(l.changelogWriter, "%s%s\n", timestamp(), fmt.Sprintf(format, args...))
}

// Error writes a line to the error stream. If safe is false the process
// exits with a non-zero code after the line is flushed.
func (l *Logger) Error(safe bool, format string, args ...any) {
	l.errMu.Lock()
	fmt.Fprintf(l.errWriter, "%s%s\n", timestamp(), fmt.Sprintf(format, args...))
	l.errMu.Unlock()

	if !safe {
		l.exit(1)
	}
}

// Scoped locks the shared scratch builder and returns a commit function.
// Callers write to the returned *strings.Builder across several steps, then
// call commit to flush it to the chosen sink as one atomic line and unlock.
func (l *Logger) Scoped() (*strings.Builder, func(sink func(string, ...any))) {
	l.scratchMu.Lock()
	l.scratch.Reset()
	return &l.scratch, func(sink func(string, ...any)) {
		defer l.scratchMu.Unlock()
		sink("%s", l.scratch.String())
	}
}

var std = New()

// Default returns the process-wide logger used by packages that don't hold
// their own explicit *Logger.
func Default() *Logger { return std }
