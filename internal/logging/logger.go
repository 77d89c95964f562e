// Package logging provides structured logging for the drivers and the dispatcher.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const consoleTimeFormat = "15:04:05"

// Logger wraps zerolog with an optional per-invocation log file.
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	output  io.Writer

	mu   sync.Mutex
	file *os.File
}

// NewLogger creates a logger writing human-readable lines to w. Colors are
// only used when w is a terminal.
func NewLogger(w io.Writer) *Logger {
	console := newConsoleWriter(w)
	return &Logger{
		zlog:    zerolog.New(console).With().Timestamp().Logger(),
		console: console,
		output:  console,
	}
}

// NewDefaultCLILogger creates a logger on stdout; stderr is left to the
// dispatch progress bar.
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stdout)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), console: io.Discard, output: io.Discard}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child context for additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// WithFields returns a copy of the logger carrying extra fields; the copy
// shares the outputs (and the attached file) of the parent.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		zlog:    l.zlog.With().Fields(fields).Logger(),
		console: l.console,
		output:  l.output,
	}
}

// AttachFile tees every event, as JSON lines, into the invocation log file
// at path. Parent directories are created.
func (l *Logger) AttachFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.output = zerolog.MultiLevelWriter(l.console, f)
	l.zlog = l.zlog.Output(l.output)
	return nil
}

// File returns the attached log file, or nil. Job output is appended to it
// by the dispatcher.
func (l *Logger) File() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file
}

// Close closes the attached log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.output = l.console
	l.zlog = l.zlog.Output(l.console)
	return err
}

// SetOutput replaces the console writer, e.g. to route logs above a
// progress bar.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = newConsoleWriter(w)
	if l.file != nil {
		l.output = zerolog.MultiLevelWriter(l.console, l.file)
	} else {
		l.output = l.console
	}
	l.zlog = l.zlog.Output(l.output)
}

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

func newConsoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: consoleTimeFormat,
		NoColor:    !isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: consoleTimeFormat,
	})
}
