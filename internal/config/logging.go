package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrick/logrotate/rotator"
	"github.com/sirupsen/logrus"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

var logLevels = map[string]LogLevel{
	"off":   LogLevelOff,
	"none":  LogLevelOff,
	"error": LogLevelError,
	"info":  LogLevelInfo,
	"debug": LogLevelDebug,
}

// ParseLogLevel parses a log level string. Unknown values map to error.
func ParseLogLevel(s string) LogLevel {
	if l, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return LogLevelError
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelError:
		return "error"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelOff:
		return logrus.PanicLevel
	default:
		return logrus.ErrorLevel
	}
}

// Logger is a leveled logger backed by logrus. File output is rotated.
// Key material must never be passed to it.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	log      *logrus.Logger
	rotator  *rotator.Rotator
	filePath string
}

// NewLogger creates a logger writing to filePath, rotating it once it
// exceeds maxSizeKB and keeping maxFiles compressed rolls. An empty path
// or LogLevelOff discards everything.
func NewLogger(level LogLevel, filePath string, maxSizeKB, maxFiles int) (*Logger, error) {
	if level == LogLevelOff || filePath == "" {
		return newLogger(level, io.Discard, nil, ""), nil
	}

	filePath = ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSizeKB <= 0 {
		maxSizeKB = 10 * 1024
	}
	r, err := rotator.New(filePath, int64(maxSizeKB), false, maxFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}

	return newLogger(level, r, r, filePath), nil
}

// NewWriterLogger creates a logger writing to w.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	return newLogger(level, w, nil, "")
}

func newLogger(level LogLevel, w io.Writer, r *rotator.Rotator, path string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(level.logrusLevel())

	return &Logger{level: level, log: l, rotator: r, filePath: path}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator == nil {
		return nil
	}
	// Detach first; SetOutput waits for in-flight writes.
	l.log.SetOutput(io.Discard)
	err := l.rotator.Close()
	l.rotator = nil
	return err
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.log.SetLevel(level.logrusLevel())
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// FilePath returns the log file path, empty when not logging to a file.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.logf(LogLevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.logf(LogLevelInfo, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.logf(LogLevelError, format, args...)
}

// WithFields returns an entry carrying structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.log.WithFields(fields)
}

// Writer returns an io.Writer that writes to the logger at the specified level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

func (l *Logger) logf(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	current := l.level
	l.mu.Unlock()

	if current == LogLevelOff || level > current {
		return
	}

	switch level {
	case LogLevelDebug:
		l.log.Debugf(format, args...)
	case LogLevelInfo:
		l.log.Infof(format, args...)
	default:
		l.log.Errorf(format, args...)
	}
}

// logWriter implements io.Writer for the logger.
type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.logf(w.level, "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return newLogger(LogLevelOff, io.Discard, nil, "")
}
