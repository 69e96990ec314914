package logging

import (
	"bytes"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// TraceLevel sits below debug and carries raw mongod output.
const TraceLevel = log.DebugLevel - 4

// Logger is a wrapper around the log.Logger from the charmbracelet/log package.
type Logger struct {
	*log.Logger
	Buffer *bytes.Buffer
}

var (
	logger *Logger
	once   sync.Once
)

// CreateLogger sets up the logger. It must be called before using the logger.
func CreateLogger() {
	once.Do(func() {
		baseLogger := log.New(os.Stderr)

		if os.Getenv("DEBUG") == "1" {
			baseLogger = log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				Prefix:          "embedmongo",
			})

			baseLogger.SetLevel(log.DebugLevel)
		} else {
			baseLogger.SetLevel(ParseLevel(os.Getenv("EMBEDMONGO_LOG_LEVEL")))
		}

		logger = &Logger{Logger: baseLogger}
	})
}

// ParseLevel maps a level name to a charmbracelet level. Unknown names yield info.
func ParseLevel(name string) log.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs debug messages if debug logging is enabled.
func Debug(msg interface{}, keyvals ...interface{}) {
	EnsureInitialized()
	logger.Debug(msg, keyvals...)
}

// Info logs informational messages.
func Info(msg interface{}, keyvals ...interface{}) {
	EnsureInitialized()
	logger.Info(msg, keyvals...)
}

// Warn logs warning messages.
func Warn(msg interface{}, keyvals ...interface{}) {
	EnsureInitialized()
	logger.Warn(msg, keyvals...)
}

// Error logs error messages.
func Error(msg interface{}, keyvals ...interface{}) {
	EnsureInitialized()
	logger.Error(msg, keyvals...)
}

// Fatal logs a fatal message and exits the program.
func Fatal(msg interface{}, keyvals ...interface{}) {
	EnsureInitialized()
	logger.Fatal(msg, keyvals...)
}

// GetLogger returns the Logger instance.
func GetLogger() *Logger {
	EnsureInitialized()
	return logger
}

// BaseLogger returns the underlying *log.Logger.
func (l *Logger) BaseLogger() *log.Logger {
	return l.Logger
}

// Trace logs at TraceLevel.
func (l *Logger) Trace(msg interface{}, keyvals ...interface{}) {
	l.Log(TraceLevel, msg, keyvals...)
}

// With returns a child logger carrying keyvals and sharing the same buffer.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(keyvals...), Buffer: l.Buffer}
}

// Component returns a child logger prefixed with name, e.g. "mongod" or "download".
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.WithPrefix(name), Buffer: l.Buffer}
}

// GetOutput returns everything written so far by a test logger.
func (l *Logger) GetOutput() string {
	if l.Buffer == nil {
		return ""
	}
	return l.Buffer.String()
}

// NewTestLogger returns a logger writing to an in-memory buffer at trace level.
func NewTestLogger() *Logger {
	buf := new(bytes.Buffer)
	base := log.NewWithOptions(buf, log.Options{Level: TraceLevel})
	return &Logger{Logger: base, Buffer: buf}
}

// SetTestLogger replaces the global logger.
func SetTestLogger(l *Logger) {
	once.Do(func() {})
	logger = l
}

// ResetForTest drops the global logger so the next call re-creates it.
func ResetForTest() {
	logger = nil
	once = sync.Once{}
}

// EnsureInitialized ensures the logger is initialized before use.
func EnsureInitialized() {
	if logger == nil {
		CreateLogger()
	}
}
