package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// FileOptions configures size-based rotation of the log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var currentLevel atomic.Uint32

// logger shows date and time with microseconds.
var logger = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Writer returns the current log destination.
func Writer() io.Writer {
	return logger.Writer()
}

// OpenFile routes log output to a rotating file. The returned closer must be
// closed at shutdown; it restores stderr as the destination.
func OpenFile(opts FileOptions) io.Closer {
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	SetOutput(lj)
	return closerFunc(func() error {
		SetOutput(os.Stderr)
		return lj.Close()
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// emit writes one line tagged with level. The tag is padded so messages
// line up across levels.
func emit(level LogLevel, msg string) {
	if level < GetLevel() {
		return
	}
	logger.Printf("%-7s %s", "["+level.String()+"]", msg)
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) { emit(LevelDebug, fmt.Sprintf(format, v...)) }

// Infof logs a formatted info message.
func Infof(format string, v ...any) { emit(LevelInfo, fmt.Sprintf(format, v...)) }

// Warnf logs a formatted warning.
func Warnf(format string, v ...any) { emit(LevelWarn, fmt.Sprintf(format, v...)) }

// Errorf logs a formatted error.
func Errorf(format string, v ...any) { emit(LevelError, fmt.Sprintf(format, v...)) }

// Fatalf logs regardless of level and exits with status 1.
func Fatalf(format string, v ...any) {
	logger.Fatalf("%-7s %s", "["+LevelFatal.String()+"]", fmt.Sprintf(format, v...))
}
