// Package logging provides the component logger shared by every otto
// subsystem. Output goes to ~/otto-debug.log and stdout with secrets redacted.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	loggerInstance *fileLogger
	loggerOnce     sync.Once
)

// fileLogger provides structured logging to otto-debug.log.
type fileLogger struct {
	file       *os.File
	logger     *log.Logger
	level      LogLevel
	mu         sync.Mutex
	component  string
	enableFile bool
}

func getRoot() *fileLogger {
	loggerOnce.Do(func() {
		loggerInstance = newFileLogger(DEBUG, true)
	})
	return loggerInstance
}

// NewComponentLogger creates a logger scoped to a named component.
func NewComponentLogger(component string) Logger {
	root := getRoot()
	return &fileLogger{
		file:       root.file,
		logger:     root.logger,
		level:      root.level,
		component:  component,
		enableFile: root.enableFile,
	}
}

func newFileLogger(level LogLevel, enableFile bool) *fileLogger {
	l := &fileLogger{
		level:      level,
		enableFile: enableFile,
	}

	if enableFile {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Printf("Failed to get home directory: %v", err)
			return l
		}

		logPath := filepath.Join(home, "otto-debug.log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("Failed to open log file: %v", err)
			return l
		}

		l.file = file
		l.logger = log.New(file, "", 0) // formatted manually below
	}

	return l
}

// SetLevel sets the minimum log level on the root logger.
func SetLevel(level LogLevel) {
	root := getRoot()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.level = level
}

func (l *fileLogger) log(level LogLevel, format string, args ...any) {
	if level < l.level || !l.enableFile {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2025-09-30 12:34:56 [INFO] [Component] file.go:123 - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	component := l.component
	if component == "" {
		component = "OTTO"
	}

	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		timestamp, levelToString(level), component, file, line, message)

	sanitized := sanitizeLogLine(logLine)

	if l.logger != nil {
		l.logger.Print(sanitized)
	}
	fmt.Print(sanitized)
}

func (l *fileLogger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.log(ERROR, format, args...) }

func levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

const redactionPlaceholder = "[REDACTED]"

var (
	authorizationBearerPattern = regexp.MustCompile(
		`(?i)((?:"|')?authorization(?:"|')?\s*(?:=|:)\s*)(bearer\s+)([^"'\s,;]+)`,
	)
	sensitiveKeyValuePattern = regexp.MustCompile(
		`(?i)((?:"|')?(?:api[_-]?key|access[_-]?token|refresh[_-]?token|token|secret|password|session|cookie|credential)(?:"|')?\s*(?:=|:)\s*)(?:"|')?([^"'\s,;]+)((?:"|')?)`,
	)
	bearerTokenPattern      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-\._~+/]+=*)`)
	standaloneSecretPattern = regexp.MustCompile(
		`(?i)(sk-[A-Za-z0-9]{16,}|ghp_[A-Za-z0-9]{16,}|xox[a-z]-[A-Za-z0-9\-]{10,}|tvly-[A-Za-z0-9\-]{16,})`,
	)
)

func sanitizeLogLine(line string) string {
	sanitized := authorizationBearerPattern.ReplaceAllStringFunc(line, func(match string) string {
		submatches := authorizationBearerPattern.FindStringSubmatch(match)
		if len(submatches) != 4 {
			return match
		}
		return submatches[1] + submatches[2] + redactionPlaceholder
	})

	sanitized = sensitiveKeyValuePattern.ReplaceAllStringFunc(sanitized, func(match string) string {
		submatches := sensitiveKeyValuePattern.FindStringSubmatch(match)
		if len(submatches) != 4 {
			return match
		}
		return submatches[1] + redactionPlaceholder + submatches[3]
	})

	sanitized = bearerTokenPattern.ReplaceAllStringFunc(sanitized, func(match string) string {
		parts := bearerTokenPattern.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		return parts[1] + redactionPlaceholder
	})

	sanitized = standaloneSecretPattern.ReplaceAllString(sanitized, redactionPlaceholder)
	return sanitized
}
