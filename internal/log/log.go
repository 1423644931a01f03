// Package log provides structured logging for layerforge.
// Entries carry a level, a category and key=value fields. Logging writes to
// stderr by default; Init redirects it to a file and SetMinLevel lowers the
// threshold when debug logging is requested.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name (case-insensitive) to its Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Category groups related log messages.
type Category string

const (
	CatCatalog Category = "catalog" // Layer directory scanning
	CatDNA     Category = "dna"     // DNA generation and uniqueness
	CatEngine  Category = "engine"  // Edition scheduling
	CatRender  Category = "render"  // Asset loading and compositing
	CatStore   Category = "store"   // Output persistence
	CatLedger  Category = "ledger"  // Run ledger database
	CatConfig  Category = "config"  // Configuration loading/saving
	CatWatch   Category = "watch"   // Layer directory watcher
	CatCache   Category = "cache"   // cache operations
)

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
	now      func() time.Time
}

var (
	defaultLogger = &Logger{
		writer:   os.Stderr,
		enabled:  true,
		minLevel: LevelInfo,
		now:      time.Now,
	}
)

// Init redirects the global logger to the file at path.
// Returns a cleanup function to close the log file.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path is the user-supplied log file
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	l := current()
	l.mu.Lock()
	l.file = f
	l.writer = f
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file != nil {
			_ = l.file.Close()
			l.file = nil
			l.writer = os.Stderr
		}
	}, nil
}

// SetOutput replaces the writer of the global logger.
// Tests use it to capture output.
func SetOutput(w io.Writer) {
	l := current()
	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	l := current()
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	l := current()
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	write(LevelError, cat, msg, fields...)
}

func current() *Logger {
	return defaultLogger
}

func write(level Level, cat Category, msg string, fields ...any) {
	l := current()
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel || l.writer == nil {
		return
	}
	_, _ = io.WriteString(l.writer, format(l.now(), level, cat, msg, fields...))
}

// value renders a field value, quoting it when it would break key=value parsing.
func value(v any) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// format renders one entry.
// Format: 2025-12-06T10:45:00 [ERROR] [dna] message key=value key2=value2
func format(ts time.Time, level Level, cat Category, msg string, fields ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", ts.Format("2006-01-02T15:04:05"), level, cat, msg)

	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%s", fields[i], value(fields[i+1]))
	}
	// Odd field count - append orphan key with no value
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	b.WriteByte('\n')
	return b.String()
}
