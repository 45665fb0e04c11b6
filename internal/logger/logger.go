// Package logger is the process-wide levelled logger. Lines go to stdout and,
// once Init is called, to a rotated file; live subscribers receive every entry
// that passes the level filter.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity level of a log message.
type LogLevel string

const (
	Debug LogLevel = "DEBUG"
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

// LogFileName is the active log file inside the log directory.
const LogFileName = "tickr.log"

// levelPriority returns the numeric priority of a log level (higher = more severe)
func levelPriority(level LogLevel) int {
	switch level {
	case Debug:
		return 0
	case Info:
		return 1
	case Warn:
		return 2
	case Error:
		return 3
	default:
		return 1
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a LogLevel.
// Anything else yields Info and false.
func ParseLevel(level string) (LogLevel, bool) {
	switch level {
	case "debug":
		return Debug, true
	case "info":
		return Info, true
	case "warn":
		return Warn, true
	case "error":
		return Error, true
	default:
		return Info, false
	}
}

// LogEntry represents a single log message with metadata for streaming to clients.
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
}

var (
	mu         sync.Mutex
	minLevel   = Info
	listeners  []chan LogEntry
	fileLogger *lumberjack.Logger
)

func init() {
	log.SetOutput(os.Stdout)
	log.SetFlags(0) // timestamps are written by Log
}

// SetLevel sets the minimum level. Unknown values fall back to info.
func SetLevel(level string) {
	parsed, _ := ParseLevel(level)
	mu.Lock()
	minLevel = parsed
	mu.Unlock()
	log.Printf("Log level set to: %s", parsed)
}

// Level returns the current minimum level.
func Level() LogLevel {
	mu.Lock()
	defer mu.Unlock()
	return minLevel
}

// Init adds a rotated log file in logDir next to stdout.
func Init(logDir string) error {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	fileLogger = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
	return nil
}

// Close detaches and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileLogger == nil {
		return nil
	}
	log.SetOutput(os.Stdout)
	err := fileLogger.Close()
	fileLogger = nil
	return err
}

// GetLogDir returns the directory where log files are stored
func GetLogDir() string {
	mu.Lock()
	defer mu.Unlock()
	if fileLogger != nil {
		return filepath.Dir(fileLogger.Filename)
	}
	return ""
}

// Subscribe returns a channel that receives all log entries for real-time streaming.
func Subscribe() chan LogEntry {
	mu.Lock()
	defer mu.Unlock()
	ch := make(chan LogEntry, 100)
	listeners = append(listeners, ch)
	return ch
}

// Unsubscribe removes a log listener channel and closes it.
func Unsubscribe(ch chan LogEntry) {
	mu.Lock()
	defer mu.Unlock()
	for i, l := range listeners {
		if l == ch {
			listeners = append(listeners[:i], listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func broadcast(entry LogEntry) {
	mu.Lock()
	defer mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- entry:
		default:
			// subscriber is behind; drop rather than block the caller
		}
	}
}

// Log writes a formatted message at the specified level to stdout, file, and subscribers.
func Log(level LogLevel, format string, v ...interface{}) {
	if levelPriority(level) < levelPriority(Level()) {
		return
	}

	msg := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format(time.RFC3339)

	// Format: timestamp [LEVEL] message
	log.Printf("%s [%s] %s", timestamp, level, msg)

	broadcast(LogEntry{
		Timestamp: timestamp,
		Level:     level,
		Message:   msg,
	})
}

// Infof logs a formatted message at INFO level.
func Infof(format string, v ...interface{}) {
	Log(Info, format, v...)
}

// Errorf logs a formatted message at ERROR level.
func Errorf(format string, v ...interface{}) {
	Log(Error, format, v...)
}

// Debugf logs a formatted message at DEBUG level.
func Debugf(format string, v ...interface{}) {
	Log(Debug, format, v...)
}

// Warnf logs a formatted message at WARN level.
func Warnf(format string, v ...interface{}) {
	Log(Warn, format, v...)
}
