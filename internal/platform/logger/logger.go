// Package logger provides structured logging for the simulation server.
// Room changes, pause episodes and spoilage transitions should be traceable through this.
package logger

import (
	"io"
	"log"
	"os"
)

// Logger provides structured logging with context.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

// NewLogger creates a new logger instance writing to stdout and stderr.
func NewLogger() *Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters creates a logger with explicit sinks for info/warn and error output.
func NewWithWriters(out, errOut io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	return &Logger{
		infoLogger:  log.New(out, "[ROOMS-INFO] ", flags),
		warnLogger:  log.New(out, "[ROOMS-WARN] ", flags),
		errorLogger: log.New(errOut, "[ROOMS-ERROR] ", flags),
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return NewWithWriters(io.Discard, io.Discard)
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Output(2, msg)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.warnLogger.Output(2, msg)
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.errorLogger.Output(2, msg)
}

// Event logs a simulation event with the actor that caused it.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.infoLogger.Printf("[EVENT:%s] Actor:%s | %s", eventType, actorID, details)
}
