// logger.go - Leveled daemon log plus a JSON-line audit trail.
//
// Operational messages go to the console and, when configured, a log file.
// Audit events are settlement-relevant facts (orders booked, settlements
// applied) written as one JSON object per line so they can be replayed.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel orders message severities.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func parseLevel(s string) LogLevel {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return LogLevel(i)
		}
	}
	return INFO
}

// auditEntry is one line of the audit trail.
type auditEntry struct {
	Time    time.Time              `json:"time"`
	Event   string                 `json:"event"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Logger is the daemon's log sink.
type Logger struct {
	level LogLevel
	out   *log.Logger

	logFile   *os.File
	auditFile *os.File
	audit     *json.Encoder
}

// NewLogger builds a logger at the given level. logFile and auditFile are
// optional; empty paths disable them.
func NewLogger(level, logFile, auditFile string) (*Logger, error) {
	l := &Logger{level: parseLevel(level)}

	sinks := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		l.logFile = f
		sinks = append(sinks, f)
	}
	l.out = log.New(io.MultiWriter(sinks...), "", log.LstdFlags)

	if auditFile != "" {
		f, err := os.OpenFile(auditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("opening audit file: %w", err)
		}
		l.auditFile = f
		l.audit = json.NewEncoder(f)
	}
	return l, nil
}

// Close releases the underlying files.
func (l *Logger) Close() error {
	var first error
	for _, f := range []*os.File{l.logFile, l.auditFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.out.Printf("%s: %s", levelNames[level], fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Fatal logs at the highest severity and exits.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
	l.Close()
	os.Exit(1)
}

// Audit records a settlement-relevant event on the audit trail. A no-op when
// no audit file is configured.
func (l *Logger) Audit(event string, details map[string]interface{}) {
	if l.audit == nil {
		return
	}
	l.audit.Encode(auditEntry{Time: time.Now().UTC(), Event: event, Details: details})
}
