package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger appends structured entries to a run's logs.jsonl, one JSON
// object per line. It is the durable audit trail: errors are never held
// only in memory. A zero-value Logger is a no-op.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// LogEntry is one line of logs.jsonl.
type LogEntry struct {
	TS      time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// NewLogger opens (appending) the log file at path. An empty path
// returns a no-op logger.
func NewLogger(path string) (*Logger, error) {
	if path == "" {
		return &Logger{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Logger{file: f}, nil
}

// Info writes an info-level entry.
func (l *Logger) Info(step, message string, meta map[string]any) {
	l.append("info", step, message, meta)
}

// Warn writes a warn-level entry.
func (l *Logger) Warn(step, message string, meta map[string]any) {
	l.append("warn", step, message, meta)
}

// Error writes an error-level entry.
func (l *Logger) Error(step, message string, meta map[string]any) {
	l.append("error", step, message, meta)
}

func (l *Logger) append(level, step, message string, meta map[string]any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}

	entry := LogEntry{TS: time.Now(), Level: level, Step: step, Message: message, Meta: meta}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.file.Write(append(data, '\n'))
}

// Close releases the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
