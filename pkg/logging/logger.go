package logging

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Log levels in increasing severity
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warning"
	LevelError = "error"
)

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// jsonLogger writes structured log entries as JSON lines
type jsonLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	min    int
	fields []Field
}

// NewLogger creates a Logger from the given configuration
func NewLogger(config LogConfig) (Logger, error) {
	var out io.Writer
	switch config.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "file":
		f, err := os.OpenFile(config.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		out = f
	default:
		out = os.Stdout
	}

	min, ok := levelRank[strings.ToLower(config.Level)]
	if !ok {
		min = levelRank[LevelInfo]
	}

	return &jsonLogger{
		mu:  &sync.Mutex{},
		out: out,
		min: min,
	}, nil
}

// NewDefaultLogger creates a Logger that writes info-level JSON lines to stdout
func NewDefaultLogger() Logger {
	l, _ := NewLogger(LogConfig{Level: LevelInfo, Output: "stdout"})
	return l
}

func (l *jsonLogger) log(level string, msg string, fields []Field) {
	if levelRank[level] < l.min {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   msg,
	}

	if len(l.fields) > 0 || len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(l.fields)+len(fields))
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}

func (l *jsonLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *jsonLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *jsonLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *jsonLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

// WithFields returns a new logger with the given fields attached to every entry
func (l *jsonLogger) WithFields(fields ...Field) Logger {
	combined := make([]Field, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)

	return &jsonLogger{
		mu:     l.mu,
		out:    l.out,
		min:    l.min,
		fields: combined,
	}
}

// WithContext returns a new logger with the given context
func (l *jsonLogger) WithContext(ctx context.Context) Logger {
	return l
}

// LogRunEvent records workflow run events
func (l *jsonLogger) LogRunEvent(workflowID string, runID string, event string, data map[string]interface{}) {
	fields := []Field{
		{Key: "workflow_id", Value: workflowID},
		{Key: "run_id", Value: runID},
		{Key: "event", Value: event},
	}
	if len(data) > 0 {
		fields = append(fields, Field{Key: "data", Value: data})
	}
	l.Info("run event", fields...)
}

// LogNodeEvent records node execution events
func (l *jsonLogger) LogNodeEvent(workflowID string, runID string, nodeID string, event string, data map[string]interface{}) {
	fields := []Field{
		{Key: "workflow_id", Value: workflowID},
		{Key: "run_id", Value: runID},
		{Key: "node_id", Value: nodeID},
		{Key: "event", Value: event},
	}
	if len(data) > 0 {
		fields = append(fields, Field{Key: "data", Value: data})
	}
	l.Info("node event", fields...)
}

// LogSystemEvent records system-level events
func (l *jsonLogger) LogSystemEvent(event string, data map[string]interface{}) {
	fields := []Field{{Key: "event", Value: event}}
	if len(data) > 0 {
		fields = append(fields, Field{Key: "data", Value: data})
	}
	l.Info("system event", fields...)
}
