// Package testutil provides shared test helpers for KeyIP-PriorArt.
package testutil

import (
	"sync"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
)

// LogMessage is one entry captured by MockLogger.
type LogMessage struct {
	Level   string
	Message string
	Fields  []logging.Field
}

// Field returns the value of the first field named key and whether it was
// present.
func (m LogMessage) Field(key string) (interface{}, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

type logSink struct {
	mu       sync.Mutex
	messages []LogMessage
}

// MockLogger implements logging.Logger and records every entry. Children
// created with With and Named write into the same sink as their parent.
type MockLogger struct {
	sink   *logSink
	fields []logging.Field
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{sink: &logSink{}}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.fields)+len(fields))
	all = append(all, m.fields...)
	all = append(all, fields...)

	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.messages = append(m.sink.messages, LogMessage{Level: level, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	child := make([]logging.Field, 0, len(m.fields)+len(fields))
	child = append(child, m.fields...)
	child = append(child, fields...)
	return &MockLogger{sink: m.sink, fields: child}
}

func (m *MockLogger) Named(name string) logging.Logger {
	return m.With(logging.String("logger", name))
}

func (m *MockLogger) Sync() error { return nil }

// Messages returns a snapshot of every recorded entry.
func (m *MockLogger) Messages() []LogMessage {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	out := make([]LogMessage, len(m.sink.messages))
	copy(out, m.sink.messages)
	return out
}

// MessagesAt returns the entries recorded at level.
func (m *MockLogger) MessagesAt(level string) []LogMessage {
	var out []LogMessage
	for _, msg := range m.Messages() {
		if msg.Level == level {
			out = append(out, msg)
		}
	}
	return out
}

// HasMessage reports whether an entry with the given level and message exists.
func (m *MockLogger) HasMessage(level, msg string) bool {
	for _, e := range m.MessagesAt(level) {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// Reset drops all recorded entries.
func (m *MockLogger) Reset() {
	m.sink.mu.Lock()
	m.sink.messages = nil
	m.sink.mu.Unlock()
}

var _ logging.Logger = (*MockLogger)(nil)
