package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTextFormatter(t *testing.T) {
	f := NewTextFormatter()
	entry := &LogEntry{
		Time:     time.Now(),
		Level:    LogLevelInfo,
		Category: "Test",
		Message:  "Hello",
		Fields:   []Field{{Key: "key", Value: "val"}},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	str := string(out)
	if !strings.Contains(str, "INFO [Test] Hello {key=val}") {
		t.Errorf("unexpected output %q", str)
	}
	if !strings.HasSuffix(str, "\n") {
		t.Error("Expected trailing newline")
	}
}

func TestJsonFormatter(t *testing.T) {
	f := NewJsonFormatter()
	entry := &LogEntry{
		Time:     time.Now(),
		Level:    LogLevelError,
		Category: "Test",
		Message:  "Hello",
		Fields:   []Field{{Key: "key", Value: "val"}, {Key: "error", Value: errors.New("boom")}},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal(out, &data))
	assert.Equal(t, "ERROR", data["level"])
	assert.Equal(t, "Test", data["category"])
	assert.Equal(t, "val", data["key"])
	assert.Equal(t, "boom", data["error"])
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, level)

	level, err = ParseLevel("Warning")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFactoryFiltersByMinimumLevel(t *testing.T) {
	rec := &Recorded{}
	factory := NewLoggingBuilder().SetMinimumLevel(LogLevelWarn).AddProvider(rec).Build()
	logger := factory.CreateLogger("ioc")

	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept too")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "ioc", entries[0].Category)
	assert.Equal(t, []string{"kept"}, rec.Messages(LogLevelWarn))

	factory.SetMinimumLevel(LogLevelTrace)
	logger.Trace("now visible")
	assert.Len(t, rec.Entries(), 3)
}

func TestWithFieldsDoesNotShareBackingArray(t *testing.T) {
	rec := &Recorded{}
	base := NewLoggingBuilder().AddProvider(rec).Build().CreateLogger("").
		WithFields(Field{Key: "a", Value: 1})

	left := base.WithFields(Field{Key: "b", Value: 2})
	right := base.WithFields(Field{Key: "c", Value: 3})
	left.Info("left")
	right.Info("right")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Fields[1].Key)
	assert.Equal(t, "c", entries[1].Fields[1].Key)
}

func TestAsyncWriterProvider(t *testing.T) {
	writer := &syncWriter{}
	provider := NewWriterProvider(WriterOptions{Output: writer, Async: true, BufferSize: 2})

	entry := &LogEntry{Time: time.Now(), Level: LogLevelInfo, Message: "Async"}
	for i := 0; i < 5; i++ {
		provider.Write(entry)
	}
	require.NoError(t, provider.Close())

	lines := strings.Split(strings.TrimSpace(writer.String()), "\n")
	assert.Len(t, lines, 5)
}

func TestZapProvider(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	factory := NewLoggingBuilder().
		SetMinimumLevel(LogLevelDebug).
		AddZap(zap.New(core)).
		Build()

	factory.CreateLogger("container").Debug("Created bean",
		Field{Key: "bean", Value: "userService"},
		Field{Key: "error", Value: errors.New("none")})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Created bean", entry.Message)
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	ctx := entry.ContextMap()
	assert.Equal(t, "container", ctx["category"])
	assert.Equal(t, "userService", ctx["bean"])
	assert.Equal(t, "none", ctx["error"])
}

type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
