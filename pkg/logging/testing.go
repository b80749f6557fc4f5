package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

// Entry is one decoded JSON log line.
type Entry map[string]any

// Message returns the entry's message.
func (e Entry) Message() string {
	return e.Str(zerolog.MessageFieldName)
}

// Str returns a field as a string, or "" when it is absent.
func (e Entry) Str(key string) string {
	v, ok := e[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// TestLogger captures JSON log output at trace level for assertions.
type TestLogger struct {
	Logger *zerolog.Logger
	buf    *bytes.Buffer
}

// NewTestLogger creates a capturing logger. The global level is lowered to
// trace for the duration of the test.
func NewTestLogger(t testing.TB) *TestLogger {
	t.Helper()

	old := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(old) })

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.TraceLevel)
	return &TestLogger{Logger: &logger, buf: buf}
}

// Context returns ctx carrying the capturing logger.
func (tl *TestLogger) Context(ctx context.Context) context.Context {
	return WithLogger(ctx, tl.Logger)
}

// Output returns the raw captured output.
func (tl *TestLogger) Output() string {
	return tl.buf.String()
}

// Entries decodes the captured lines. Lines that are not JSON are skipped.
func (tl *TestLogger) Entries() []Entry {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(tl.buf.Bytes()))
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

// Find returns the first entry with the given message.
func (tl *TestLogger) Find(message string) (Entry, bool) {
	for _, e := range tl.Entries() {
		if e.Message() == message {
			return e, true
		}
	}
	return nil, false
}

// AssertLogged fails the test unless an entry with message carries every
// field in fields with the same string form.
func (tl *TestLogger) AssertLogged(t testing.TB, message string, fields map[string]string) {
	t.Helper()
	e, ok := tl.Find(message)
	if !ok {
		t.Errorf("no log entry %q\nOutput:\n%s", message, tl.Output())
		return
	}
	for k, want := range fields {
		if got := e.Str(k); got != want {
			t.Errorf("log entry %q: field %s = %q, want %q", message, k, got, want)
		}
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}
