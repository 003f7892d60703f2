package log

import (
	"bytes"
	"encoding/json"
	"errors"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer, opts ...LoggerOption) Logger {
	base := []LoggerOption{WithOutput(NewWriterOutput(buf)), WithFormatter(&JSONFormatter{})}
	return NewLogger(append(base, opts...)...)
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).WithComponent("consumer").With(Str("file", "a.flr"))
	l.Info("chunk opened", Int64("sequence", 3))
	l.WithError(errors.New("boom")).Warn("rotation")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "chunk opened", lines[0]["msg"])
	assert.Equal(t, "consumer", lines[0]["component"])
	assert.Equal(t, "a.flr", lines[0]["file"])
	assert.Equal(t, float64(3), lines[0]["sequence"])
	assert.Contains(t, lines[0]["caller"], "logger_test.go")
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, "WARN", lines[1]["level"])
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithLevel(WarnLevel))
	l.Debug("d")
	l.Info("i")
	l.Error("e")
	assert.Len(t, decodeLines(t, &buf), 1)

	derived := l.With(Str("k", "v"))
	derived.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.GetLevel())
}

func TestKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	newBufferLogger(&buf).Infof("kv", "a", 1, "b")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, float64(1), lines[0]["a"])
	assert.Equal(t, "b", lines[0]["arg2"])
}

func TestRedactionAndSampling(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithRedactions("secret"), WithSampling(1, 3))
	for i := 0; i < 5; i++ {
		l.Info("tick", Str("secret", "x"))
	}
	lines := decodeLines(t, &buf)
	// Occurrences 0, 1 and 4 pass.
	require.Len(t, lines, 3)
	assert.Equal(t, "[REDACTED]", lines[0]["secret"])
}

func TestTextFormatter(t *testing.T) {
	f := &TextFormatter{DisableColors: true}
	out, err := f.Format(&Entry{
		Level:   WarnLevel,
		Message: "chunk rotated",
		Fields:  Fields{ComponentKey: "consumer", "path": "a b.flr", "n": 2},
		Error:   errors.New("gone"),
	})
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "WARN  [consumer] chunk rotated")
	assert.Contains(t, s, ` n=2 path="a b.flr" error=gone`)
	assert.True(t, strings.HasSuffix(s, "\n"))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DebugLevel, "": InfoLevel, "WARNING": WarnLevel, "error": ErrorLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestApplyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flr.log")
	l, err := ApplyConfig(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	l.Debug("to file", Str("k", "v"))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"to file"`)

	_, err = ApplyConfig(Config{Format: "xml"})
	assert.Error(t, err)
	_, err = ApplyConfig(Config{Color: "sometimes"})
	assert.Error(t, err)
}

func TestRedirectStdLog(t *testing.T) {
	var buf bytes.Buffer
	restore := RedirectStdLog(newBufferLogger(&buf))
	stdlog.Print("from stdlib")
	restore()
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "from stdlib", lines[0]["msg"])

	buf.Reset()
	ToStdLogger(newBufferLogger(&buf), ErrorLevel).Println("pebble")
	lines = decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
}
