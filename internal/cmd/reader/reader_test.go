package reader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/chunk/chunktest"
)

func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	base := []string{"--data-dir", dataDir, "--log-level", "error", "--no-color"}
	err := run(context.Background(), append(base, args...), &out)
	return out.String(), err
}

func recording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.flr")
	first := chunktest.New(0, 100).Sample(30, 5, "c").Sample(10, 1, "a").Sample(20, 2, "b")
	second := chunktest.New(100, 100)
	second.Flags |= chunk.FlagFinal
	second.Sample(150, 10, "d")
	require.NoError(t, chunktest.WriteFile(path, first, second))
	return path
}

func jsonLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestPrintText(t *testing.T) {
	out, err := execute(t, t.TempDir(), "print", recording(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Sample (5ns)")
	assert.Contains(t, lines[0], `message="c"`)
	assert.Contains(t, lines[3], `message="d"`)
}

func TestPrintJSONOrdered(t *testing.T) {
	out, err := execute(t, t.TempDir(), "print", "--json", "--ordered", recording(t))
	require.NoError(t, err)
	lines := jsonLines(t, out)
	require.Len(t, lines, 4)
	var messages []string
	for _, l := range lines {
		assert.Equal(t, "Sample", l["name"])
		messages = append(messages, l["fields"].(map[string]any)["message"].(string))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, messages)
	assert.EqualValues(t, 5, lines[2]["duration_ns"])
}

func TestPrintFilterAndLimit(t *testing.T) {
	path := recording(t)
	out, err := execute(t, t.TempDir(), "print", "--json", "--filter", `fields.message == "b" || duration_ns >= 10`, path)
	require.NoError(t, err)
	assert.Len(t, jsonLines(t, out), 2)

	out, err = execute(t, t.TempDir(), "print", "--json", "--limit", "1", path)
	require.NoError(t, err)
	assert.Len(t, jsonLines(t, out), 1)

	_, err = execute(t, t.TempDir(), "print", "--filter", "name ==", path)
	assert.Error(t, err)
}

func TestPrintWindow(t *testing.T) {
	out, err := execute(t, t.TempDir(), "print", "--json", "--start", "15", "--end", "40", recording(t))
	require.NoError(t, err)
	assert.Len(t, jsonLines(t, out), 2)
}

func TestPrintMissingFileEndsQuietly(t *testing.T) {
	out, err := execute(t, t.TempDir(), "print", filepath.Join(t.TempDir(), "none.flr"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSummary(t *testing.T) {
	out, err := execute(t, t.TempDir(), "summary", recording(t))
	require.NoError(t, err)
	assert.Contains(t, out, "chunks: 2")
	assert.Contains(t, out, "events: 4")
	assert.Contains(t, out, "Sample")
}

func TestChunks(t *testing.T) {
	path := recording(t)
	out, err := execute(t, t.TempDir(), "chunks", "--json", path)
	require.NoError(t, err)
	lines := jsonLines(t, out)
	require.Len(t, lines, 2)
	assert.EqualValues(t, 0, lines[0]["offset"])
	assert.Equal(t, "2.0", lines[1]["version"])
	assert.Equal(t, true, lines[1]["final"])

	out, err = execute(t, t.TempDir(), "chunks", path)
	require.NoError(t, err)
	assert.Contains(t, out, "SEQ")
}

func TestTailWithCheckpoint(t *testing.T) {
	repo := t.TempDir()
	a := chunktest.New(0, 100).Sample(10, 1, "a")
	b := chunktest.New(100, 100).Sample(120, 1, "b")
	b.Flags |= chunk.FlagFinal
	require.NoError(t, chunktest.WriteFile(filepath.Join(repo, "a.flr"), a))
	require.NoError(t, chunktest.WriteFile(filepath.Join(repo, "b.flr"), b))
	data := t.TempDir()

	out, err := execute(t, data, "tail", "--repository", repo, "--no-follow", "--from-start", "--consumer", "ops", "--json")
	require.NoError(t, err)
	assert.Len(t, jsonLines(t, out), 2)

	out, err = execute(t, data, "checkpoint", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ops")
	assert.Contains(t, out, repo)

	out, err = execute(t, data, "checkpoint", "delete", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
	_, err = execute(t, data, "checkpoint", "delete", "ops")
	assert.Error(t, err)
}

func TestTailInterrupted(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, chunktest.WriteFile(filepath.Join(repo, "a.flr"), chunktest.New(0, 100).Sample(10, 1, "a")))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	err := run(ctx, []string{"--data-dir", t.TempDir(), "--log-level", "error", "--no-color",
		"tail", "--repository", repo}, &out)
	assert.NoError(t, err)
}

func TestParseTime(t *testing.T) {
	now := time.Unix(1000, 0)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"42", time.Unix(0, 42)},
		{"1970-01-01T00:00:01Z", time.Unix(1, 0)},
		{"-10s", time.Unix(990, 0)},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in, now)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%q: got %v", tt.in, got)
	}
	_, err := parseTime("yesterday", now)
	assert.Error(t, err)
}
