package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "history.jsonl")
	r, err := NewRecorder(path)
	require.NoError(t, err)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Record(Entry{Time: now, Username: "jsmith", Workflow: "upscale", Outcome: OutcomeRendered}))
	require.NoError(t, r.Record(Entry{Time: now, Username: "jsmith", Workflow: "restore", Outcome: OutcomeFailed, StatusCode: 502}))

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "upscale", entries[0].Workflow)
	assert.Equal(t, 502, entries[1].StatusCode)
	assert.True(t, entries[0].Time.Equal(now))
}

func TestRecorderWithoutPathDiscards(t *testing.T) {
	r, err := NewRecorder("")
	require.NoError(t, err)
	assert.NoError(t, r.Record(Entry{Workflow: "expand"}))

	var nilRecorder *Recorder
	assert.NoError(t, nilRecorder.Record(Entry{Workflow: "expand"}))
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"workflow\":\"expand\"}\n\nnot json\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "history.jsonl")
	dst := filepath.Join(dir, "history.parquet")

	r, err := NewRecorder(src)
	require.NoError(t, err)
	for _, wf := range []string{"expand", "replace", "recolor"} {
		require.NoError(t, r.Record(Entry{Time: time.Now(), Workflow: wf, Outcome: OutcomeRendered, DurationMS: 1200}))
	}

	n, err := Export(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := parquet.ReadFile[Row](dst)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "replace", rows[1].Workflow)
	assert.Equal(t, int64(1200), rows[2].DurationMS)
}
