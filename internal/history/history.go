// Package history keeps an append-only JSONL log of transform
// submissions and converts it to Parquet for offline analysis.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

const (
	OutcomeRendered   = "rendered"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

// Entry is one logged transform submission.
type Entry struct {
	Time       time.Time `json:"time"`
	SessionID  string    `json:"session_id"`
	Username   string    `json:"username"`
	Workflow   string    `json:"workflow"`
	PublicID   string    `json:"public_id,omitempty"`
	Effect     string    `json:"effect,omitempty"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Row is the Parquet layout of an Entry.
type Row struct {
	TimeUnixMS int64  `parquet:"time_unix_ms"`
	SessionID  string `parquet:"session_id"`
	Username   string `parquet:"username"`
	Workflow   string `parquet:"workflow"`
	PublicID   string `parquet:"public_id"`
	Effect     string `parquet:"effect"`
	Outcome    string `parquet:"outcome"`
	StatusCode int32  `parquet:"status_code"`
	DurationMS int64  `parquet:"duration_ms"`
	Error      string `parquet:"error"`
}

// Recorder appends entries to a JSONL file. A Recorder with an empty
// path discards everything.
type Recorder struct {
	path string
	mu   sync.Mutex
}

func NewRecorder(path string) (*Recorder, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	return &Recorder{path: path}, nil
}

func (r *Recorder) Record(e Entry) error {
	if r == nil || r.path == "" {
		return nil
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to write history entry: %w", err)
	}
	return nil
}

// Load reads every entry from a JSONL history file.
func Load(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading history: %w", err)
	}

	slog.Debug("Finished reading history file", "entries", len(entries), "lines", lineNum)
	return entries, nil
}

func toRow(e Entry) Row {
	return Row{
		TimeUnixMS: e.Time.UnixMilli(),
		SessionID:  e.SessionID,
		Username:   e.Username,
		Workflow:   e.Workflow,
		PublicID:   e.PublicID,
		Effect:     e.Effect,
		Outcome:    e.Outcome,
		StatusCode: int32(e.StatusCode),
		DurationMS: e.DurationMS,
		Error:      e.Error,
	}
}

// Export converts the JSONL history at src into a Parquet file at dst
// and returns the number of rows written.
func Export(src, dst string) (int, error) {
	entries, err := Load(src)
	if err != nil {
		return 0, err
	}

	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toRow(e))
	}

	if err := parquet.WriteFile(dst, rows); err != nil {
		return 0, fmt.Errorf("failed to write parquet file: %w", err)
	}
	return len(rows), nil
}
