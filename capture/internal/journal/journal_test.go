package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/domlens/apiscout/capture"
)

func TestOpen_CreatesEmptyIndexAndRunJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run1")
	log, err := Open(dir, capture.RunMetadata{RunID: "run1", URL: "https://x.com"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	if _, err := os.Stat(filepath.Join(dir, "run.json")); err != nil {
		t.Errorf("expected run.json to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.jsonl")); err != nil {
		t.Errorf("expected index.jsonl to exist even with no records: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bodies")); err != nil {
		t.Errorf("expected bodies/ to exist: %v", err)
	}
}

func TestAppendAndReadIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run1")
	log, err := Open(dir, capture.RunMetadata{RunID: "run1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 3; i++ {
		rec := &capture.CaptureRecord{EndpointKey: "GET /x", Status: 200}
		if err := log.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []*capture.CaptureRecord
	if err := ReadIndex(dir, func(r *capture.CaptureRecord) { got = append(got, r) }); err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
}

func TestReadIndex_TolerantOfCorruptTrailingLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run1")
	log, err := Open(dir, capture.RunMetadata{RunID: "run1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Append(&capture.CaptureRecord{EndpointKey: "GET /good", Status: 200}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "index.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.WriteString(`{"endpointKey":"GET /trunc`); err != nil {
		t.Fatalf("write partial line: %v", err)
	}
	f.Close()

	var got []*capture.CaptureRecord
	if err := ReadIndex(dir, func(r *capture.CaptureRecord) { got = append(got, r) }); err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(got) != 1 || got[0].EndpointKey != "GET /good" {
		t.Fatalf("expected only the well-formed record, got %+v", got)
	}
}

func TestReadIndex_EmptyIndexIsNotAnError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run1")
	log, err := Open(dir, capture.RunMetadata{RunID: "run1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log.Close()

	var got []*capture.CaptureRecord
	if err := ReadIndex(dir, func(r *capture.CaptureRecord) { got = append(got, r) }); err != nil {
		t.Fatalf("ReadIndex on empty journal: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}
