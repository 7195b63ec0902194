package bodystore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPlace_Inline(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 1<<20, 16<<10)
	raw := []byte(`{"id":123,"name":"test"}`)
	p := s.Place(raw, map[string]any{"id": float64(123), "name": "test"})
	if p.InlineBody == nil {
		t.Fatalf("expected inline body, got %+v", p)
	}
	if p.BodyPath != "" {
		t.Errorf("expected no bodyPath for inline placement, got %q", p.BodyPath)
	}
}

func TestPlace_Externalized(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 1<<20, 4) // tiny inline threshold forces externalization
	raw := []byte(`{"items":"a lot of bytes that exceed the inline threshold"}`)
	p := s.Place(raw, map[string]any{"items": "a lot of bytes that exceed the inline threshold"})
	if p.BodyPath == "" {
		t.Fatalf("expected externalized body, got %+v", p)
	}
	if p.InlineBody != nil {
		t.Errorf("expected no inline body for externalized placement, got %v", p.InlineBody)
	}
	full := filepath.Join(dir, p.BodyPath)
	if _, err := os.Stat(full); err != nil {
		t.Errorf("expected body file to exist at %s: %v", full, err)
	}
}

func TestPlace_OversizeMetadataOnly(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 4, 2)
	raw := []byte(`{"a":"way too big for the max"}`)
	p := s.Place(raw, map[string]any{"a": "way too big for the max"})
	if p.OmittedReason == "" {
		t.Fatalf("expected omittedReason for oversize body, got %+v", p)
	}
	if p.BodyPath != "" || p.InlineBody != nil {
		t.Errorf("oversize placement must not persist a body, got %+v", p)
	}
}

func TestPlace_ContentAddressedDedup(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 1<<20, 0) // force externalization for any non-empty body
	raw := []byte(`{"same":"body"}`)
	p1 := s.Place(raw, map[string]any{"same": "body"})
	p2 := s.Place(raw, map[string]any{"same": "body"})
	if p1.Hash != p2.Hash {
		t.Fatalf("identical rawBytes must hash identically: %q vs %q", p1.Hash, p2.Hash)
	}
	if p1.BodyPath != p2.BodyPath {
		t.Errorf("identical rawBytes must land in the same file: %q vs %q", p1.BodyPath, p2.BodyPath)
	}
}

func TestPlace_HashDeterministic(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 1<<20, 16<<10)
	raw := []byte(`{"x":1}`)
	p1 := s.Place(raw, map[string]any{"x": float64(1)})
	p2 := s.Place(raw, map[string]any{"x": float64(1)})
	if p1.Hash != p2.Hash {
		t.Errorf("hash should be deterministic for identical bytes: %q vs %q", p1.Hash, p2.Hash)
	}
}
