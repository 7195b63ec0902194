package feature

import (
	"fmt"
	"testing"
)

func TestExtract_Object(t *testing.T) {
	v := map[string]any{"id": float64(123), "name": "test"}
	f := Extract(v)
	if !f.IsObject || f.IsArray || f.IsPrimitive {
		t.Fatalf("expected object classification, got %+v", f)
	}
	if !f.HasID {
		t.Errorf("expected hasId=true for top-level id key")
	}
	if f.SchemaHash == "" {
		t.Errorf("expected non-empty schemaHash for object")
	}
	if f.NumKeys != 2 {
		t.Errorf("numKeys: got %d, want 2", f.NumKeys)
	}
}

func TestExtract_Primitive(t *testing.T) {
	for _, v := range []any{"str", float64(1), true, nil} {
		f := Extract(v)
		if !f.IsPrimitive || f.IsArray || f.IsObject {
			t.Errorf("expected primitive classification for %v, got %+v", v, f)
		}
		if f.SchemaHash != "" {
			t.Errorf("primitive should not have schemaHash, got %q", f.SchemaHash)
		}
	}
}

func TestExtract_Array(t *testing.T) {
	v := []any{
		map[string]any{"id": float64(1), "value": "test"},
		map[string]any{"id": float64(2), "value": "test2"},
	}
	f := Extract(v)
	if !f.IsArray {
		t.Fatalf("expected array classification, got %+v", f)
	}
	if f.ArrayLength != 2 {
		t.Errorf("arrayLength: got %d, want 2", f.ArrayLength)
	}
	if len(f.SamplePaths) == 0 {
		t.Errorf("expected samplePaths from descending into element 0")
	}
}

func TestExtract_HasItemsFlags(t *testing.T) {
	v := map[string]any{"items": []any{}, "total": float64(0)}
	f := Extract(v)
	if !f.HasItems {
		t.Errorf("expected hasItems=true")
	}
	if f.HasResults {
		t.Errorf("expected hasResults=false, items is not results")
	}
}

func TestExtract_TopLevelKeysSorted(t *testing.T) {
	v := map[string]any{"z": 1, "a": 2, "m": 3}
	f := Extract(v)
	want := []string{"a", "m", "z"}
	if len(f.TopLevelKeys) != len(want) {
		t.Fatalf("got %v, want %v", f.TopLevelKeys, want)
	}
	for i := range want {
		if f.TopLevelKeys[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, f.TopLevelKeys[i], want[i])
		}
	}
}

func TestExtract_SchemaHashDeterministic(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 99, "b": "different value, same keys"}
	fa := Extract(a)
	fb := Extract(b)
	if fa.SchemaHash != fb.SchemaHash {
		t.Errorf("expected identical schemaHash for identical key sets, got %q vs %q", fa.SchemaHash, fb.SchemaHash)
	}
}

func TestExtract_EmptyObjectSamplePath(t *testing.T) {
	f := Extract(map[string]any{"empty": map[string]any{}})
	found := false
	for _, p := range f.SamplePaths {
		if p == "empty" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected leaf path for empty nested object, got %v", f.SamplePaths)
	}
}

func TestExtract_ManyKeysDeterministic(t *testing.T) {
	v := make(map[string]any, 60)
	for i := 0; i < 60; i++ {
		v[fmt.Sprintf("key%02d", i)] = i
	}

	first := Extract(v)
	for i := 0; i < 5; i++ {
		f := Extract(v)
		if len(f.TopLevelKeys) != len(first.TopLevelKeys) {
			t.Fatalf("run %d: topLevelKeys length changed: got %v, want %v", i, f.TopLevelKeys, first.TopLevelKeys)
		}
		for j := range first.TopLevelKeys {
			if f.TopLevelKeys[j] != first.TopLevelKeys[j] {
				t.Fatalf("run %d: topLevelKeys[%d] = %q, want %q (non-deterministic across calls)", i, j, f.TopLevelKeys[j], first.TopLevelKeys[j])
			}
		}
		if f.SchemaHash != first.SchemaHash {
			t.Fatalf("run %d: schemaHash = %q, want %q (non-deterministic across calls)", i, f.SchemaHash, first.SchemaHash)
		}
	}

	if len(first.TopLevelKeys) != maxTopLevelKeys {
		t.Fatalf("expected %d topLevelKeys for a 60-key object, got %d", maxTopLevelKeys, len(first.TopLevelKeys))
	}
	want := sortedKeys(v)[:maxTopLevelKeys]
	for i := range want {
		if first.TopLevelKeys[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, first.TopLevelKeys[i], want[i])
		}
	}
}

func TestExtract_DepthCapReached(t *testing.T) {
	v := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": map[string]any{
					"d": "too deep",
				},
			},
		},
	}
	f := Extract(v)
	if f.DepthEstimate > maxDepth {
		t.Errorf("depthEstimate %d exceeds cap %d", f.DepthEstimate, maxDepth)
	}
}
