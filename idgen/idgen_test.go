package idgen

import "testing"

func TestNanoID_Length(t *testing.T) {
	for _, length := range []int{8, 12, 16, 24} {
		gen := NanoID(length)
		id := gen()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}
}

func TestNanoID_Alphabet(t *testing.T) {
	gen := NanoID(100)
	id := gen()
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestNanoID_Uniqueness(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("NanoID: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestHex_Length(t *testing.T) {
	for _, length := range []int{8, 16, 24} {
		gen := Hex(length)
		id := gen()
		if len(id) != length {
			t.Fatalf("Hex(%d): got length %d", length, len(id))
		}
	}
}

func TestHex_Alphabet(t *testing.T) {
	gen := Hex(64)
	id := gen()
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("Hex: unexpected character %q in %q", c, id)
		}
	}
}

func TestHex_Uniqueness(t *testing.T) {
	gen := Hex(16)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("Hex: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
