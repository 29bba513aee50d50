package idgen

import (
	"strings"
	"testing"
)

func TestNanoID_Length(t *testing.T) {
	for _, length := range []int{8, 12, 24} {
		gen := NanoID(length)
		if id := gen(); len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}
}

func TestNanoID_Alphabet(t *testing.T) {
	id := NanoID(100)()
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

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	// UUID format: 8-4-4-4-12
	if parts := strings.Split(id, "-"); len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("poll_", NanoID(8))()
	if !strings.HasPrefix(id, "poll_") {
		t.Fatalf("Prefixed: expected prefix 'poll_', got %q", id)
	}
	if len(id) != 5+8 {
		t.Fatalf("Prefixed: expected length 13, got %d", len(id))
	}
}

func TestDefault_IsUUIDv7(t *testing.T) {
	if id := New(); len(id) != 36 {
		t.Fatalf("New: expected UUID length 36, got %d for %q", len(id), id)
	}
}
