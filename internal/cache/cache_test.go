package cache

import (
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	base := Fingerprint("What was Q4 revenue?", []string{"a", "b"}, 5, true)

	tests := []struct {
		name      string
		query     string
		docs      []string
		k         int
		hybrid    bool
		wantMatch bool
	}{
		{"identical request", "What was Q4 revenue?", []string{"a", "b"}, 5, true, true},
		{"case and whitespace normalized", "  what WAS   q4 revenue? ", []string{"a", "b"}, 5, true, true},
		{"document order irrelevant", "What was Q4 revenue?", []string{"b", "a"}, 5, true, true},
		{"different query", "What was Q3 revenue?", []string{"a", "b"}, 5, true, false},
		{"different documents", "What was Q4 revenue?", []string{"a"}, 5, true, false},
		{"different k", "What was Q4 revenue?", []string{"a", "b"}, 10, true, false},
		{"different hybrid flag", "What was Q4 revenue?", []string{"a", "b"}, 5, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(tt.query, tt.docs, tt.k, tt.hybrid)
			if (got == base) != tt.wantMatch {
				t.Errorf("Fingerprint() match = %v, want %v", got == base, tt.wantMatch)
			}
		})
	}
}

func TestCache_PutGet(t *testing.T) {
	c := New(time.Hour)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache returned a value")
	}

	c.Put("key", "answer")
	got, ok := c.Get("key")
	if !ok || got != "answer" {
		t.Errorf("Get() = %v, %v; want answer, true", got, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(time.Hour)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("key", "answer")

	current = current.Add(59 * time.Minute)
	if _, ok := c.Get("key"); !ok {
		t.Error("entry expired before its TTL")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := c.Get("key"); ok {
		t.Error("entry survived past its TTL")
	}
	if c.Size() != 0 {
		t.Errorf("Size() after lazy eviction = %d, want 0", c.Size())
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New(time.Hour)
	c.Put("a", 1)
	c.Put("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get() returned deleted entry")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("Delete() removed the wrong entry")
	}

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear() = %d, want 0", c.Size())
	}
}

func TestCache_Sweep(t *testing.T) {
	c := New(time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("old", 1)
	current = current.Add(2 * time.Minute)
	c.Put("fresh", 2)

	if evicted := c.sweep(); evicted != 1 {
		t.Errorf("sweep() evicted %d entries, want 1", evicted)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("sweep() removed a live entry")
	}
}
