package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx := context.Background()
	key := "route:/api/v1/notes:user:u1"
	payload := []byte(`{"notes":[]}`)

	if _, ok, err := m.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get() before Set = ok=%v err=%v", ok, err)
	}

	if err := m.Set(ctx, key, payload, 100*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false after Set()")
	}
	if string(got) != string(payload) {
		t.Errorf("Get() = %q, want %q", got, payload)
	}

	// Entry expires at TTL.
	time.Sleep(110 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, key); ok {
		t.Error("Get() ok = true after TTL elapsed")
	}
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx := context.Background()
	m.Set(ctx, "a", []byte("1"), time.Minute)
	m.Set(ctx, "b", []byte("2"), time.Minute)

	if err := m.Delete(ctx, "a", "missing"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("key a survived Delete()")
	}
	if _, ok, _ := m.Get(ctx, "b"); !ok {
		t.Error("key b removed by unrelated Delete()")
	}
}

func TestMemory_DeletePattern(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx := context.Background()
	keys := []string{
		"route:/api/v1/notes:user:u1",
		"route:/api/v1/notes?archived=false:user:u1",
		"route:/api/v1/notes:user:u2",
		"route:/api/v1/folders:user:u1",
	}
	for _, k := range keys {
		m.Set(ctx, k, []byte("x"), time.Minute)
	}

	removed, err := m.DeletePattern(ctx, "route:/api/v1/notes*:user:u1")
	if err != nil {
		t.Fatalf("DeletePattern() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeletePattern() removed = %d, want 2", removed)
	}

	// u2's entry and the folders entry are untouched.
	if _, ok, _ := m.Get(ctx, "route:/api/v1/notes:user:u2"); !ok {
		t.Error("other identity's entry was removed")
	}
	if _, ok, _ := m.Get(ctx, "route:/api/v1/folders:user:u1"); !ok {
		t.Error("non-matching entry was removed")
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"notes:user:u1*", "notes:user:u1:list", true},
		{"notes:user:u1*", "notes:user:u1", true},
		{"notes:user:u1*", "notes:user:u2:list", false},
		{"route:/notes*:user:u1", "route:/notes?page=2:user:u1", true},
		{"route:/notes*:user:u1", "route:/notes:user:u2", false},
		{"exact", "exact", true},
		{"exact", "exact!", false},
		{"*", "anything", true},
		{"a*b*c", "a-x-b-y-c", true},
		{"a*b*c", "a-x-c-y-b", false},
		// '?' matches exactly one character, as Redis MATCH does.
		{"notes:user:u?", "notes:user:u1", true},
		{"notes:user:u?", "notes:user:u", false},
		{"notes:user:u?", "notes:user:u12", false},
		{"notes:user:u?*", "notes:user:u12:list", true},
	}

	for _, tt := range tests {
		if got := globMatch(tt.pattern, tt.s); got != tt.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		rawURL   string
		identity string
		want     string
	}{
		{"/api/v1/notes", "u1", "route:/api/v1/notes:user:u1"},
		{"/api/v1/notes?archived=false", "u1", "route:/api/v1/notes?archived=false:user:u1"},
		{"/api/v1/notes?a=1&b=2", "203.0.113.7", "route:/api/v1/notes?a=1&b=2:user:203.0.113.7"},
	}

	for _, tt := range tests {
		req := newTestURL(t, tt.rawURL)
		if got := Key(req, tt.identity); got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.rawURL, tt.identity, got, tt.want)
		}
	}
}
