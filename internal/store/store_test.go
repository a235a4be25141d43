package store

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/yahiasaidi031/PFE/internal/store/migrations"
)

func TestParseCollectionID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{name: "valid uuid", in: "6f1c2a9e-3d47-4c1b-8f0e-5a2b9c7d1e34", ok: true},
		{name: "padded uuid", in: "  6f1c2a9e-3d47-4c1b-8f0e-5a2b9c7d1e34 ", ok: true},
		{name: "nil uuid", in: "00000000-0000-0000-0000-000000000000", ok: false},
		{name: "arbitrary id", in: "does-not-exist", ok: false},
		{name: "empty", in: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseCollectionID(tt.in)
			if ok != tt.ok {
				t.Fatalf("parseCollectionID(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
		})
	}
}

func TestTruncateReason(t *testing.T) {
	long := strings.Repeat("x", maxOutboxErrorLength+10)
	if got := truncateReason(long); len(got) != maxOutboxErrorLength {
		t.Fatalf("expected truncation to %d, got %d", maxOutboxErrorLength, len(got))
	}
	if got := truncateReason("broker down"); got != "broker down" {
		t.Fatalf("short reasons must be kept, got %q", got)
	}
}

func TestEmbeddedMigrationsHaveGooseAnnotations(t *testing.T) {
	entries, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for _, name := range entries {
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		text := string(body)
		if !strings.Contains(text, "-- +goose Up") || !strings.Contains(text, "-- +goose Down") {
			t.Fatalf("%s is missing goose up/down markers", name)
		}
	}
}
