package msgcat

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedRender(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("error.invalid_move", map[string]any{"Move": "Ke9"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Move Ke9 is not legal in this position." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestMissingKeyAndField(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render("error.nope", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.Render("error.invalid_move", map[string]any{}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if got := c.Text("error.nope", nil, "fallback"); got != "fallback" {
		t.Fatalf("fallback not used: %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("reason:\n  timeout: \"flag fell\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("reason.timeout", nil, ""); got != "flag fell" {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("reason.checkmate", nil, ""); got != "checkmate" {
		t.Fatalf("default lost: %q", got)
	}
}

func TestDuplicateOverrideKeys(t *testing.T) {
	dir := t.TempDir()
	body := []byte("reason:\n  timeout: \"x\"\n")
	for _, n := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, n), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
