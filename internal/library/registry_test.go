package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeRegistry(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	registry := `{
  "Kp": {"description": "Potassium channel", "keywords": ["potassium", "leak"], "filepath": "Kp.json"},
  "NKE": {"description": "Na/K exchanger"}
}`
	model := `{"ports": [{"name": "K_i", "direction": "in"}], "parameters": [{"name": "g", "value": 0.5, "units": "nS"}]}`
	if err := os.WriteFile(filepath.Join(dir, "library_registry.json"), []byte(registry), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Kp.json"), []byte(model), 0o644); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, "library_registry.json")
}

func TestRegistry_LoadAndLookup(t *testing.T) {
	r, err := Open(writeRegistry(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ids := r.IDs()
	if len(ids) != 2 || ids[0] != "Kp" || ids[1] != "NKE" {
		t.Fatalf("IDs = %v", ids)
	}
	m, ok := r.Get("Kp")
	if !ok || m.Description != "Potassium channel" {
		t.Fatalf("Get(Kp) = %+v, %v", m, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("Get(missing) should fail")
	}
}

func TestRegistry_DetailedCachesAndFallsBack(t *testing.T) {
	r, err := Open(writeRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	d, err := r.Detailed("Kp")
	if err != nil {
		t.Fatalf("Detailed: %v", err)
	}
	if d.ID != "Kp" || len(d.Ports) != 1 || d.Parameters[0].Units != "nS" {
		t.Fatalf("unexpected detail: %+v", d)
	}
	again, err := r.Detailed("Kp")
	if err != nil || again != d {
		t.Fatalf("second lookup should hit the cache: %p vs %p (%v)", again, d, err)
	}

	// No declared file: registry entry alone.
	d2, err := r.Detailed("NKE")
	if err != nil {
		t.Fatalf("Detailed(NKE): %v", err)
	}
	if d2.Description != "Na/K exchanger" || len(d2.Ports) != 0 {
		t.Fatalf("unexpected fallback detail: %+v", d2)
	}

	if _, err := r.Detailed("missing"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("want ErrModelNotFound, got %v", err)
	}
}
