// Package library serves the read-only registry of pre-existing bond-graph
// sub-models available for assignment to mechanisms. The registry is
// append-only reference data; the workflow never mutates it.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrModelNotFound = errors.New("library: model not found")

// LibraryModel is the lightweight registry entry for one sub-model.
type LibraryModel struct {
	Filepath    string   `json:"filepath,omitempty"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	Domains     []string `json:"domains,omitempty"`
}

// DetailedLibraryModel adds the declared structure of the sub-model.
type DetailedLibraryModel struct {
	LibraryModel
	ID               string      `json:"id"`
	Ports            []Port      `json:"ports,omitempty"`
	Variables        []Variable  `json:"variables,omitempty"`
	Parameters       []Parameter `json:"parameters,omitempty"`
	ConstitutiveLaws []string    `json:"constitutive_laws,omitempty"`
}

// Port is a declared connection point with directionality.
type Port struct {
	Name      string `json:"name"`
	Direction string `json:"direction,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// Variable is a declared state/flow variable with its semantic role.
type Variable struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Parameter is a declared parameter value with units.
type Parameter struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Units string  `json:"units,omitempty"`
}

// Registry loads the model registry once at startup and answers lookups.
// Detailed models are lazy-loaded from their declared files through an LRU
// cache so repeated physicist/composer lookups stay cheap.
type Registry struct {
	path string

	mu     sync.RWMutex
	models map[string]LibraryModel

	detailed *lru.Cache[string, *DetailedLibraryModel]
}

// Open reads the registry file and builds the lookup cache.
func Open(path string) (*Registry, error) {
	cache, err := lru.New[string, *DetailedLibraryModel](128)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path, detailed: cache}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh re-reads the registry file and drops the detailed-model cache.
func (r *Registry) Refresh() error {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("library: read registry: %w", err)
	}
	var models map[string]LibraryModel
	if err := json.Unmarshal(b, &models); err != nil {
		return fmt.Errorf("library: parse registry: %w", err)
	}
	r.mu.Lock()
	r.models = models
	r.mu.Unlock()
	r.detailed.Purge()
	return nil
}

// IDs returns every model identifier, sorted. This is the fixed row
// universe of the match matrix.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for id := range r.models {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Get returns the registry entry for one model.
func (r *Registry) Get(id string) (LibraryModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[strings.TrimSpace(id)]
	return m, ok
}

// All returns a copy of the whole registry mapping.
func (r *Registry) All() map[string]LibraryModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]LibraryModel, len(r.models))
	for id, m := range r.models {
		out[id] = m
	}
	return out
}

// Detailed loads the full declaration of one model, caching the result.
// Models without a declared file fall back to the registry entry alone.
func (r *Registry) Detailed(id string) (*DetailedLibraryModel, error) {
	id = strings.TrimSpace(id)
	if hit, ok := r.detailed.Get(id); ok {
		return hit, nil
	}
	entry, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, id)
	}
	detail := &DetailedLibraryModel{ID: id, LibraryModel: entry}
	if entry.Filepath != "" {
		b, err := os.ReadFile(r.resolve(entry.Filepath))
		if err != nil {
			return nil, fmt.Errorf("library: read model %q: %w", id, err)
		}
		if err := json.Unmarshal(b, detail); err != nil {
			return nil, fmt.Errorf("library: parse model %q: %w", id, err)
		}
		detail.ID = id
	}
	r.detailed.Add(id, detail)
	return detail, nil
}

func (r *Registry) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(r.path), p)
}
