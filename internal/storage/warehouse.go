// Package storage defines the warehouse abstraction the loader writes to and
// a registry of backend factories keyed by kind. Backends register themselves
// from init(); import internal/storage/all to link every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tmdbetl/internal/table"
)

// Config is what a backend factory needs to open a warehouse.
type Config struct {
	Kind string
	// DSN is the connection string for SQL backends.
	DSN string

	// BigQuery.
	ProjectID       string
	Location        string
	CredentialsFile string
}

// TableRef names a destination table as {Dataset}.{Table}.
type TableRef struct {
	Dataset string
	Table   string
}

func (r TableRef) String() string { return r.Dataset + "." + r.Table }

// Validate rejects empty parts and parts containing a dot.
func (r TableRef) Validate() error {
	for _, p := range []string{r.Dataset, r.Table} {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("storage: invalid table ref %q: empty part", r.String())
		}
		if strings.Contains(p, ".") {
			return fmt.Errorf("storage: invalid table ref %q: part %q contains '.'", r.String(), p)
		}
	}
	return nil
}

// Warehouse replaces whole tables.
//
// After a successful ReplaceTable the destination holds exactly the rows of t
// with columns typed from table.InferSchema; whatever was there before is
// gone. A failed call may leave the destination missing or unchanged
// depending on the backend, never partially written.
type Warehouse interface {
	ReplaceTable(ctx context.Context, ref TableRef, t *table.Table) error
	Close() error
}

// Factory opens a Warehouse for cfg.
type Factory func(ctx context.Context, cfg Config) (Warehouse, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on an empty kind,
// a nil factory or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a warehouse with the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Warehouse, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing warehouse kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported warehouse kind=%s (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	w, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Kind, err)
	}
	return w, nil
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
