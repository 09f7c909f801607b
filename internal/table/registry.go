package table

import (
	"fmt"
	"sort"
)

// Logical table names shared by every stage of a run.
const (
	Trend      = "trend"
	Details    = "details"
	MovieGenre = "movie_genre"
)

// Registry maps logical table names to their current value within one run.
// It is owned by the orchestrating goroutine and is not safe for concurrent use.
type Registry struct {
	tables map[string]*Table
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: map[string]*Table{}}
}

// Put stores t under name, replacing any previous value.
func (r *Registry) Put(name string, t *Table) {
	r.tables[name] = t
}

// Get returns the table stored under name.
func (r *Registry) Get(name string) (*Table, error) {
	t, ok := r.tables[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("registry: no table %q", name)
	}
	return t, nil
}

// Names returns the stored table names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tables))
	for n := range r.tables {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
