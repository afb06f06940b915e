// Package tablemap holds the process-wide table-name mapping registry used to
// redirect reads of an index table to a preview table.
package tablemap

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/syssam/stageview"
)

// Registry maps a physical table name to an override table name. At most one
// override exists per name; installing a second one fails until the first is
// cleared.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]string
	log      *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		mappings: make(map[string]string),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the override of table, if any.
func (r *Registry) Get(table string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	override, ok := r.mappings[table]
	return override, ok
}

// Set installs an override for table. It fails with
// *stageview.AlreadyMappedError if table is already mapped, leaving the
// existing mapping in place.
func (r *Registry) Set(table, override string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.mappings[table]; ok {
		return stageview.NewAlreadyMappedError(table, current, override)
	}
	r.mappings[table] = override
	r.log.Debug("table mapping installed", "table", table, "override", override)
	return nil
}

// Clear removes the override of table. Clearing an unmapped table is a no-op.
func (r *Registry) Clear(table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappings[table]; ok {
		delete(r.mappings, table)
		r.log.Debug("table mapping cleared", "table", table)
	}
}

// Resolve returns the override of table, or table itself.
func (r *Registry) Resolve(table string) string {
	if override, ok := r.Get(table); ok {
		return override
	}
	return table
}

// Len returns the number of active mappings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mappings)
}

// Mappings returns a copy of the active mappings.
func (r *Registry) Mappings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.mappings)
}

// Acquire installs an override and returns the func releasing it. Release
// clears the mapping only while it still points to override, and is safe to
// call more than once.
//
//	release, err := reg.Acquire(live, tmp)
//	if err != nil {
//	    return err
//	}
//	defer release()
func (r *Registry) Acquire(table, override string) (func(), error) {
	if err := r.Set(table, override); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.mappings[table] == override {
				delete(r.mappings, table)
				r.log.Debug("table mapping released", "table", table, "override", override)
			}
		})
	}, nil
}
