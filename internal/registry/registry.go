package registry

import (
	"context"
	"fmt"
	"sync"
)

// Registry is the live, queryable set of agent definitions. It loads once
// synchronously at construction and, if Watch is called, reloads itself
// whenever a definition file under its directories changes.
type Registry struct {
	loader *Loader

	mu    sync.RWMutex
	byName map[string]Definition
}

// New builds a Registry over dirs (priority order: earlier dirs shadow
// later ones) and performs an initial synchronous load.
func New(ctx context.Context, dirs ...string) (*Registry, error) {
	r := &Registry{loader: NewLoader(dirs...), byName: make(map[string]Definition)}
	if err := r.reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the named agent's definition.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// All returns every currently loaded definition.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, def)
	}
	return out
}

// Watch starts a background directory watch and reloads the registry on
// every detected change until ctx is cancelled. Load errors during a
// reload are swallowed (the previous good set stays live) since a broken
// edit mid-save shouldn't take every agent offline.
func (r *Registry) Watch(ctx context.Context) error {
	w := newWatcher(r.loader.dirs)
	reload, err := w.Start(ctx)
	if err != nil {
		return err
	}
	go func() {
		for range reload {
			_ = r.reload(ctx)
		}
	}()
	return nil
}

func (r *Registry) reload(ctx context.Context) error {
	loaded, err := r.loader.LoadAll(ctx)
	if err != nil && len(loaded) == 0 {
		return fmt.Errorf("load agent definitions: %w", err)
	}

	byName := make(map[string]Definition, len(loaded))
	for _, l := range loaded {
		byName[l.Definition.Name] = l.Definition
	}

	r.mu.Lock()
	r.byName = byName
	r.mu.Unlock()
	return nil
}
