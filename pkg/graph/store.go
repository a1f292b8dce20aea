package graph

import (
	"sync/atomic"

	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/model"
)

// Observer is told about every mod whose cached dependency counts changed in a rebuild
type Observer interface {
	ModChanged(mod *model.Mod)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(mod *model.Mod)

func (f ObserverFunc) ModChanged(mod *model.Mod) { f(mod) }

// Store publishes the current graph snapshot.
// Rebuild swaps the whole snapshot at once, so readers see either the old or the new graph.
type Store struct {
	current  atomic.Pointer[ModGraph]
	observer Observer
}

// NewStore creates a store holding an empty graph. observer may be nil.
func NewStore(observer Observer) *Store {
	s := &Store{observer: observer}
	s.current.Store(Empty())
	return s
}

// Current returns the published snapshot
func (s *Store) Current() *ModGraph {
	return s.current.Load()
}

// Rebuild builds a new graph from mods, publishes it, refreshes the cached
// counts on each mod and notifies the observer for every mod whose counts changed.
func (s *Store) Rebuild(mods []*model.Mod) *ModGraph {
	g := Build(mods)
	s.current.Store(g)

	changed := 0
	for _, mod := range mods {
		id := mod.ModID()
		if !mod.SetCounts(g.RequiresCount(id), g.RequiredByCount(id)) {
			continue
		}
		changed++
		if s.observer != nil {
			s.observer.ModChanged(mod)
		}
	}

	logging.Debug("dependency graph published", "edges", g.EdgeCount(), "changed", changed)
	return g
}
