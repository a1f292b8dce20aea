// Package resolver expands an enable/disable request on a selection of mods to
// every other mod whose state has to follow so that dependencies stay satisfied.
package resolver

import (
	"fmt"

	"github.com/ritzau/mod-deps/pkg/graph"
	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/model"
)

// Collection is the owner of the mods' enabled flags
type Collection interface {
	// View runs fn while the mods are safe to read
	View(fn func())
	// Find returns the mod with the given internal id, or an error if the
	// collection no longer has it
	Find(internalID string) (*model.Mod, error)
	// SetEnabled sets every given mod to the enabled state and persists it
	SetEnabled(mods []*model.Mod, enabled bool) error
}

// GraphSource provides the currently published dependency graph
type GraphSource interface {
	Current() *graph.ModGraph
}

// Resolver computes and applies dependency-consistent enable/disable changes.
// It reads whatever graph is published at call time, which may lag behind the
// collection until the next rebuild.
type Resolver struct {
	graphs     GraphSource
	collection Collection
}

// New creates a resolver
func New(graphs GraphSource, collection Collection) *Resolver {
	return &Resolver{
		graphs:     graphs,
		collection: collection,
	}
}

// ResolveAction turns TOGGLE into a concrete action.
// A toggle is only defined for a single mod; for any other selection size ok is false.
func ResolveAction(selection []*model.Mod, action model.EnableAction) (resolved model.EnableAction, ok bool) {
	if action != model.ActionToggle {
		return action, true
	}
	if len(selection) != 1 {
		return action, false
	}
	if selection[0].Enabled {
		return model.ActionDisable, true
	}
	return model.ActionEnable, true
}

// ComputeAffected returns the mods outside the selection whose enabled state must
// change along with it. Enabling walks towards requirements, disabling walks
// towards dependents, until no new mod is reached. Mods already in the target state
// are not included and not walked through. The result is in discovery order.
func (r *Resolver) ComputeAffected(selection []*model.Mod, action model.EnableAction) []*model.Mod {
	if len(selection) == 0 {
		return nil
	}
	action, ok := ResolveAction(selection, action)
	if !ok {
		logging.Debug("ignoring toggle of a multi-selection", "selected", len(selection))
		return nil
	}

	g := r.graphs.Current()
	enable := action == model.ActionEnable
	neighbours := g.RequiredBy
	if enable {
		neighbours = g.Requires
	}

	seen := make(map[string]bool, len(selection))
	queue := make([]*model.Mod, 0, len(selection))
	for _, mod := range selection {
		if id := mod.ModID(); id != "" {
			seen[id] = true
		}
		queue = append(queue, mod)
	}

	var affected []*model.Mod
	for i := 0; i < len(queue); i++ {
		for _, next := range neighbours(queue[i].ModID()) {
			id := next.ModID()
			if seen[id] {
				continue
			}
			seen[id] = true
			if next.Enabled == enable {
				continue
			}
			affected = append(affected, next)
			queue = append(queue, next)
		}
	}

	logging.Trace("computed affected mods",
		"action", action.String(),
		"selected", len(selection),
		"affected", len(affected),
	)
	return affected
}

// Apply changes the selection together with its affected mods in one request to
// the collection. Toggling several mods flips each of them without cascading.
// Returns the error of the collection, if any; the computation itself never fails.
func (r *Resolver) Apply(selection []*model.Mod, action model.EnableAction) error {
	if len(selection) == 0 {
		return nil
	}

	resolved, ok := ResolveAction(selection, action)
	if !ok {
		return r.toggleEach(selection)
	}

	var affected []*model.Mod
	r.collection.View(func() {
		affected = r.ComputeAffected(selection, resolved)
	})
	affected = r.present(affected)
	targets := make([]*model.Mod, 0, len(selection)+len(affected))
	targets = append(targets, selection...)
	targets = append(targets, affected...)

	enable := resolved == model.ActionEnable
	if err := r.collection.SetEnabled(targets, enable); err != nil {
		return fmt.Errorf("failed to %s %d mods: %w", resolved, len(targets), err)
	}

	logging.Info("applied enable action",
		"action", resolved.String(),
		"selected", len(selection),
		"affected", len(affected),
	)
	return nil
}

// present drops mods the collection removed since the published graph was built
func (r *Resolver) present(mods []*model.Mod) []*model.Mod {
	kept := mods[:0]
	for _, mod := range mods {
		if found, err := r.collection.Find(mod.InternalID); err != nil || found != mod {
			logging.Debug("skipping mod no longer in the collection", "mod", mod.InternalID)
			continue
		}
		kept = append(kept, mod)
	}
	return kept
}

func (r *Resolver) toggleEach(selection []*model.Mod) error {
	var toEnable, toDisable []*model.Mod
	for _, mod := range selection {
		if mod.Enabled {
			toDisable = append(toDisable, mod)
		} else {
			toEnable = append(toEnable, mod)
		}
	}
	if len(toDisable) > 0 {
		if err := r.collection.SetEnabled(toDisable, false); err != nil {
			return fmt.Errorf("failed to disable %d mods: %w", len(toDisable), err)
		}
	}
	if len(toEnable) > 0 {
		if err := r.collection.SetEnabled(toEnable, true); err != nil {
			return fmt.Errorf("failed to enable %d mods: %w", len(toEnable), err)
		}
	}
	return nil
}
