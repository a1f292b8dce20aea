package graph

import (
	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/model"
)

type projectKey struct {
	provider  model.Provider
	projectID string
}

// Build constructs the dependency graph for the given mods.
//
// Two sources produce edges, per mod and in this order:
//   - declared dependencies, resolved by exact mod id
//   - REQUIRED metadata dependencies, resolved by (provider, project id) of the same provider
//
// When several mods match a reference, the first one in collection order wins.
// References that match no mod produce no edge. Build never fails.
func Build(mods []*model.Mod) *ModGraph {
	logger := logging.New("graph.builder")

	byModID := make(map[string]*model.Mod)
	byProject := make(map[projectKey]*model.Mod)
	for _, mod := range mods {
		if id := mod.ModID(); id != "" {
			if _, exists := byModID[id]; !exists {
				byModID[id] = mod
			}
		}
		if meta := mod.Metadata; meta != nil {
			key := projectKey{provider: meta.Provider, projectID: meta.ProjectID}
			if _, exists := byProject[key]; !exists {
				byProject[key] = mod
			}
		}
	}

	g := newModGraph()
	var dangling int
	for _, mod := range mods {
		// Edges are keyed by mod id; a mod that hasn't been parsed can't own any
		if mod.ModID() == "" {
			continue
		}

		for _, dep := range mod.Dependencies() {
			target, ok := byModID[dep]
			if !ok {
				dangling++
				continue
			}
			g.addEdge(mod, target)
		}

		meta := mod.Metadata
		if meta == nil {
			continue
		}
		for _, addonID := range meta.RequiredDependencies() {
			target, ok := byProject[projectKey{provider: meta.Provider, projectID: addonID}]
			if !ok || target.ModID() == "" {
				dangling++
				continue
			}
			g.addEdge(mod, target)
		}
	}

	logger.Debug("dependency graph built",
		"mods", len(mods),
		"edges", g.EdgeCount(),
		"unresolved", dangling,
	)
	return g
}
