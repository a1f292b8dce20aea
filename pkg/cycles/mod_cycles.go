package cycles

import (
	"sort"

	"github.com/ritzau/mod-deps/pkg/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// ModCycle is a set of mods that (transitively) require each other
type ModCycle struct {
	ModIDs []string `json:"modIds"` // Sorted
}

// FindModCycles returns every strongly connected component of the dependency
// graph with more than one mod. Cycles are sorted by their first mod id.
func FindModCycles(g *graph.ModGraph) []ModCycle {
	sccs := topo.TarjanSCC(g.Directed())

	cycles := make([]ModCycle, 0)
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		ids := make([]string, 0, len(scc))
		for _, node := range scc {
			if id, ok := g.ModIDOf(node.ID()); ok {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		cycles = append(cycles, ModCycle{ModIDs: ids})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].ModIDs[0] < cycles[j].ModIDs[0]
	})
	return cycles
}
