package graph

import (
	"sort"

	"github.com/ritzau/mod-deps/pkg/model"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// ModGraph is an immutable snapshot of the mod dependency graph.
// Adjacency lists are keyed by mod id and hold each neighbour once, in first-seen order.
// requires and requiredBy are exact inverses of each other.
type ModGraph struct {
	requires   map[string][]*model.Mod
	requiredBy map[string][]*model.Mod

	directed *simple.DirectedGraph
	ids      map[string]int64 // mod id -> gonum node id
	modIDs   map[int64]string // gonum node id -> mod id
	edges    [][2]string      // insertion order
}

// Empty returns a graph with no mods and no edges
func Empty() *ModGraph {
	return newModGraph()
}

func newModGraph() *ModGraph {
	return &ModGraph{
		requires:   make(map[string][]*model.Mod),
		requiredBy: make(map[string][]*model.Mod),
		directed:   simple.NewDirectedGraph(),
		ids:        make(map[string]int64),
		modIDs:     make(map[int64]string),
	}
}

// node returns the gonum node id for a mod id, adding the node if needed
func (g *ModGraph) node(modID string) int64 {
	if id, ok := g.ids[modID]; ok {
		return id
	}
	n := g.directed.NewNode()
	g.directed.AddNode(n)
	g.ids[modID] = n.ID()
	g.modIDs[n.ID()] = modID
	return n.ID()
}

// addEdge records "from requires to". Duplicate pairs and self edges are ignored.
// Returns true if the edge was new.
func (g *ModGraph) addEdge(from, to *model.Mod) bool {
	fromID, toID := from.ModID(), to.ModID()
	if fromID == toID {
		return false
	}

	src := g.node(fromID)
	dst := g.node(toID)
	if g.directed.HasEdgeFromTo(src, dst) {
		return false
	}
	g.directed.SetEdge(g.directed.NewEdge(g.directed.Node(src), g.directed.Node(dst)))

	g.requires[fromID] = append(g.requires[fromID], to)
	g.requiredBy[toID] = append(g.requiredBy[toID], from)
	g.edges = append(g.edges, [2]string{fromID, toID})
	return true
}

// Requires returns the mods that modID depends on
func (g *ModGraph) Requires(modID string) []*model.Mod {
	return cloneMods(g.requires[modID])
}

// RequiredBy returns the mods that depend on modID
func (g *ModGraph) RequiredBy(modID string) []*model.Mod {
	return cloneMods(g.requiredBy[modID])
}

func (g *ModGraph) RequiresCount(modID string) int {
	return len(g.requires[modID])
}

func (g *ModGraph) RequiredByCount(modID string) int {
	return len(g.requiredBy[modID])
}

// RequiresList returns display names of the mods that modID depends on
func (g *ModGraph) RequiresList(modID string) []string {
	return names(g.requires[modID])
}

// RequiredByList returns display names of the mods that depend on modID
func (g *ModGraph) RequiredByList(modID string) []string {
	return names(g.requiredBy[modID])
}

// Edges returns all "requires" edges as [from, to] mod id pairs, in insertion order
func (g *ModGraph) Edges() [][2]string {
	edges := make([][2]string, len(g.edges))
	copy(edges, g.edges)
	return edges
}

// EdgeCount returns the number of distinct edges
func (g *ModGraph) EdgeCount() int {
	return len(g.edges)
}

// Directed returns the underlying directed graph. Edges point from a mod to its requirement.
func (g *ModGraph) Directed() graph.Directed {
	return g.directed
}

// ModIDOf maps a node of Directed() back to its mod id
func (g *ModGraph) ModIDOf(nodeID int64) (string, bool) {
	id, ok := g.modIDs[nodeID]
	return id, ok
}

// Export converts the graph into the visualization model.
// Every mod with a mod id becomes a node, connected or not.
func (g *ModGraph) Export(mods []*model.Mod) *model.Graph {
	out := model.NewGraph()
	for _, mod := range mods {
		id := mod.ModID()
		if id == "" {
			continue
		}
		if _, exists := out.Nodes[id]; exists {
			continue
		}
		out.AddNode(&model.Node{
			ID:       id,
			Label:    mod.Name(),
			Enabled:  mod.Enabled,
			Provider: mod.Provider(),
			Metadata: map[string]any{
				"file":       mod.InternalID,
				"requires":   g.RequiresCount(id),
				"requiredBy": g.RequiredByCount(id),
			},
		})
	}
	for _, edge := range g.edges {
		out.AddEdge(&model.Edge{Source: edge[0], Target: edge[1]})
	}
	return out
}

// ModIDs returns every mod id that takes part in at least one edge, sorted
func (g *ModGraph) ModIDs() []string {
	ids := make([]string, 0, len(g.ids))
	for id := range g.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneMods(mods []*model.Mod) []*model.Mod {
	if len(mods) == 0 {
		return nil
	}
	out := make([]*model.Mod, len(mods))
	copy(out, mods)
	return out
}

func names(mods []*model.Mod) []string {
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.Name())
	}
	return out
}
