package model

// Graph is the exported form of the dependency graph, shaped for visualization.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// Node is one mod id in the exported graph.
type Node struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Enabled  bool           `json:"enabled"`
	Provider Provider       `json:"provider,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Edge is a "requires" relation: Source requires Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it updates it.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]any)
	}
	g.Nodes[node.ID] = node
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	g.Edges = append(g.Edges, edge)
}
