// Package depgraph holds the dependency graph of a resolution.
//
// Unlike a layered DAG, a mod graph may contain cycles (mods that reference
// each other). [Graph.Order] therefore produces a cycle-tolerant install order
// and [Graph.Cycles] reports the strongly connected components so they can be
// shown to the user. [ToDOT] and [RenderSVG] export the graph for `quickmod
// graph`.
package depgraph

import (
	"errors"
	"slices"

	"github.com/matzehuels/quickmod/pkg/quickmod"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the uid is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when the uid is already present.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [Graph.AddEdge] when From does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [Graph.AddEdge] when To does not exist.
	ErrUnknownTargetNode = errors.New("unknown target node")
)

// Node is one mod in the graph.
type Node struct {
	ID   quickmod.UID
	Name string
	Type quickmod.Type
	Stub bool
}

// Edge points from a mod to one of its dependencies.
type Edge struct {
	From quickmod.UID
	To   quickmod.UID
}

// Graph is a directed dependency graph. Nodes and edges keep insertion order.
//
// The zero value is not usable; use [New] or [FromMods].
// Graph is not safe for concurrent use without external synchronization.
type Graph struct {
	nodes    map[quickmod.UID]*Node
	order    []quickmod.UID
	edges    []Edge
	outgoing map[quickmod.UID][]quickmod.UID
	incoming map[quickmod.UID][]quickmod.UID
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[quickmod.UID]*Node),
		outgoing: make(map[quickmod.UID][]quickmod.UID),
		incoming: make(map[quickmod.UID][]quickmod.UID),
	}
}

// FromMods builds a graph with one node per mod and one edge per reference
// whose target is among mods. References to mods outside the set are dropped.
func FromMods(mods []*quickmod.Mod) *Graph {
	g := New()
	for _, m := range mods {
		_ = g.AddNode(Node{ID: m.UID, Name: m.Name, Type: m.Type, Stub: m.IsStub()})
	}
	for _, m := range mods {
		for _, dep := range m.ReferencedUIDs() {
			_ = g.AddEdge(Edge{From: m.UID, To: dep})
		}
	}
	return g
}

// AddNode adds a node.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge adds a directed edge between two existing nodes. Duplicate edges
// are ignored.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := g.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if slices.Contains(g.outgoing[e.From], e.To) {
		return nil
	}
	g.edges = append(g.edges, e)
	g.outgoing[e.From] = append(g.outgoing[e.From], e.To)
	g.incoming[e.To] = append(g.incoming[e.To], e.From)
	return nil
}

// Node returns the node with the given uid.
func (g *Graph) Node(id quickmod.UID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, len(g.order))
	for i, id := range g.order {
		nodes[i] = g.nodes[id]
	}
	return nodes
}

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Children returns the dependencies of id. The slice must not be modified.
func (g *Graph) Children(id quickmod.UID) []quickmod.UID { return g.outgoing[id] }

// Parents returns the dependents of id. The slice must not be modified.
func (g *Graph) Parents(id quickmod.UID) []quickmod.UID { return g.incoming[id] }

// Sources returns nodes nothing depends on, in insertion order.
func (g *Graph) Sources() []*Node {
	var sources []*Node
	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			sources = append(sources, g.nodes[id])
		}
	}
	return sources
}

// Order returns every uid with dependencies before their dependents.
//
// Within a cycle the order follows depth-first discovery from the
// lowest-inserted member; every node appears exactly once.
func (g *Graph) Order() []quickmod.UID {
	visited := make(map[quickmod.UID]bool, len(g.nodes))
	order := make([]quickmod.UID, 0, len(g.nodes))

	var visit func(id quickmod.UID)
	visit = func(id quickmod.UID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, child := range g.outgoing[id] {
			visit(child)
		}
		order = append(order, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return order
}

// Cycles returns the groups of mods that reference each other, including
// self references. Each group lists its members in insertion order.
func (g *Graph) Cycles() [][]quickmod.UID {
	// Tarjan's strongly connected components.
	index := make(map[quickmod.UID]int, len(g.nodes))
	low := make(map[quickmod.UID]int, len(g.nodes))
	onStack := make(map[quickmod.UID]bool)
	var stack []quickmod.UID
	var cycles [][]quickmod.UID
	next := 0

	pos := make(map[quickmod.UID]int, len(g.order))
	for i, id := range g.order {
		pos[id] = i
	}

	var connect func(id quickmod.UID)
	connect = func(id quickmod.UID) {
		index[id] = next
		low[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true

		for _, child := range g.outgoing[id] {
			if _, seen := index[child]; !seen {
				connect(child)
				low[id] = min(low[id], low[child])
			} else if onStack[child] {
				low[id] = min(low[id], index[child])
			}
		}

		if low[id] != index[id] {
			return
		}
		var scc []quickmod.UID
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			scc = append(scc, top)
			if top == id {
				break
			}
		}
		if len(scc) > 1 || slices.Contains(g.outgoing[id], id) {
			slices.SortFunc(scc, func(a, b quickmod.UID) int { return pos[a] - pos[b] })
			cycles = append(cycles, scc)
		}
	}

	for _, id := range g.order {
		if _, seen := index[id]; !seen {
			connect(id)
		}
	}
	slices.SortFunc(cycles, func(a, b []quickmod.UID) int { return pos[a[0]] - pos[b[0]] })
	return cycles
}
