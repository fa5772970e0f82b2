// Package dag implements a directed graph over string-labeled nodes that keeps the insertion
// order of the nodes.
package dag

import (
	"sort"
)

type Graph struct {
	Nodes   []string
	byLabel map[string]int
	edges   map[string]map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byLabel: map[string]int{}, edges: map[string]map[string]bool{}}
}

// AddNode adds a node, returns false if the node already exists.
func (g *Graph) AddNode(label string) bool {
	if _, ok := g.byLabel[label]; ok {
		return false
	}
	g.byLabel[label] = len(g.Nodes)
	g.Nodes = append(g.Nodes, label)
	g.edges[label] = map[string]bool{}
	return true
}

func (g *Graph) HasNode(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}

// AddEdge adds an edge, creating the endpoints as needed.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.edges[from][to] = true
}

func (g *Graph) DelEdge(from, to string) {
	delete(g.edges[from], to)
}

func (g *Graph) HasEdge(from, to string) bool {
	return g.edges[from] != nil && g.edges[from][to]
}

// Edges returns the successors of a node in insertion order.
func (g *Graph) Edges(from string) []string {
	edges := make([]string, 0, len(g.edges[from]))
	for k := range g.edges[from] {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool { return g.byLabel[edges[i]] < g.byLabel[edges[j]] })
	return edges
}
