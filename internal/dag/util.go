package dag

// Roots returns the nodes without an incoming edge.
func (g *Graph) Roots() []string {
	roots := make([]string, 0, len(g.Nodes))

	for _, j := range g.Nodes {
		isRoot := true
		for _, i := range g.Nodes {
			if g.HasEdge(i, j) {
				isRoot = false
				break
			}
		}
		if isRoot {
			roots = append(roots, j)
		}
	}
	return roots
}

// Leaves returns the nodes without an outgoing edge.
func (g *Graph) Leaves() []string {
	leaves := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if len(g.edges[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// NumEdges returns the number of edges in the graph.
func (g *Graph) NumEdges() int {
	n := 0
	for _, e := range g.edges {
		n += len(e)
	}
	return n
}
