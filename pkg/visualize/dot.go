package visualize

import (
	"fmt"
	"strings"
)

// Generator renders a plan graph in some diagram format.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator for a format: "dot" or "mermaid".
func NewGenerator(format string) (Generator, error) {
	switch strings.ToLower(format) {
	case "dot", "graphviz":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown diagram format %q: expected \"dot\" or \"mermaid\"", format)
	}
}

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}
