package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// MermaidGenerator generates Mermaid flowcharts wrapped in a markdown code block.
type MermaidGenerator struct{}

func (m *MermaidGenerator) Generate(g *Graph) string {
	mermaid := dot.MermaidFlowchart(BuildMermaidGraph(g), dot.MermaidLeftToRight)
	return fmt.Sprintf("```mermaid\n---\ntitle: %s\n---\n%s```\n", g.title(), mermaid)
}
