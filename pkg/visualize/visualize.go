// Package visualize renders window stage plans as diagrams.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/windowfields/internal/dag"
	"github.com/l7mp/windowfields/pkg/plan"
)

// Graph is the visualization graph of a plan.
type Graph struct {
	Name   string
	Stages []StageNode
	// Outputs are the output fields computed by the window stage.
	Outputs []OutputNode
	// Rules are the rewrite rules the optimizer applied.
	Rules []string
	// Flow is the data flow between the nodes, from the source to the sink.
	Flow *dag.Graph
}

// StageNode is a processing step of the plan.
type StageNode struct {
	Name  string
	Label string
	// Elided marks a step removed by the optimizer, shown for reference.
	Elided bool
}

// OutputNode is an output field of the window stage.
type OutputNode struct {
	Field       string
	Accumulator string
	Argument    string
	Frame       string
	Mode        string
}

const (
	sourceNode   = "source"
	sinkNode     = "sink"
	outputPrefix = "output:"
)

// BuildGraph constructs a visualization graph from a plan.
func BuildGraph(name string, p *plan.Plan) *Graph {
	g := &Graph{
		Name:    name,
		Stages:  []StageNode{},
		Outputs: make([]OutputNode, 0, len(p.Outputs)),
		Rules:   append([]string(nil), p.Rules...),
	}

	if p.Sort {
		g.Stages = append(g.Stages, StageNode{
			Name:  plan.SortStageName,
			Label: fmt.Sprintf("%s: %s", plan.SortStageName, sortKey(p)),
		})
	}

	switch {
	case p.PartitionBy != nil:
		g.Stages = append(g.Stages, StageNode{
			Name:  "partitionBy",
			Label: "partitionBy: " + p.PartitionBy.String(),
		})
	case p.ElidedPartitionBy != nil:
		g.Stages = append(g.Stages, StageNode{
			Name:   "partitionBy",
			Label:  "partitionBy: " + p.ElidedPartitionBy.String() + " (constant)",
			Elided: true,
		})
	}

	label := plan.WindowStageName
	if len(p.SortBy) > 0 {
		label += fmt.Sprintf(": sortBy %s", strings.Join(sortFields(p), ", "))
	}
	g.Stages = append(g.Stages, StageNode{Name: plan.WindowStageName, Label: label})

	for i := range p.Outputs {
		o := &p.Outputs[i]
		g.Outputs = append(g.Outputs, OutputNode{
			Field:       o.Field,
			Accumulator: o.Kind.String(),
			Argument:    o.Argument.String(),
			Frame:       o.Frame.String(),
			Mode:        o.Mode.String(),
		})
	}

	g.buildFlow()

	return g
}

// buildFlow chains the stages from the source, skipping elided ones, and fans out the window
// stage to the outputs.
func (g *Graph) buildFlow() {
	g.Flow = dag.New()
	g.Flow.AddNode(sourceNode)

	prev := sourceNode
	for _, stage := range g.Stages {
		g.Flow.AddEdge(prev, stage.Name)
		if !stage.Elided {
			prev = stage.Name
		}
	}

	if len(g.Outputs) == 0 {
		g.Flow.AddEdge(prev, sinkNode)
		return
	}

	for _, o := range g.Outputs {
		g.Flow.AddEdge(prev, outputPrefix+o.Field)
		g.Flow.AddEdge(outputPrefix+o.Field, sinkNode)
	}
}

func sortFields(p *plan.Plan) []string {
	ret := make([]string, len(p.SortBy))
	for i, k := range p.SortBy {
		ret[i] = fmt.Sprintf("%s:%d", k.Field, k.Order)
	}
	return ret
}

func sortKey(p *plan.Plan) string {
	keys := []string{}
	if p.PartitionBy != nil {
		keys = append(keys, p.PartitionBy.String())
	}
	keys = append(keys, sortFields(p)...)
	if len(keys) == 0 {
		return "<none>"
	}
	return strings.Join(keys, ", ")
}

// FormatOutput formats an output field for display.
func FormatOutput(o OutputNode) string {
	return fmt.Sprintf("%s: %s(%s) %s", o.Field, o.Accumulator, o.Argument, o.Frame)
}

type nodeKind int

const (
	nodeSource nodeKind = iota
	nodeSink
	nodeOutput
	nodeElided
	nodeStage
)

// node returns the kind and the label of a flow node.
func (g *Graph) node(name string) (nodeKind, string) {
	switch {
	case name == sourceNode:
		return nodeSource, "input"
	case name == sinkNode:
		return nodeSink, "output"
	case strings.HasPrefix(name, outputPrefix):
		for _, o := range g.Outputs {
			if outputPrefix+o.Field == name {
				return nodeOutput, FormatOutput(o)
			}
		}
		return nodeOutput, name
	}

	for _, s := range g.Stages {
		if s.Name == name {
			if s.Elided {
				return nodeElided, s.Label
			}
			return nodeStage, s.Label
		}
	}
	return nodeStage, name
}

// edgeLabel returns the label of the flow edge ending at a node, if any.
func (g *Graph) edgeLabel(to string) string {
	kind, _ := g.node(to)
	switch kind {
	case nodeElided:
		return "elided"
	case nodeOutput:
		for _, o := range g.Outputs {
			if outputPrefix+o.Field == to {
				return o.Mode
			}
		}
	}
	return ""
}

func (g *Graph) title() string {
	if len(g.Rules) > 0 {
		return fmt.Sprintf("%s (rules: %s)", g.Name, strings.Join(g.Rules, ", "))
	}
	return g.Name
}

// BuildDotGraph creates a dot.Graph from the visualization graph.
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR") // Left to right layout.
	graph.Attr("newrank", "true")
	graph.Attr("label", g.title())
	graph.Attr("labelloc", "t") // Label at top.
	graph.Attr("fontsize", "16")

	// Create the nodes.
	nodes := make(map[string]dot.Node, len(g.Flow.Nodes))
	for _, name := range g.Flow.Nodes {
		kind, label := g.node(name)
		node := graph.Node(name).Attr("label", label)
		switch kind {
		case nodeSource:
			node.Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen")
		case nodeSink:
			node.Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightyellow")
		case nodeOutput:
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightcyan").
				Attr("fontname", "helvetica")
		case nodeElided:
			node.Attr("shape", "box").
				Attr("style", "dashed,rounded").
				Attr("color", "gray").
				Attr("fontname", "helvetica")
		default:
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightblue").
				Attr("color", "darkblue").
				Attr("penwidth", "2").
				Attr("fontname", "helvetica")
		}
		nodes[name] = node
	}

	// Connect them along the flow.
	for _, from := range g.Flow.Nodes {
		for _, to := range g.Flow.Edges(from) {
			edge := graph.Edge(nodes[from], nodes[to])
			label := g.edgeLabel(to)
			if label == "" {
				continue
			}
			edge.Attr("label", label).
				Attr("fontname", "helvetica").
				Attr("fontsize", "10")
			if kind, _ := g.node(to); kind == nodeElided {
				edge.Attr("style", "dotted").Attr("color", "gray")
			}
		}
	}

	return graph
}

// BuildMermaidGraph creates a dot.Graph for Mermaid rendering. Node shapes and styles use the
// Mermaid vocabulary, the DOT attributes of BuildDotGraph are not understood by the renderer.
func BuildMermaidGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)

	nodes := make(map[string]dot.Node, len(g.Flow.Nodes))
	for _, name := range g.Flow.Nodes {
		kind, label := g.node(name)
		node := graph.Node(name).Attr("label", label)
		switch kind {
		case nodeSource:
			node.Attr("shape", dot.MermaidShapeStadium).Attr("style", "fill:lightgreen")
		case nodeSink:
			node.Attr("shape", dot.MermaidShapeStadium).Attr("style", "fill:lightyellow")
		case nodeOutput:
			node.Attr("shape", dot.MermaidShapeRound).Attr("style", "fill:lightcyan")
		case nodeElided:
			node.Attr("shape", dot.MermaidShapeRound).
				Attr("style", "stroke:gray,stroke-dasharray:5 5")
		default:
			node.Attr("shape", dot.MermaidShapeSubroutine).
				Attr("style", "fill:lightblue,stroke:darkblue,stroke-width:2px")
		}
		nodes[name] = node
	}

	for _, from := range g.Flow.Nodes {
		for _, to := range g.Flow.Edges(from) {
			edge := graph.Edge(nodes[from], nodes[to])
			if label := g.edgeLabel(to); label != "" {
				edge.Attr("label", label)
			}
		}
	}

	return graph
}
