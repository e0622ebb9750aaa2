package deps

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
)

// ToDOT converts g to Graphviz DOT. Satisfied dependencies are drawn dashed,
// the root bold; edge labels carry the declared range.
func ToDOT(g *Graph) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(nodeAttrs(*n), ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		from, _ := g.Node(e.From)
		to, _ := g.Node(e.To)
		if e.Range != "" {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", from.ID, to.ID, e.Range)
		} else {
			fmt.Fprintf(&buf, "  %q -> %q;\n", from.ID, to.ID)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(n Node) []string {
	attrs := []string{fmt.Sprintf("label=%q", n.ID+"\n"+n.Version)}
	switch n.State {
	case StateRoot:
		attrs = append(attrs, "penwidth=2")
	case StateSatisfied:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using the embedded Graphviz build.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
