package depgraph

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/quickmod/pkg/quickmod"
)

// Options configures DOT export.
type Options struct {
	// Detailed adds the display name and type to node labels.
	Detailed bool
}

// ToDOT converts a graph to Graphviz DOT format.
//
// Stubs are drawn dashed and grey; edges inside a reference cycle are red.
func ToDOT(g *Graph, opts Options) string {
	inCycle := make(map[quickmod.UID]int)
	for i, c := range g.Cycles() {
		for _, id := range c {
			inCycle[id] = i + 1
		}
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		fmt.Fprintf(&buf, "  %q [%s];\n", string(n.ID), strings.Join(fmtAttrs(*n, opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		if c := inCycle[e.From]; c != 0 && c == inCycle[e.To] {
			fmt.Fprintf(&buf, "  %q -> %q [color=red];\n", string(e.From), string(e.To))
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", string(e.From), string(e.To))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtAttrs(n Node, detailed bool) []string {
	label := string(n.ID)
	if detailed {
		var parts []string
		if n.Name != "" && n.Name != label {
			parts = append(parts, n.Name)
		}
		if n.Type != "" {
			parts = append(parts, string(n.Type))
		}
		if len(parts) > 0 {
			label += "\n" + strings.Join(parts, "\n")
		}
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if n.Stub {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey", "fontcolor=black")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
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
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the Graphviz <svg> header with one whose viewBox
// starts at the origin and whose size matches it.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
