package docs

import (
	"fmt"
	"strings"

	"github.com/loomworks/loom/internal/dag"
)

// RenderLineage renders the graph as an indented tree, roots first.
// Nodes with multiple parents appear under each of them; a node whose
// subtree was already printed is marked instead of repeated.
func RenderLineage(graph *dag.Graph) string {
	var sb strings.Builder
	printed := make(map[string]bool)

	var walk func(name string, depth int)
	walk = func(name string, depth int) {
		indent := strings.Repeat("  ", depth)
		node, _ := graph.Node(name)
		label := name
		if node != nil && node.Type != "" {
			label = fmt.Sprintf("%s (%s)", name, node.Type)
		}
		if printed[name] {
			sb.WriteString(indent + label + " ...\n")
			return
		}
		printed[name] = true
		sb.WriteString(indent + label + "\n")
		for _, child := range graph.Children(name) {
			walk(child, depth+1)
		}
	}

	for _, node := range graph.Nodes() {
		if len(graph.Parents(node.Name)) == 0 {
			walk(node.Name, 0)
		}
	}
	return sb.String()
}
