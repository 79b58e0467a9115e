package extract

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraphhq/codegraph/internal/graph"
)

// declSpan ties an extracted declaration to its byte range so call sites can
// be attributed to the innermost enclosing function.
type declSpan struct {
	node  *graph.DeclarationNode
	start uint
	end   uint
}

// position returns the 1-based line and 0-based column of a node.
func position(node *tree_sitter.Node) (line, column int) {
	p := node.StartPosition()
	return int(p.Row) + 1, int(p.Column)
}

// innermostFunction returns the function declaration whose byte range most
// tightly encloses offset, or nil when the offset is at module level.
func innermostFunction(spans []declSpan, offset uint) *graph.DeclarationNode {
	var best *graph.DeclarationNode
	bestSize := ^uint(0)
	for _, s := range spans {
		if s.node.Kind != graph.KindFunction {
			continue
		}
		if offset < s.start || offset >= s.end {
			continue
		}
		if size := s.end - s.start; size < bestSize {
			bestSize = size
			best = s.node
		}
	}
	return best
}

// lastSegment returns the trailing identifier of a dotted expression text,
// e.g. "React.Component" -> "Component".
func lastSegment(text string) string {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == '.' {
			return text[i+1:]
		}
	}
	return text
}

// stripQuotes removes surrounding quotes from a string literal.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
