package extract

import (
	"fmt"
	"path/filepath"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/lang"
	"github.com/codegraphhq/codegraph/internal/parser"
)

// GoExtractor handles .go files. Structs map to class nodes, interfaces to
// interface nodes, and methods carry their receiver type as parent.
type GoExtractor struct{}

// NewGoExtractor returns the Go extractor.
func NewGoExtractor() *GoExtractor {
	return &GoExtractor{}
}

// CanParse reports whether the file is a Go source file.
func (e *GoExtractor) CanParse(filePath string) bool {
	l, ok := lang.LanguageForExtension(filepath.Ext(filePath))
	return ok && l == lang.Go
}

// Parse extracts declarations, pending edges, and imports.
func (e *GoExtractor) Parse(filePath string, content []byte) (*graph.ParsedFile, error) {
	tree, err := parser.Parse(lang.Go, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	st := &goState{
		file:   filePath,
		source: content,
		result: graph.Empty(filePath, lang.Go),
		types:  map[string]*graph.DeclarationNode{},
	}
	st.walkDeclarations(tree.RootNode())
	st.linkMethods()
	st.collectCalls(tree.RootNode())
	return st.result, nil
}

type goMethod struct {
	decl         *graph.DeclarationNode
	receiverType string
}

type goState struct {
	file    string
	source  []byte
	result  *graph.ParsedFile
	spans   []declSpan
	types   map[string]*graph.DeclarationNode
	methods []goMethod
}

func (st *goState) text(node *tree_sitter.Node) string {
	return parser.NodeText(node, st.source)
}

func (st *goState) addNode(kind graph.Kind, name string, node *tree_sitter.Node, attrs map[string]any) *graph.DeclarationNode {
	line, col := position(node)
	decl := &graph.DeclarationNode{
		ID:         graph.NodeID(st.file, kind, name, line),
		Kind:       kind,
		Name:       name,
		File:       st.file,
		Line:       line,
		Column:     col,
		Attributes: attrs,
	}
	st.result.Nodes = append(st.result.Nodes, decl)
	st.spans = append(st.spans, declSpan{node: decl, start: node.StartByte(), end: node.EndByte()})
	return decl
}

func (st *goState) addPending(p *graph.PendingEdge) {
	st.result.PendingEdges = append(st.result.PendingEdges, p)
}

func (st *goState) walkDeclarations(root *tree_sitter.Node) {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_declaration":
			st.extractFunction(child)
		case "method_declaration":
			st.extractMethod(child)
		case "type_declaration":
			st.extractTypes(child)
		case "var_declaration", "const_declaration":
			st.extractVars(child)
		case "import_declaration":
			st.extractImports(child)
		}
	}
}

func (st *goState) extractFunction(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	st.addNode(graph.KindFunction, st.text(nameNode), node, nil)
}

func (st *goState) extractMethod(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	recvType, recvVar := st.receiverInfo(node.ChildByFieldName("receiver"))
	attrs := map[string]any{"isMethod": true}
	if recvType != "" {
		attrs["parent"] = recvType
	}
	if recvVar != "" {
		attrs["receiverVar"] = recvVar
	}
	decl := st.addNode(graph.KindFunction, st.text(nameNode), node, attrs)
	if recvType != "" {
		st.methods = append(st.methods, goMethod{decl: decl, receiverType: recvType})
	}
}

// receiverInfo returns the receiver's type name and bound variable name,
// e.g. (s *Server) -> ("Server", "s").
func (st *goState) receiverInfo(receiver *tree_sitter.Node) (typeName, varName string) {
	if receiver == nil {
		return "", ""
	}
	param := parser.FindDescendantByKind(receiver, "parameter_declaration")
	if param == nil {
		return "", ""
	}
	if nameNode := param.ChildByFieldName("name"); nameNode != nil {
		varName = st.text(nameNode)
	}
	typeNode := param.ChildByFieldName("type")
	if typeNode == nil {
		return "", varName
	}
	switch typeNode.Kind() {
	case "pointer_type":
		if inner := parser.FindDescendantByKind(typeNode, "type_identifier"); inner != nil {
			typeName = st.text(inner)
		}
	case "type_identifier":
		typeName = st.text(typeNode)
	case "generic_type":
		if inner := typeNode.ChildByFieldName("type"); inner != nil {
			typeName = st.text(inner)
		}
	}
	return typeName, varName
}

func (st *goState) extractTypes(node *tree_sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		spec := node.NamedChild(i)
		if spec == nil {
			continue
		}
		if spec.Kind() != "type_spec" && spec.Kind() != "type_alias" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil {
			continue
		}
		name := st.text(nameNode)
		kind := graph.KindClass
		if typeNode != nil && typeNode.Kind() == "interface_type" {
			kind = graph.KindInterface
		}
		decl := st.addNode(kind, name, spec, nil)
		st.types[name] = decl

		// Embedded struct fields and interface elements act as extends.
		if typeNode != nil {
			st.extractEmbedded(typeNode, decl, kind)
		}
	}
}

// extractEmbedded emits extends edges for embedded fields in structs and
// embedded interfaces in interface types.
func (st *goState) extractEmbedded(typeNode *tree_sitter.Node, decl *graph.DeclarationNode, kind graph.Kind) {
	switch typeNode.Kind() {
	case "struct_type":
		body := parser.FindDescendantByKind(typeNode, "field_declaration_list")
		if body == nil {
			return
		}
		for i := uint(0); i < body.NamedChildCount(); i++ {
			field := body.NamedChild(i)
			if field == nil || field.Kind() != "field_declaration" {
				continue
			}
			// Embedded field: no name, just a type.
			if field.ChildByFieldName("name") != nil {
				continue
			}
			typ := field.ChildByFieldName("type")
			if typ == nil {
				continue
			}
			if inner := parser.FindDescendantByKind(typ, "type_identifier"); inner != nil {
				st.addPending(&graph.PendingEdge{
					SourceID:     decl.ID,
					TargetName:   st.text(inner),
					TargetKind:   graph.KindClass,
					Relationship: graph.RelExtends,
				})
			}
		}
	case "interface_type":
		for i := uint(0); i < typeNode.NamedChildCount(); i++ {
			elem := typeNode.NamedChild(i)
			if elem == nil || elem.Kind() != "type_elem" {
				continue
			}
			if inner := parser.FindDescendantByKind(elem, "type_identifier"); inner != nil {
				st.addPending(&graph.PendingEdge{
					SourceID:     decl.ID,
					TargetName:   st.text(inner),
					TargetKind:   graph.KindInterface,
					Relationship: graph.RelExtends,
				})
			}
		}
	}
}

func (st *goState) extractVars(node *tree_sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		spec := node.NamedChild(i)
		if spec == nil {
			continue
		}
		if spec.Kind() != "var_spec" && spec.Kind() != "const_spec" {
			continue
		}
		for j := uint(0); j < spec.NamedChildCount(); j++ {
			ident := spec.NamedChild(j)
			if ident == nil || ident.Kind() != "identifier" {
				continue
			}
			st.addNode(graph.KindVariable, st.text(ident), spec, nil)
		}
	}
}

func (st *goState) extractImports(node *tree_sitter.Node) {
	parser.Walk(node, func(n *tree_sitter.Node) bool {
		if n.Kind() != "import_spec" {
			return true
		}
		line, _ := position(n)
		pathNode := n.ChildByFieldName("path")
		if pathNode == nil {
			return false
		}
		source := stripQuotes(st.text(pathNode))
		local := lastSlashSegment(source)
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			local = st.text(nameNode)
		}
		if local == "_" || local == "." {
			return false
		}
		st.result.Imports = append(st.result.Imports, graph.ImportStatement{
			Local: local, Source: source, IsNamespace: true, Line: line,
		})
		return false
	})
}

// linkMethods emits defines edges from receiver types to their methods, for
// receiver types declared in the same file.
func (st *goState) linkMethods() {
	for _, m := range st.methods {
		owner, ok := st.types[m.receiverType]
		if !ok {
			continue
		}
		st.addPending(&graph.PendingEdge{
			SourceID:     owner.ID,
			TargetName:   m.decl.Name,
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelDefines,
			Line:         m.decl.Line,
		})
	}
}

func (st *goState) collectCalls(root *tree_sitter.Node) {
	spec := lang.ForLanguage(lang.Go)
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		switch {
		case lang.HasKind(spec.CallNodeTypes, node.Kind()):
			st.classifyCall(node)
		case node.Kind() == "composite_literal":
			st.classifyComposite(node)
		}
		return true
	})
}

func (st *goState) classifyCall(node *tree_sitter.Node) {
	source := innermostFunction(st.spans, node.StartByte())
	if source == nil {
		return
	}
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	line, _ := position(node)

	switch fn.Kind() {
	case "identifier":
		st.addPending(&graph.PendingEdge{
			SourceID:     source.ID,
			TargetName:   st.text(fn),
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Line:         line,
		})

	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")
		if operand == nil || field == nil {
			return
		}
		receiver := st.text(operand)
		// Calls through the method's receiver variable resolve against
		// the receiver type.
		if rv, ok := source.Attributes["receiverVar"].(string); ok && receiver == rv {
			if parent, ok := source.Attributes["parent"].(string); ok {
				receiver = parent
			}
		}
		st.addPending(&graph.PendingEdge{
			SourceID:     source.ID,
			TargetName:   st.text(field),
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Receiver:     receiver,
			Line:         line,
		})
	}
}

// classifyComposite records struct literal construction as a uses edge.
func (st *goState) classifyComposite(node *tree_sitter.Node) {
	source := innermostFunction(st.spans, node.StartByte())
	if source == nil {
		return
	}
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	name := ""
	switch typeNode.Kind() {
	case "type_identifier":
		name = st.text(typeNode)
	case "qualified_type":
		if n := typeNode.ChildByFieldName("name"); n != nil {
			name = st.text(n)
		}
	default:
		// Slice, map, and array literals are not type construction edges.
		return
	}
	if name == "" {
		return
	}
	line, _ := position(node)
	st.addPending(&graph.PendingEdge{
		SourceID:     source.ID,
		TargetName:   name,
		TargetKind:   graph.KindClass,
		Relationship: graph.RelUses,
		Line:         line,
	})
}

// lastSlashSegment returns the final path element of an import path.
func lastSlashSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
