package extract

import (
	"fmt"
	"path/filepath"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/lang"
	"github.com/codegraphhq/codegraph/internal/parser"
)

// ScriptExtractor handles JavaScript, TypeScript, and TSX. The three share
// one grammar shape; TypeScript adds interfaces and implements clauses.
type ScriptExtractor struct{}

// NewScriptExtractor returns the JS/TS/TSX extractor.
func NewScriptExtractor() *ScriptExtractor {
	return &ScriptExtractor{}
}

var scriptLanguages = map[lang.Language]bool{
	lang.JavaScript: true,
	lang.TypeScript: true,
	lang.TSX:        true,
}

// CanParse reports whether the file extension maps to a script language.
func (e *ScriptExtractor) CanParse(filePath string) bool {
	l, ok := lang.LanguageForExtension(filepath.Ext(filePath))
	return ok && scriptLanguages[l]
}

// Parse extracts declarations, pending edges, and imports/exports.
func (e *ScriptExtractor) Parse(filePath string, content []byte) (*graph.ParsedFile, error) {
	language, _ := lang.LanguageForExtension(filepath.Ext(filePath))
	tree, err := parser.Parse(language, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	st := &scriptState{
		file:   filePath,
		source: content,
		result: graph.Empty(filePath, language),
	}
	st.walkDeclarations(tree.RootNode(), "")
	st.collectCalls(tree.RootNode())
	return st.result, nil
}

type scriptState struct {
	file   string
	source []byte
	result *graph.ParsedFile
	spans  []declSpan
}

func (st *scriptState) text(node *tree_sitter.Node) string {
	return parser.NodeText(node, st.source)
}

func (st *scriptState) addNode(kind graph.Kind, name string, node *tree_sitter.Node, attrs map[string]any) *graph.DeclarationNode {
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

func (st *scriptState) addPending(p *graph.PendingEdge) {
	st.result.PendingEdges = append(st.result.PendingEdges, p)
}

// walkDeclarations extracts declaration nodes recursively. parentClass is the
// enclosing class name for method definitions, empty at module level.
func (st *scriptState) walkDeclarations(node *tree_sitter.Node, parentClass string) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_declaration", "generator_function_declaration", "function_signature":
			st.extractFunction(child, parentClass)

		case "lexical_declaration", "variable_declaration":
			st.extractVariableDecl(child, node, parentClass)

		case "class_declaration", "abstract_class_declaration":
			st.extractClass(child)

		case "interface_declaration":
			st.extractInterface(child)

		case "import_statement":
			st.extractImport(child)

		case "export_statement":
			st.extractExport(child)
			st.walkDeclarations(child, parentClass)

		default:
			st.walkDeclarations(child, parentClass)
		}
	}
}

func (st *scriptState) extractFunction(node *tree_sitter.Node, parentClass string) *graph.DeclarationNode {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := st.text(nameNode)
	attrs := map[string]any{}
	if parentClass != "" {
		attrs["parent"] = parentClass
		attrs["isMethod"] = true
	}
	if hasKeyword(node, "async") {
		attrs["async"] = true
	}
	decl := st.addNode(graph.KindFunction, name, node, attrs)

	// Nested named declarations inside the body.
	if body := node.ChildByFieldName("body"); body != nil {
		st.walkDeclarations(body, "")
	}
	return decl
}

// extractVariableDecl handles const/let/var. Declarators whose value is a
// function expression become function declarations; plain module-level
// declarators become variables. Destructuring targets collapse to a fixed
// placeholder name.
func (st *scriptState) extractVariableDecl(node, parent *tree_sitter.Node, parentClass string) {
	topLevel := parent.Kind() == "program" || parent.Kind() == "export_statement"
	for i := uint(0); i < node.NamedChildCount(); i++ {
		declarator := node.NamedChild(i)
		if declarator == nil || declarator.Kind() != "variable_declarator" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		value := declarator.ChildByFieldName("value")

		if value != nil && (value.Kind() == "arrow_function" || value.Kind() == "function_expression") {
			if nameNode.Kind() == "identifier" {
				attrs := map[string]any{}
				if parentClass != "" {
					attrs["parent"] = parentClass
					attrs["isMethod"] = true
				}
				if hasKeyword(value, "async") {
					attrs["async"] = true
				}
				st.addNode(graph.KindFunction, st.text(nameNode), declarator, attrs)
			}
			if body := value.ChildByFieldName("body"); body != nil {
				st.walkDeclarations(body, "")
			}
			continue
		}

		if !topLevel {
			continue
		}
		name := ""
		switch nameNode.Kind() {
		case "identifier":
			name = st.text(nameNode)
		case "object_pattern", "array_pattern":
			name = graph.PlaceholderDestructured
		default:
			continue
		}
		st.addNode(graph.KindVariable, name, declarator, nil)
	}
}

func (st *scriptState) extractClass(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	className := st.text(nameNode)
	attrs := map[string]any{}
	if node.Kind() == "abstract_class_declaration" {
		attrs["abstract"] = true
	}
	classDecl := st.addNode(graph.KindClass, className, node, attrs)

	st.extractHeritage(node, classDecl)

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		if member == nil {
			continue
		}
		switch member.Kind() {
		case "method_definition":
			st.extractMethod(member, classDecl)
		case "public_field_definition", "field_definition":
			// Class fields holding arrow functions behave as methods.
			value := member.ChildByFieldName("value")
			nameNode := member.ChildByFieldName("name")
			if value != nil && nameNode != nil &&
				(value.Kind() == "arrow_function" || value.Kind() == "function_expression") {
				methodName := st.text(nameNode)
				method := st.addNode(graph.KindFunction, methodName, member, map[string]any{
					"parent": className, "isMethod": true,
				})
				st.addPending(&graph.PendingEdge{
					SourceID:     classDecl.ID,
					TargetName:   methodName,
					TargetKind:   graph.KindFunction,
					Relationship: graph.RelDefines,
					Line:         method.Line,
				})
			}
		}
	}
}

func (st *scriptState) extractMethod(node *tree_sitter.Node, classDecl *graph.DeclarationNode) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	// Computed member names ([expr]()) have no statically determinable name.
	if nameNode.Kind() == "computed_property_name" {
		return
	}
	methodName := st.text(nameNode)
	attrs := map[string]any{"parent": classDecl.Name, "isMethod": true}
	if hasKeyword(node, "async") {
		attrs["async"] = true
	}
	if hasKeyword(node, "static") {
		attrs["static"] = true
	}
	method := st.addNode(graph.KindFunction, methodName, node, attrs)

	st.addPending(&graph.PendingEdge{
		SourceID:     classDecl.ID,
		TargetName:   methodName,
		TargetKind:   graph.KindFunction,
		Relationship: graph.RelDefines,
		Line:         method.Line,
	})

	if body := node.ChildByFieldName("body"); body != nil {
		st.walkDeclarations(body, "")
	}
}

// extractHeritage emits extends/implements pending edges for a class.
// Supertypes are resolved structurally, not positionally: target line is 0.
func (st *scriptState) extractHeritage(node *tree_sitter.Node, classDecl *graph.DeclarationNode) {
	heritage := parser.FindChildByKind(node, "class_heritage")
	if heritage == nil {
		return
	}

	if extends := parser.FindDescendantByKind(heritage, "extends_clause"); extends != nil {
		for i := uint(0); i < extends.NamedChildCount(); i++ {
			t := extends.NamedChild(i)
			if t == nil || t.Kind() == "type_arguments" {
				continue
			}
			st.addPending(&graph.PendingEdge{
				SourceID:     classDecl.ID,
				TargetName:   lastSegment(st.text(t)),
				TargetKind:   graph.KindClass,
				Relationship: graph.RelExtends,
			})
		}
	} else {
		// JavaScript grammar: class_heritage wraps the expression directly.
		for i := uint(0); i < heritage.NamedChildCount(); i++ {
			t := heritage.NamedChild(i)
			if t == nil {
				continue
			}
			st.addPending(&graph.PendingEdge{
				SourceID:     classDecl.ID,
				TargetName:   lastSegment(st.text(t)),
				TargetKind:   graph.KindClass,
				Relationship: graph.RelExtends,
			})
		}
	}

	if impl := parser.FindDescendantByKind(heritage, "implements_clause"); impl != nil {
		for i := uint(0); i < impl.NamedChildCount(); i++ {
			t := impl.NamedChild(i)
			if t == nil || t.Kind() == "type_arguments" {
				continue
			}
			st.addPending(&graph.PendingEdge{
				SourceID:     classDecl.ID,
				TargetName:   lastSegment(st.text(t)),
				TargetKind:   graph.KindInterface,
				Relationship: graph.RelImplements,
			})
		}
	}
}

func (st *scriptState) extractInterface(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	decl := st.addNode(graph.KindInterface, st.text(nameNode), node, nil)

	if extends := parser.FindDescendantByKind(node, "extends_type_clause"); extends != nil {
		for i := uint(0); i < extends.NamedChildCount(); i++ {
			t := extends.NamedChild(i)
			if t == nil {
				continue
			}
			st.addPending(&graph.PendingEdge{
				SourceID:     decl.ID,
				TargetName:   lastSegment(st.text(t)),
				TargetKind:   graph.KindInterface,
				Relationship: graph.RelExtends,
			})
		}
	}
}

func (st *scriptState) extractImport(node *tree_sitter.Node) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	source := stripQuotes(st.text(sourceNode))
	line, _ := position(node)

	clause := parser.FindChildByKind(node, "import_clause")
	if clause == nil {
		// Bare side-effect import: import "./polyfill".
		return
	}
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		child := clause.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "identifier":
			st.result.Imports = append(st.result.Imports, graph.ImportStatement{
				Local: st.text(child), Source: source, IsDefault: true, Line: line,
			})
		case "namespace_import":
			if ident := parser.FindDescendantByKind(child, "identifier"); ident != nil {
				st.result.Imports = append(st.result.Imports, graph.ImportStatement{
					Local: st.text(ident), Source: source, IsNamespace: true, Line: line,
				})
			}
		case "named_imports":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				spec := child.NamedChild(j)
				if spec == nil || spec.Kind() != "import_specifier" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				local := st.text(nameNode)
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = st.text(alias)
				}
				st.result.Imports = append(st.result.Imports, graph.ImportStatement{
					Local: local, Source: source, Line: line,
				})
			}
		}
	}
}

func (st *scriptState) extractExport(node *tree_sitter.Node) {
	line, _ := position(node)
	isDefault := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == "default" {
			isDefault = true
		}
	}

	if decl := node.ChildByFieldName("declaration"); decl != nil {
		kind := graph.KindVariable
		switch decl.Kind() {
		case "function_declaration", "generator_function_declaration", "function_signature":
			kind = graph.KindFunction
		case "class_declaration", "abstract_class_declaration":
			kind = graph.KindClass
		case "interface_declaration":
			kind = graph.KindInterface
		}
		if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
			st.result.Exports = append(st.result.Exports, graph.ExportStatement{
				Name: st.text(nameNode), Kind: kind, IsDefault: isDefault, Line: line,
			})
		}
		return
	}

	if clause := parser.FindChildByKind(node, "export_clause"); clause != nil {
		for i := uint(0); i < clause.NamedChildCount(); i++ {
			spec := clause.NamedChild(i)
			if spec == nil || spec.Kind() != "export_specifier" {
				continue
			}
			nameNode := spec.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := st.text(nameNode)
			if alias := spec.ChildByFieldName("alias"); alias != nil {
				name = st.text(alias)
			}
			st.result.Exports = append(st.result.Exports, graph.ExportStatement{
				Name: name, IsDefault: isDefault, Line: line,
			})
		}
	}
}

// collectCalls walks the whole tree classifying call-like expressions and
// attributing each to the innermost enclosing extracted function.
func (st *scriptState) collectCalls(root *tree_sitter.Node) {
	spec := lang.ForLanguage(st.result.Language)
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		if !lang.HasKind(spec.CallNodeTypes, node.Kind()) {
			return true
		}
		if node.Kind() == "new_expression" {
			st.classifyNew(node)
		} else {
			st.classifyCall(node)
		}
		return true
	})
}

func (st *scriptState) classifyCall(node *tree_sitter.Node) {
	source := innermostFunction(st.spans, node.StartByte())
	if source == nil {
		return // module-level call, no source declaration
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

	case "member_expression":
		object := fn.ChildByFieldName("object")
		property := fn.ChildByFieldName("property")
		if object == nil || property == nil {
			return
		}
		// super.method() has no statically determinable receiver type here.
		if object.Kind() == "super" {
			return
		}
		st.addPending(&graph.PendingEdge{
			SourceID:     source.ID,
			TargetName:   st.text(property),
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Receiver:     st.receiverText(object, source),
			Line:         line,
		})

	case "subscript_expression":
		object := fn.ChildByFieldName("object")
		index := fn.ChildByFieldName("index")
		if object == nil || index == nil {
			return
		}
		// Only literal string keys are statically resolvable; dynamic
		// dispatch produces no edge.
		if index.Kind() != "string" {
			return
		}
		st.addPending(&graph.PendingEdge{
			SourceID:     source.ID,
			TargetName:   stripQuotes(st.text(index)),
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Receiver:     st.receiverText(object, source),
			Line:         line,
		})
	}
}

func (st *scriptState) classifyNew(node *tree_sitter.Node) {
	source := innermostFunction(st.spans, node.StartByte())
	if source == nil {
		return
	}
	ctor := node.ChildByFieldName("constructor")
	if ctor == nil {
		return
	}
	name := ""
	switch ctor.Kind() {
	case "identifier":
		name = st.text(ctor)
	case "member_expression":
		if property := ctor.ChildByFieldName("property"); property != nil {
			name = st.text(property)
		}
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

// receiverText renders the receiver expression. `this` is rewritten to the
// enclosing method's class name so the receiver lookup can find it.
func (st *scriptState) receiverText(object *tree_sitter.Node, source *graph.DeclarationNode) string {
	text := st.text(object)
	if text == "this" {
		if parent, ok := source.Attributes["parent"].(string); ok {
			return parent
		}
	}
	return text
}

func hasKeyword(node *tree_sitter.Node, keyword string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == keyword {
			return true
		}
	}
	return false
}
