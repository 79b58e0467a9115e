package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/lang"
	"github.com/codegraphhq/codegraph/internal/parser"
)

// PythonExtractor handles .py files.
type PythonExtractor struct{}

// NewPythonExtractor returns the Python extractor.
func NewPythonExtractor() *PythonExtractor {
	return &PythonExtractor{}
}

// CanParse reports whether the file is a Python source file.
func (e *PythonExtractor) CanParse(filePath string) bool {
	l, ok := lang.LanguageForExtension(filepath.Ext(filePath))
	return ok && l == lang.Python
}

// Parse extracts declarations, pending edges, and imports.
func (e *PythonExtractor) Parse(filePath string, content []byte) (*graph.ParsedFile, error) {
	tree, err := parser.Parse(lang.Python, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	st := &pythonState{
		file:   filePath,
		source: content,
		result: graph.Empty(filePath, lang.Python),
	}
	st.walkDeclarations(tree.RootNode(), "")
	st.collectCalls(tree.RootNode())
	return st.result, nil
}

type pythonState struct {
	file   string
	source []byte
	result *graph.ParsedFile
	spans  []declSpan
}

func (st *pythonState) text(node *tree_sitter.Node) string {
	return parser.NodeText(node, st.source)
}

func (st *pythonState) addNode(kind graph.Kind, name string, node *tree_sitter.Node, attrs map[string]any) *graph.DeclarationNode {
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

func (st *pythonState) addPending(p *graph.PendingEdge) {
	st.result.PendingEdges = append(st.result.PendingEdges, p)
}

func (st *pythonState) walkDeclarations(node *tree_sitter.Node, parentClass string) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		// Decorators wrap the definition they annotate.
		if child.Kind() == "decorated_definition" {
			if def := child.ChildByFieldName("definition"); def != nil {
				child = def
			}
		}
		switch child.Kind() {
		case "function_definition":
			st.extractFunction(child, parentClass)

		case "class_definition":
			st.extractClass(child)

		case "expression_statement":
			if node.Kind() == "module" {
				st.extractModuleAssignment(child)
			}

		case "import_statement":
			st.extractImport(child)

		case "import_from_statement":
			st.extractImportFrom(child)

		default:
			st.walkDeclarations(child, parentClass)
		}
	}
}

func (st *pythonState) extractFunction(node *tree_sitter.Node, parentClass string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
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
	st.addNode(graph.KindFunction, name, node, attrs)

	if body := node.ChildByFieldName("body"); body != nil {
		st.walkDeclarations(body, "")
	}
}

func (st *pythonState) extractClass(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	className := st.text(nameNode)
	classDecl := st.addNode(graph.KindClass, className, node, nil)

	// Base classes: class Dog(Animal, Mammal). Supertypes resolve
	// structurally, so the target line stays 0.
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := uint(0); i < supers.NamedChildCount(); i++ {
			base := supers.NamedChild(i)
			if base == nil {
				continue
			}
			switch base.Kind() {
			case "identifier", "attribute":
				st.addPending(&graph.PendingEdge{
					SourceID:     classDecl.ID,
					TargetName:   lastSegment(st.text(base)),
					TargetKind:   graph.KindClass,
					Relationship: graph.RelExtends,
				})
			}
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		if member == nil {
			continue
		}
		if member.Kind() == "decorated_definition" {
			if def := member.ChildByFieldName("definition"); def != nil {
				member = def
			}
		}
		if member.Kind() != "function_definition" {
			continue
		}
		methodNameNode := member.ChildByFieldName("name")
		if methodNameNode == nil {
			continue
		}
		methodName := st.text(methodNameNode)
		attrs := map[string]any{"parent": className, "isMethod": true}
		if hasKeyword(member, "async") {
			attrs["async"] = true
		}
		method := st.addNode(graph.KindFunction, methodName, member, attrs)

		st.addPending(&graph.PendingEdge{
			SourceID:     classDecl.ID,
			TargetName:   methodName,
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelDefines,
			Line:         method.Line,
		})

		if mbody := member.ChildByFieldName("body"); mbody != nil {
			st.walkDeclarations(mbody, "")
		}
	}
}

// extractModuleAssignment records module-level simple assignments as
// variables. Tuple or destructuring targets collapse to a placeholder.
func (st *pythonState) extractModuleAssignment(stmt *tree_sitter.Node) {
	assign := parser.FindChildByKind(stmt, "assignment")
	if assign == nil {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil {
		return
	}
	switch left.Kind() {
	case "identifier":
		st.addNode(graph.KindVariable, st.text(left), assign, nil)
	case "pattern_list", "tuple_pattern", "list_pattern":
		st.addNode(graph.KindVariable, graph.PlaceholderDestructured, assign, nil)
	}
}

// extractImport handles "import os" and "import numpy as np".
func (st *pythonState) extractImport(node *tree_sitter.Node) {
	line, _ := position(node)
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			name := st.text(child)
			st.result.Imports = append(st.result.Imports, graph.ImportStatement{
				Local: lastSegment(name), Source: name, IsNamespace: true, Line: line,
			})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode == nil || aliasNode == nil {
				continue
			}
			st.result.Imports = append(st.result.Imports, graph.ImportStatement{
				Local: st.text(aliasNode), Source: st.text(nameNode), IsNamespace: true, Line: line,
			})
		}
	}
}

// extractImportFrom handles "from pkg.mod import a, b as c".
func (st *pythonState) extractImportFrom(node *tree_sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	module := st.text(moduleNode)
	line, _ := position(node)

	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Id() == moduleNode.Id() {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			st.result.Imports = append(st.result.Imports, graph.ImportStatement{
				Local: lastSegment(st.text(child)), Source: module, Line: line,
			})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode == nil || aliasNode == nil {
				continue
			}
			st.result.Imports = append(st.result.Imports, graph.ImportStatement{
				Local: st.text(aliasNode), Source: module, Line: line,
			})
		case "wildcard_import":
			st.result.Imports = append(st.result.Imports, graph.ImportStatement{
				Local: "*", Source: module, IsNamespace: true, Line: line,
			})
		}
	}
}

func (st *pythonState) collectCalls(root *tree_sitter.Node) {
	spec := lang.ForLanguage(lang.Python)
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		if lang.HasKind(spec.CallNodeTypes, node.Kind()) {
			st.classifyCall(node)
		}
		return true
	})
}

// classifyCall records one pending calls edge per call site. Instantiation
// (Dog()) is syntactically a call in Python, so it stays a calls edge; the
// resolver's global pass can still land on the class node.
func (st *pythonState) classifyCall(node *tree_sitter.Node) {
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

	case "attribute":
		object := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if object == nil || attr == nil {
			return
		}
		receiver := st.text(object)
		if receiver == "self" || receiver == "cls" {
			if parent, ok := source.Attributes["parent"].(string); ok {
				receiver = parent
			}
		}
		st.addPending(&graph.PendingEdge{
			SourceID:     source.ID,
			TargetName:   st.text(attr),
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Receiver:     receiver,
			Line:         line,
		})

	case "subscript":
		// obj[key]() is dynamic dispatch unless the key is a string literal.
		object := fn.ChildByFieldName("value")
		index := fn.ChildByFieldName("subscript")
		if object == nil || index == nil || index.Kind() != "string" {
			return
		}
		name := strings.Trim(st.text(index), `"'`)
		if name == "" {
			return
		}
		st.addPending(&graph.PendingEdge{
			SourceID:     source.ID,
			TargetName:   name,
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Receiver:     st.text(object),
			Line:         line,
		})
	}
}
