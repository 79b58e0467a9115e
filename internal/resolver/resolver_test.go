package resolver

import (
	"context"
	"testing"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/store"
)

func mustStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func decl(file string, kind graph.Kind, name string, line int, attrs map[string]any) *graph.DeclarationNode {
	return &graph.DeclarationNode{
		ID:         graph.NodeID(file, kind, name, line),
		Kind:       kind,
		Name:       name,
		File:       file,
		Line:       line,
		Attributes: attrs,
	}
}

func TestResolveSameFileBeatsImported(t *testing.T) {
	s := mustStore(t)

	caller := decl("a.ts", graph.KindFunction, "run", 1, nil)
	localFoo := decl("a.ts", graph.KindFunction, "foo", 5, nil)
	importedFoo := decl("b.ts", graph.KindFunction, "foo", 1, nil)
	if err := s.AddNodes([]*graph.DeclarationNode{caller, localFoo, importedFoo}); err != nil {
		t.Fatal(err)
	}

	pending := []*graph.PendingEdge{{
		SourceID:     caller.ID,
		TargetName:   "foo",
		TargetKind:   graph.KindFunction,
		Relationship: graph.RelCalls,
	}}
	importMaps := map[string]graph.ImportMap{
		"a.ts": {"foo": {Path: "b.ts"}},
	}

	edges, stats, err := New(s).Resolve(context.Background(), pending, importMaps)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("resolved %d edges, want 1", len(edges))
	}
	if edges[0].TargetID != localFoo.ID {
		t.Error("same-file declaration must beat the imported one")
	}
	if edges[0].Metadata["resolutionType"] != "same_file" {
		t.Errorf("resolutionType = %v, want same_file", edges[0].Metadata["resolutionType"])
	}
	if stats.ByStrategy[graph.StrategySameFile] != 1 {
		t.Error("stats should record one same_file resolution")
	}
}

func TestResolveImportedStrategy(t *testing.T) {
	s := mustStore(t)

	caller := decl("a.ts", graph.KindFunction, "run", 1, nil)
	target := decl("lib/util.ts", graph.KindFunction, "parse", 3, nil)
	decoy := decl("other.ts", graph.KindFunction, "parse", 9, nil)
	if err := s.AddNodes([]*graph.DeclarationNode{caller, decoy, target}); err != nil {
		t.Fatal(err)
	}

	pending := []*graph.PendingEdge{{
		SourceID:     caller.ID,
		TargetName:   "parse",
		TargetKind:   graph.KindFunction,
		Relationship: graph.RelCalls,
	}}
	importMaps := map[string]graph.ImportMap{
		"a.ts": {"parse": {Path: "lib/util.ts"}},
	}

	edges, _, err := New(s).Resolve(context.Background(), pending, importMaps)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].TargetID != target.ID {
		t.Fatal("edge should resolve into the imported file, not the decoy")
	}
	if edges[0].Metadata["resolutionType"] != "imported" {
		t.Errorf("resolutionType = %v, want imported", edges[0].Metadata["resolutionType"])
	}
}

func TestResolveInheritedMethod(t *testing.T) {
	s := mustStore(t)

	animal := decl("animal.ts", graph.KindClass, "Animal", 1, nil)
	speak := decl("animal.ts", graph.KindFunction, "speak", 2, map[string]any{"parent": "Animal"})
	dog := decl("dog.ts", graph.KindClass, "Dog", 3, nil)
	bark := decl("dog.ts", graph.KindFunction, "bark", 4, map[string]any{"parent": "Dog"})
	if err := s.AddNodes([]*graph.DeclarationNode{animal, speak, dog, bark}); err != nil {
		t.Fatal(err)
	}

	pending := []*graph.PendingEdge{
		{
			SourceID:     dog.ID,
			TargetName:   "Animal",
			TargetKind:   graph.KindClass,
			Relationship: graph.RelExtends,
		},
		{
			SourceID:     bark.ID,
			TargetName:   "speak",
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Receiver:     "Dog",
		},
	}

	edges, stats, err := New(s).Resolve(context.Background(), pending, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Resolved != 2 {
		t.Fatalf("resolved = %d, want 2", stats.Resolved)
	}
	var call *graph.ResolvedEdge
	for _, e := range edges {
		if e.Relationship == graph.RelCalls {
			call = e
		}
	}
	if call == nil {
		t.Fatal("call edge not resolved")
	}
	// Dog does not define speak; the walk must land on Animal.speak.
	if call.TargetID != speak.ID {
		t.Error("inherited method should resolve to the defining class's node")
	}
	if call.Metadata["resolutionType"] != "method_call" {
		t.Errorf("resolutionType = %v, want method_call", call.Metadata["resolutionType"])
	}
}

func TestResolveOverrideShadowsInherited(t *testing.T) {
	s := mustStore(t)

	animal := decl("zoo.py", graph.KindClass, "Animal", 1, nil)
	baseSpeak := decl("zoo.py", graph.KindFunction, "speak", 2, map[string]any{"parent": "Animal"})
	dog := decl("zoo.py", graph.KindClass, "Dog", 10, nil)
	dogSpeak := decl("zoo.py", graph.KindFunction, "speak", 11, map[string]any{"parent": "Dog"})
	caller := decl("main.py", graph.KindFunction, "main", 1, nil)
	nodes := []*graph.DeclarationNode{animal, baseSpeak, dog, dogSpeak, caller}
	if err := s.AddNodes(nodes); err != nil {
		t.Fatal(err)
	}

	pending := []*graph.PendingEdge{
		{SourceID: dog.ID, TargetName: "Animal", TargetKind: graph.KindClass, Relationship: graph.RelExtends},
		{SourceID: caller.ID, TargetName: "speak", TargetKind: graph.KindFunction, Relationship: graph.RelCalls, Receiver: "Dog"},
	}

	edges, _, err := New(s).Resolve(context.Background(), pending, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range edges {
		if e.Relationship == graph.RelCalls && e.TargetID != dogSpeak.ID {
			t.Error("the subclass's own method must win over the inherited one")
		}
	}
}

func TestResolveAmbiguityCounted(t *testing.T) {
	s := mustStore(t)

	caller := decl("main.go", graph.KindFunction, "main", 1, nil)
	helperA := decl("a.go", graph.KindFunction, "helper", 1, nil)
	helperB := decl("b.go", graph.KindFunction, "helper", 1, nil)
	if err := s.AddNodes([]*graph.DeclarationNode{caller, helperA, helperB}); err != nil {
		t.Fatal(err)
	}

	pending := []*graph.PendingEdge{{
		SourceID:     caller.ID,
		TargetName:   "helper",
		TargetKind:   graph.KindFunction,
		Relationship: graph.RelCalls,
	}}

	edges, stats, err := New(s).Resolve(context.Background(), pending, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("ambiguous reference must still resolve to exactly one edge, got %d", len(edges))
	}
	// First candidate in store insertion order wins.
	if edges[0].TargetID != helperA.ID {
		t.Error("tie-break should pick the first candidate in insertion order")
	}
	if stats.Ambiguous != 1 {
		t.Errorf("ambiguous = %d, want 1", stats.Ambiguous)
	}
	if edges[0].Metadata["resolutionType"] != "global" {
		t.Errorf("resolutionType = %v, want global", edges[0].Metadata["resolutionType"])
	}
}

func TestResolveUnresolvedDropped(t *testing.T) {
	s := mustStore(t)

	caller := decl("main.go", graph.KindFunction, "main", 1, nil)
	if err := s.AddNode(caller); err != nil {
		t.Fatal(err)
	}

	pending := []*graph.PendingEdge{{
		SourceID:     caller.ID,
		TargetName:   "doesNotExist",
		TargetKind:   graph.KindFunction,
		Relationship: graph.RelCalls,
	}}

	edges, stats, err := New(s).Resolve(context.Background(), pending, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 0 {
		t.Fatal("unknown target must not produce an edge")
	}
	if stats.Unresolved != 1 || stats.TotalEdges != 1 {
		t.Errorf("stats = %+v, want 1 unresolved of 1 total", stats)
	}
}

func TestResolveInheritanceCycleGuard(t *testing.T) {
	s := mustStore(t)

	a := decl("x.ts", graph.KindClass, "A", 1, nil)
	b := decl("x.ts", graph.KindClass, "B", 10, nil)
	caller := decl("x.ts", graph.KindFunction, "go", 20, map[string]any{"parent": "A"})
	if err := s.AddNodes([]*graph.DeclarationNode{a, b, caller}); err != nil {
		t.Fatal(err)
	}

	pending := []*graph.PendingEdge{
		{SourceID: a.ID, TargetName: "B", TargetKind: graph.KindClass, Relationship: graph.RelExtends},
		{SourceID: b.ID, TargetName: "A", TargetKind: graph.KindClass, Relationship: graph.RelExtends},
		{SourceID: caller.ID, TargetName: "missing", TargetKind: graph.KindFunction, Relationship: graph.RelCalls, Receiver: "A"},
	}

	// A cyclic hierarchy must terminate, not hang.
	_, stats, err := New(s).Resolve(context.Background(), pending, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Unresolved != 1 {
		t.Errorf("unresolved = %d, want 1", stats.Unresolved)
	}
}

func TestResolveSmallBatches(t *testing.T) {
	s := mustStore(t)

	caller := decl("m.go", graph.KindFunction, "main", 1, nil)
	target := decl("m.go", graph.KindFunction, "step", 5, nil)
	if err := s.AddNodes([]*graph.DeclarationNode{caller, target}); err != nil {
		t.Fatal(err)
	}

	var pending []*graph.PendingEdge
	for i := 0; i < 10; i++ {
		pending = append(pending, &graph.PendingEdge{
			SourceID:     caller.ID,
			TargetName:   "step",
			TargetKind:   graph.KindFunction,
			Relationship: graph.RelCalls,
			Line:         i + 2,
		})
	}

	edges, stats, err := New(s, WithBatchSize(3), WithWorkers(2)).
		Resolve(context.Background(), pending, nil)
	if err != nil {
		t.Fatal(err)
	}
	// One edge per call site survives; batching is throughput only.
	if len(edges) != 10 || stats.Resolved != 10 {
		t.Errorf("resolved %d edges, want 10", len(edges))
	}
}

func TestImportMapBuilderRelative(t *testing.T) {
	files := []*graph.ParsedFile{{
		Path: "src/app/main.ts",
		Imports: []graph.ImportStatement{
			{Local: "helper", Source: "./util"},
			{Local: "Shared", Source: "../shared/types"},
			{Local: "react", Source: "react", IsDefault: true},
		},
	}}

	maps := NewImportMapBuilder(nil).Build(files)
	m := maps["src/app/main.ts"]
	if m["helper"].Path != "src/app/util.ts" {
		t.Errorf("helper path = %q, want src/app/util.ts", m["helper"].Path)
	}
	if m["Shared"].Path != "src/shared/types.ts" {
		t.Errorf("Shared path = %q", m["Shared"].Path)
	}
	// Package imports pass through as opaque names.
	if m["react"].Path != "react" || !m["react"].IsDefault {
		t.Errorf("react = %+v", m["react"])
	}
}

func TestImportMapBuilderFileChecker(t *testing.T) {
	exists := map[string]bool{
		"src/util.js":      true,
		"src/pkg/index.ts": true,
		"src/tools/mod.py": true,
	}
	b := NewImportMapBuilder(func(p string) bool { return exists[p] })

	files := []*graph.ParsedFile{{
		Path: "src/main.js",
		Imports: []graph.ImportStatement{
			{Local: "util", Source: "./util"},
			{Local: "pkg", Source: "./pkg", IsNamespace: true},
			{Local: "mod", Source: "./tools/mod"},
		},
	}}

	m := b.Build(files)["src/main.js"]
	if m["util"].Path != "src/util.js" {
		t.Errorf("util path = %q, want the extension the checker confirms", m["util"].Path)
	}
	if m["pkg"].Path != "src/pkg/index.ts" {
		t.Errorf("pkg path = %q, want index-file fallback", m["pkg"].Path)
	}
	if m["mod"].Path != "src/tools/mod.py" {
		t.Errorf("mod path = %q", m["mod"].Path)
	}
}
