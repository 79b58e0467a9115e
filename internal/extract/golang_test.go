package extract

import (
	"testing"

	"github.com/codegraphhq/codegraph/internal/graph"
)

func parseGo(t *testing.T, src string) *graph.ParsedFile {
	t.Helper()
	e := NewGoExtractor()
	parsed, err := e.Parse("svc.go", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return parsed
}

func TestGoTypesAndMethods(t *testing.T) {
	parsed := parseGo(t, `package svc

type Handler interface {
	Handle() error
}

type Server struct {
	addr string
}

func (s *Server) Run() error {
	return s.listen()
}

func (s *Server) listen() error { return nil }
`)

	if findNode(parsed, graph.KindInterface, "Handler") == nil {
		t.Fatal("Handler interface not extracted")
	}
	server := findNode(parsed, graph.KindClass, "Server")
	if server == nil {
		t.Fatal("Server struct not extracted")
	}
	run := findNode(parsed, graph.KindFunction, "Run")
	if run == nil || run.Attributes["parent"] != "Server" {
		t.Fatal("Run should be a method of Server")
	}

	// Same-file receiver types get defines edges.
	defines := 0
	for _, p := range parsed.PendingEdges {
		if p.Relationship == graph.RelDefines && p.SourceID == server.ID {
			defines++
		}
	}
	if defines != 2 {
		t.Errorf("defines edges = %d, want 2", defines)
	}

	// s.listen() resolves the receiver variable to the receiver type.
	call := findPending(parsed, graph.RelCalls, "listen")
	if call == nil {
		t.Fatal("s.listen() call edge missing")
	}
	if call.Receiver != "Server" {
		t.Errorf("receiver = %q, want Server", call.Receiver)
	}
}

func TestGoEmbeddedStruct(t *testing.T) {
	parsed := parseGo(t, `package svc

type Base struct{}

type Derived struct {
	Base
	name string
}
`)
	derived := findNode(parsed, graph.KindClass, "Derived")
	ext := findPending(parsed, graph.RelExtends, "Base")
	if ext == nil {
		t.Fatal("embedded field should produce an extends edge")
	}
	if ext.SourceID != derived.ID {
		t.Error("extends edge source should be Derived")
	}
}

func TestGoCompositeLiteral(t *testing.T) {
	parsed := parseGo(t, `package svc

type Config struct{ Addr string }

func defaults() Config {
	xs := []int{1, 2}
	_ = xs
	return Config{Addr: ":8080"}
}
`)
	uses := findPending(parsed, graph.RelUses, "Config")
	if uses == nil {
		t.Fatal("Config{} literal should produce a uses edge")
	}
	for _, p := range parsed.PendingEdges {
		if p.Relationship == graph.RelUses && p.TargetName != "Config" {
			t.Errorf("unexpected uses edge to %q; slice literals are not construction", p.TargetName)
		}
	}
}

func TestGoImportsAndVars(t *testing.T) {
	parsed := parseGo(t, `package svc

import (
	"fmt"
	stdlog "log"
	_ "embed"
)

var Debug = false

const MaxRetries = 3
`)
	byLocal := map[string]graph.ImportStatement{}
	for _, imp := range parsed.Imports {
		byLocal[imp.Local] = imp
	}
	if imp, ok := byLocal["fmt"]; !ok || imp.Source != "fmt" {
		t.Error("fmt import missing")
	}
	if imp, ok := byLocal["stdlog"]; !ok || imp.Source != "log" {
		t.Error("aliased import stdlog missing")
	}
	if _, ok := byLocal["_"]; ok {
		t.Error("blank imports must be skipped")
	}
	if findNode(parsed, graph.KindVariable, "Debug") == nil {
		t.Error("package var Debug not extracted")
	}
	if findNode(parsed, graph.KindVariable, "MaxRetries") == nil {
		t.Error("package const MaxRetries not extracted")
	}
}

func TestGoNodeIDStableAcrossReparse(t *testing.T) {
	src := `package svc

func Work() {}
`
	a := parseGo(t, src)
	b := parseGo(t, src)
	if a.Nodes[0].ID != b.Nodes[0].ID {
		t.Error("identical source must produce identical node IDs")
	}
}
