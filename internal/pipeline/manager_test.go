package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/codegraphhq/codegraph/internal/discover"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/lang"
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

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func fileInfos(t *testing.T, dir string, rels ...string) []discover.FileInfo {
	t.Helper()
	var files []discover.FileInfo
	for _, rel := range rels {
		l, ok := lang.LanguageForExtension(filepath.Ext(rel))
		if !ok {
			t.Fatalf("no language for %s", rel)
		}
		files = append(files, discover.FileInfo{
			Path:     filepath.Join(dir, rel),
			RelPath:  rel,
			Language: l,
		})
	}
	return files
}

func TestProcessFilesBuildsGraph(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.ts"), `
import { helper } from "./util";

function run() {
	helper();
}
`)
	writeFile(t, filepath.Join(dir, "util.ts"), `
export function helper() {}
`)

	s := mustStore(t)
	m := New(context.Background(), s, Options{})

	stats, err := m.ProcessFiles(fileInfos(t, dir, "main.ts", "util.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 2 {
		t.Errorf("files = %d, want 2", stats.FilesProcessed)
	}
	if stats.NodesCreated == 0 || stats.EdgesCreated == 0 {
		t.Fatalf("graph empty: %+v", stats)
	}

	runs, err := s.FindNodes(graph.KindFunction, "run")
	if err != nil || len(runs) != 1 {
		t.Fatalf("run node: %v %d", err, len(runs))
	}
	edges, err := s.GetRelationships(runs[0].ID, store.DirectionOutbound)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("outbound edges from run = %d, want 1", len(edges))
	}
	if edges[0].Metadata["resolutionType"] != "imported" {
		t.Errorf("resolutionType = %v, want imported", edges[0].Metadata["resolutionType"])
	}
}

func TestProcessFilesBatchOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	// b.ts references a function declared in c.ts; nodes from both files
	// must be persisted before any edge resolves.
	writeFile(t, filepath.Join(dir, "b.ts"), `
import { target } from "./c";
function caller() { target(); }
`)
	writeFile(t, filepath.Join(dir, "c.ts"), `
export function target() {}
`)
	writeFile(t, filepath.Join(dir, "a.ts"), `
export function unrelated() {}
`)

	s := mustStore(t)
	m := New(context.Background(), s, Options{NodeBatchSize: 1})

	stats, err := m.ProcessFiles(fileInfos(t, dir, "b.ts", "c.ts", "a.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Resolution.Resolved == 0 {
		t.Fatal("cross-file call did not resolve")
	}
	callers, _ := s.FindNodes(graph.KindFunction, "caller")
	edges, _ := s.GetRelationships(callers[0].ID, store.DirectionOutbound)
	if len(edges) != 1 {
		t.Fatalf("caller -> target edge missing, got %d edges", len(edges))
	}
}

func TestProcessFilesIdempotentReingestion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.py"), `
def top():
    worker()

def worker():
    pass
`)

	s := mustStore(t)
	m := New(context.Background(), s, Options{})
	files := fileInfos(t, dir, "app.py")

	if _, err := m.ProcessFiles(files); err != nil {
		t.Fatal(err)
	}
	nodesFirst, _ := s.CountNodes()
	edgesFirst, _ := s.CountEdges()

	if _, err := m.ProcessFiles(files); err != nil {
		t.Fatal(err)
	}
	nodesSecond, _ := s.CountNodes()
	edgesSecond, _ := s.CountEdges()

	if nodesFirst != nodesSecond || edgesFirst != edgesSecond {
		t.Errorf("re-ingestion changed counts: nodes %d->%d edges %d->%d",
			nodesFirst, nodesSecond, edgesFirst, edgesSecond)
	}
}

func TestProcessFilesUnreadableFileCounted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ok.go"), "package a\n\nfunc A() {}\n")

	files := fileInfos(t, dir, "ok.go")
	files = append(files, discover.FileInfo{
		Path:     filepath.Join(dir, "missing.go"),
		RelPath:  "missing.go",
		Language: lang.Go,
	})

	s := mustStore(t)
	m := New(context.Background(), s, Options{})

	stats, err := m.ProcessFiles(files)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", stats.Errors)
	}
	if stats.FilesProcessed != 1 {
		t.Errorf("files processed = %d, want 1", stats.FilesProcessed)
	}
}

// countingGenerator produces fixed vectors and records how many inputs it saw.
type countingGenerator struct {
	mu     sync.Mutex
	inputs int
	calls  int
}

func (g *countingGenerator) Embed(_ context.Context, texts []string) ([][]float32, error) {
	g.mu.Lock()
	g.inputs += len(texts)
	g.calls++
	g.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestProcessFilesEmbeddingDedup(t *testing.T) {
	dir := t.TempDir()
	// Two files declaring functions with distinct names plus one exact
	// duplicate declaration text across runs of the same file set.
	writeFile(t, filepath.Join(dir, "x.py"), "def alpha():\n    pass\n")

	s := mustStore(t)
	gen := &countingGenerator{}
	m := New(context.Background(), s, Options{Embedder: gen})
	files := fileInfos(t, dir, "x.py")

	if _, err := m.ProcessFiles(files); err != nil {
		t.Fatal(err)
	}
	firstInputs := gen.inputs

	// Same content again: every request hits the persistent cache.
	stats, err := m.ProcessFiles(files)
	if err != nil {
		t.Fatal(err)
	}
	if gen.inputs != firstInputs {
		t.Errorf("second run sent %d new inputs, want 0", gen.inputs-firstInputs)
	}
	if stats.APICallsSaved == 0 {
		t.Error("cache hits must count as saved API calls")
	}

	// The persisted node carries the vector.
	nodes, _ := s.FindNodes(graph.KindFunction, "alpha")
	if len(nodes) != 1 || len(nodes[0].NameEmbedding) == 0 {
		t.Error("embedding not attached to node")
	}
}

func TestRunIncremental(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a\n\nfunc One() {}\n")
	writeFile(t, filepath.Join(dir, "b.go"), "package a\n\nfunc Two() {}\n")

	s := mustStore(t)
	m := New(context.Background(), s, Options{ChangedOnly: true})

	stats, err := m.Run(dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 2 {
		t.Fatalf("first run processed %d files, want 2", stats.FilesProcessed)
	}

	// Nothing changed: nothing to process.
	stats, err = m.Run(dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 0 {
		t.Errorf("unchanged repo reprocessed %d files", stats.FilesProcessed)
	}

	// Touch one file: only it is reprocessed.
	writeFile(t, filepath.Join(dir, "b.go"), "package a\n\nfunc Two() {}\n\nfunc Three() {}\n")
	stats, err = m.Run(dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 1 {
		t.Errorf("changed-only run processed %d files, want 1", stats.FilesProcessed)
	}

	// Deleted files drop out of the graph.
	if err := os.Remove(filepath.Join(dir, "a.go")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(dir); err != nil {
		t.Fatal(err)
	}
	ones, _ := s.FindNodes(graph.KindFunction, "One")
	if len(ones) != 0 {
		t.Error("nodes from deleted files should be cleared")
	}
}

func TestHashContentStable(t *testing.T) {
	if HashContent([]byte("abc")) != HashContent([]byte("abc")) {
		t.Fatal("hash must be deterministic")
	}
	if HashContent([]byte("abc")) == HashContent([]byte("abd")) {
		t.Fatal("different content must differ")
	}
}
