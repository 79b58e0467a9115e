package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func relPaths(files []FileInfo) map[string]bool {
	out := make(map[string]bool, len(files))
	for _, f := range files {
		out[f.RelPath] = true
	}
	return out
}

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "main.go"), "package main\n")
	write(t, filepath.Join(dir, "app.py"), "def main(): pass\n")
	write(t, filepath.Join(dir, "notes.txt"), "not source\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	got := relPaths(files)
	if !got["main.go"] || !got["app.py"] {
		t.Fatalf("missing source files: %v", got)
	}
	if got["notes.txt"] {
		t.Error("unsupported extension should be skipped")
	}
	for _, f := range files {
		if f.Path == "" || f.Language == "" {
			t.Errorf("incomplete FileInfo: %+v", f)
		}
	}
}

func TestDiscoverSkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "src", "ok.ts"), "export {}\n")
	write(t, filepath.Join(dir, "node_modules", "dep", "index.js"), "x\n")
	write(t, filepath.Join(dir, "__pycache__", "m.py"), "x\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := relPaths(files)
	if !got["src/ok.ts"] {
		t.Error("src/ok.ts should be discovered")
	}
	if len(files) != 1 {
		t.Errorf("ignored directories leaked: %v", got)
	}
}

func TestDiscoverHonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, ".gitignore"), "generated/\n*.gen.ts\n")
	write(t, filepath.Join(dir, "app.ts"), "export {}\n")
	write(t, filepath.Join(dir, "api.gen.ts"), "export {}\n")
	write(t, filepath.Join(dir, "generated", "schema.ts"), "export {}\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := relPaths(files)
	if !got["app.ts"] {
		t.Error("app.ts should survive")
	}
	if got["api.gen.ts"] || got["generated/schema.ts"] {
		t.Errorf("gitignored files leaked: %v", got)
	}
}

func TestDiscoverHonorsCgrignore(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, ".cgrignore"), "fixtures/\n")
	write(t, filepath.Join(dir, "main.go"), "package main\n")
	write(t, filepath.Join(dir, "fixtures", "sample.go"), "package fixtures\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := relPaths(files)
	if got["fixtures/sample.go"] {
		t.Error("cgrignore patterns should apply")
	}
	if !got["main.go"] {
		t.Error("main.go should survive")
	}
}

func TestDiscoverMaxBytes(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "small.go"), "package a\n")
	write(t, filepath.Join(dir, "big.go"), "package a\n//"+string(make([]byte, 4096))+"\n")

	files, err := Discover(context.Background(), dir, &Options{MaxBytes: 1024})
	if err != nil {
		t.Fatal(err)
	}
	got := relPaths(files)
	if !got["small.go"] || got["big.go"] {
		t.Errorf("size limit not applied: %v", got)
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "main.go"), "package main\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
