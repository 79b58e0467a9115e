package resolver

import (
	"path"
	"strings"

	"github.com/codegraphhq/codegraph/internal/graph"
)

// FileChecker reports whether a candidate resolved path exists. Injecting one
// makes relative-import resolution exact; without one the first candidate
// extension is assumed.
type FileChecker func(relPath string) bool

// candidateExtensions is the order tried when a relative specifier omits the
// extension. Directory imports fall back to index files afterwards.
var candidateExtensions = []string{
	".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".py", ".go",
}

var indexFiles = []string{
	"/index.ts", "/index.js", "/__init__.py",
}

// ImportMapBuilder turns per-file import statements into per-file symbol
// lookup tables consumed by edge resolution.
type ImportMapBuilder struct {
	exists FileChecker
}

// NewImportMapBuilder returns a builder. checker may be nil.
func NewImportMapBuilder(checker FileChecker) *ImportMapBuilder {
	return &ImportMapBuilder{exists: checker}
}

// Build produces one ImportMap per file. The result is immutable for the
// duration of a resolution run.
func (b *ImportMapBuilder) Build(files []*graph.ParsedFile) map[string]graph.ImportMap {
	maps := make(map[string]graph.ImportMap, len(files))
	for _, f := range files {
		if len(f.Imports) == 0 {
			continue
		}
		m := make(graph.ImportMap, len(f.Imports))
		for _, imp := range f.Imports {
			m[imp.Local] = graph.ImportTarget{
				Path:        b.resolveSpecifier(f.Path, imp.Source),
				IsDefault:   imp.IsDefault,
				IsNamespace: imp.IsNamespace,
			}
		}
		maps[f.Path] = m
	}
	return maps
}

// resolveSpecifier resolves relative specifiers against the importing file's
// directory. Package imports pass through as opaque module names.
func (b *ImportMapBuilder) resolveSpecifier(fromFile, specifier string) string {
	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") {
		return specifier
	}
	base := path.Join(path.Dir(fromFile), specifier)

	// An explicit extension is taken at face value.
	if ext := path.Ext(base); ext != "" && isKnownExtension(ext) {
		return base
	}

	for _, ext := range candidateExtensions {
		candidate := base + ext
		if b.exists == nil {
			return candidate // assume the first candidate
		}
		if b.exists(candidate) {
			return candidate
		}
	}
	for _, idx := range indexFiles {
		candidate := base + idx
		if b.exists(candidate) {
			return candidate
		}
	}
	// Nothing matched; keep the joined path so the miss is visible.
	return base
}

func isKnownExtension(ext string) bool {
	for _, known := range candidateExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
