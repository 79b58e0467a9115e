package extract

import (
	"log/slog"
	"path/filepath"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/lang"
)

// Extractor turns one source file into declaration nodes, pending edges,
// and import/export statements.
type Extractor interface {
	// CanParse reports whether this extractor handles the file.
	CanParse(filePath string) bool
	// Parse extracts a ParsedFile. Implementations return an error only for
	// internal failures; the registry converts those to empty results.
	Parse(filePath string, content []byte) (*graph.ParsedFile, error)
}

// Registry tries extractors in registration order; first CanParse match wins.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns a registry with the built-in language extractors.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewScriptExtractor())
	r.Register(NewPythonExtractor())
	r.Register(NewGoExtractor())
	return r
}

// Register appends an extractor to the registry.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// CanParse reports whether any registered extractor handles the file.
func (r *Registry) CanParse(filePath string) bool {
	for _, e := range r.extractors {
		if e.CanParse(filePath) {
			return true
		}
	}
	return false
}

// Parse extracts the file with the first matching extractor. Parsing is
// fail-open: a malformed file or an extractor panic yields an empty result,
// never an error — one bad file must not abort a batch.
func (r *Registry) Parse(filePath string, content []byte) *graph.ParsedFile {
	language, _ := lang.LanguageForExtension(filepath.Ext(filePath))
	for _, e := range r.extractors {
		if !e.CanParse(filePath) {
			continue
		}
		result := safeParse(e, filePath, content)
		if result == nil {
			return graph.Empty(filePath, language)
		}
		return result
	}
	return graph.Empty(filePath, language)
}

func safeParse(e Extractor, filePath string, content []byte) (result *graph.ParsedFile) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("extract.panic", "file", filePath, "err", rec)
			result = nil
		}
	}()
	parsed, err := e.Parse(filePath, content)
	if err != nil {
		slog.Warn("extract.failed", "file", filePath, "err", err)
		return nil
	}
	return parsed
}
