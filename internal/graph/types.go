package graph

import (
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/codegraphhq/codegraph/internal/lang"
)

// Kind classifies a declaration node.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindVariable  Kind = "variable"
)

// Relationship labels a graph edge. The set is fixed.
type Relationship string

const (
	RelCalls      Relationship = "calls"
	RelImports    Relationship = "imports"
	RelExtends    Relationship = "extends"
	RelImplements Relationship = "implements"
	RelUses       Relationship = "uses"
	RelDefines    Relationship = "defines"
)

// PlaceholderDestructured is the synthetic name assigned to destructuring
// binding targets, which have no single statically determinable name.
const PlaceholderDestructured = "<destructured>"

// DeclarationNode is a named, located program entity.
// ID is derived from (file, kind, name, line) and is stable across runs.
type DeclarationNode struct {
	ID     string
	Kind   Kind
	Name   string
	File   string
	Line   int // 1-based
	Column int

	// Attributes is an open key-value bag (visibility, async-ness, parent
	// class, exported-ness). Opaque to the resolver except for "parent".
	Attributes map[string]any

	NameEmbedding    []float32
	SummaryEmbedding []float32
}

// NodeID derives the stable identifier for a declaration site.
// Fields are separated by NUL so special characters in names cannot
// collide two distinct sites onto one ID.
func NodeID(file string, kind Kind, name string, line int) string {
	h := xxh3.HashString(fmt.Sprintf("%s\x00%s\x00%s\x00%d", file, kind, name, line))
	return fmt.Sprintf("%c%016x", kind[0], h)
}

// PendingEdge is an unresolved reference discovered while parsing.
// It is produced by extraction and consumed once by the resolver.
type PendingEdge struct {
	SourceID     string
	TargetName   string
	TargetKind   Kind
	Relationship Relationship

	// Receiver is the textual receiver expression for method calls ("obj"
	// in obj.method()). Empty for bare calls.
	Receiver string
	// ImportSource is the resolved module path when the reference came in
	// through an import, filled by the import-map builder.
	ImportSource string
	// Line is the call-site line, or 0 for structurally resolved references
	// such as supertypes.
	Line int
}

// ResolutionStrategy records which search step resolved an edge.
type ResolutionStrategy string

const (
	StrategySameFile   ResolutionStrategy = "same_file"
	StrategyImported   ResolutionStrategy = "imported"
	StrategyMethodCall ResolutionStrategy = "method_call"
	StrategyGlobal     ResolutionStrategy = "global"
)

// ResolvedEdge connects two concrete declaration nodes.
type ResolvedEdge struct {
	SourceID     string
	TargetID     string
	Relationship Relationship
	Metadata     map[string]any
}

// ImportTarget describes where a locally bound symbol comes from.
type ImportTarget struct {
	Path        string // resolved module path, or opaque package name
	IsDefault   bool
	IsNamespace bool
}

// ImportMap maps locally bound symbol names to their sources for one file.
type ImportMap map[string]ImportTarget

// ImportStatement is one import binding extracted from a source file.
type ImportStatement struct {
	Local       string // locally bound name
	Source      string // raw module specifier as written
	IsDefault   bool
	IsNamespace bool
	Line        int
}

// ExportStatement is one exported symbol extracted from a source file.
type ExportStatement struct {
	Name      string
	Kind      Kind
	IsDefault bool
	Line      int
}

// ParsedFile is the output of extracting one source file.
type ParsedFile struct {
	Path         string
	Language     lang.Language
	Nodes        []*DeclarationNode
	PendingEdges []*PendingEdge
	Imports      []ImportStatement
	Exports      []ExportStatement
}

// Empty returns a ParsedFile with no content, used for fail-open parsing.
func Empty(path string, language lang.Language) *ParsedFile {
	return &ParsedFile{
		Path:         path,
		Language:     language,
		Nodes:        []*DeclarationNode{},
		PendingEdges: []*PendingEdge{},
		Imports:      []ImportStatement{},
		Exports:      []ExportStatement{},
	}
}

// ResolutionStats counts outcomes for one resolution run.
type ResolutionStats struct {
	TotalEdges int
	Resolved   int
	Unresolved int
	Ambiguous  int
	ByStrategy map[ResolutionStrategy]int
}

// NewResolutionStats returns zeroed stats with the strategy map initialized.
func NewResolutionStats() *ResolutionStats {
	return &ResolutionStats{ByStrategy: make(map[ResolutionStrategy]int)}
}

// Add merges other into s.
func (s *ResolutionStats) Add(other *ResolutionStats) {
	s.TotalEdges += other.TotalEdges
	s.Resolved += other.Resolved
	s.Unresolved += other.Unresolved
	s.Ambiguous += other.Ambiguous
	for k, v := range other.ByStrategy {
		s.ByStrategy[k] += v
	}
}
