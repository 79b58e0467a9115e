package lang

// Language represents a supported programming language.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	Python     Language = "python"
	Go         Language = "go"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{JavaScript, TypeScript, TSX, Python, Go}
}

// LanguageSpec defines the tree-sitter node kinds for a language.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string

	// FunctionNodeTypes lists AST node kinds for function/method declarations.
	FunctionNodeTypes []string
	// ClassNodeTypes lists AST node kinds for class declarations.
	ClassNodeTypes []string
	// InterfaceNodeTypes lists AST node kinds for interface declarations.
	InterfaceNodeTypes []string
	// VariableNodeTypes lists module-level variable declaration node kinds.
	VariableNodeTypes []string
	// CallNodeTypes lists call-expression node kinds.
	CallNodeTypes []string
	// ImportNodeTypes lists import statement node kinds.
	ImportNodeTypes []string
	// ExportNodeTypes lists export statement node kinds.
	ExportNodeTypes []string
	// ModuleNodeTypes lists the root node kinds for a source file.
	ModuleNodeTypes []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".ts").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}

// HasKind reports whether kind is present in kinds.
func HasKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
