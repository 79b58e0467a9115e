package lang

func init() {
	Register(&LanguageSpec{
		Language:           Go,
		FileExtensions:     []string{".go"},
		FunctionNodeTypes:  []string{"function_declaration", "method_declaration"},
		ClassNodeTypes:     []string{"type_declaration"},
		InterfaceNodeTypes: []string{"type_declaration"},
		VariableNodeTypes:  []string{"var_declaration", "const_declaration"},
		CallNodeTypes:      []string{"call_expression"},
		ImportNodeTypes:    []string{"import_declaration"},
		ModuleNodeTypes:    []string{"source_file"},
	})
}
