package lang

func init() {
	Register(&LanguageSpec{
		Language:       TSX,
		FileExtensions: []string{".tsx"},
		FunctionNodeTypes: []string{
			"function_declaration",
			"generator_function_declaration",
			"method_definition",
			"function_signature",
		},
		ClassNodeTypes: []string{
			"class_declaration",
			"class",
			"abstract_class_declaration",
		},
		InterfaceNodeTypes: []string{"interface_declaration"},
		VariableNodeTypes:  []string{"lexical_declaration", "variable_declaration"},
		CallNodeTypes:      []string{"call_expression", "new_expression"},
		ImportNodeTypes:    []string{"import_statement"},
		ExportNodeTypes:    []string{"export_statement"},
		ModuleNodeTypes:    []string{"program"},
	})
}
