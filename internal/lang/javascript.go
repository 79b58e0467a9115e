package lang

func init() {
	Register(&LanguageSpec{
		Language:       JavaScript,
		FileExtensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		FunctionNodeTypes: []string{
			"function_declaration",
			"generator_function_declaration",
			"method_definition",
		},
		ClassNodeTypes:    []string{"class_declaration", "class"},
		VariableNodeTypes: []string{"lexical_declaration", "variable_declaration"},
		CallNodeTypes:     []string{"call_expression", "new_expression"},
		ImportNodeTypes:   []string{"import_statement"},
		ExportNodeTypes:   []string{"export_statement"},
		ModuleNodeTypes:   []string{"program"},
	})
}
