package metadata

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// TypeScriptExtractor pulls imports, calls, and re-exports out of
// TypeScript, TSX, and JavaScript trees (all parsed with the TS grammar).
type TypeScriptExtractor struct{}

var typescriptBranchKinds = map[string]bool{
	"if_statement":       true,
	"for_statement":      true,
	"for_in_statement":   true,
	"while_statement":    true,
	"do_statement":       true,
	"catch_clause":       true,
	"switch_case":        true,
	"ternary_expression": true,
}

// ExtractImports collects import targets in module.symbol form:
// named imports yield source.Name per symbol, namespace and default
// imports yield the bare source.
func (TypeScriptExtractor) ExtractImports(tree *sitter.Tree, source []byte) []string {
	var imports []string
	walkTree(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Kind() != "import_statement" {
			return true
		}
		moduleName := stringValue(n.ChildByFieldName("source"), source)
		if moduleName == "" {
			return false
		}

		clause := findChildByKind(n, "import_clause")
		if clause == nil {
			// side-effect import: import './polyfill'
			imports = append(imports, moduleName)
			return false
		}

		named := false
		for i := 0; i < int(clause.ChildCount()); i++ {
			child := clause.Child(uint(i))
			switch child.Kind() {
			case "identifier": // default import
				imports = append(imports, moduleName)
				named = true
			case "namespace_import": // import * as u
				imports = append(imports, moduleName)
				named = true
			case "named_imports":
				for _, spec := range findChildrenByKind(child, "import_specifier") {
					name := nodeText(spec.ChildByFieldName("name"), source)
					if name != "" {
						imports = append(imports, moduleName+"."+name)
						named = true
					}
				}
			}
		}
		if !named {
			imports = append(imports, moduleName)
		}
		return false
	})
	return dedupe(imports)
}

// ExtractReExports collects re-exported symbols from export statements that
// reference another module, including wildcard and type-only forms.
func (TypeScriptExtractor) ExtractReExports(tree *sitter.Tree, source []byte) []ReExport {
	var reExports []ReExport
	walkTree(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Kind() != "export_statement" {
			return true
		}
		moduleName := stringValue(n.ChildByFieldName("source"), source)
		if moduleName == "" {
			return false // local export, not a re-export
		}

		statementIsType := hasChildToken(n, "type")

		if clause := findChildByKind(n, "export_clause"); clause != nil {
			for _, spec := range findChildrenByKind(clause, "export_specifier") {
				name := nodeText(spec.ChildByFieldName("name"), source)
				alias := nodeText(spec.ChildByFieldName("alias"), source)
				re := ReExport{
					Symbol: name,
					Source: moduleName,
					IsType: statementIsType || hasChildToken(spec, "type"),
				}
				if alias != "" {
					re.Symbol = alias
					re.Original = name
				}
				reExports = append(reExports, re)
			}
			return false
		}

		if ns := findChildByKind(n, "namespace_export"); ns != nil {
			// export * as ns from 'src'
			alias := nodeText(findChildByKind(ns, "identifier"), source)
			reExports = append(reExports, ReExport{
				Symbol:   alias,
				Source:   moduleName,
				Original: "*",
				IsType:   statementIsType,
			})
			return false
		}

		// export * from 'src'
		reExports = append(reExports, ReExport{
			Symbol: "*",
			Source: moduleName,
			IsType: statementIsType,
		})
		return false
	})
	return reExports
}

// ExtractCalls collects the textual prefix of every call and the constructor
// name of every new-expression under the node.
func (TypeScriptExtractor) ExtractCalls(node *sitter.Node, source []byte) []string {
	var calls []string
	walkTree(node, func(n *sitter.Node) bool {
		switch n.Kind() {
		case "call_expression":
			calls = append(calls, typescriptCallName(n.ChildByFieldName("function"), source))
		case "new_expression":
			calls = append(calls, nodeText(n.ChildByFieldName("constructor"), source))
		}
		return true
	})
	return dedupe(calls)
}

// typescriptCallName resolves the called expression to a dotted prefix,
// skipping intermediate call parentheses in chains.
func typescriptCallName(fn *sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return nodeText(fn, source)
	case "member_expression":
		object := typescriptCallName(fn.ChildByFieldName("object"), source)
		property := nodeText(fn.ChildByFieldName("property"), source)
		if object == "" {
			return property
		}
		return object + "." + property
	case "call_expression":
		return typescriptCallName(fn.ChildByFieldName("function"), source)
	case "non_null_expression", "parenthesized_expression":
		return typescriptCallName(fn.NamedChild(0), source)
	default:
		return nodeText(fn, source)
	}
}

// ExtractMetadata runs the full extraction: imports and re-exports over the
// whole tree, calls and complexity over the given node.
func (e TypeScriptExtractor) ExtractMetadata(source []byte, node *sitter.Node, tree *sitter.Tree) Metadata {
	return Metadata{
		Imports:    e.ExtractImports(tree, source),
		Calls:      e.ExtractCalls(node, source),
		ReExports:  e.ExtractReExports(tree, source),
		Complexity: countBranches(node, typescriptBranchKinds),
	}
}

// stringValue unwraps a string literal node, stripping the quotes.
func stringValue(node *sitter.Node, source []byte) string {
	return strings.Trim(nodeText(node, source), "'\"`")
}
