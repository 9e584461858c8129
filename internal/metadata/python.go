package metadata

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// PythonExtractor pulls imports and calls out of Python trees.
type PythonExtractor struct{}

var pythonBranchKinds = map[string]bool{
	"if_statement":     true,
	"elif_clause":      true,
	"for_statement":    true,
	"while_statement":  true,
	"except_clause":    true,
	"case_clause":      true,
	"boolean_operator": true,
}

// ExtractImports collects module paths from import statements.
// `import X` yields X; `from M import N` yields M.N, aliases keep the
// original path form.
func (PythonExtractor) ExtractImports(tree *sitter.Tree, source []byte) []string {
	var imports []string
	walkTree(tree.RootNode(), func(n *sitter.Node) bool {
		switch n.Kind() {
		case "import_statement":
			// import a.b, c as d
			for _, dotted := range findChildrenByKind(n, "dotted_name") {
				imports = append(imports, nodeText(dotted, source))
			}
			for _, aliased := range findChildrenByKind(n, "aliased_import") {
				imports = append(imports, nodeText(aliased.ChildByFieldName("name"), source))
			}
			return false
		case "import_from_statement":
			module := nodeText(n.ChildByFieldName("module_name"), source)
			names := importedNames(n, source)
			if len(names) == 0 {
				// wildcard import: record the module itself
				imports = append(imports, module)
			}
			for _, name := range names {
				switch {
				case module == "":
					imports = append(imports, name)
				case strings.HasSuffix(module, "."):
					// relative import: from . import x
					imports = append(imports, module+name)
				default:
					imports = append(imports, module+"."+name)
				}
			}
			return false
		}
		return true
	})
	return dedupe(imports)
}

// importedNames lists the names brought in by a from-import, skipping the
// module path itself.
func importedNames(stmt *sitter.Node, source []byte) []string {
	module := stmt.ChildByFieldName("module_name")
	var names []string
	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(uint(i))
		if module != nil && child.StartByte() == module.StartByte() && child.EndByte() == module.EndByte() {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			names = append(names, nodeText(child, source))
		case "aliased_import":
			names = append(names, nodeText(child.ChildByFieldName("name"), source))
		}
	}
	return names
}

// ExtractCalls collects called names under the node. Attribute chains are
// re-assembled into their dotted form, skipping intermediate call
// parentheses, so `obj.a.b.method(x)` yields `obj.a.b.method`.
func (PythonExtractor) ExtractCalls(node *sitter.Node, source []byte) []string {
	var calls []string
	walkTree(node, func(n *sitter.Node) bool {
		if n.Kind() != "call" {
			return true
		}
		if name := pythonCallName(n.ChildByFieldName("function"), source); name != "" {
			calls = append(calls, name)
		}
		return true
	})
	return dedupe(calls)
}

// pythonCallName resolves the called expression to a dotted name.
func pythonCallName(fn *sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return nodeText(fn, source)
	case "attribute":
		object := pythonCallName(fn.ChildByFieldName("object"), source)
		attr := nodeText(fn.ChildByFieldName("attribute"), source)
		if object == "" {
			return attr
		}
		return object + "." + attr
	case "call":
		// chained call: obj.method().other -> obj.method
		return pythonCallName(fn.ChildByFieldName("function"), source)
	default:
		return nodeText(fn, source)
	}
}

// ExtractMetadata runs the full extraction: imports over the whole tree,
// calls and complexity over the given node.
func (e PythonExtractor) ExtractMetadata(source []byte, node *sitter.Node, tree *sitter.Tree) Metadata {
	return Metadata{
		Imports:    e.ExtractImports(tree, source),
		Calls:      e.ExtractCalls(node, source),
		Complexity: countBranches(node, pythonBranchKinds),
	}
}
