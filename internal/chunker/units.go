package chunker

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// codeUnit is a top-level declaration found in the tree, before size-based
// splitting. node spans the full chunk source (including decorators or the
// export keyword); decl is the inner declaration used for structural walks
// like method listing.
type codeUnit struct {
	node   *sitter.Node
	decl   *sitter.Node
	name   string
	kind   string
	parent string // enclosing class name, empty at top level
}

// extractUnits finds splittable top-level units. Methods are not walked
// here; chunking lists them per class.
func extractUnits(root *sitter.Node, source []byte, language string) []codeUnit {
	if language == "python" {
		return pythonUnits(root, source)
	}
	return typescriptUnits(root, source)
}

// classMethods lists the method units of a class body.
func classMethods(classNode *sitter.Node, source []byte, language, className string) []codeUnit {
	if language == "python" {
		return pythonMethods(classNode, source, className)
	}
	return typescriptMethods(classNode, source, className)
}

func pythonUnits(root *sitter.Node, source []byte) []codeUnit {
	var units []codeUnit
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(uint(i))
		node := child

		if child.Kind() == "decorated_definition" {
			if def := child.ChildByFieldName("definition"); def != nil {
				// decorators stay in the chunk source, identity comes
				// from the inner definition
				child = def
			}
		}

		switch child.Kind() {
		case "function_definition":
			units = append(units, codeUnit{
				node: node,
				decl: child,
				name: unitName(child, source),
				kind: KindFunction,
			})
		case "class_definition":
			units = append(units, codeUnit{
				node: node,
				decl: child,
				name: unitName(child, source),
				kind: KindClass,
			})
		}
	}
	return units
}

// pythonMethods lists the method units of a class body for oversize
// splitting.
func pythonMethods(classNode *sitter.Node, source []byte, className string) []codeUnit {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []codeUnit
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(uint(i))
		node := child
		if child.Kind() == "decorated_definition" {
			if def := child.ChildByFieldName("definition"); def != nil {
				child = def
			}
		}
		if child.Kind() != "function_definition" {
			continue
		}
		methods = append(methods, codeUnit{
			node:   node,
			decl:   child,
			name:   unitName(child, source),
			kind:   KindMethod,
			parent: className,
		})
	}
	return methods
}

func typescriptUnits(root *sitter.Node, source []byte) []codeUnit {
	var units []codeUnit
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(uint(i))
		node := child

		if child.Kind() == "export_statement" {
			decl := child.ChildByFieldName("declaration")
			if decl == nil {
				continue // re-export or export list, handled by the barrel path
			}
			// export keyword stays in the chunk source
			child = decl
		}

		if name, kind, ok := classifyDeclaration(child, source); ok {
			units = append(units, codeUnit{node: node, decl: child, name: name, kind: kind})
		}
	}
	return units
}

// classifyDeclaration maps a declaration node to a chunk kind.
func classifyDeclaration(decl *sitter.Node, source []byte) (string, string, bool) {
	switch decl.Kind() {
	case "function_declaration":
		return unitName(decl, source), KindFunction, true
	case "generator_function_declaration":
		return unitName(decl, source), KindGenerator, true
	case "class_declaration", "abstract_class_declaration":
		return unitName(decl, source), KindClass, true
	case "interface_declaration":
		return unitName(decl, source), KindInterface, true
	case "type_alias_declaration":
		return unitName(decl, source), KindTypeAlias, true
	case "enum_declaration":
		return unitName(decl, source), KindEnum, true
	case "internal_module", "module":
		return unitName(decl, source), KindNamespace, true
	case "lexical_declaration", "variable_declaration":
		return classifyVariableDeclaration(decl, source)
	default:
		return "", "", false
	}
}

// classifyVariableDeclaration recognizes `const f = () => {}` style function
// values. Only the first function-valued declarator counts; plain value
// declarations are not chunked.
func classifyVariableDeclaration(decl *sitter.Node, source []byte) (string, string, bool) {
	for i := 0; i < int(decl.ChildCount()); i++ {
		declarator := decl.Child(uint(i))
		if declarator.Kind() != "variable_declarator" {
			continue
		}
		value := declarator.ChildByFieldName("value")
		if value == nil {
			continue
		}
		name := nodeContent(declarator.ChildByFieldName("name"), source)
		switch value.Kind() {
		case "arrow_function":
			return name, KindArrowFunction, true
		case "function_expression", "function":
			return name, KindFunction, true
		case "generator_function":
			return name, KindGenerator, true
		}
	}
	return "", "", false
}

// typescriptMethods lists the method units of a class body for oversize
// splitting.
func typescriptMethods(classNode *sitter.Node, source []byte, className string) []codeUnit {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []codeUnit
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(uint(i))
		if child.Kind() != "method_definition" {
			continue
		}
		methods = append(methods, codeUnit{
			node:   child,
			decl:   child,
			name:   unitName(child, source),
			kind:   KindMethod,
			parent: className,
		})
	}
	return methods
}

// unitName reads the declaration's name field.
func unitName(node *sitter.Node, source []byte) string {
	return nodeContent(node.ChildByFieldName("name"), source)
}

// nodeContent extracts the text content of a node.
func nodeContent(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}
