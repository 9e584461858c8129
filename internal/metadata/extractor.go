package metadata

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Extractor is the per-language extraction contract.
//
// ExtractMetadata is the composite entry point: it runs imports over the
// whole tree and calls over the given node. The node's byte offsets must
// index into the same source buffer the tree was parsed from.
type Extractor interface {
	ExtractImports(tree *sitter.Tree, source []byte) []string
	ExtractCalls(node *sitter.Node, source []byte) []string
	ExtractMetadata(source []byte, node *sitter.Node, tree *sitter.Tree) Metadata
}

// ForLanguage returns the extractor for a language tag, or nil when the
// language has no structural extractor.
func ForLanguage(language string) Extractor {
	switch language {
	case "python":
		return PythonExtractor{}
	case "typescript", "tsx", "javascript", "jsx":
		return TypeScriptExtractor{}
	default:
		return nil
	}
}

// nodeText extracts the text content of a tree-sitter node.
func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// walkTree recursively walks a subtree and calls the visitor for each node.
// Returning false from the visitor skips the node's children.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}

	if !visitor(node) {
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(uint(i)), visitor)
	}
}

// findChildByKind finds the first direct child with the given node kind.
func findChildByKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

// findChildrenByKind finds all direct children with the given node kind.
func findChildrenByKind(node *sitter.Node, kind string) []*sitter.Node {
	var results []*sitter.Node
	if node == nil {
		return results
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		if child.Kind() == kind {
			results = append(results, child)
		}
	}
	return results
}

// hasChildToken reports whether the node has a direct anonymous child token
// of the given kind, e.g. the "type" keyword in type-only exports.
func hasChildToken(node *sitter.Node, kind string) bool {
	return findChildByKind(node, kind) != nil
}

// dedupe removes duplicates and empty strings while preserving first-seen
// order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// countBranches returns 1 plus the number of branching constructs under the
// node. The kinds set is language-specific.
func countBranches(node *sitter.Node, kinds map[string]bool) int {
	count := 1
	walkTree(node, func(n *sitter.Node) bool {
		if kinds[n.Kind()] {
			count++
		}
		return true
	})
	return count
}
