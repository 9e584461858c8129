package chunker

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// barrelThreshold is the share of substantive lines that must be re-exports
// for an index file to chunk as a single barrel.
const barrelThreshold = 0.8

// isBarrel applies the re-export density rule to a candidate index file.
func isBarrel(tree *sitter.Tree, source string) bool {
	total := countSubstantiveLines(source)
	if total == 0 {
		return false
	}
	reExportLines := countReExportLines(tree)
	return float64(reExportLines)/float64(total) > barrelThreshold
}

// countReExportLines sums the line spans of export statements that reference
// another module.
func countReExportLines(tree *sitter.Tree) int {
	count := 0
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(uint(i))
		if child.Kind() != "export_statement" {
			continue
		}
		if child.ChildByFieldName("source") == nil {
			continue
		}
		count += int(child.EndPosition().Row-child.StartPosition().Row) + 1
	}
	return count
}

// countSubstantiveLines counts non-empty, non-comment lines.
func countSubstantiveLines(source string) int {
	count := 0
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		count++
	}
	return count
}

// BarrelName derives a barrel chunk's name from the enclosing package
// directory: the segment after a packages/ component when present, else the
// parent directory name.
func BarrelName(filePath string) string {
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" {
		return "index"
	}
	parts := strings.Split(dir, "/")
	for i, part := range parts {
		if part == "packages" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return path.Base(dir)
}
