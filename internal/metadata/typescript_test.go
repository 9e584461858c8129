package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

func parseTypeScript(t *testing.T, source string) *sitter.Tree {
	t.Helper()

	parser := sitter.NewParser()
	t.Cleanup(parser.Close)
	parser.SetLanguage(sitter.NewLanguage(typescript.LanguageTypescript()))

	tree := parser.Parse([]byte(source), nil)
	require.NotNil(t, tree)
	t.Cleanup(tree.Close)
	return tree
}

func TestTypeScriptExtractor_Imports(t *testing.T) {
	t.Parallel()

	source := `import { A, B } from 'src';
import * as utils from './utils';
import Default from '../default';
import './polyfill';
`
	tree := parseTypeScript(t, source)

	imports := TypeScriptExtractor{}.ExtractImports(tree, []byte(source))

	assert.Equal(t, []string{
		"src.A",
		"src.B",
		"./utils",
		"../default",
		"./polyfill",
	}, imports)
}

func TestTypeScriptExtractor_ReExports(t *testing.T) {
	t.Parallel()

	source := `export { A } from './a';
export { B as C } from './b';
export * from './all';
export type { T } from './types';
`
	tree := parseTypeScript(t, source)

	reExports := TypeScriptExtractor{}.ExtractReExports(tree, []byte(source))

	require.Len(t, reExports, 4)
	assert.Equal(t, ReExport{Symbol: "A", Source: "./a"}, reExports[0])
	assert.Equal(t, ReExport{Symbol: "C", Source: "./b", Original: "B"}, reExports[1])
	assert.Equal(t, ReExport{Symbol: "*", Source: "./all"}, reExports[2])
	assert.Equal(t, ReExport{Symbol: "T", Source: "./types", IsType: true}, reExports[3])
}

func TestTypeScriptExtractor_Calls(t *testing.T) {
	t.Parallel()

	source := `function handler(req: Request) {
  validate(req);
  logger.info.child().log('done');
  const client = new HttpClient(config);
  return api.fetchUser(req.id);
}
`
	tree := parseTypeScript(t, source)

	calls := TypeScriptExtractor{}.ExtractCalls(tree.RootNode(), []byte(source))

	assert.ElementsMatch(t, []string{
		"validate",
		"logger.info.child.log",
		"logger.info.child",
		"HttpClient",
		"api.fetchUser",
	}, calls)
}

// Identifiers after multi-byte characters must come back intact: extraction
// always indexes the same full buffer the tree was parsed from.
func TestTypeScriptExtractor_MultiByteOffsets(t *testing.T) {
	t.Parallel()

	source := "const msg = 'héllo wörld';\n" +
		"export function wrap() {\n" +
		"  return createSuccess(1);\n" +
		"}\n"
	tree := parseTypeScript(t, source)

	var fnNode *sitter.Node
	walkTree(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Kind() == "function_declaration" {
			fnNode = n
			return false
		}
		return true
	})
	require.NotNil(t, fnNode)

	meta := TypeScriptExtractor{}.ExtractMetadata([]byte(source), fnNode, tree)

	assert.Equal(t, []string{"createSuccess"}, meta.Calls)
}
