package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHoverText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want TypeMetadata
	}{
		{
			name: "python function with fence and prefix",
			text: "```python\n(function) def save(user: User, db: Session = None) -> bool\n```",
			want: TypeMetadata{
				Signature:  "def save(user: User, db: Session = None) -> bool",
				ReturnType: "bool",
				ParamTypes: map[string]string{"user": "User", "db": "Session"},
			},
		},
		{
			name: "python nested generics and def-line colon",
			text: "def lookup(table: Dict[str, List[int]], key: str) -> Optional[int]:",
			want: TypeMetadata{
				Signature:  "def lookup(table: Dict[str, List[int]], key: str) -> Optional[int]:",
				ReturnType: "Optional[int]",
				ParamTypes: map[string]string{"table": "Dict[str, List[int]]", "key": "str"},
			},
		},
		{
			name: "python method skips untyped self",
			text: "(method) def render(self) -> str",
			want: TypeMetadata{
				Signature:  "def render(self) -> str",
				ReturnType: "str",
			},
		},
		{
			name: "typescript function",
			text: "function add(a: number, b: number): number",
			want: TypeMetadata{
				Signature:  "function add(a: number, b: number): number",
				ReturnType: "number",
				ParamTypes: map[string]string{"a": "number", "b": "number"},
			},
		},
		{
			name: "typescript optional and rest params",
			text: "(method) render(props?: Props, ...rest: unknown[]): JSX.Element",
			want: TypeMetadata{
				Signature:  "render(props?: Props, ...rest: unknown[]): JSX.Element",
				ReturnType: "JSX.Element",
				ParamTypes: map[string]string{"props": "Props", "rest": "unknown[]"},
			},
		},
		{
			name: "arrow type annotation",
			text: "const fetchUser: (id: string) => Promise<User>",
			want: TypeMetadata{
				Signature:  "const fetchUser: (id: string) => Promise<User>",
				ReturnType: "Promise<User>",
				ParamTypes: map[string]string{"id": "string"},
			},
		},
		{
			name: "function-typed parameter keeps its arrow",
			text: "function on(cb: (x: number) => void, name: string): void",
			want: TypeMetadata{
				Signature:  "function on(cb: (x: number) => void, name: string): void",
				ReturnType: "void",
				ParamTypes: map[string]string{"cb": "(x: number) => void", "name": "string"},
			},
		},
		{
			name: "class hover has no params or return",
			text: "class Widget",
			want: TypeMetadata{Signature: "class Widget"},
		},
		{
			name: "empty hover",
			text: "",
			want: TypeMetadata{},
		},
		{
			name: "fences only",
			text: "```python\n```",
			want: TypeMetadata{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseHoverText(tt.text))
		})
	}
}

func TestNameColumn(t *testing.T) {
	t.Parallel()

	source := "class A:\n    def save(self):\n        pass"

	assert.Equal(t, 8, nameColumn(source, 2, "save"))
	assert.Equal(t, 0, nameColumn(source, 1, "class"))
	assert.Equal(t, columnFallback, nameColumn(source, 2, "missing"))
	assert.Equal(t, columnFallback, nameColumn(source, 99, "save"))
	assert.Equal(t, columnFallback, nameColumn(source, 2, ""))
}

func TestSplitTopLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a: int", " b: str"}, splitTopLevel("a: int, b: str", ','))
	assert.Equal(t, []string{"m: Dict[str, int]"}, splitTopLevel("m: Dict[str, int]", ','))
	assert.Equal(t,
		[]string{"cb: (x: number) => void", " y: string"},
		splitTopLevel("cb: (x: number) => void, y: string", ','))
	assert.Equal(t, []string{""}, splitTopLevel("", ','))
}
