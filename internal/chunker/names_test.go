package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualifiedName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		simpleName     string
		filePath       string
		repositoryRoot string
		parentContext  string
		want           string
	}{
		{
			name:          "method with class context",
			simpleName:    "save",
			filePath:      "src/api/services/user_service.py",
			parentContext: "User",
			want:          "api.services.user_service.User.save",
		},
		{
			name:       "top level function",
			simpleName: "fetch",
			filePath:   "lib/http.client.ts",
			want:       "lib.http_client.fetch",
		},
		{
			name:           "repository root stripped",
			simpleName:     "run",
			filePath:       "/repo/src/app/main.py",
			repositoryRoot: "/repo",
			want:           "app.main.run",
		},
		{
			name:       "file at root",
			simpleName: "main",
			filePath:   "cli.py",
			want:       "cli.main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := QualifiedName(tt.simpleName, tt.filePath, tt.repositoryRoot, tt.parentContext, "python")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModulePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "components.index", ModulePath("src/components/index.ts", ""))
	assert.Equal(t, "vite_config", ModulePath("vite.config.ts", ""))
	assert.Equal(t, "app.main", ModulePath("/repo/src/app/main.py", "/repo"))
}

func TestAnonymousName(t *testing.T) {
	t.Parallel()

	name := AnonymousName(KindArrowFunction, "src/app.ts", 42)
	assert.True(t, IsAnonymousName(name))
	assert.Contains(t, name, "anonymous_arrow_function_")
	assert.Len(t, name, len("anonymous_arrow_function_")+8)

	// deterministic across calls, distinct across positions
	assert.Equal(t, name, AnonymousName(KindArrowFunction, "src/app.ts", 42))
	assert.NotEqual(t, name, AnonymousName(KindArrowFunction, "src/app.ts", 43))

	assert.False(t, IsAnonymousName("fetchUser"))
}
