package main

// Test Plan:
// - relFromStaged strips everything through the upload UUID directory
// - nested relative paths and non-staged paths both come back usable
// - loadStaged reads what exists and counts what does not

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRelFromStaged(t *testing.T) {
	t.Parallel()

	cases := []struct {
		staged string
		want   string
	}{
		{"/tmp/atlas-staging/0c1d9f0e-8a3b-4f6d-9e2a-1b5c7d8e9f00/src/app.py", "src/app.py"},
		{"/tmp/atlas-staging/0c1d9f0e-8a3b-4f6d-9e2a-1b5c7d8e9f00/deep/a/b/c.ts", "deep/a/b/c.ts"},
		{"/tmp/atlas-staging/0c1d9f0e-8a3b-4f6d-9e2a-1b5c7d8e9f00/top.py", "top.py"},
		// the last uuid segment wins
		{"/var/data/0c1d9f0e-8a3b-4f6d-9e2a-1b5c7d8e9f00/x/0c1d9f0e-0000-4f6d-9e2a-1b5c7d8e9f00/y.py", "y.py"},
		{"/no/uuid/anywhere/app.py", "app.py"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, relFromStaged(tc.staged), "relFromStaged(%q)", tc.staged)
	}
}

func TestLoadStaged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	upload := filepath.Join(dir, "2f9a6c4e-1b3d-4e5f-8a7b-9c0d1e2f3a4b")
	require.NoError(t, os.MkdirAll(filepath.Join(upload, "pkg"), 0o755))
	good := filepath.Join(upload, "pkg", "mod.py")
	require.NoError(t, os.WriteFile(good, []byte("def f():\n    pass\n"), 0o644))

	inputs, unreadable := loadStaged([]string{
		good,
		filepath.Join(upload, "missing.py"),
		"", // blank entries from a trailing comma are ignored
	}, zap.NewNop())

	assert.Equal(t, 1, unreadable)
	require.Len(t, inputs, 1)
	assert.Equal(t, "pkg/mod.py", inputs[0].Path)
	assert.Contains(t, inputs[0].Content, "def f()")
}
