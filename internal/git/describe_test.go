package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run real git commands against throwaway repositories and
// run sequentially (no t.Parallel) to keep process churn down.

func TestDescribe(t *testing.T) {
	t.Run("full info inside a repository", func(t *testing.T) {
		dir := createTestGitRepo(t)
		runGitCmd(t, dir, "remote", "add", "origin", "git@example.com:acme/api.git")

		info := Describe(dir)
		assert.Len(t, info.CommitHash, 40)
		assert.Equal(t, "main", info.Branch)
		assert.Equal(t, "git@example.com:acme/api.git", info.RemoteURL)
	})

	t.Run("degrades outside a repository", func(t *testing.T) {
		info := Describe(t.TempDir())
		assert.Empty(t, info.CommitHash)
		assert.Equal(t, "unknown", info.Branch)
		assert.Empty(t, info.RemoteURL)
	})
}

func TestCommitHash(t *testing.T) {
	t.Run("returns full hash", func(t *testing.T) {
		dir := createTestGitRepo(t)
		hash := CommitHash(dir)
		assert.Len(t, hash, 40)
	})

	t.Run("empty without commits", func(t *testing.T) {
		dir := t.TempDir()
		cmd := exec.Command("git", "init", "-b", "main")
		cmd.Dir = dir
		require.NoError(t, cmd.Run())

		assert.Empty(t, CommitHash(dir))
	})

	t.Run("empty outside a repository", func(t *testing.T) {
		assert.Empty(t, CommitHash(t.TempDir()))
	})
}

func TestCurrentBranch(t *testing.T) {
	t.Run("named branch", func(t *testing.T) {
		dir := createTestGitRepo(t)
		runGitCmd(t, dir, "checkout", "-b", "feature/search")
		assert.Equal(t, "feature/search", CurrentBranch(dir))
	})

	t.Run("detached HEAD", func(t *testing.T) {
		dir := createTestGitRepo(t)
		runGitCmd(t, dir, "checkout", "HEAD~0")
		assert.Contains(t, CurrentBranch(dir), "detached-")
	})

	t.Run("unknown outside a repository", func(t *testing.T) {
		assert.Equal(t, "unknown", CurrentBranch(t.TempDir()))
	})
}

func TestRemoteURL_FallsBackToFirstRemote(t *testing.T) {
	dir := createTestGitRepo(t)
	runGitCmd(t, dir, "remote", "add", "upstream", "https://example.com/acme/api.git")

	assert.Equal(t, "https://example.com/acme/api.git", RemoteURL(dir))
}

func TestWorktreeRoot(t *testing.T) {
	t.Run("from subdirectory", func(t *testing.T) {
		dir := createTestGitRepo(t)
		sub := filepath.Join(dir, "internal", "deep")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		rootResolved, _ := filepath.EvalSymlinks(WorktreeRoot(sub))
		dirResolved, _ := filepath.EvalSymlinks(dir)
		assert.Equal(t, dirResolved, rootResolved)
	})

	t.Run("falls back outside a repository", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, dir, WorktreeRoot(dir))
	})
}

func TestRepoNameFromRemote(t *testing.T) {
	cases := map[string]string{
		"git@github.com:acme/api.git":      "api",
		"https://github.com/acme/api.git":  "api",
		"https://github.com/acme/api":      "api",
		"https://github.com/acme/api/":     "api",
		"ssh://git@host:2222/acme/web.git": "web",
		"api": "api",
		"":    "",
	}
	for url, want := range cases {
		assert.Equal(t, want, RepoNameFromRemote(url), url)
	}
}

func createTestGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = dir
	require.NoError(t, cmd.Run(), "git init failed")

	runGitCmd(t, dir, "config", "user.email", "test@example.com")
	runGitCmd(t, dir, "config", "user.name", "Test User")

	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# Test\n"), 0o644))
	runGitCmd(t, dir, "add", "README.md")
	runGitCmd(t, dir, "commit", "-m", "Initial commit")

	return dir
}

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
}
