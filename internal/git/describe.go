// Package git shells out for the little repository metadata indexing
// wants to record: the commit being indexed, the branch, and a repository
// name derived from the remote. Everything degrades gracefully; indexing
// works fine outside a git worktree.
package git

import (
	"os/exec"
	"strings"
)

// Info describes the git state of one directory.
type Info struct {
	CommitHash string // full hash, "" outside a repository
	Branch     string // "detached-<short>" on detached HEAD, "unknown" on failure
	RemoteURL  string // "" when no remote is configured
}

// Describe collects commit, branch, and remote for dir.
func Describe(dir string) Info {
	return Info{
		CommitHash: CommitHash(dir),
		Branch:     CurrentBranch(dir),
		RemoteURL:  RemoteURL(dir),
	}
}

// CommitHash returns the full HEAD hash, or "" when dir is not a
// repository or has no commits yet.
func CommitHash(dir string) string {
	out, err := run(dir, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// CurrentBranch returns the checked-out branch name. A detached HEAD
// reads "detached-<short-hash>"; outside a repository it reads "unknown".
func CurrentBranch(dir string) string {
	out, err := run(dir, "branch", "--show-current")
	if err == nil && out != "" {
		return out
	}

	// Might be detached HEAD.
	out, err = run(dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "unknown"
	}
	return "detached-" + out
}

// RemoteURL returns the origin URL, falling back to the first configured
// remote.
func RemoteURL(dir string) string {
	if out, err := run(dir, "remote", "get-url", "origin"); err == nil && out != "" {
		return out
	}

	remotes, err := run(dir, "remote")
	if err != nil || remotes == "" {
		return ""
	}
	first := strings.Fields(remotes)[0]
	out, err := run(dir, "remote", "get-url", first)
	if err != nil {
		return ""
	}
	return out
}

// WorktreeRoot returns the repository root, falling back to dir itself
// outside a worktree.
func WorktreeRoot(dir string) string {
	out, err := run(dir, "rev-parse", "--show-toplevel")
	if err != nil || out == "" {
		return dir
	}
	return out
}

// RepoNameFromRemote extracts the repository name from a remote URL:
// "git@github.com:acme/api.git" and "https://github.com/acme/api" both
// yield "api". Returns "" when the URL has no usable segment.
func RepoNameFromRemote(url string) string {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	url = strings.TrimSuffix(url, ".git")
	if url == "" {
		return ""
	}

	// SSH shorthand uses ":" as the path separator.
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	return url
}

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
