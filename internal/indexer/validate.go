package indexer

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// maxFileBytes rejects files over 500 KB; source files that large are
// generated or vendored.
const maxFileBytes = 500 * 1024

// binaryProbeBytes is how much of the content the binary heuristic reads.
const binaryProbeBytes = 8 * 1024

// nonPrintableLimit fails content when more than 30% of the probe is
// non-printable.
const nonPrintableLimit = 0.30

var repositoryNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// lockFileNames never index: machine-generated, huge, and semantically
// empty.
var lockFileNames = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"poetry.lock":       {},
	"pipfile.lock":      {},
	"uv.lock":           {},
	"cargo.lock":        {},
	"composer.lock":     {},
	"gemfile.lock":      {},
	"go.sum":            {},
}

// ValidateRepositoryName enforces the [A-Za-z0-9._-]+ contract.
func ValidateRepositoryName(name string) error {
	if name == "" {
		return fmt.Errorf("repository name must not be empty")
	}
	if !repositoryNamePattern.MatchString(name) {
		return fmt.Errorf("invalid repository name %q: only letters, digits, dot, underscore, and dash are allowed", name)
	}
	return nil
}

// ValidateFile checks one upload entry. The error message names the first
// violated rule; callers surface it per file without stopping the batch.
func ValidateFile(filePath, content string) error {
	if err := validatePath(filePath); err != nil {
		return err
	}
	if _, ok := lockFileNames[strings.ToLower(path.Base(filePath))]; ok {
		return fmt.Errorf("%s is a lock file and is not indexed", path.Base(filePath))
	}
	if len(content) > maxFileBytes {
		return fmt.Errorf("file exceeds the %d KB limit (%d bytes)", maxFileBytes/1024, len(content))
	}
	if isBinary(content) {
		return fmt.Errorf("binary content is not indexed")
	}
	return nil
}

func validatePath(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path must not be empty")
	}
	if strings.ContainsRune(filePath, 0) {
		return fmt.Errorf("file path contains a null byte")
	}
	if strings.HasPrefix(filePath, "/") || strings.HasPrefix(filePath, "\\") || hasDrivePrefix(filePath) {
		return fmt.Errorf("path traversal rejected: %q is absolute", filePath)
	}
	for _, seg := range strings.FieldsFunc(filePath, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("path traversal rejected: %q contains a parent-directory segment", filePath)
		}
	}
	return nil
}

func hasDrivePrefix(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		(('a' <= p[0] && p[0] <= 'z') || ('A' <= p[0] && p[0] <= 'Z'))
}

// isBinary flags content holding null bytes or a high non-printable ratio
// in its first 8 KB. Same heuristic family as file(1).
func isBinary(content string) bool {
	probe := content
	if len(probe) > binaryProbeBytes {
		probe = probe[:binaryProbeBytes]
	}
	if len(probe) == 0 {
		return false
	}

	nonPrintable := 0
	for i := 0; i < len(probe); i++ {
		b := probe[i]
		if b == 0 {
			return true
		}
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(probe)) > nonPrintableLimit
}
