package chunker

import (
	"errors"
	"path"
	"strings"
)

// ErrTestFileSkipped marks files excluded by classification. Callers count
// these as skipped, not failed.
var ErrTestFileSkipped = errors.New("test file skipped")

// FileClass is the result of filename classification.
type FileClass int

const (
	FileNormal FileClass = iota
	FileTest
	FileConfig
	FileBarrelCandidate
)

// Config filenames that produce a single config-module chunk with light
// extraction (imports only).
var configFilePrefixes = []string{
	"vite.config.",
	"vitest.config.",
	"jest.config.",
	"webpack.config.",
	"rollup.config.",
	"babel.config.",
	"next.config.",
	"nuxt.config.",
	"tailwind.config.",
	"postcss.config.",
	"playwright.config.",
	"prettier.config.",
	"eslint.config.",
}

// ClassifyFile inspects the filename and path. Classification only applies
// to the TypeScript/JavaScript family; other languages are always normal.
func ClassifyFile(filePath, language string) FileClass {
	if !isTypeScriptFamily(language) {
		return FileNormal
	}

	base := path.Base(filePath)
	lower := strings.ToLower(base)

	if strings.Contains(lower, ".spec.") || strings.Contains(lower, ".test.") {
		return FileTest
	}
	for _, part := range strings.Split(path.Dir(filePath), "/") {
		if part == "__tests__" {
			return FileTest
		}
	}

	if strings.HasPrefix(lower, "tsconfig") {
		return FileConfig
	}
	for _, prefix := range configFilePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return FileConfig
		}
	}
	if lower == ".babelrc" || strings.HasPrefix(lower, ".eslintrc") {
		return FileConfig
	}

	if strings.HasPrefix(lower, "index.") {
		return FileBarrelCandidate
	}

	return FileNormal
}

func isTypeScriptFamily(language string) bool {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		return true
	default:
		return false
	}
}
