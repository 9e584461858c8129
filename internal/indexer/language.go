package indexer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// languageByExtension maps file extensions to language tags. Chunking
// support is narrower than this map; unknown-to-the-chunker languages fail
// later with the chunker's unsupported-language error.
var languageByExtension = map[string]string{
	".py":   "python",
	".pyi":  "python",
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".jsx":  "jsx",
	".ts":   "typescript",
	".mts":  "typescript",
	".cts":  "typescript",
	".tsx":  "tsx",
	".go":   "go",
	".rs":   "rust",
	".rb":   "ruby",
	".java": "java",
	".kt":   "kotlin",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".vue":  "vue",
}

// DetectLanguage resolves a file's language: the caller's tag wins, else
// the extension decides.
func DetectLanguage(path, tag string) (string, error) {
	if tag != "" {
		return strings.ToLower(tag), nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang, nil
	}
	if ext == "" {
		return "", fmt.Errorf("cannot detect language for %q: no file extension", path)
	}
	return "", fmt.Errorf("cannot detect language for %q: unknown extension %s", path, ext)
}
