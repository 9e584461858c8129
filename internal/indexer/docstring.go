package indexer

import "strings"

// embeddingText picks the text-domain embedding input: the docstring when
// the chunk carries one, the full source otherwise.
func embeddingText(source, language string) string {
	if doc := extractDocstring(source, language); doc != "" {
		return doc
	}
	return source
}

func extractDocstring(source, language string) string {
	switch language {
	case "python":
		return pythonDocstring(source)
	case "typescript", "tsx", "javascript", "jsx":
		return jsdocText(source)
	default:
		return ""
	}
}

// pythonDocstring returns the first triple-quoted string that follows the
// declaration header.
func pythonDocstring(source string) string {
	header := strings.IndexByte(source, ':')
	if header < 0 {
		return ""
	}
	rest := source[header+1:]

	delim := `"""`
	start := strings.Index(rest, delim)
	if alt := strings.Index(rest, "'''"); alt >= 0 && (start < 0 || alt < start) {
		start, delim = alt, "'''"
	}
	if start < 0 {
		return ""
	}
	// Only a docstring when nothing but whitespace precedes it.
	if strings.TrimSpace(rest[:start]) != "" {
		return ""
	}

	body := rest[start+len(delim):]
	end := strings.Index(body, delim)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(body[:end])
}

// jsdocText returns the leading JSDoc block with comment markers stripped.
func jsdocText(source string) string {
	trimmed := strings.TrimLeft(source, " \t\n")
	if !strings.HasPrefix(trimmed, "/**") {
		return ""
	}
	end := strings.Index(trimmed, "*/")
	if end < 0 {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(trimmed[3:end], "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
