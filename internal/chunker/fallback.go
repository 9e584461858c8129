package chunker

import (
	"fmt"
	"strings"

	"github.com/mvp-joe/project-atlas/internal/metadata"
)

// FallbackReasonParse marks whole-file fallback after a parser failure.
const FallbackReasonParse = "ast_parsing_failed"

// FallbackReasonOversize marks unit-level fallback when a single function
// or method exceeds the max chunk size.
const FallbackReasonOversize = "max_chunk_size_exceeded"

// FallbackChunks splits source into fixed-size, line-aligned chunks of kind
// fallback_fixed named chunk_0, chunk_1, and so on. Consecutive chunks
// overlap by 10% of the previous chunk's lines (minimum one line for
// multi-line chunks). A trailing chunk smaller than minSize merges into its
// predecessor.
//
// startLine is the 1-based line number of the first line of source within
// its file, so unit-level callers keep file coordinates.
func FallbackChunks(source, filePath, language string, startLine, maxSize, minSize int, reason string) []Chunk {
	lines := strings.Split(source, "\n")

	type span struct{ start, end int } // inclusive line indices
	var spans []span

	i := 0
	for i < len(lines) {
		size := 0
		j := i
		for j < len(lines) {
			lineSize := len(lines[j]) + 1
			if size > 0 && size+lineSize > maxSize {
				break
			}
			size += lineSize
			j++
		}
		spans = append(spans, span{start: i, end: j - 1})
		if j >= len(lines) {
			break
		}

		count := j - i
		overlap := count / 10
		if overlap == 0 && count > 1 {
			overlap = 1
		}
		if overlap >= count {
			overlap = count - 1
		}
		i = j - overlap
	}

	// Merge a short trailing chunk into its predecessor
	if len(spans) > 1 {
		last := spans[len(spans)-1]
		lastSize := 0
		for _, line := range lines[last.start : last.end+1] {
			lastSize += len(line) + 1
		}
		if lastSize < minSize {
			spans[len(spans)-2].end = last.end
			spans = spans[:len(spans)-1]
		}
	}

	chunks := make([]Chunk, 0, len(spans))
	for n, sp := range spans {
		chunks = append(chunks, Chunk{
			Name:       fmt.Sprintf("chunk_%d", n),
			Kind:       KindFallbackFixed,
			SourceCode: strings.Join(lines[sp.start:sp.end+1], "\n"),
			StartLine:  startLine + sp.start,
			EndLine:    startLine + sp.end,
			Language:   language,
			FilePath:   filePath,
			Metadata: metadata.Metadata{
				Fallback:       true,
				FallbackReason: reason,
			},
		})
	}
	return chunks
}
