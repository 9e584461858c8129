package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformLines builds n lines of exactly 9 characters each, so each line
// costs 10 bytes with its newline.
func uniformLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %04d", i)
	}
	return strings.Join(lines, "\n")
}

func TestFallbackChunks_SplitsWithOverlap(t *testing.T) {
	t.Parallel()

	source := uniformLines(20)
	chunks := FallbackChunks(source, "big.py", "python", 1, 100, 100, FallbackReasonParse)

	require.Len(t, chunks, 2)

	assert.Equal(t, "chunk_0", chunks[0].Name)
	assert.Equal(t, "chunk_1", chunks[1].Name)
	assert.Equal(t, KindFallbackFixed, chunks[0].Kind)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 10, chunks[0].EndLine)
	assert.Equal(t, 10, chunks[1].StartLine)
	assert.Equal(t, 20, chunks[1].EndLine)

	// consecutive chunks share at least one line
	assert.LessOrEqual(t, chunks[1].StartLine, chunks[0].EndLine)

	for _, c := range chunks {
		assert.True(t, c.Metadata.Fallback)
		assert.Equal(t, FallbackReasonParse, c.Metadata.FallbackReason)
		assert.Equal(t, "big.py", c.FilePath)
		assert.Equal(t, "python", c.Language)
	}
}

func TestFallbackChunks_TenPercentOverlap(t *testing.T) {
	t.Parallel()

	// 20-line chunks at maxSize 200; overlap should be 2 lines.
	source := uniformLines(40)
	chunks := FallbackChunks(source, "big.py", "python", 1, 200, 100, FallbackReasonParse)

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 20, chunks[0].EndLine)
	assert.Equal(t, 19, chunks[1].StartLine)
	assert.Equal(t, 40, chunks[1].EndLine)
	assert.Equal(t, 2, chunks[0].EndLine-chunks[1].StartLine+1)
}

func TestFallbackChunks_SingleChunkWhenSourceFits(t *testing.T) {
	t.Parallel()

	source := "a = 1\nb = 2\nc = 3"
	chunks := FallbackChunks(source, "small.py", "python", 1, 100, 10, FallbackReasonParse)

	require.Len(t, chunks, 1)
	assert.Equal(t, "chunk_0", chunks[0].Name)
	assert.Equal(t, source, chunks[0].SourceCode)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestFallbackChunks_MergesShortTrailingChunk(t *testing.T) {
	t.Parallel()

	// 20 lines: the third span would hold only two lines (20 bytes),
	// under minSize, so it folds into the second chunk.
	source := uniformLines(20)
	chunks := FallbackChunks(source, "big.py", "python", 1, 100, 100, FallbackReasonParse)

	require.Len(t, chunks, 2)
	assert.Equal(t, 20, chunks[len(chunks)-1].EndLine)
}

func TestFallbackChunks_StartLineOffset(t *testing.T) {
	t.Parallel()

	source := uniformLines(20)
	chunks := FallbackChunks(source, "big.py", "python", 41, 100, 100, FallbackReasonOversize)

	require.Len(t, chunks, 2)
	assert.Equal(t, 41, chunks[0].StartLine)
	assert.Equal(t, 50, chunks[0].EndLine)
	assert.Equal(t, 50, chunks[1].StartLine)
	assert.Equal(t, 60, chunks[1].EndLine)
	assert.Equal(t, FallbackReasonOversize, chunks[0].Metadata.FallbackReason)
}

func TestFallbackChunks_LineLongerThanMaxSize(t *testing.T) {
	t.Parallel()

	source := strings.Repeat("x", 500)
	chunks := FallbackChunks(source, "minified.js", "javascript", 1, 100, 10, FallbackReasonParse)

	require.Len(t, chunks, 1)
	assert.Equal(t, source, chunks[0].SourceCode)
}
