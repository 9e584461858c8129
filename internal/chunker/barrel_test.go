package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarrelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filePath string
		want     string
	}{
		{"src/components/index.ts", "components"},
		{"packages/ui/src/index.ts", "ui"},
		{"index.ts", "index"},
		{"hooks/index.js", "hooks"},
	}

	for _, tt := range tests {
		t.Run(tt.filePath, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BarrelName(tt.filePath))
		})
	}
}

func TestCountSubstantiveLines(t *testing.T) {
	t.Parallel()

	source := `// header comment
import { a } from './a'

/* block
 * comment
 */
export { a }
`
	assert.Equal(t, 2, countSubstantiveLines(source))
}
