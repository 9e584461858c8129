package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingText_PythonDocstring(t *testing.T) {
	source := `def transfer(a, b, amount):
    """Move amount between accounts.

    Raises InsufficientFunds when a lacks cover.
    """
    a.balance -= amount
    b.balance += amount
`
	got := embeddingText(source, "python")
	assert.Contains(t, got, "Move amount between accounts.")
	assert.Contains(t, got, "InsufficientFunds")
	assert.NotContains(t, got, "a.balance")
}

func TestEmbeddingText_PythonSingleQuoteDocstring(t *testing.T) {
	source := "def f():\n    '''short doc'''\n    return 1\n"
	assert.Equal(t, "short doc", embeddingText(source, "python"))
}

func TestEmbeddingText_PythonWithoutDocstringFallsBack(t *testing.T) {
	source := "def f():\n    return 1\n"
	assert.Equal(t, source, embeddingText(source, "python"))
}

func TestEmbeddingText_PythonStringLaterInBodyIsNotDocstring(t *testing.T) {
	source := "def f():\n    x = 1\n    s = \"\"\"not a docstring\"\"\"\n    return s\n"
	assert.Equal(t, source, embeddingText(source, "python"))
}

func TestEmbeddingText_JSDoc(t *testing.T) {
	source := `/**
 * Formats a user's display name.
 * @param user - account record
 */
export function displayName(user: User): string {
  return user.name;
}
`
	got := embeddingText(source, "typescript")
	assert.Contains(t, got, "Formats a user's display name.")
	assert.Contains(t, got, "@param user - account record")
	assert.NotContains(t, got, "return user.name")
}

func TestEmbeddingText_JSWithoutDocFallsBack(t *testing.T) {
	source := "// line comment\nfunction f() { return 1; }\n"
	assert.Equal(t, source, embeddingText(source, "javascript"))
}

func TestEmbeddingText_OtherLanguagesUseSource(t *testing.T) {
	source := "func F() int { return 1 }"
	assert.Equal(t, source, embeddingText(source, "go"))
}
