package search

import "strings"

// Default fusion weights; vector dominates slightly for mixed queries.
const (
	DefaultLexicalWeight = 0.4
	DefaultVectorWeight  = 0.6
)

// AutoWeights picks fusion weights from the query's shape. Code-heavy
// queries (parens, braces, member access, arrows, scope operators) lean on
// the vector side; plain multi-word prose splits evenly.
func AutoWeights(query string) (lexical, vector float64) {
	indicators := countCodeIndicators(query)
	words := len(strings.Fields(query))

	switch {
	case indicators >= 5:
		return 0.3, 0.7
	case indicators == 0 && words >= 4:
		return 0.5, 0.5
	default:
		return DefaultLexicalWeight, DefaultVectorWeight
	}
}

func countCodeIndicators(query string) int {
	n := strings.Count(query, "->") + strings.Count(query, "::")
	for _, ch := range query {
		switch ch {
		case '(', ')', '{', '}', '.':
			n++
		}
	}
	return n
}
