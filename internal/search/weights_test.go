package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutoWeights(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query       string
		wantLexical float64
		wantVector  float64
	}{
		// svc.Call(ctx).Get(id) carries six indicators.
		{"svc.Call(ctx).Get(id)", 0.3, 0.7},
		{"res->headers->get('etag') {}", 0.3, 0.7},
		{"std::map::find(k.id)", 0.3, 0.7},
		// Prose with four or more words and no indicators.
		{"how does user authentication work", 0.5, 0.5},
		{"retry logic for failed uploads", 0.5, 0.5},
		// Everything else keeps the defaults.
		{"login", 0.4, 0.6},
		{"parse(input)", 0.4, 0.6},
		{"user_service.save", 0.4, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			lex, vec := AutoWeights(tt.query)
			assert.Equal(t, tt.wantLexical, lex)
			assert.Equal(t, tt.wantVector, vec)
		})
	}
}

func TestCountCodeIndicators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  int
	}{
		{"plain words only", 0},
		{"foo()", 2},
		{"a.b", 1},
		{"x -> y :: z", 2},
		{"f(a.b) { }", 5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.query), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, countCodeIndicators(tt.query))
		})
	}
}
