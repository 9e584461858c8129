package embed

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"math/rand"
)

// MockEncoder produces deterministic unit-normalized vectors seeded from
// the MD5 of each input. No model is loaded; development and tests run
// without the model-download cost.
type MockEncoder struct{}

// Encode returns one seeded vector per input.
func (MockEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = mockVector(t)
	}
	return out, nil
}

func mockVector(text string) []float32 {
	seed := md5.Sum([]byte(text))
	rng := rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:8]))))

	v := make([]float32, Dim)
	var norm float64
	for i := range v {
		x := rng.Float64()*2 - 1
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
