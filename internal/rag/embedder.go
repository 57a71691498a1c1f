package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const DefaultHashDimensions = 256

// HashEmbedder maps lowercased word tokens into a fixed number of signed
// buckets and L2-normalizes the result. It needs no model and is
// deterministic.
type HashEmbedder struct {
	Dimensions int
}

func NewHashEmbedder() HashEmbedder {
	return HashEmbedder{Dimensions: DefaultHashDimensions}
}

func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dims := h.Dimensions
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text, dims)
	}
	return vectors, nil
}

func hashVector(text string, dims int) []float32 {
	vector := make([]float32, dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, token := range tokens {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum64()
		bucket := int(sum % uint64(dims))
		if sum&(1<<63) != 0 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}

	var norm float64
	for _, value := range vector {
		norm += float64(value) * float64(value)
	}
	if norm == 0 {
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}
