package rag

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderIsDeterministicAndNormalized(t *testing.T) {
	embedder := NewHashEmbedder()
	first, err := embedder.Embed(context.Background(), []string{"Refund policy for orders"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, _ := embedder.Embed(context.Background(), []string{"refund POLICY, for orders!"})
	if len(first[0]) != DefaultHashDimensions {
		t.Fatalf("dimensions = %d", len(first[0]))
	}
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Fatalf("vectors differ at %d: %f != %f", i, first[0][i], second[0][i])
		}
	}
	if norm := l2(first[0]); math.Abs(norm-1) > 1e-5 {
		t.Fatalf("norm = %f, want 1", norm)
	}
}

func TestHashEmbedderRanksOverlappingTextHigher(t *testing.T) {
	embedder := HashEmbedder{Dimensions: 512}
	vectors, err := embedder.Embed(context.Background(), []string{
		"how many business days does shipping take",
		"shipping takes three business days",
		"our office dog is named biscuit",
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	related := dot(vectors[0], vectors[1])
	unrelated := dot(vectors[0], vectors[2])
	if related <= unrelated {
		t.Fatalf("related score %f <= unrelated score %f", related, unrelated)
	}
}

func TestHashEmbedderBlankTextIsZeroVector(t *testing.T) {
	vectors, _ := NewHashEmbedder().Embed(context.Background(), []string{"  ...  "})
	if l2(vectors[0]) != 0 {
		t.Fatalf("norm = %f, want 0", l2(vectors[0]))
	}
}

func l2(vector []float32) float64 {
	return math.Sqrt(dot(vector, vector))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
