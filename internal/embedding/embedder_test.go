package embedding

import (
	"context"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	vec := []float32{3, 4}
	Normalize(vec)
	length := math.Sqrt(float64(vec[0])*float64(vec[0]) + float64(vec[1])*float64(vec[1]))
	if math.Abs(length-1) > 1e-6 {
		t.Fatalf("length %f after normalization", length)
	}

	zero := []float32{0, 0, 0}
	Normalize(zero)
	for _, v := range zero {
		if v != 0 {
			t.Fatal("zero vector mutated")
		}
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-6 {
		t.Fatalf("identical vectors: %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-6 {
		t.Fatalf("orthogonal vectors: %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-6 {
		t.Fatalf("opposite vectors: %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Fatalf("mismatched lengths: %f", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector: %f", got)
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(8)
	ctx := context.Background()

	a1, err := m.Embed(ctx, "hello world")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := m.Embed(ctx, "hello world")
	b, _ := m.Embed(ctx, "something else")

	if Cosine(a1, a2) < 0.999999 {
		t.Fatal("identical texts produced different vectors")
	}
	if Cosine(a1, b) > 0.999 {
		t.Fatal("distinct texts collided")
	}
	if m.Calls() != 3 {
		t.Fatalf("got %d calls", m.Calls())
	}
}

func TestMockEmbedderPin(t *testing.T) {
	m := NewMockEmbedder(4)
	m.Pin("query", []float32{2, 0, 0, 0})

	vec, err := m.Embed(context.Background(), "query")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(vec[0])-1) > 1e-6 {
		t.Fatalf("pinned vector not normalized: %v", vec)
	}
}

func TestNewOpenAIEmbedderValidation(t *testing.T) {
	if _, err := NewOpenAIEmbedder(Config{Model: "m"}); err == nil {
		t.Fatal("missing api key accepted")
	}
	if _, err := NewOpenAIEmbedder(Config{APIKey: "k"}); err == nil {
		t.Fatal("missing model accepted")
	}
	e, err := NewOpenAIEmbedder(Config{APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimensions() != 1024 {
		t.Fatalf("default dimensions %d", e.Dimensions())
	}
}
