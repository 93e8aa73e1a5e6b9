package embedding

import (
	"context"
	"math"
	"testing"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{1, 2, 3}
	sim, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sim-1) > 1e-9 {
		t.Fatalf("sim = %v, want ~1", sim)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sim) > 1e-9 {
		t.Fatalf("sim = %v, want 0", sim)
	}
}

func TestCosineSimilarity_ZeroMagnitude(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if sim != 0 {
		t.Fatalf("sim = %v, want 0 for a zero-magnitude vector", sim)
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); err == nil {
		t.Fatal("expected an error for mismatched dimensions")
	}
}

func TestFindTopK_OrdersDescending(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},   // orthogonal -> 0
		{1, 0},   // identical -> 1
		{0.5, 0.5}, // partial
	}
	results := FindTopK(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Index != 1 {
		t.Fatalf("top result index = %d, want 1 (identical vector)", results[0].Index)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Fatal("results not sorted descending")
	}
}

func TestMockEngine_Deterministic(t *testing.T) {
	e := NewMockEngine()
	v1, _ := e.Embed(context.Background(), "hello world")
	v2, _ := e.Embed(context.Background(), "hello world")
	if len(v1) != e.Dimensions() {
		t.Fatalf("len(v1) = %d, want %d", len(v1), e.Dimensions())
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("mock embedding not deterministic at index %d: %v != %v", i, v1[i], v2[i])
		}
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	v := []float32{0.5, -0.25, 1.0, -1.0, 0}
	blob := Serialize(v)
	got, err := Deserialize(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(v) {
		t.Fatalf("len = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("index %d: got %v, want %v", i, got[i], v[i])
		}
	}
}

func TestDeserialize_TruncatedBlob(t *testing.T) {
	if _, err := Deserialize([]byte{1, 2}); err == nil {
		t.Fatal("expected an error for a truncated blob")
	}
}

func TestDeserialize_LengthMismatch(t *testing.T) {
	blob := Serialize([]float32{1, 2, 3})
	truncated := blob[:len(blob)-4]
	if _, err := Deserialize(truncated); err == nil {
		t.Fatal("expected an error for a length-prefix mismatch")
	}
}
