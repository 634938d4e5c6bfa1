package dense

import (
	"context"
	"testing"
)

func TestLoadMissingArtifactsIsNotReadyNotError(t *testing.T) {
	idx := Load("/nonexistent/graph.hnsw", "/nonexistent/meta.json")
	if idx.Ready() {
		t.Fatalf("expected not-ready index for missing artifacts")
	}
	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search on not-ready index must not error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results from not-ready index, got %v", results)
	}
}

func TestNewInMemorySearchReturnsNearestFirst(t *testing.T) {
	enc := NewHashEncoder(8)
	vecA, _ := enc.Encode(context.Background(), "non small cell lung cancer egfr")
	vecB, _ := enc.Encode(context.Background(), "breast cancer tamoxifen")

	idx, err := NewInMemory(8, "hash-test", []string{"NCT001", "NCT002"}, [][]float32{vecA, vecB})
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	if !idx.Ready() {
		t.Fatalf("expected ready index")
	}

	query, _ := enc.Encode(context.Background(), "non small cell lung cancer egfr mutation")
	results, err := idx.Search(context.Background(), query, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].NCTID != "NCT001" {
		t.Errorf("expected NCT001 as nearest, got %s", results[0].NCTID)
	}
}

func TestDimensionMismatchIsTypedError(t *testing.T) {
	idx, err := NewInMemory(4, "test", []string{"NCT001"}, [][]float32{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	_, err = idx.Search(context.Background(), []float32{1, 0}, 1)
	if err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
	var mismatch ErrDimensionMismatch
	if !asDimensionMismatch(err, &mismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %T: %v", err, err)
	}
}

func asDimensionMismatch(err error, target *ErrDimensionMismatch) bool {
	if m, ok := err.(ErrDimensionMismatch); ok {
		*target = m
		return true
	}
	return false
}
