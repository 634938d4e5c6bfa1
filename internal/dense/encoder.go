package dense

import (
	"context"
	"hash/fnv"
)

// Encoder maps free text to a dense vector. The core never hardcodes a
// concrete sentence-transformer binding — the original prototype used
// pritamdeka/S-PubMedBert-MS-MARCO via sentence-transformers, which has
// no first-class Go equivalent, so this interface is the contract a real
// model server or in-process ONNX runtime would implement.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashEncoder is a deterministic, dependency-free stand-in encoder: it
// hashes each alphanumeric word into one bucket of a fixed-width vector
// (counting occurrences) and L2-normalizes the result. It produces no semantic signal, but it is
// stable, fast, and good enough to exercise the dense-search code paths
// in tests and in a from-scratch run without a real model — the same
// role Aman-CERP-amanmcp's hash-based embedder fallback plays when no
// real embedding model is configured.
type HashEncoder struct {
	dimension int
}

// NewHashEncoder builds a HashEncoder producing vectors of the given
// dimension.
func NewHashEncoder(dimension int) *HashEncoder {
	return &HashEncoder{dimension: dimension}
}

func (e *HashEncoder) Dimension() int { return e.dimension }

// Encode never errors; context is accepted only to satisfy the Encoder
// interface for drop-in replacement by a real, potentially blocking
// encoder.
func (e *HashEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	for _, word := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		idx := int(h.Sum32()) % e.dimension
		if idx < 0 {
			idx += e.dimension
		}
		vec[idx] += 1.0
	}
	normalizeVectorInPlace(vec)
	return vec, nil
}

func tokenize(text string) []string {
	var words []string
	var current []rune
	for _, r := range text {
		if isWordRune(r) {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			words = append(words, string(current))
			current = nil
		}
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return words
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
