// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"math"
	"strings"
)

// Embedder turns text into a vector and compares two vectors.
//
// # Description
//
// The store only depends on this interface, so a real embedding service can
// replace KeywordEmbedder without touching search or scoring.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(text string) []float64
	Similarity(a, b []float64) float64
}

// keywordVocabulary is the fixed feature space of KeywordEmbedder. The
// order defines vector positions.
var keywordVocabulary = []string{
	"temperatura", "clorofilla", "onde", "ph", "salinità", "biodiversità",
	"posidonia", "conservazione", "mer", "ispra", "qualità", "inquinamento",
}

// KeywordEmbedder is a bag-of-keywords feature vector: component i is the
// number of non-overlapping occurrences of vocabulary term i in the
// lower-cased text.
type KeywordEmbedder struct{}

// Embed implements Embedder.
func (KeywordEmbedder) Embed(text string) []float64 {
	lower := strings.ToLower(text)
	v := make([]float64, len(keywordVocabulary))
	for i, term := range keywordVocabulary {
		v[i] = float64(strings.Count(lower, term))
	}
	return v
}

// Similarity is cosine similarity. It is 0 when either vector has zero
// norm or the lengths differ.
func (KeywordEmbedder) Similarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
