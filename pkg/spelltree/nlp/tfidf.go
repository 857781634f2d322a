package nlp

import "math"

// SparseVector is a TF-IDF weighted term vector with its L2 norm
// precomputed so similarity checks never recompute it.
type SparseVector struct {
	Weights map[string]float64
	Norm    float64
}

// ComputeTFIDF builds one sparse vector per document. IDF is smoothed as
// ln((N+1)/(DF+1)) + 1 so it stays positive even for terms present in
// every document. A document with no tokens yields a zero vector with
// norm 0; similarity against it resolves to 0 rather than dividing by it.
func ComputeTFIDF(documents [][]string) []SparseVector {
	n := len(documents)
	if n == 0 {
		return nil
	}

	// Document frequency per term.
	df := make(map[string]int)
	for _, doc := range documents {
		seen := make(map[string]struct{}, len(doc))
		for _, term := range doc {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	vectors := make([]SparseVector, n)
	for i, doc := range documents {
		weights := make(map[string]float64)
		if len(doc) > 0 {
			counts := make(map[string]int, len(doc))
			for _, term := range doc {
				counts[term]++
			}
			total := float64(len(doc))
			for term, count := range counts {
				tf := float64(count) / total
				idf := math.Log(float64(n+1)/float64(df[term]+1)) + 1
				weights[term] = tf * idf
			}
		}

		var sumSq float64
		for _, w := range weights {
			sumSq += w * w
		}
		vectors[i] = SparseVector{Weights: weights, Norm: math.Sqrt(sumSq)}
	}
	return vectors
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// iterating only the smaller term map. Returns 0 when either norm is 0.
func CosineSimilarity(a, b SparseVector) float64 {
	if a.Norm == 0 || b.Norm == 0 {
		return 0
	}

	small, large := a.Weights, b.Weights
	if len(large) < len(small) {
		small, large = large, small
	}

	var dot float64
	for term, w := range small {
		if other, ok := large[term]; ok {
			dot += w * other
		}
	}
	return dot / (a.Norm * b.Norm)
}
