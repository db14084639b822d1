package vectorstore

import "sort"

// Dot returns the inner product over the common prefix of a and b.
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Rank scores every vector against query and returns the positions and scores
// of the best topK, by descending score with ties kept in insertion order.
func Rank(query []float64, vectors [][]float64, topK int) ([]int, []float64) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	scores := make([]float64, len(vectors))
	idxs := make([]int, len(vectors))
	for i, v := range vectors {
		scores[i] = Dot(v, query)
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		return scores[idxs[a]] > scores[idxs[b]]
	})
	if topK > len(idxs) {
		topK = len(idxs)
	}
	idxs = idxs[:topK]
	top := make([]float64, len(idxs))
	for i, j := range idxs {
		top[i] = scores[j]
	}
	return idxs, top
}
