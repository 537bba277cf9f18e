package llm

import "math"

const embedDims = 128

// Embed vectorizes text deterministically: the same input always yields the
// same vector. The vectors are only ever compared to each other with Cosine,
// so a local character-derived embedding is sufficient for confidence
// scoring and keeps enrichment fully offline.
func (c *Client) Embed(text string) []float64 {
	n := len(text)
	if n > embedDims {
		n = embedDims
	}
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = float64(text[i]%97) / 97.0
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or zero-length in magnitude.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, x := range a {
		magA += x * x
	}
	for _, x := range b {
		magB += x * x
	}
	denom := math.Sqrt(magA * magB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
