// Package vecutil builds pgvector-compatible literal strings and sanitizes
// embedding vectors before they reach storage.
package vecutil

import (
	"math"
	"strconv"
	"strings"
)

// ToVecLiteral formats v as a pgvector input literal: "[x1,x2,...]" with
// each element rendered to 8 decimal digits, matching the literal shape the
// Postgres vector column expects.
func ToVecLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', 8, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// NormalizeVector replaces NaN/Inf elements with 0 so a single bad
// embedding value can't corrupt a vector literal or a similarity score.
func NormalizeVector(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			out[i] = 0
			continue
		}
		out[i] = f
	}
	return out
}

// Dimension returns len(v), 0 for nil, for readability at call sites that
// validate embedder output against a configured dimension.
func Dimension(v []float32) int { return len(v) }
