package ai

import (
	"context"
	"math"
	"regexp"
	"strings"
)

const (
	HashEmbeddingDims  = 384
	HashEmbeddingModel = "local-hash-384"
)

var nonWordPattern = regexp.MustCompile(`[^A-Za-z0-9_]+`)

type hashEmbedder struct{}

// NewHashEmbedder returns the deterministic local embedder used when no provider can answer.
func NewHashEmbedder() IEmbedder {
	return hashEmbedder{}
}

func (hashEmbedder) Embed(_ context.Context, text string, _ string) ([]float32, error) {
	return HashEmbedding(text), nil
}

func (hashEmbedder) ModelName() string {
	return HashEmbeddingModel
}

// HashEmbedding accumulates character codes shifted by word position into 384 buckets and L2-normalises.
func HashEmbedding(text string) []float32 {
	acc := make([]float64, HashEmbeddingDims)
	index := 0
	for _, word := range nonWordPattern.Split(strings.ToLower(text), -1) {
		if len(word) <= 2 {
			continue
		}
		for i := 0; i < len(word); i++ {
			acc[(int(word[i])+index)%HashEmbeddingDims]++
		}
		index++
	}
	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	out := make([]float32, HashEmbeddingDims)
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}
