package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/maibvn/pal/internal/index"
	"github.com/maibvn/pal/internal/metrics"
	"github.com/maibvn/pal/internal/model"
	"github.com/maibvn/pal/internal/websearch"
)

const webFragmentSimilarity = 0.8

type WebSearcher interface {
	Available() bool
	Search(ctx context.Context, query string, maxResults int) ([]model.WebResult, error)
}

type RetrievalConfig struct {
	// Threshold is passed to the index as is.
	Threshold     float64
	ContextChunks int
	WebResults    int
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{Threshold: index.DefaultThreshold, ContextChunks: 3, WebResults: 3}
}

// RetrievalService assembles chat context: indexed chunks first, then the web, then nothing.
type RetrievalService struct {
	index *index.Index
	web   WebSearcher
	cfg   RetrievalConfig
}

func NewRetrievalService(idx *index.Index, web WebSearcher, cfg RetrievalConfig) *RetrievalService {
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = 3
	}
	if cfg.WebResults <= 0 {
		cfg.WebResults = 3
	}
	return &RetrievalService{index: idx, web: web, cfg: cfg}
}

// Retrieve never fails; every error degrades to the next source.
func (s *RetrievalService) Retrieve(ctx context.Context, query string) []model.ContextFragment {
	logger := logutil.GetLogger(ctx)
	hits := s.index.Search(ctx, query, s.cfg.ContextChunks, s.cfg.Threshold)
	if len(hits) > 0 {
		out := make([]model.ContextFragment, 0, len(hits))
		for _, h := range hits {
			out = append(out, model.ContextFragment{
				Content:    h.Content,
				DocumentID: h.DocumentID,
				Similarity: h.Similarity,
				Metadata: map[string]interface{}{
					"source":     "document",
					"chunkId":    h.ID,
					"chunkIndex": h.Metadata.ChunkIndex,
				},
			})
		}
		metrics.RetrievalTotal.WithLabelValues("document").Inc()
		logger.Debug("context from documents", zap.Int("fragments", len(out)))
		return out
	}
	if s.web == nil || !s.web.Available() {
		metrics.RetrievalTotal.WithLabelValues("none").Inc()
		return nil
	}
	results, err := s.web.Search(ctx, query, s.cfg.WebResults)
	if err != nil {
		logger.Warn("web search failed, continue without context", zap.Error(err))
		metrics.RetrievalTotal.WithLabelValues("none").Inc()
		return nil
	}
	if len(results) == 0 {
		metrics.RetrievalTotal.WithLabelValues("none").Inc()
		return nil
	}
	metrics.RetrievalTotal.WithLabelValues("web").Inc()
	logger.Info("context from web search", zap.Int("results", len(results)))
	return []model.ContextFragment{{
		Content:    websearch.FormatContext(results),
		DocumentID: model.WebSearchDocumentID,
		Similarity: webFragmentSimilarity,
		Metadata: map[string]interface{}{
			"source":  "web",
			"results": results,
		},
	}}
}

// WebSources returns the raw web results carried by fragments, if any.
func WebSources(fragments []model.ContextFragment) []model.WebResult {
	for _, f := range fragments {
		if !f.IsWeb() {
			continue
		}
		if results, ok := f.Metadata["results"].([]model.WebResult); ok {
			return results
		}
	}
	return []model.WebResult{}
}
