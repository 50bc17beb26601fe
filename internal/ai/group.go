package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var errEmptyEmbedding = errors.New("empty embedding")

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupEmbedder struct {
	items []EmbedderEntry
}

// NewGroupEmbedder chains embedding providers: the first non-empty vector wins.
// Entries without an embedder are dropped; nil is returned when none remain.
func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	kept := make([]EmbedderEntry, 0, len(items))
	for _, item := range items {
		if item.Embedder == nil {
			continue
		}
		if item.Name == "" {
			item.Name = item.Embedder.ModelName()
		}
		kept = append(kept, item)
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0].Embedder
	}
	return &groupEmbedder{items: kept}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	errs := make([]error, 0, len(g.items))
	for _, item := range g.items {
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil && len(res) == 0 {
			err = errEmptyEmbedding
		}
		if err == nil {
			return res, nil
		}
		errs = append(errs, err)
		logutil.GetLogger(ctx).Warn("embedder failed, trying next",
			zap.String("name", item.Name), zap.String("task", taskType), zap.Error(err))
	}
	return nil, errors.Join(errs...)
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		names = append(names, item.Name)
	}
	return strings.Join(names, "|")
}
