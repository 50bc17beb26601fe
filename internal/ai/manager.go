package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maibvn/pal/internal/metrics"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ManagerConfig struct {
	Model   string
	Timeout int
	Params  GenerateParams
}

// Manager owns the selected chat provider and the embedder chain.
type Manager struct {
	provider IProvider
	embedder IEmbedder
	cfg      ManagerConfig
}

func NewManager(provider IProvider, embedder IEmbedder, cfg ManagerConfig) *Manager {
	if embedder == nil {
		embedder = NewHashEmbedder()
	}
	return &Manager{provider: provider, embedder: embedder, cfg: cfg}
}

// Embed never fails: any error from the configured chain degrades to the local hash embedding.
func (m *Manager) Embed(ctx context.Context, text string, taskType string) []float32 {
	vec, err := m.embedder.Embed(ctx, text, taskType)
	if err == nil && len(vec) > 0 {
		return vec
	}
	logutil.GetLogger(ctx).Warn("embedding provider failed, use local hash embedding",
		zap.String("embedder", m.embedder.ModelName()), zap.Error(err))
	metrics.EmbeddingFallbackTotal.Inc()
	return HashEmbedding(text)
}

// Reply generates the assistant turn for history grounded by references.
// Provider errors are returned as is; there is no cross-provider fallback.
func (m *Manager) Reply(ctx context.Context, history []Message, references []string) (*Completion, error) {
	if m.provider == nil {
		return nil, fmt.Errorf("chat provider not configured: %w", ErrUnavailable)
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	messages := BuildMessages(history, references)
	start := time.Now()
	out, err := m.provider.Chat(ctx, m.cfg.Model, messages, m.cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", m.provider.Name(), err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, fmt.Errorf("%s generate: empty ai response", m.provider.Name())
	}
	logutil.GetLogger(ctx).Debug("reply generated",
		zap.String("provider", out.Provider),
		zap.String("model", out.Model),
		zap.Int("messages", len(messages)),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("cost", time.Since(start)),
	)
	return out, nil
}

func (m *Manager) ProviderName() string {
	if m.provider == nil {
		return ""
	}
	return m.provider.Name()
}

func (m *Manager) Model() string {
	return m.cfg.Model
}

func (m *Manager) EmbeddingModelName() string {
	return m.embedder.ModelName()
}
