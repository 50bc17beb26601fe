package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const systemInstructionPrefix = "System Instructions: "

type geminiConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Timeout int    `json:"timeout"`
}

type geminiProvider struct {
	cfg geminiConfig

	mu     sync.Mutex
	client *genai.Client
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  newHTTPClient(p.cfg.Timeout),
		HTTPOptions: genai.HTTPOptions{BaseURL: p.cfg.BaseURL},
	})
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *geminiProvider) Chat(ctx context.Context, model string, messages []Message, params GenerateParams) (*Completion, error) {
	if p.cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateContent(ctx, model, toGeminiContents(messages), toGeminiConfig(params))
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("no content in gemini response")
	}
	out := &Completion{Content: text, Model: model, Provider: p.Name()}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if p.cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}
	var config *genai.EmbedContentConfig
	if taskType != "" {
		config = &genai.EmbedContentConfig{
			TaskType: taskType,
		}
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

// toGeminiContents reshapes a role-tagged conversation into user/model turns.
// System messages become user turns carrying the instruction prefix.
func toGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role, text string
		switch msg.Role {
		case RoleSystem:
			role, text = genai.RoleUser, systemInstructionPrefix+msg.Content
		case RoleUser:
			role, text = genai.RoleUser, msg.Content
		case RoleAssistant:
			role, text = genai.RoleModel, msg.Content
		default:
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}})
	}
	return contents
}

func toGeminiConfig(params GenerateParams) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(params.MaxTokens),
	}
	if params.Temperature > 0 {
		cfg.Temperature = f32(params.Temperature)
	}
	if params.TopP > 0 {
		cfg.TopP = f32(params.TopP)
	}
	if params.TopK > 0 {
		cfg.TopK = f32(float64(params.TopK))
	}
	return cfg
}

func f32(v float64) *float32 {
	out := float32(v)
	return &out
}

func createGeminiFactory(args interface{}) (IProvider, error) {
	cfg := geminiConfig{}
	if err := decodeConfig(args, &cfg); err != nil {
		return nil, err
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	return &geminiProvider{cfg: cfg}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
