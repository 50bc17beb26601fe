package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatSession struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type MessageMetadata struct {
	Model          string      `json:"model,omitempty"`
	Provider       string      `json:"provider,omitempty"`
	Usage          *TokenUsage `json:"usage,omitempty"`
	ContextSources int         `json:"contextSources"`
	SearchedWeb    bool        `json:"searchedWeb"`
	Sources        []WebResult `json:"sources"`
}

type ChatMessage struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	Seq       int64            `json:"-"`
	Timestamp int64            `json:"timestamp"`
}
