package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/maibvn/pal/internal/ai"
	"github.com/maibvn/pal/internal/metrics"
	"github.com/maibvn/pal/internal/model"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
	"github.com/maibvn/pal/internal/repo"
)

const (
	sessionTitleChars = 50
	lastMessageChars  = 100
)

// Generator produces the assistant reply for a conversation.
type Generator interface {
	Reply(ctx context.Context, history []ai.Message, references []string) (*ai.Completion, error)
	ProviderName() string
}

type ChatService struct {
	sessions  *repo.ChatSessionRepo
	messages  *repo.ChatMessageRepo
	retrieval *RetrievalService
	generator Generator
	now       func() time.Time
}

func NewChatService(sessions *repo.ChatSessionRepo, messages *repo.ChatMessageRepo, retrieval *RetrievalService, generator Generator) *ChatService {
	return &ChatService{
		sessions:  sessions,
		messages:  messages,
		retrieval: retrieval,
		generator: generator,
		now:       time.Now,
	}
}

type ChatReplyMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type ChatContextInfo struct {
	DocumentsUsed int               `json:"documentsUsed"`
	WebSearchUsed bool              `json:"webSearchUsed"`
	Sources       []model.WebResult `json:"sources"`
}

type ChatResult struct {
	SessionID string            `json:"sessionId"`
	Message   ChatReplyMessage  `json:"message"`
	Context   ChatContextInfo   `json:"context"`
	Usage     *model.TokenUsage `json:"usage"`
}

type LastMessage struct {
	Content   string `json:"content"`
	Role      string `json:"role"`
	Timestamp int64  `json:"timestamp"`
}

type SessionSummary struct {
	model.ChatSession
	MessageCount int          `json:"messageCount"`
	LastMessage  *LastMessage `json:"lastMessage"`
}

type SessionDetail struct {
	model.ChatSession
	Messages []*model.ChatMessage `json:"messages"`
}

// Send runs one chat turn. A new session is created when sessionID is empty. If generation
// fails the user message stays persisted and no assistant message is written.
func (s *ChatService) Send(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("message is required and must be a non-empty string: %w", appErr.ErrInvalid)
	}
	start := s.now()
	session, err := s.openSession(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", session.ID))

	userMsg := &model.ChatMessage{
		ID:        newID(),
		SessionID: session.ID,
		Role:      model.RoleUser,
		Content:   message,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}
	history, err := s.messages.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	fragments := s.retrieval.Retrieve(ctx, message)
	references := make([]string, 0, len(fragments))
	docsUsed, webUsed := 0, false
	for _, f := range fragments {
		references = append(references, f.Content)
		if f.IsWeb() {
			webUsed = true
			continue
		}
		docsUsed++
	}
	sources := WebSources(fragments)

	completion, err := s.generator.Reply(ctx, toAIMessages(history), references)
	metrics.ObserveChat(s.generator.ProviderName(), err, s.now().Sub(start))
	if err != nil {
		logger.Error("generate reply failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", appErr.ErrGeneration, err)
	}

	usage := &model.TokenUsage{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}
	reply := &model.ChatMessage{
		ID:        newID(),
		SessionID: session.ID,
		Role:      model.RoleAssistant,
		Content:   completion.Content,
		Metadata: &model.MessageMetadata{
			Model:          completion.Model,
			Provider:       completion.Provider,
			Usage:          usage,
			ContextSources: len(fragments),
			SearchedWeb:    webUsed,
			Sources:        sources,
		},
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.messages.Append(ctx, reply); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}
	if err := s.sessions.Touch(ctx, session.ID, reply.Timestamp); err != nil {
		logger.Warn("touch session failed", zap.Error(err))
	}
	logger.Info("chat reply generated",
		zap.String("provider", completion.Provider),
		zap.String("model", completion.Model),
		zap.Int("documents_used", docsUsed),
		zap.Bool("web_search_used", webUsed),
	)
	return &ChatResult{
		SessionID: session.ID,
		Message: ChatReplyMessage{
			ID:        reply.ID,
			Role:      reply.Role,
			Content:   reply.Content,
			Timestamp: reply.Timestamp,
		},
		Context: ChatContextInfo{
			DocumentsUsed: docsUsed,
			WebSearchUsed: webUsed,
			Sources:       sources,
		},
		Usage: usage,
	}, nil
}

func (s *ChatService) openSession(ctx context.Context, sessionID, message string) (*model.ChatSession, error) {
	if sessionID != "" {
		return s.sessions.GetByID(ctx, sessionID)
	}
	now := s.now().UnixMilli()
	session := &model.ChatSession{
		ID:        newID(),
		Title:     truncate(message, sessionTitleChars),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("chat session created", zap.String("session_id", session.ID))
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context) ([]*SessionSummary, error) {
	items, err := s.sessions.ListWithSummary(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*SessionSummary, 0, len(items))
	for _, item := range items {
		summary := &SessionSummary{ChatSession: item.ChatSession, MessageCount: item.MessageCount}
		if item.MessageCount > 0 {
			summary.LastMessage = &LastMessage{
				Content:   truncate(item.LastMessage, lastMessageChars),
				Role:      item.LastRole,
				Timestamp: item.LastAt,
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *ChatService) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*model.ChatMessage{}
	}
	return &SessionDetail{ChatSession: *session, Messages: messages}, nil
}

func (s *ChatService) RenameSession(ctx context.Context, id, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", appErr.ErrInvalid)
	}
	if err := s.sessions.UpdateTitle(ctx, id, title, s.now().UnixMilli()); err != nil {
		return nil, err
	}
	return s.sessions.GetByID(ctx, id)
}

func (s *ChatService) DeleteSession(ctx context.Context, id string) error {
	return s.sessions.Delete(ctx, id)
}

func toAIMessages(history []*model.ChatMessage) []ai.Message {
	out := make([]ai.Message, 0, len(history))
	for _, m := range history {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
