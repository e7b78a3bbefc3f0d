package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/brightdoor/brokerchat/internal/config"
	"github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// CompletionRequest carries everything the model needs for one reply.
type CompletionRequest struct {
	SessionID  string
	UserText   string
	Attachment string
	History    []chat.Message
}

// CompletionResult is the parsed model reply: the text plus whatever
// structured extras the envelope carried.
type CompletionResult struct {
	Text        string
	RichContent *chat.RichContent
	Suggestions []string
	Entities    []entity.Detected
}

// Completer is the AI completion capability consumed by the dispatcher.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Service implements Completer over an eino prompt+model chain.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the completion service from the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// GetChatModel returns the underlying chat model, shared with the detector.
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

// Complete runs one assistant turn and parses the structured envelope.
func (s *Service) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	input := map[string]any{
		"system":  assistantSystemPrompt,
		"history": buildHistoryMessages(req.History, s.cfg.HistoryLimit),
		"query":   buildQuery(req.UserText, req.Attachment),
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("failed to run assistant chain: %w", err)
	}

	result := parseEnvelope(response.Content)
	log.Printf("[ai] generated response for session=%s length=%d suggestions=%d",
		req.SessionID, len(result.Text), len(result.Suggestions))
	return result, nil
}

func buildQuery(userText, attachment string) string {
	if attachment == "" {
		return userText
	}
	return fmt.Sprintf("%s\n\n[attached file: %s]", userText, attachment)
}

func buildHistoryMessages(messages []chat.Message, limit int) []*schema.Message {
	if limit <= 0 {
		limit = 10
	}
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch chat.NormalizeRole(msg.Role) {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAI:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
