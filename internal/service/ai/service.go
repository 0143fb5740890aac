package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/parlohq/parlo/backend/internal/config"
	"github.com/parlohq/parlo/backend/internal/model/scenario"
)

// Service drives tutor conversations against the configured chat model.
type Service struct {
	chatModel model.ChatModel
	scenarios scenario.Store
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates an AI service backed by the provider in cfg.
func NewService(ctx context.Context, scenarios scenario.Store, cfg config.AIConfig) (*Service, error) {
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
		scenarios: scenarios,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// StreamingEnabled reports whether turns are answered token by token.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Open starts a new dialogue for the given scenario and runs the opening
// exchange so the tutor speaks first. Returns the dialogue handle and the
// opening line.
func (s *Service) Open(ctx context.Context, scenarioKey string) (*Dialogue, string, error) {
	dialogue := newDialogue(s.buildSystemPrompt(scenarioKey))

	reply, err := s.chain.Invoke(ctx, s.chainInput(dialogue, OpeningSentinel))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open dialogue: %w", err)
	}

	dialogue.Extend(OpeningSentinel, reply)
	log.Printf("[ai] opened dialogue=%s scenario=%s", dialogue.ID, scenarioKey)
	return dialogue, reply.Content, nil
}

// Reply generates a single-shot answer to a user turn. The caller extends the
// dialogue history once it has delivered the reply.
func (s *Service) Reply(ctx context.Context, dialogue *Dialogue, userText string) (*schema.Message, error) {
	reply, err := s.chain.Invoke(ctx, s.chainInput(dialogue, userText))
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}
	return reply, nil
}

// Stream answers a user turn as a lazy token stream. Each call produces one
// fresh stream; the caller extends the dialogue history from the concatenated
// result after the stream is drained.
func (s *Service) Stream(ctx context.Context, dialogue *Dialogue, userText string) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, s.chainInput(dialogue, userText))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

func (s *Service) chainInput(dialogue *Dialogue, userText string) map[string]any {
	const historyLimit = 20

	return map[string]any{
		"system":  dialogue.system,
		"history": dialogue.window(historyLimit),
		"query":   userText,
	}
}
