package service

import (
	"context"
	"fmt"

	"renterchat/internal/utils"

	"go.uber.org/zap"
)

// TextCompleter is the minimal language-model contract shared by the
// providers: one system prompt, one user prompt, one text answer
type TextCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// StreamChunk represents a generic streaming response chunk
type StreamChunk struct {
	// Regular content (always present in streaming)
	Content string

	// Thinking/reasoning content (provider-specific, e.g., DeepSeek)
	ThinkingContent string

	// Role (assistant, user, system)
	Role string

	// Whether this is the final chunk
	Done bool
}

// LLMAssistant implements ExtractionAssistant over any TextCompleter
type LLMAssistant struct {
	llm    TextCompleter
	logger *zap.Logger
}

// NewLLMAssistant creates an extraction assistant
func NewLLMAssistant(llm TextCompleter, logger *zap.Logger) *LLMAssistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAssistant{llm: llm, logger: logger}
}

// ExtractPreferences implements ExtractionAssistant
func (a *LLMAssistant) ExtractPreferences(ctx context.Context, message string) (*AssistedPreferences, error) {
	content, err := a.llm.Complete(ctx, extractionSystemPrompt, message)
	if err != nil {
		return nil, fmt.Errorf("%s extraction: %w", a.llm.Name(), err)
	}

	// Use robust JSON parser to handle various AI output formats
	var prefs AssistedPreferences
	if err := utils.DecodeModelJSON(content, &prefs); err != nil {
		a.logger.Debug("unparseable extraction answer", zap.String("content", content))
		return nil, fmt.Errorf("failed to parse extraction answer: %w", err)
	}

	if err := validateAssisted(&prefs); err != nil {
		return nil, fmt.Errorf("extraction answer validation failed: %w", err)
	}
	return &prefs, nil
}

// validateAssisted applies range rules the model is told about but may ignore
func validateAssisted(p *AssistedPreferences) error {
	if p.Bedrooms != nil && (*p.Bedrooms < 0 || *p.Bedrooms > 10) {
		return fmt.Errorf("bedrooms must be between 0 and 10")
	}
	if p.Budget != nil && *p.Budget < 0 {
		return fmt.Errorf("budget must not be negative")
	}
	return nil
}

// Ensure the providers implement the shared contracts
var (
	_ TextCompleter     = (*OpenAIClient)(nil)
	_ TextCompleter     = (*AnthropicClient)(nil)
	_ StreamingComposer = (*LLMComposer)(nil)
)
