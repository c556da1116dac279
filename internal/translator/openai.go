package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// ChatConfig configures the OpenAI-compatible chat backend.
type ChatConfig struct {
	// Model is the chat model name, e.g. "gpt-4o-mini".
	Model string `json:"model"`
	// APIKey authenticates against the endpoint.
	APIKey string `json:"api_key"`
	// BaseURL overrides the endpoint, for OpenAI-compatible providers.
	BaseURL string `json:"base_url,omitempty"`
}

// ChatService translates text runs through a chat model.
type ChatService struct {
	model model.BaseChatModel
	name  string
}

// NewChatService builds the eino chat model client from config.
func NewChatService(ctx context.Context, cfg *ChatConfig) (*ChatService, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "translation API key is not set", nil)
	}
	if cfg.Model == "" {
		return nil, types.NewAppError(types.ErrConfig, "translation model name is not set", nil)
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model client", err)
	}
	return &ChatService{model: cm, name: cfg.Model}, nil
}

// NewChatServiceWithModel wraps an existing chat model, for tests.
func NewChatServiceWithModel(m model.BaseChatModel, name string) *ChatService {
	return &ChatService{model: m, name: name}
}

// Translate submits one text run and returns the translated text. The run is
// a fragment of a larger document, so the prompt forbids any additions around
// it. An empty or refused response is a rejection, not a transport failure.
func (s *ChatService) Translate(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt(tctx)),
		schema.UserMessage(text),
	}

	resp, err := s.model.Generate(ctx, messages)
	if err != nil {
		return "", classifyAPIError(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", types.NewAppError(types.ErrTranslationRejected, "model returned an empty translation", nil)
	}

	logger.Debug("translated text run",
		logger.String("model", s.name),
		logger.Int("input_len", len(text)),
		logger.Int("output_len", len(resp.Content)))
	return resp.Content, nil
}

// systemPrompt renders the translation instructions, listing the project's
// own macro and environment names so the model leaves them untouched.
func systemPrompt(tctx *types.TranslationContext) string {
	var sb strings.Builder
	sb.WriteString("You are a professional translator for LaTeX documents. ")
	fmt.Fprintf(&sb, "Translate the user's text into %s.\n", tctx.TargetLanguage)
	sb.WriteString("Rules:\n")
	sb.WriteString("1. The input is a fragment of a LaTeX file. Output only the translation, with no explanations and no surrounding quotes.\n")
	sb.WriteString("2. Preserve every LaTeX command, brace, bracket, math delimiter, and comment marker exactly as written.\n")
	sb.WriteString("3. Preserve leading and trailing whitespace and line breaks.\n")
	if len(tctx.CommandNames) > 0 {
		fmt.Fprintf(&sb, "4. Never alter these project-defined commands: \\%s.\n",
			strings.Join(tctx.CommandNames, `, \`))
	}
	if len(tctx.EnvNames) > 0 {
		fmt.Fprintf(&sb, "5. Never alter these project-defined environment names: %s.\n",
			strings.Join(tctx.EnvNames, ", "))
	}
	return sb.String()
}

// classifyAPIError maps a transport error onto the application error
// taxonomy so the retry layer can tell transient failures from permanent
// ones.
func classifyAPIError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return types.NewAppError(types.ErrAPIRateLimit, "translation API rate limited", err)
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "temporarily") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return types.NewAppError(types.ErrNetwork, "translation API unreachable", err)
	default:
		return types.NewAppError(types.ErrAPICall, "translation API call failed", err)
	}
}
