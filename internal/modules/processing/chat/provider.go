package chat

import (
	"context"
	"errors"
	neturl "net/url"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/itorigin/site/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 512
)

// Completer produces the assistant's next turn for a conversation.
type Completer interface {
	Complete(ctx context.Context, system string, turns []Message) (string, error)
}

type modelCompleter struct {
	model     jetapi.LanguageModel
	maxTokens int
}

// NewCompleter builds a Completer for the configured provider. It returns
// ErrDisabled when no API key is set.
func NewCompleter(cfg config.AIConfig) (Completer, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	model, err := buildLanguageModel(cfg)
	if err != nil {
		return nil, err
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &modelCompleter{model: model, maxTokens: maxTokens}, nil
}

func (m *modelCompleter) Complete(ctx context.Context, system string, turns []Message) (string, error) {
	resp, err := jetai.GenerateText(
		ctx,
		buildPromptMessages(system, turns),
		jetai.WithModel(m.model),
		jetai.WithMaxOutputTokens(m.maxTokens),
	)
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func buildPromptMessages(system string, turns []Message) []jetapi.Message {
	messages := make([]jetapi.Message, 0, len(turns)+1)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: system})
	}
	for _, t := range turns {
		if t.Role == RoleAssistant {
			messages = append(messages, &jetapi.AssistantMessage{Content: jetapi.ContentFromText(t.Content)})
			continue
		}
		messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(t.Content)})
	}
	return messages
}

func extractText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errors.New("empty response from AI")
	}
	var full strings.Builder
	for _, block := range resp.Content {
		text, ok := block.(*jetapi.TextBlock)
		if !ok || text.Text == "" {
			continue
		}
		full.WriteString(text.Text)
	}
	out := strings.TrimSpace(full.String())
	if out == "" {
		return "", errors.New("empty response from AI")
	}
	return out, nil
}

func buildLanguageModel(cfg config.AIConfig) (jetapi.LanguageModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrDisabled
	}
	modelID := strings.TrimSpace(cfg.Model)
	endpoint := strings.TrimSpace(cfg.Endpoint)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "anthropic":
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(1),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)), nil
	case "", "openai":
		if modelID == "" {
			modelID = defaultOpenAIModel
		}
		opts := []openaioption.RequestOption{
			openaioption.WithAPIKey(apiKey),
			openaioption.WithMaxRetries(1),
		}
		if base := normalizeOpenAIBaseURL(endpoint); base != "" {
			opts = append(opts, openaioption.WithBaseURL(base))
		}
		client := openaiclient.NewClient(opts...)
		return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client)), nil
	default:
		return nil, errors.New("unsupported ai provider " + cfg.Provider)
	}
}

// normalizeOpenAIBaseURL makes sure a custom endpoint ends in /v1.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}
	p := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(p, "/v1") {
		p += "/v1"
	}
	parsed.Path = p
	return strings.TrimRight(parsed.String(), "/")
}
