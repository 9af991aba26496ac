package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/rentalgenie/rental-genie-agent/agent/contract"
	promptx "github.com/rentalgenie/rental-genie-agent/agent/prompt"
)

// Config configures the OpenAI-backed response generator.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int64         `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"400"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.6"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// OpenAIResponder implements contract.ResponseGenerator.
type OpenAIResponder struct {
	client *openaisdk.Client
	cfg    Config
	system string
}

var _ contractx.ResponseGenerator = (*OpenAIResponder)(nil)

func NewOpenAIResponder(cfg Config) (*OpenAIResponder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openai api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: responder model is required", contractx.ErrValidation)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openaisdk.NewClient(opts...)
	return &OpenAIResponder{
		client: &client,
		cfg:    cfg,
		system: promptx.LoadPromptSet().Reply,
	}, nil
}

type replyPayload struct {
	Message string            `json:"message"`
	Known   map[string]string `json:"known_profile,omitempty"`
	Missing []string          `json:"missing_fields,omitempty"`
}

func (r *OpenAIResponder) Reply(ctx context.Context, text string, profile contractx.ProfileContext) (string, error) {
	payload, err := json.Marshal(replyPayload{
		Message: text,
		Known:   profile.Known,
		Missing: profile.Missing,
	})
	if err != nil {
		return "", fmt.Errorf("marshal reply payload: %w", err)
	}

	completion, err := r.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(r.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(r.system),
			openaisdk.UserMessage(string(payload)),
		},
		Temperature:         openaisdk.Float(r.cfg.Temperature),
		MaxCompletionTokens: openaisdk.Int(r.cfg.MaxCompletionToken),
	})
	if err != nil {
		return "", fmt.Errorf("reply completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("reply completion returned no choices")
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
