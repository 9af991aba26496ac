package extract

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

// Config configures the OpenAI-backed extractor. An empty BaseURL uses the
// SDK default; set it to route through a compatible gateway.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int64         `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"800"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.1"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// OpenAIExtractor implements contract.Extractor over chat completions with a
// JSON-only extraction prompt.
type OpenAIExtractor struct {
	client *openaisdk.Client
	cfg    Config
	system string
}

var _ contractx.Extractor = (*OpenAIExtractor)(nil)

func NewOpenAIExtractor(cfg Config) (*OpenAIExtractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openai api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: extractor model is required", contractx.ErrValidation)
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
	return &OpenAIExtractor{
		client: &client,
		cfg:    cfg,
		system: promptx.LoadPromptSet().Extractor,
	}, nil
}

type extractorPayload struct {
	Message string            `json:"message"`
	Known   map[string]string `json:"known_profile,omitempty"`
	Missing []string          `json:"missing_fields,omitempty"`
}

type extractorOutput struct {
	Fields            map[string]contractx.ExtractedField `json:"fields"`
	OverallConfidence float64                             `json:"overall_confidence"`
}

func (e *OpenAIExtractor) Extract(ctx context.Context, text string, profile contractx.ProfileContext) (contractx.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: empty input text", contractx.ErrExtraction)
	}

	payload, err := json.Marshal(extractorPayload{
		Message: text,
		Known:   profile.Known,
		Missing: profile.Missing,
	})
	if err != nil {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: marshal extractor payload: %v", contractx.ErrExtraction, err)
	}

	completion, err := e.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(e.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(e.system),
			openaisdk.UserMessage(string(payload)),
		},
		Temperature:         openaisdk.Float(e.cfg.Temperature),
		MaxCompletionTokens: openaisdk.Int(e.cfg.MaxCompletionToken),
	})
	if err != nil {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: %v", contractx.ErrExtraction, err)
	}
	if len(completion.Choices) == 0 {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: empty completion", contractx.ErrExtraction)
	}

	return parseExtractorOutput(completion.Choices[0].Message.Content)
}

// parseExtractorOutput tolerates code fences and leading prose around the
// JSON object; models are not always strict about "JSON only".
func parseExtractorOutput(content string) (contractx.ExtractionResult, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: no json object in model output", contractx.ErrExtraction)
	}

	var out extractorOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: decode model output: %v", contractx.ErrExtraction, err)
	}

	fields := make(map[string]contractx.ExtractedField, len(out.Fields))
	for name, field := range out.Fields {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" || strings.TrimSpace(field.Value) == "" {
			continue
		}
		if field.Confidence < 0 || field.Confidence > 1 {
			continue
		}
		fields[name] = contractx.ExtractedField{
			Value:      strings.TrimSpace(field.Value),
			Confidence: field.Confidence,
		}
	}

	confidence := out.OverallConfidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return contractx.ExtractionResult{
		Fields:            fields,
		OverallConfidence: confidence,
	}, nil
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
