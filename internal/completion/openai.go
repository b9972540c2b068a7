package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"joke_contest/internal/domain"
)

const defaultCallTimeout = 60 * time.Second

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
	// Options are appended after the ones derived from the fields above.
	Options []option.RequestOption
}

// OpenAI implements Service with chat completions and a strict json_schema
// response format.
type OpenAI struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openai api key missing", domain.ErrConfiguration)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: openai model is required", domain.ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	// retries belong to the Retry wrapper, not the SDK
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)
	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.Instructions),
	}
	for _, turn := range req.Conversation {
		switch turn.Role {
		case domain.TurnRoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(turn.Content))
		default:
			msgs = append(msgs, openai.UserMessage(turn.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	}
	if req.Schema.Definition != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: openai.String(req.Schema.Description),
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	resp, err := o.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("openai call timed out after %s: %w", o.timeout, err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("openai refused: %s", choice.Message.Refusal)
	}
	o.logger.Debug("completion finished", "schema", req.Schema.Name, "model", o.model, "elapsed", time.Since(started))
	return choice.Message.Content, nil
}
