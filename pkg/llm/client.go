package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client talks to any OpenAI-compatible chat completions endpoint.
type Client struct {
	config       *Config
	openaiClient *openai.Client
	logger       Logger
	retryHandler *RetryHandler
	httpClient   *http.Client
}

// ClientOption configures optional client behaviour.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger       Logger
	retry        *RetryHandler
	httpClient   *http.Client
	openaiClient *openai.Client
}

// WithLogger injects a custom logger implementation.
func WithLogger(logger Logger) ClientOption {
	return func(opts *clientOptions) {
		opts.logger = logger
	}
}

// WithRetryHandler injects a custom retry handler.
func WithRetryHandler(handler *RetryHandler) ClientOption {
	return func(opts *clientOptions) {
		opts.retry = handler
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *clientOptions) {
		opts.httpClient = client
	}
}

// WithOpenAIClient injects a pre-configured OpenAI client.
func WithOpenAIClient(client *openai.Client) ClientOption {
	return func(opts *clientOptions) {
		opts.openaiClient = client
	}
}

func collectOptions(cfg *Config, opts []ClientOption) clientOptions {
	state := clientOptions{}
	for _, opt := range opts {
		opt(&state)
	}
	if state.logger == nil {
		state.logger = NewLogger(cfg.LogLevel)
	}
	if state.retry == nil {
		state.retry = NewRetryHandler(RetryConfig{MaxRetries: cfg.MaxRetries})
	}
	return state
}

// NewClient constructs an OpenAI-compatible client.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("llm: config cannot be nil")
	}
	clientCfg := cfg.Clone()
	if clientCfg.Provider == "" {
		clientCfg.Provider = ProviderOpenAI
	}
	if err := clientCfg.Validate(); err != nil {
		return nil, err
	}

	state := collectOptions(clientCfg, opts)

	oaClient := state.openaiClient
	if oaClient == nil {
		oaOpts := []option.RequestOption{
			option.WithAPIKey(clientCfg.APIKey),
			option.WithBaseURL(clientCfg.BaseURL),
			// retries are owned by RetryHandler
			option.WithMaxRetries(0),
		}
		if clientCfg.Timeout > 0 {
			oaOpts = append(oaOpts, option.WithRequestTimeout(clientCfg.Timeout))
		}
		if state.httpClient != nil {
			oaOpts = append(oaOpts, option.WithHTTPClient(state.httpClient))
		}
		clientVal := openai.NewClient(oaOpts...)
		oaClient = &clientVal
	}

	return &Client{
		config:       clientCfg,
		openaiClient: oaClient,
		logger:       state.logger,
		retryHandler: state.retry,
		httpClient:   state.httpClient,
	}, nil
}

// Chat performs a single synchronous completion request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil {
		return nil, errors.New("llm: request cannot be nil")
	}
	params, modelID, err := c.buildChatParams(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	c.logger.Info(ctx, "llm chat request", Fields{
		"model":    modelID,
		"messages": len(req.Messages),
	})

	var completion *openai.ChatCompletion
	err = c.retryHandler.Do(ctx, func() error {
		resp, callErr := c.openaiClient.Chat.Completions.New(ctx, params)
		if callErr != nil {
			c.logger.Error(ctx, fmt.Errorf("chat completion failed: %w", callErr), Fields{
				"model": modelID,
			})
			return callErr
		}
		completion = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := convertCompletion(completion)
	c.logger.Info(ctx, "llm chat success", Fields{
		"model":             modelID,
		"duration_ms":       time.Since(start).Milliseconds(),
		"prompt_tokens":     result.Usage.PromptTokens,
		"completion_tokens": result.Usage.CompletionTokens,
	})
	return result, nil
}

// Generate implements Backend: the system prompt, an assistant priming turn
// and the user message are sent as one conversation.
func (c *Client) Generate(ctx context.Context, system, priming, user string) (string, error) {
	msgs := make([]Message, 0, 3)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	if strings.TrimSpace(priming) != "" {
		msgs = append(msgs, Message{Role: RoleAssistant, Content: priming})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: user})

	resp, err := c.Chat(ctx, &ChatRequest{Messages: msgs})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// GetConfig returns a copy of the client configuration.
func (c *Client) GetConfig() *Config {
	return c.config.Clone()
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func (c *Client) buildChatParams(req *ChatRequest) (openai.ChatCompletionNewParams, string, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, "", errors.New("llm: request requires at least one message")
	}

	modelID, modelCfg := c.config.ResolveModel(req.Model)
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: buildMessageParams(req.Messages),
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if modelCfg.Temperature != nil {
		params.Temperature = openai.Float(*modelCfg.Temperature)
	}
	if req.MaxCompletionTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxCompletionTokens))
	} else if modelCfg.MaxCompletionTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*modelCfg.MaxCompletionTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	} else if modelCfg.TopP != nil {
		params.TopP = openai.Float(*modelCfg.TopP)
	}
	return params, modelID, nil
}

func buildMessageParams(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case RoleSystem:
			result = append(result, openai.SystemMessage(m.Content))
		case RoleAssistant:
			result = append(result, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			param := openai.UserMessage(m.Content)
			if m.Name != "" && param.OfUser != nil {
				param.OfUser.Name = openai.String(m.Name)
			}
			result = append(result, param)
		}
	}
	return result
}

func convertCompletion(resp *openai.ChatCompletion) *ChatResponse {
	if resp == nil {
		return &ChatResponse{}
	}
	result := &ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
		RawJSON: resp.RawJSON(),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, choice := range resp.Choices {
		result.Choices = append(result.Choices, Choice{
			Index: int(choice.Index),
			Message: Message{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		})
	}
	return result
}
