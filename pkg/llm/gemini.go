package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient generates replies through the Gemini API.
type GeminiClient struct {
	config       *Config
	client       *genai.Client
	logger       Logger
	retryHandler *RetryHandler
}

// NewGeminiClient constructs a Gemini backend. BaseURL, when set, replaces
// the public endpoint.
func NewGeminiClient(ctx context.Context, cfg *Config, opts ...ClientOption) (*GeminiClient, error) {
	if cfg == nil {
		return nil, errors.New("llm: config cannot be nil")
	}
	clientCfg := cfg.Clone()
	if clientCfg.Provider == "" {
		clientCfg.Provider = ProviderGemini
	}
	if err := clientCfg.Validate(); err != nil {
		return nil, err
	}
	state := collectOptions(clientCfg, opts)

	gcfg := &genai.ClientConfig{
		APIKey:  clientCfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(clientCfg.BaseURL); base != "" {
		gcfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	if state.httpClient != nil {
		gcfg.HTTPClient = state.httpClient
	}
	client, err := genai.NewClient(ctx, gcfg)
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}

	return &GeminiClient{
		config:       clientCfg,
		client:       client,
		logger:       state.logger,
		retryHandler: state.retry,
	}, nil
}

// Generate implements Backend. The system prompt and priming reply are sent
// as the opening user and model turns of the conversation.
func (g *GeminiClient) Generate(ctx context.Context, system, priming, user string) (string, error) {
	modelID, modelCfg := g.config.ResolveModel("")

	contents := make([]*genai.Content, 0, 3)
	if strings.TrimSpace(system) != "" {
		contents = append(contents, genai.NewContentFromText(system, genai.RoleUser))
		if strings.TrimSpace(priming) != "" {
			contents = append(contents, genai.NewContentFromText(priming, genai.RoleModel))
		}
	}
	contents = append(contents, genai.NewContentFromText(user, genai.RoleUser))

	var genCfg *genai.GenerateContentConfig
	if modelCfg.Temperature != nil || modelCfg.TopP != nil {
		genCfg = &genai.GenerateContentConfig{}
		if modelCfg.Temperature != nil {
			genCfg.Temperature = genai.Ptr(float32(*modelCfg.Temperature))
		}
		if modelCfg.TopP != nil {
			genCfg.TopP = genai.Ptr(float32(*modelCfg.TopP))
		}
	}

	start := time.Now()
	g.logger.Info(ctx, "gemini generate request", Fields{
		"model": modelID,
		"turns": len(contents),
	})

	var text string
	err := g.retryHandler.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
		resp, callErr := g.client.Models.GenerateContent(callCtx, modelID, contents, genCfg)
		if callErr != nil {
			g.logger.Error(ctx, fmt.Errorf("gemini generate failed: %w", callErr), Fields{"model": modelID})
			return callErr
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}

	g.logger.Info(ctx, "gemini generate success", Fields{
		"model":       modelID,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return text, nil
}
