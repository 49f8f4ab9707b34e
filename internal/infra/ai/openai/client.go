package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/codesight/internal/domain/ai"
	"github.com/bryanwahyu/codesight/internal/infra/ai/prompt"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o-mini"
)

type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// NewClientWithBaseURL points the client at an OpenAI-compatible endpoint.
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// Analyze sends one analysis request and validates the JSON answer.
func (c *Client) Analyze(ctx context.Context, req ai.AnalysisRequest) (ai.AnalysisResult, error) {
	user, err := prompt.GetUserPrompt(req)
	if err != nil {
		return ai.AnalysisResult{}, err
	}
	content, err := c.complete(ctx, prompt.GetSystemPrompt(), user)
	if err != nil {
		return ai.AnalysisResult{}, err
	}

	var out prompt.Suggestion
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return ai.AnalysisResult{}, fmt.Errorf("%w: %v", ai.ErrInvalidResponse, err)
	}
	var missing []string
	if strings.TrimSpace(out.Explanation) == "" {
		missing = append(missing, "explanation")
	}
	if strings.TrimSpace(out.TimeComplexity) == "" {
		missing = append(missing, "timeComplexity")
	}
	if strings.TrimSpace(out.SpaceComplexity) == "" {
		missing = append(missing, "spaceComplexity")
	}
	if len(missing) > 0 {
		return ai.AnalysisResult{}, fmt.Errorf("%w: missing %s", ai.ErrInvalidResponse, strings.Join(missing, ", "))
	}

	return ai.AnalysisResult{
		Explanation:            out.Explanation,
		TimeComplexity:         out.TimeComplexity,
		SpaceComplexity:        out.SpaceComplexity,
		ImprovementSuggestions: strings.TrimSpace(out.ImprovementSuggestions),
	}, nil
}

// CheckLanguage asks the model whether the code matches the expected language.
func (c *Client) CheckLanguage(ctx context.Context, req ai.LanguageCheckRequest) (ai.LanguageCheckResult, error) {
	user, err := prompt.GetLanguagePrompt(req)
	if err != nil {
		return ai.LanguageCheckResult{}, err
	}
	content, err := c.complete(ctx, prompt.GetLanguageSystemPrompt(), user)
	if err != nil {
		return ai.LanguageCheckResult{}, err
	}

	var out prompt.LanguageVerdict
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return ai.LanguageCheckResult{}, fmt.Errorf("%w: %v", ai.ErrInvalidResponse, err)
	}
	if out.IsValid == nil {
		return ai.LanguageCheckResult{}, fmt.Errorf("%w: missing isValid", ai.ErrInvalidResponse)
	}
	return ai.LanguageCheckResult{
		IsValid:          *out.IsValid,
		DetectedLanguage: strings.TrimSpace(out.DetectedLanguage),
		Reasoning:        out.Reasoning,
	}, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuota(err) {
			return "", fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ai.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func isQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}
