package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/infra/ai/prompt"
)

const maxTokens = 4096

type Client struct {
	*openai.Client
	// Model overrides the per-mode model when set
	Model string
}

func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func (c *Client) Analyze(ctx context.Context, req ai.Request) (*ai.RawAnalysis, error) {
	mode := ai.ConfigFor(req.Mode)
	model := mode.Model
	if c.Model != "" {
		model = c.Model
	}

	limit := req.MaxChars
	if limit <= 0 || limit > mode.MaxChars {
		limit = mode.MaxChars
	}
	doc := req
	doc.Text = truncateRunes(req.Text, limit)

	system := prompt.GetSystemPrompt(mode.Mode)
	if req.CustomPrompt != "" {
		system = req.CustomPrompt
	}

	chat := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(doc)},
		},
	}
	// reasoning models take MaxCompletionTokens and reject temperature
	if isReasoningModel(model) {
		chat.MaxCompletionTokens = maxTokens
	} else {
		chat.MaxTokens = maxTokens
		chat.Temperature = mode.Temperature
	}

	resp, err := c.CreateChatCompletion(ctx, chat)
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.New(apperr.KindInvalid, "empty completion from model")
	}
	log.Debug().Str("model", model).Int("tokens", resp.Usage.TotalTokens).Msg("openai completion")

	raw, err := prompt.ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "invalid response from model", err)
	}
	return raw, nil
}

func mapError(err error) error {
	status := 0
	code := ""
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests && code == "insufficient_quota":
		return ai.ErrQuotaExceeded
	case status == http.StatusTooManyRequests:
		return apperr.RateLimited("model rate limit reached", 0)
	case status == http.StatusUnauthorized:
		return apperr.Wrap(apperr.KindAuth, "openai rejected the api key", err)
	case status == 0:
		kind := apperr.KindOf(err)
		if kind == apperr.KindUnknown {
			kind = apperr.KindNetwork
		}
		return apperr.Wrap(kind, "openai unreachable", err)
	}
	return apperr.Wrap(apperr.KindUnknown, fmt.Sprintf("openai returned %d", status), err)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
