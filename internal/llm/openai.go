package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI uses the chat completions API; images are sent as data URLs.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(opts Options) *OpenAI {
	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.Endpoint != "" {
		clientConfig.BaseURL = opts.Endpoint
	}
	if opts.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig), model: model}
}

func (o *OpenAI) Name() string { return "openai/" + o.model }

func (o *OpenAI) Generate(ctx context.Context, prompt string, images ...[]byte) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(images) == 0 {
		msg.Content = prompt
	} else {
		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
		for _, img := range images {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
		msg.MultiContent = parts
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:    "openai",
			Status:      apiErr.HTTPStatusCode,
			Err:         err,
			Unreachable: apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden || apiErr.HTTPStatusCode >= 500,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: "openai", Status: reqErr.HTTPStatusCode, Err: err, Unreachable: true}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &ProviderError{Provider: "openai", Err: err, Unreachable: true}
}
