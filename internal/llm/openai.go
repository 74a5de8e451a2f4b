package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

// OpenAIClient talks to any chat-completions endpoint that follows the
// OpenAI schema. The credential is sent as a bearer token.
type OpenAIClient struct {
	client   openai.Client
	endpoint string
}

func NewOpenAIClient(credential, endpoint string, httpClient *http.Client) (*OpenAIClient, error) {
	if credential == "" {
		return nil, apperr.Precondition("no API key configured")
	}
	if endpoint == "" {
		endpoint = store.DefaultEndpoint
	}

	opts := []option.RequestOption{
		option.WithAPIKey(credential),
		option.WithBaseURL(endpoint),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	logger.Debug("OpenAI client initialized", "endpoint", endpoint)
	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		endpoint: endpoint,
	}, nil
}

func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

func (c *OpenAIClient) Close() error { return nil }

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := WithPersona(req.Messages, req.Persona)

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(req.Temperature),
	}
	logger.Debug("Sending OpenAI request", "model", req.Model, "message_count", len(messages))

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI request failed", "error", err)
		return "", classifyOpenAIError(err)
	}

	if len(completion.Choices) == 0 {
		return "", apperr.Malformed("no choices in response", nil)
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", apperr.Malformed("empty reply", nil)
	}

	logger.Debug("OpenAI response received", "content_length", len(content))
	return content, nil
}

func toOpenAIMessages(messages []store.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case store.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case store.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		if apiErr.StatusCode == http.StatusUnauthorized {
			return apperr.InvalidCredential("the API key was rejected", err)
		}
		return apperr.RemoteRejected(apiErr.StatusCode, msg, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Network("request was cancelled or timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Network("could not reach the chat endpoint", err)
	}
	return apperr.Malformed("unexpected response from the chat endpoint", err)
}
