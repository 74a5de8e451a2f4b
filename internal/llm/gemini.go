package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

// GeminiClient serves models whose name starts with "gemini". The endpoint
// preference does not apply; the SDK talks to Google directly.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, credential string) (*GeminiClient, error) {
	if credential == "" {
		return nil, apperr.Precondition("no API key configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(credential))
	if err != nil {
		return nil, apperr.Network("failed to create Gemini client", err)
	}
	logger.Debug("Gemini client initialized")
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Provider() string { return ProviderGemini }

func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	system, history, last, err := toGeminiContents(WithPersona(req.Messages, req.Persona))
	if err != nil {
		return "", err
	}

	model := c.client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	chatSession := model.StartChat()
	chatSession.History = history

	logger.Debug("Sending Gemini request", "model", req.Model, "history", len(history))
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return "", classifyGeminiError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", apperr.Malformed("no candidates in response", nil)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			logger.Warn("Gemini response part was not text", "type", part)
		}
	}
	if responseText.Len() == 0 {
		return "", apperr.Malformed("empty reply", nil)
	}
	return responseText.String(), nil
}

// toGeminiContents splits an OpenAI-style message list into a system
// instruction, the prior turns and the final user turn.
func toGeminiContents(messages []store.Message) (string, []*genai.Content, *genai.Content, error) {
	var system []string
	var turns []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case store.RoleSystem:
			system = append(system, m.Content)
		case store.RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != "user" {
		return "", nil, nil, apperr.Precondition("the last message must come from the user")
	}
	last := turns[len(turns)-1]
	return strings.Join(system, "\n\n"), turns[:len(turns)-1], last, nil
}

func classifyGeminiError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		msg := gErr.Message
		if msg == "" {
			msg = http.StatusText(gErr.Code)
		}
		if gErr.Code == http.StatusUnauthorized || strings.Contains(msg, "API key not valid") {
			return apperr.InvalidCredential("the API key was rejected", err)
		}
		return apperr.RemoteRejected(gErr.Code, msg, err)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return apperr.RemoteRejected(0, "the reply was blocked by the provider", err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Network("request was cancelled or timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Network("could not reach Gemini", err)
	}
	return apperr.Malformed("unexpected response from Gemini", err)
}
