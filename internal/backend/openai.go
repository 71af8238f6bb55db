package backend

import (
	"context"
	"fmt"

	"AgentConsole/internal/config"
	"AgentConsole/internal/session"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIRequest represents the request body for OpenAI-compatible APIs
type OpenAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

// OpenAIResponse represents the response from OpenAI-compatible APIs
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

// OpenAI talks to an OpenAI-compatible chat completions endpoint. Grok
// uses the same wire format.
type OpenAI struct {
	client
	cfg     config.OpenAIConfig
	history HistoryFunc
}

// NewOpenAI creates a backend called name for cfg's endpoint.
func NewOpenAI(name string, cfg config.OpenAIConfig, deps Deps) *OpenAI {
	return &OpenAI{
		client:  client{name: name, http: deps.HTTPClient, logger: deps.Logger},
		cfg:     cfg,
		history: deps.History,
	}
}

// SendMessage implements session.Backend.
func (o *OpenAI) SendMessage(ctx context.Context, content string, attachments []session.AttachedFile) (session.ChatMessage, error) {
	key, err := apiKey(o.cfg.APIKeyEnv)
	if err != nil {
		return session.ChatMessage{}, err
	}

	turns := conversation(o.history, promptText(content, attachments))
	messages := make([]openAIMessage, len(turns))
	for i, t := range turns {
		messages[i] = openAIMessage{Role: t.Role, Content: t.Content}
	}

	var apiResp OpenAIResponse
	err = o.postJSON(ctx, o.cfg.URL, map[string]string{"Authorization": "Bearer " + key},
		OpenAIRequest{Model: o.cfg.Model, Messages: messages}, &apiResp)
	if err != nil {
		return session.ChatMessage{}, err
	}

	o.recordUsage(ctx, apiResp.Usage)

	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return session.ChatMessage{}, fmt.Errorf("empty response from %s", o.name)
	}
	return reply(apiResp.Choices[0].Message.Content), nil
}
