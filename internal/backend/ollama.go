package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"AgentConsole/internal/config"
	"AgentConsole/internal/session"
)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount float64       `json:"prompt_eval_count"`
	EvalCount       float64       `json:"eval_count"`
}

// OllamaTagsResponse represents the response from Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Ollama talks to a local Ollama server.
type Ollama struct {
	client
	url     string
	history HistoryFunc

	mu    sync.RWMutex
	model string
}

// NewOllama creates an Ollama backend.
func NewOllama(cfg config.OllamaConfig, deps Deps) *Ollama {
	return &Ollama{
		client:  client{name: config.BackendOllama, http: deps.HTTPClient, logger: deps.Logger},
		url:     strings.TrimRight(cfg.URL, "/"),
		history: deps.History,
		model:   cfg.Model,
	}
}

// Model returns the model used for chat.
func (o *Ollama) Model() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.model
}

// SetModel switches the chat model, e.g. "llama3:latest".
func (o *Ollama) SetModel(model string) {
	o.mu.Lock()
	o.model = model
	o.mu.Unlock()
}

// SendMessage implements session.Backend.
func (o *Ollama) SendMessage(ctx context.Context, content string, attachments []session.AttachedFile) (session.ChatMessage, error) {
	turns := conversation(o.history, promptText(content, attachments))
	messages := make([]ollamaMessage, len(turns))
	for i, t := range turns {
		messages[i] = ollamaMessage{Role: t.Role, Content: t.Content}
	}

	var apiResp OllamaResponse
	err := o.postJSON(ctx, o.url+"/api/chat", nil, OllamaRequest{
		Model:    o.Model(),
		Messages: messages,
		Stream:   false,
	}, &apiResp)
	if err != nil {
		return session.ChatMessage{}, err
	}

	o.recordUsage(ctx, map[string]any{
		"prompt_tokens":     apiResp.PromptEvalCount,
		"completion_tokens": apiResp.EvalCount,
	})

	if apiResp.Message.Content == "" {
		return session.ChatMessage{}, fmt.Errorf("empty response from Ollama")
	}
	return reply(apiResp.Message.Content), nil
}

// ListModels fetches the models installed in Ollama.
func (o *Ollama) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var tagsResp OllamaTagsResponse
	if err := json.Unmarshal(body, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return tagsResp.Models, nil
}
