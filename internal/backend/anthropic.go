package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"AgentConsole/internal/config"
	"AgentConsole/internal/session"
)

const anthropicVersion = "2023-06-01"

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []AnthropicMessage `json:"messages"`
	Tools     []AnthropicTool    `json:"tools,omitempty"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []AnthropicContent
}

// AnthropicContent represents different content types (text, tool_use, tool_result)
type AnthropicContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`          // tool_use
	Name      string         `json:"name,omitempty"`        // tool_use
	Input     map[string]any `json:"input,omitempty"`       // tool_use
	ToolUseID string         `json:"tool_use_id,omitempty"` // tool_result
	Content   any            `json:"content,omitempty"`     // tool_result
	IsError   bool           `json:"is_error,omitempty"`    // tool_result
}

// AnthropicTool represents a tool definition
type AnthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// AnthropicResponse represents the response from Anthropic API
type AnthropicResponse struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Role         string             `json:"role"`
	Content      []AnthropicContent `json:"content"`
	Model        string             `json:"model"`
	StopReason   string             `json:"stop_reason"`
	StopSequence string             `json:"stop_sequence"`
	Usage        map[string]any     `json:"usage"`
}

// Anthropic talks to the Messages API and runs MCP tools on request.
type Anthropic struct {
	client
	cfg     config.AnthropicConfig
	history HistoryFunc
	tools   ToolProvider
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(cfg config.AnthropicConfig, deps Deps) *Anthropic {
	return &Anthropic{
		client:  client{name: config.BackendAnthropic, http: deps.HTTPClient, logger: deps.Logger},
		cfg:     cfg,
		history: deps.History,
		tools:   deps.Tools,
	}
}

// SendMessage implements session.Backend. While the model stops for
// tool_use, the requested tools are invoked and their results sent back,
// for at most MaxToolRounds rounds.
func (a *Anthropic) SendMessage(ctx context.Context, content string, attachments []session.AttachedFile) (session.ChatMessage, error) {
	key, err := apiKey(a.cfg.APIKeyEnv)
	if err != nil {
		return session.ChatMessage{}, err
	}
	headers := map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}

	turns := conversation(a.history, promptText(content, attachments))
	messages := make([]AnthropicMessage, len(turns))
	for i, t := range turns {
		messages[i] = AnthropicMessage{Role: t.Role, Content: t.Content}
	}
	tools := a.toolDefinitions()

	for round := 0; ; round++ {
		var apiResp AnthropicResponse
		err := a.postJSON(ctx, a.cfg.URL, headers, AnthropicRequest{
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
			Messages:  messages,
			Tools:     tools,
		}, &apiResp)
		if err != nil {
			return session.ChatMessage{}, err
		}
		a.recordUsage(ctx, apiResp.Usage)

		if apiResp.StopReason != "tool_use" {
			for _, c := range apiResp.Content {
				if c.Type == "text" {
					return reply(c.Text), nil
				}
			}
			return session.ChatMessage{}, fmt.Errorf("empty response from Anthropic")
		}

		if a.tools == nil {
			return session.ChatMessage{}, fmt.Errorf("tool_use requested but no tools are available")
		}
		if round >= a.cfg.MaxToolRounds {
			return session.ChatMessage{}, fmt.Errorf("tool use did not finish after %d rounds", a.cfg.MaxToolRounds)
		}

		results := a.runTools(ctx, apiResp.Content)
		if len(results) == 0 {
			return session.ChatMessage{}, fmt.Errorf("tool_use stop reason but no tool_use blocks found")
		}
		messages = append(messages,
			AnthropicMessage{Role: "assistant", Content: apiResp.Content},
			AnthropicMessage{Role: "user", Content: results},
		)
	}
}

func (a *Anthropic) toolDefinitions() []AnthropicTool {
	if a.tools == nil {
		return nil
	}
	mcpTools := a.tools.Tools()
	tools := make([]AnthropicTool, len(mcpTools))
	for i, t := range mcpTools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		tools[i] = AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return tools
}

// runTools invokes every tool_use block and returns the matching
// tool_result blocks. Tool failures are reported to the model, not the user.
func (a *Anthropic) runTools(ctx context.Context, blocks []AnthropicContent) []AnthropicContent {
	var results []AnthropicContent
	for _, block := range blocks {
		if block.Type != "tool_use" {
			continue
		}
		a.logger.Info("invoking MCP tool", "tool", block.Name, "id", block.ID)

		result, err := a.tools.Invoke(ctx, block.Name, block.Input)
		if err != nil {
			a.logger.Error("tool invocation failed", "tool", block.Name, "error", err)
			results = append(results, AnthropicContent{
				Type:      "tool_result",
				ToolUseID: block.ID,
				Content:   fmt.Sprintf("Error: %v", err),
				IsError:   true,
			})
			continue
		}

		text := result.Text()
		if text == "" {
			raw, _ := json.Marshal(result)
			text = string(raw)
		}
		results = append(results, AnthropicContent{
			Type:      "tool_result",
			ToolUseID: block.ID,
			Content:   text,
			IsError:   result.IsError,
		})
	}
	return results
}
