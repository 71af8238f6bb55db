// Package backend implements the chat backends the console can talk to:
// hosted LLM APIs, a local Ollama and registered agents.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"AgentConsole/internal/cache"
	"AgentConsole/internal/catalog"
	"AgentConsole/internal/config"
	"AgentConsole/internal/mcp"
	"AgentConsole/internal/session"
	"AgentConsole/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// HistoryFunc returns the conversation so far, for backends that send
// prior turns along with the new message.
type HistoryFunc func() []session.ChatMessage

// ToolProvider exposes MCP tools to backends that support tool use.
// *mcp.Registry implements it.
type ToolProvider interface {
	Tools() []mcp.Tool
	Invoke(ctx context.Context, toolName string, args map[string]any) (mcp.CallToolResult, error)
}

// Deps carries what backends share.
type Deps struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	History    HistoryFunc
	Tools      ToolProvider         // nil disables tool use
	Catalog    *catalog.Catalog     // required for the agent backend
	Cache      *cache.ResponseCache // nil disables response caching
}

// New builds the backend called name from cfg.
func New(ctx context.Context, name string, cfg config.Config, deps Deps) (session.Backend, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	var b session.Backend
	switch name {
	case config.BackendOllama:
		b = NewOllama(cfg.Ollama, deps)
	case config.BackendAnthropic:
		b = NewAnthropic(cfg.Anthropic, deps)
	case config.BackendOpenAI:
		b = NewOpenAI(config.BackendOpenAI, cfg.OpenAI, deps)
	case config.BackendGrok:
		b = NewOpenAI(config.BackendGrok, cfg.Grok, deps)
	case config.BackendAgent:
		if deps.Catalog == nil {
			return nil, fmt.Errorf("agent backend needs the catalog")
		}
		agent, err := deps.Catalog.GetAgent(ctx, cfg.Agent)
		if err != nil {
			return nil, err
		}
		b = NewAgent(agent, deps)
	default:
		return nil, fmt.Errorf("unknown backend: %s", name)
	}

	if deps.Cache != nil {
		key := name
		if name == config.BackendAgent {
			key += ":" + cfg.Agent
		}
		b = NewCached(key, b, deps.Cache, deps.History, deps.Logger)
	}
	return b, nil
}

// role is a provider-side chat turn.
type role struct {
	Role    string
	Content string
}

// conversation turns the session history into provider turns ending with
// prompt. The trailing user message is the one being sent and is replaced
// by prompt; system messages are local only.
func conversation(history HistoryFunc, prompt string) []role {
	var msgs []session.ChatMessage
	if history != nil {
		msgs = history()
	}
	if n := len(msgs); n > 0 && msgs[n-1].Sender == session.SenderUser {
		msgs = msgs[:n-1]
	}

	turns := make([]role, 0, len(msgs)+1)
	for _, msg := range msgs {
		switch msg.Sender {
		case session.SenderUser, session.SenderAssistant:
			turns = append(turns, role{Role: string(msg.Sender), Content: msg.Content})
		}
	}
	return append(turns, role{Role: string(session.SenderUser), Content: prompt})
}

// promptText is the text sent to an LLM: the message with the attachment
// manifest, followed by the contents of attached text files.
func promptText(content string, attachments []session.AttachedFile) string {
	var b strings.Builder
	b.WriteString(session.ComposeContent(content, attachments))
	for _, f := range attachments {
		if len(f.Data) == 0 || !isText(f.MimeType) {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", f.Name, f.Data)
	}
	return b.String()
}

func isText(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") ||
		mimeType == "application/json" ||
		mimeType == "application/xml" ||
		mimeType == "application/yaml"
}

func apiKey(envName string) (string, error) {
	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("%s not set", envName)
	}
	return key, nil
}

func reply(content string) session.ChatMessage {
	return session.NewMessage(session.SenderAssistant, content, nil)
}

// client is the HTTP plumbing shared by the LLM backends.
type client struct {
	name   string
	http   *http.Client
	logger *slog.Logger
}

// postJSON sends in as JSON and decodes the reply into out, inside a span
// named after the backend. Duration is recorded either way.
func (c *client) postJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	ctx, span := otel.Tracer(telemetry.ServiceName).Start(ctx, c.name+"_api_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("backend", c.name)),
	)
	defer span.End()

	start := time.Now()
	err := c.doJSON(ctx, url, headers, in, out)
	c.recordDuration(ctx, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *client) doJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *client) recordDuration(ctx context.Context, d time.Duration) {
	histogram, err := otel.Meter(telemetry.ServiceName).Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	histogram.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attribute.String("backend", c.name)))
}

// recordUsage adds numeric usage fields reported by the provider to
// llm.usage.<field> counters.
func (c *client) recordUsage(ctx context.Context, usage map[string]any) {
	meter := otel.Meter(telemetry.ServiceName)
	for key, value := range usage {
		n, ok := value.(float64)
		if !ok {
			continue
		}
		counter, err := meter.Int64Counter(
			"llm.usage."+key,
			metric.WithDescription("LLM usage metric: "+key),
		)
		if err != nil {
			c.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("backend", c.name)))
	}
}
