package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"

	"AgentConsole/internal/agentio"
	"AgentConsole/internal/catalog"
	"AgentConsole/internal/session"
	"AgentConsole/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxAgentOutput caps what is read back from an agent.
const maxAgentOutput = 8 << 20

// Agent sends each message to a registered agent as an AIO request.
// Stdio agents are started once per message with the request on stdin;
// HTTP agents receive it as a POST body.
type Agent struct {
	client
	agent catalog.Agent
}

// NewAgent creates a backend for a catalog agent.
func NewAgent(agent catalog.Agent, deps Deps) *Agent {
	return &Agent{
		client: client{name: "agent:" + agent.Name, http: deps.HTTPClient, logger: deps.Logger},
		agent:  agent,
	}
}

// SendMessage implements session.Backend. The agent's text outputs are
// returned when it answers with a well-formed payload; anything else is
// returned as-is for the session to normalise.
func (a *Agent) SendMessage(ctx context.Context, content string, attachments []session.AttachedFile) (session.ChatMessage, error) {
	inputs := []agentio.Input{agentio.TextInput(content)}
	for _, f := range attachments {
		inputs = append(inputs, agentio.FileInput(f.Name, f.MimeType))
	}
	req := agentio.NewRequest(a.agent.Method, inputs...)
	payload, err := req.Encode()
	if err != nil {
		return session.ChatMessage{}, err
	}

	ctx, span := otel.Tracer(telemetry.ServiceName).Start(ctx, "agent_call")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent", a.agent.Name),
		attribute.String("trace_id", req.TraceID),
	)

	var raw []byte
	switch a.agent.Transport {
	case catalog.TransportStdio:
		raw, err = a.runStdio(ctx, payload)
	case catalog.TransportHTTP:
		raw, err = a.postHTTP(ctx, payload)
	default:
		err = fmt.Errorf("unsupported agent transport %q", a.agent.Transport)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return session.ChatMessage{}, err
	}

	output := string(raw)
	resp, perr := agentio.ParseResponse(output)
	switch {
	case perr != nil:
		a.logger.Debug("agent returned non-protocol output", "agent", a.agent.Name, "error", perr)
	case resp.Error != nil:
		return session.ChatMessage{}, resp.Error
	case resp.Text() != "":
		output = resp.Text()
	}

	a.logger.Info("agent replied", "agent", a.agent.Name, "trace_id", req.TraceID, "bytes", len(raw))
	return reply(output), nil
}

func (a *Agent) runStdio(ctx context.Context, payload []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.agent.Command, a.agent.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("agent %s exited with %d: %s",
				a.agent.Name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("failed to run agent %s: %w", a.agent.Name, err)
	}
	if stdout.Len() > maxAgentOutput {
		return nil, fmt.Errorf("agent %s output exceeds %d bytes", a.agent.Name, maxAgentOutput)
	}
	return stdout.Bytes(), nil
}

func (a *Agent) postHTTP(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.agent.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAgentOutput))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent error: %s - %s", resp.Status, string(body))
	}
	return body, nil
}
