// Package agentio builds and reads AIO protocol payloads, the JSON-RPC 2.0
// flavoured envelope that registered agents speak over stdio or HTTP.
package agentio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"AgentConsole/internal/extract"

	"github.com/google/uuid"
)

// Version is the JSON-RPC version carried by every request.
const Version = "2.0"

// DefaultMethod is invoked when an agent does not name its entry point.
const DefaultMethod = "run"

// Input and output item types.
const (
	TypeText  = "text"
	TypeFile  = "file"
	TypeImage = "image"
)

// Input is one element of a request's inputs array.
type Input struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Output is one element of a response's outputs array.
type Output struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Request is sent to an agent.
type Request struct {
	JSONRPC string  `json:"jsonrpc"`
	Method  string  `json:"method"`
	Inputs  []Input `json:"inputs"`
	ID      string  `json:"id"`
	TraceID string  `json:"trace_id"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("agent error %d: %s", e.Code, e.Message)
}

// Token is a JSON-RPC identifier. Agents send ids as strings or numbers;
// either way the literal text is kept.
type Token string

// UnmarshalJSON accepts a string, a number or null.
func (t *Token) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Token(s)
		return nil
	}
	if string(data) == "null" {
		*t = ""
		return nil
	}
	*t = Token(data)
	return nil
}

// Response is returned by an agent. Only outputs, response and error are
// interpreted; the envelope fields are kept loose.
type Response struct {
	JSONRPC      string          `json:"jsonrpc,omitempty"`
	ID           Token           `json:"id,omitempty"`
	TraceID      Token           `json:"trace_id,omitempty"`
	ProtocolStep json.RawMessage `json:"protocolStep,omitempty"`
	Outputs      []Output        `json:"outputs,omitempty"`
	Response     string          `json:"response,omitempty"`
	Error        *RPCError       `json:"error,omitempty"`
}

// TextInput wraps plain text.
func TextInput(text string) Input {
	return Input{Type: TypeText, Value: text}
}

// FileInput references a file by name; images are tagged as such.
func FileInput(name, mimeType string) Input {
	if strings.HasPrefix(mimeType, "image/") {
		return Input{Type: TypeImage, Value: name}
	}
	return Input{Type: TypeFile, Value: name}
}

// NewRequest builds a request with fresh request and trace IDs. An empty
// method falls back to DefaultMethod.
func NewRequest(method string, inputs ...Input) Request {
	if method == "" {
		method = DefaultMethod
	}
	return Request{
		JSONRPC: Version,
		Method:  method,
		Inputs:  append([]Input{}, inputs...),
		ID:      uuid.NewString(),
		TraceID: uuid.NewString(),
	}
}

// Encode marshals r.
func (r Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent request: %w", err)
	}
	return data, nil
}

// ErrNotJSON is returned by ParseResponse when the payload has no JSON.
var ErrNotJSON = errors.New("agent output is not JSON")

// ParseResponse decodes an agent payload. Malformed JSON gets one repair
// attempt before failing.
func ParseResponse(raw string) (Response, error) {
	trimmed := strings.TrimSpace(raw)
	if !extract.IsLikelyJSON(trimmed) && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "```") {
		return Response{}, ErrNotJSON
	}

	var resp Response
	err := json.Unmarshal([]byte(trimmed), &resp)
	if err == nil {
		return resp, nil
	}
	if repaired := extract.RepairJSON(trimmed); repaired != trimmed {
		if rerr := json.Unmarshal([]byte(repaired), &resp); rerr == nil {
			return resp, nil
		}
	}
	return Response{}, fmt.Errorf("failed to decode agent response: %w", err)
}

// Text joins the text outputs, falling back to the response field.
func (r Response) Text() string {
	var parts []string
	for _, out := range r.Outputs {
		if out.Type == TypeText && out.Value != "" {
			parts = append(parts, out.Value)
		}
	}
	if len(parts) == 0 {
		return r.Response
	}
	return strings.Join(parts, "\n")
}

// Files lists the values of file outputs.
func (r Response) Files() []string {
	var files []string
	for _, out := range r.Outputs {
		if out.Type == TypeFile {
			files = append(files, out.Value)
		}
	}
	return files
}
