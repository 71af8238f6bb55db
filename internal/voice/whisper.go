package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"AgentConsole/internal/extract"
	"AgentConsole/internal/session"
)

// ErrEmptyTranscript is returned when nothing intelligible was said.
var ErrEmptyTranscript = errors.New("transcription is empty")

// WhisperConfig configures the Whisper speech-to-text provider.
type WhisperConfig struct {
	APIBase    string // e.g. "https://api.groq.com/openai/v1" or "https://api.openai.com/v1"
	APIKey     string
	Model      string // e.g. "whisper-large-v3" (Groq) or "whisper-1" (OpenAI)
	Language   string // optional ISO-639-1 code
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// TranscriptionResult contains the result of a transcription.
type TranscriptionResult struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// WhisperProcessor transcribes a voice note and asks a chat backend to
// answer the transcript.
type WhisperProcessor struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
	backend  session.Backend
	now      func() time.Time
}

// NewWhisperProcessor creates a processor that sends transcripts to backend.
func NewWhisperProcessor(cfg WhisperConfig, backend session.Backend) *WhisperProcessor {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhisperProcessor{
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
		backend:  backend,
		now:      time.Now,
	}
}

// Process implements Processor.
func (w *WhisperProcessor) Process(ctx context.Context, req Request) (Result, error) {
	if req.Audio == nil {
		return Result{}, fmt.Errorf("voice request has no audio")
	}
	if w.backend == nil {
		return Result{}, fmt.Errorf("no backend to answer the transcript")
	}

	transcription, err := w.Transcribe(ctx, req.Audio, req.Filename)
	if err != nil {
		return Result{}, err
	}
	transcript := strings.TrimSpace(transcription.Text)
	if transcript == "" {
		return Result{}, ErrEmptyTranscript
	}

	reply, err := w.backend.SendMessage(ctx, transcript, nil)
	if err != nil {
		return Result{}, fmt.Errorf("answer transcript: %w", err)
	}

	return Result{
		Response:   extract.ExtractResponseFromContent(reply.Content),
		MessageID:  NewMessageID(w.now()),
		Transcript: transcript,
	}, nil
}

// Transcribe converts audio to text. filename should carry the extension
// so the API can tell the format (e.g. "audio.ogg").
func (w *WhisperProcessor) Transcribe(ctx context.Context, audio io.Reader, filename string) (*TranscriptionResult, error) {
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	contentType, err := w.writeForm(&body, audio, filename)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiBase+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}

	w.logger.Info("transcription complete",
		"text_len", len(result.Text),
		"language", result.Language,
		"duration", result.Duration,
	)
	return &result, nil
}

// writeForm writes the multipart transcription request to dst and returns
// its content type.
func (w *WhisperProcessor) writeForm(dst io.Writer, audio io.Reader, filename string) (string, error) {
	writer := multipart.NewWriter(dst)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	fields := [][2]string{{"model", w.model}, {"response_format", "json"}}
	if w.language != "" {
		fields = append(fields, [2]string{"language", w.language})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}
	return writer.FormDataContentType(), nil
}
