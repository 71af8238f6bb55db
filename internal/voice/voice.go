// Package voice turns voice notes into chat replies. The mock processor
// stands in for speech recognition; the Whisper processor does the real
// thing through an OpenAI-compatible transcription API.
package voice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"AgentConsole/internal/config"
	"AgentConsole/internal/session"

	"github.com/google/uuid"
)

// PlaceholderTranscript is what the mock reports as having heard.
const PlaceholderTranscript = "[Voice message transcription would appear here]"

// Request is one voice note.
type Request struct {
	Audio    io.Reader // recorded audio, unused by the mock
	Filename string    // with extension, e.g. "note.ogg"

	// ResponseText is the reply the mock echoes back.
	ResponseText string
}

// Result is a processed voice note.
type Result struct {
	Response   string
	MessageID  string
	Transcript string
}

// Processor handles voice notes. Implementations are interchangeable.
type Processor interface {
	Process(ctx context.Context, req Request) (Result, error)
}

// NewMessageID derives a voice message id from t. The random suffix keeps
// notes from the same millisecond apart.
func NewMessageID(t time.Time) string {
	return fmt.Sprintf("voice_%d_%s", t.UnixMilli(), uuid.NewString()[:8])
}

// MockProcessor waits a fixed delay and returns a canned answer.
type MockProcessor struct {
	delay    time.Duration
	response string
	now      func() time.Time
}

// NewMockProcessor creates a mock that answers with response when a request
// carries no ResponseText.
func NewMockProcessor(delay time.Duration, response string) *MockProcessor {
	return &MockProcessor{delay: delay, response: response, now: time.Now}
}

// Process implements Processor. It returns ctx's error if ctx ends first.
func (p *MockProcessor) Process(ctx context.Context, req Request) (Result, error) {
	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
	}

	text := req.ResponseText
	if text == "" {
		text = p.response
	}
	return Result{
		Response:   text,
		MessageID:  NewMessageID(p.now()),
		Transcript: PlaceholderTranscript,
	}, nil
}

// New builds the processor selected by cfg. backend answers transcripts in
// whisper mode.
func New(cfg config.VoiceConfig, backend session.Backend, logger *slog.Logger) (Processor, error) {
	switch cfg.Mode {
	case config.VoiceMock, "":
		return NewMockProcessor(cfg.MockDelay, cfg.MockResponse), nil
	case config.VoiceWhisper:
		return NewWhisperProcessor(WhisperConfig{
			APIBase:  cfg.WhisperURL,
			APIKey:   os.Getenv(cfg.APIKeyEnv),
			Model:    cfg.WhisperModel,
			Language: cfg.Language,
			Logger:   logger,
		}, backend), nil
	default:
		return nil, fmt.Errorf("unknown voice mode: %s", cfg.Mode)
	}
}

// httpClient is shared by Whisper processors that do not bring their own.
var httpClient = &http.Client{Timeout: 120 * time.Second}
