package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AgentConsole/internal/config"
	"AgentConsole/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMockProcessor(t *testing.T) {
	p := NewMockProcessor(20*time.Millisecond, "default reply")
	fixed := time.UnixMilli(1700000000123)
	p.now = func() time.Time { return fixed }

	start := time.Now()
	res, err := p.Process(context.Background(), Request{ResponseText: "I heard you"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.Equal(t, "I heard you", res.Response)
	assert.Regexp(t, `^voice_1700000000123_[0-9a-f]{8}$`, res.MessageID)
	assert.Equal(t, PlaceholderTranscript, res.Transcript)

	res, err = p.Process(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "default reply", res.Response)
}

func TestMockProcessor_SameMillisecondIDsDiffer(t *testing.T) {
	p := NewMockProcessor(0, "reply")
	fixed := time.UnixMilli(1700000000123)
	p.now = func() time.Time { return fixed }

	first, err := p.Process(context.Background(), Request{})
	require.NoError(t, err)
	second, err := p.Process(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotEqual(t, first.MessageID, second.MessageID)
}

func TestMockProcessor_Cancelled(t *testing.T) {
	p := NewMockProcessor(time.Hour, "never")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Process(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWhisperProcessor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "no", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "note.ogg", header.Filename)
		assert.Equal(t, "fake-audio", string(data))

		w.Write([]byte(`{"text":" what's the weather? ","language":"no","duration":1.5}`))
	}))
	defer srv.Close()

	var asked string
	backend := session.BackendFunc(func(ctx context.Context, content string, _ []session.AttachedFile) (session.ChatMessage, error) {
		asked = content
		return session.NewMessage(session.SenderAssistant, `{"response": "Sunny."}`, nil), nil
	})

	p := NewWhisperProcessor(WhisperConfig{
		APIBase:    srv.URL + "/",
		APIKey:     "secret",
		Model:      "whisper-1",
		Language:   "no",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		HTTPClient: srv.Client(),
	}, backend)

	res, err := p.Process(context.Background(), Request{Audio: strings.NewReader("fake-audio"), Filename: "note.ogg"})
	require.NoError(t, err)
	assert.Equal(t, "what's the weather?", asked)
	assert.Equal(t, "what's the weather?", res.Transcript)
	assert.Equal(t, "Sunny.", res.Response)
	assert.True(t, strings.HasPrefix(res.MessageID, "voice_"))
}

func TestWhisperProcessor_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("model") == "broken" {
			http.Error(w, "bad audio", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	backend := session.BackendFunc(func(ctx context.Context, content string, _ []session.AttachedFile) (session.ChatMessage, error) {
		return session.ChatMessage{}, errors.New("should not be called")
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	silent := NewWhisperProcessor(WhisperConfig{APIBase: srv.URL, Logger: logger, HTTPClient: srv.Client()}, backend)
	_, err := silent.Process(context.Background(), Request{Audio: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	broken := NewWhisperProcessor(WhisperConfig{APIBase: srv.URL, Model: "broken", Logger: logger, HTTPClient: srv.Client()}, backend)
	_, err = broken.Process(context.Background(), Request{Audio: strings.NewReader("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")

	_, err = silent.Process(context.Background(), Request{})
	assert.Error(t, err)
}

// failOnField rejects the write that starts the named form field.
type failOnField struct {
	field string
}

func (f failOnField) Write(p []byte) (int, error) {
	if strings.Contains(string(p), `name="`+f.field+`"`) {
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

func TestWhisperProcessor_FormFieldWriteError(t *testing.T) {
	p := NewWhisperProcessor(WhisperConfig{Model: "whisper-1", Language: "en"}, nil)

	for _, field := range []string{"model", "response_format", "language"} {
		_, err := p.writeForm(failOnField{field: field}, strings.NewReader("audio"), "note.ogg")
		require.Error(t, err, field)
		assert.Contains(t, err.Error(), "write "+field+" field")
	}

	var buf strings.Builder
	contentType, err := p.writeForm(&buf, strings.NewReader("audio"), "note.ogg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data; boundary="))
	assert.Contains(t, buf.String(), "whisper-1")
}

func TestNew(t *testing.T) {
	cfg := config.Defaults().Voice

	p, err := New(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockProcessor{}, p)

	cfg.Mode = config.VoiceWhisper
	p, err = New(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &WhisperProcessor{}, p)

	cfg.Mode = "telepathy"
	_, err = New(cfg, nil, nil)
	assert.Error(t, err)
}
