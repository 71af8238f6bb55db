package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"AgentConsole/internal/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func replyWith(content string) BackendFunc {
	return func(ctx context.Context, text string, atts []AttachedFile) (ChatMessage, error) {
		return NewMessage(SenderAssistant, content, nil), nil
	}
}

func failWith(err error) BackendFunc {
	return func(ctx context.Context, text string, atts []AttachedFile) (ChatMessage, error) {
		return ChatMessage{}, err
	}
}

func TestNewManager_StartsWithGreeting(t *testing.T) {
	m := NewManager(Options{Logger: testLogger(), BackendName: "ollama"})

	h := m.History()
	require.Equal(t, 1, h.Len())
	greeting, _ := h.Last()
	assert.Equal(t, SenderSystem, greeting.Sender)
	assert.Equal(t, Greeting, greeting.Content)
	assert.NotEmpty(t, greeting.ID)
	assert.False(t, greeting.Timestamp.IsZero())
	assert.Equal(t, "ollama", m.Session().Backend)
}

func TestSend_Success(t *testing.T) {
	m := NewManager(Options{Backend: replyWith("hi back"), Logger: testLogger()})

	reply, err := m.Send(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "hi back", reply.Content)

	msgs := m.History().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, SenderUser, msgs[1].Sender)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, SenderAssistant, msgs[2].Sender)
}

func TestSend_NormalisesReply(t *testing.T) {
	m := NewManager(Options{
		Backend: replyWith(`{"protocol":"aio","trace_id":"t1","response":"clean answer"}`),
		Logger:  testLogger(),
	})

	reply, err := m.Send(context.Background(), "question", nil)
	require.NoError(t, err)
	assert.Equal(t, "clean answer", reply.Content)

	last, _ := m.History().Last()
	assert.Equal(t, "clean answer", last.Content)
}

func TestSend_BackendFailureKeepsUserMessage(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewManager(Options{
		Backend:  failWith(errors.New("connection refused")),
		Notifier: notifier,
		Logger:   testLogger(),
	})

	reply, err := m.Send(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Contains(t, err.Error(), "connection refused")

	msgs := m.History().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, SenderUser, msgs[1].Sender)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, LevelError, notifier.notes[0].Level)
	assert.Equal(t, SendFailedMessage, notifier.notes[0].Message)
}

func TestSend_NoBackend(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewManager(Options{Notifier: notifier, Logger: testLogger()})

	_, err := m.Send(context.Background(), "hello", nil)
	require.ErrorIs(t, err, ErrNoBackend)
	assert.Equal(t, 2, m.History().Len())
	assert.Len(t, notifier.notes, 1)
}

func TestSend_BlankIsIgnored(t *testing.T) {
	called := false
	backend := BackendFunc(func(ctx context.Context, text string, atts []AttachedFile) (ChatMessage, error) {
		called = true
		return ChatMessage{}, nil
	})
	notifier := &recordingNotifier{}
	m := NewManager(Options{Backend: backend, Notifier: notifier, Logger: testLogger()})

	for _, text := range []string{"", "   ", "\n\t"} {
		reply, err := m.Send(context.Background(), text, nil)
		assert.NoError(t, err)
		assert.Nil(t, reply)
	}
	assert.Equal(t, 1, m.History().Len())
	assert.False(t, called)
	assert.Empty(t, notifier.notes)
}

func TestSend_AttachmentsOnly(t *testing.T) {
	var gotAtts []AttachedFile
	backend := BackendFunc(func(ctx context.Context, text string, atts []AttachedFile) (ChatMessage, error) {
		gotAtts = atts
		return NewMessage(SenderAssistant, "got your files", nil), nil
	})
	m := NewManager(Options{Backend: backend, Logger: testLogger()})

	files := []AttachedFile{
		{Name: "report.pdf", Size: 1024, MimeType: "application/pdf"},
		{Name: "chart.png", Size: 2048, MimeType: "image/png"},
	}
	_, err := m.Send(context.Background(), "", files)
	require.NoError(t, err)

	msgs := m.History().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Attached files: report.pdf, chart.png", msgs[1].Content)
	assert.Len(t, msgs[1].AttachedFiles, 2)
	assert.Len(t, gotAtts, 2)
}

func TestSend_TextWithAttachments(t *testing.T) {
	m := NewManager(Options{Backend: replyWith("ok"), Logger: testLogger()})

	_, err := m.Send(context.Background(), "see attached", []AttachedFile{{Name: "a.txt"}})
	require.NoError(t, err)

	msgs := m.History().Messages()
	assert.Equal(t, "see attached\n\nAttached files: a.txt", msgs[1].Content)
}

func TestReceive_FillsMissingFields(t *testing.T) {
	m := NewManager(Options{Logger: testLogger()})

	msg := m.Receive(ChatMessage{Content: "prefix **Response:** voice reply"})
	assert.Equal(t, SenderAssistant, msg.Sender)
	assert.Equal(t, "voice reply", msg.Content)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	kept := m.Receive(ChatMessage{ID: "voice_1", Content: "x", Timestamp: time.Unix(100, 0)})
	assert.Equal(t, "voice_1", kept.ID)
	assert.Equal(t, time.Unix(100, 0), kept.Timestamp)
}

func TestReceive_BlankReplyBecomesPlaceholder(t *testing.T) {
	m := NewManager(Options{Logger: testLogger()})

	msg := m.Receive(ChatMessage{Content: "thinking... **Response:**   "})
	assert.Equal(t, extract.NoResponseContent, msg.Content)

	last, ok := m.History().Last()
	require.True(t, ok)
	assert.Equal(t, extract.NoResponseContent, last.Content)
	assert.Equal(t, last.Content, extract.ExtractResponseFromContent(last.Content))
}

func TestAppendDirect_DoesNotCallBackend(t *testing.T) {
	backend := BackendFunc(func(ctx context.Context, text string, atts []AttachedFile) (ChatMessage, error) {
		t.Fatal("backend must not be called")
		return ChatMessage{}, nil
	})
	m := NewManager(Options{Backend: backend, Logger: testLogger()})

	msg := m.AppendDirect("Agent registered", nil)
	assert.Equal(t, SenderSystem, msg.Sender)
	assert.Equal(t, 2, m.History().Len())
}

func TestHistory_SnapshotsAreStable(t *testing.T) {
	m := NewManager(Options{Backend: replyWith("r"), Logger: testLogger()})

	before := m.History()
	_, err := m.Send(context.Background(), "one", nil)
	require.NoError(t, err)
	after := m.History()

	assert.Equal(t, 1, before.Len())
	assert.Equal(t, 3, after.Len())

	msgs := after.Messages()
	msgs[0].Content = "mutated"
	first := m.History().Messages()[0]
	assert.Equal(t, Greeting, first.Content)
}

func TestHistory_AppendDoesNotAlias(t *testing.T) {
	base := NewHistory(NewMessage(SenderSystem, "root", nil))
	a := base.Append(NewMessage(SenderUser, "a", nil))
	b := base.Append(NewMessage(SenderUser, "b", nil))

	lastA, _ := a.Last()
	lastB, _ := b.Last()
	assert.Equal(t, "a", lastA.Content)
	assert.Equal(t, "b", lastB.Content)
	assert.Equal(t, 1, base.Len())
}

func TestReset_StartsNewSession(t *testing.T) {
	m := NewManager(Options{Backend: replyWith("r"), BackendName: "openai", Logger: testLogger()})
	_, err := m.Send(context.Background(), "hello", nil)
	require.NoError(t, err)
	oldID := m.Session().ID

	time.Sleep(2 * time.Millisecond)
	sess := m.Reset()
	assert.NotEqual(t, oldID, sess.ID)
	assert.Equal(t, 1, sess.History.Len())
	assert.Equal(t, "openai", sess.Backend)
}

func TestRestore_EmptyHistoryGetsGreeting(t *testing.T) {
	m := Restore(Session{ID: "session_1", StartTime: time.Now()}, Options{Logger: testLogger()})
	assert.Equal(t, 1, m.History().Len())
	assert.Equal(t, "session_1", m.Session().ID)
}
