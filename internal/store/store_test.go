package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"AgentConsole/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSession() session.Session {
	greeting := session.NewMessage(session.SenderSystem, session.Greeting, nil)
	user := session.NewMessage(session.SenderUser, "see attached", []session.AttachedFile{
		{Name: "notes.txt", Size: 12, MimeType: "text/plain", BlobKey: "abc"},
		{Name: "plot.png", Size: 99, MimeType: "image/png"},
	})
	reply := session.NewMessage(session.SenderAssistant, "thanks", nil)
	return session.Session{
		ID:        "session_42",
		StartTime: time.Now(),
		Backend:   "ollama",
		History:   session.NewHistory(greeting, user, reply),
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := sampleSession()

	require.NoError(t, s.SaveSession(ctx, sess))

	loaded, err := s.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "ollama", loaded.Backend)
	assert.WithinDuration(t, sess.StartTime, loaded.StartTime, time.Millisecond)

	want := sess.History.Messages()
	got := loaded.History.Messages()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Sender, got[i].Sender)
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.WithinDuration(t, want[i].Timestamp, got[i].Timestamp, time.Millisecond)
	}

	require.Len(t, got[1].AttachedFiles, 2)
	assert.Equal(t, "notes.txt", got[1].AttachedFiles[0].Name)
	assert.Equal(t, "abc", got[1].AttachedFiles[0].BlobKey)
	assert.Equal(t, "image/png", got[1].AttachedFiles[1].MimeType)
	assert.Empty(t, got[2].AttachedFiles)
}

func TestSaveSession_IsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := sampleSession()

	require.NoError(t, s.SaveSession(ctx, sess))
	require.NoError(t, s.SaveSession(ctx, sess))

	sess.History = sess.History.Append(session.NewMessage(session.SenderUser, "one more", nil))
	require.NoError(t, s.SaveSession(ctx, sess))

	loaded, err := s.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.History.Len())
	last, _ := loaded.History.Last()
	assert.Equal(t, "one more", last.Content)
}

func TestLoadSession_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := sampleSession()
	older.ID = "session_old"
	older.StartTime = time.Now().Add(-time.Hour)
	require.NoError(t, s.SaveSession(ctx, older))

	newer := sampleSession()
	newer.ID = "session_new"
	require.NoError(t, s.SaveSession(ctx, newer))

	list, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "session_new", list[0].ID)
	assert.Equal(t, 3, list[0].MessageCount)
	assert.Equal(t, "session_old", list[1].ID)
}
