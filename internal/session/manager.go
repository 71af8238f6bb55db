package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"AgentConsole/internal/extract"

	"github.com/google/uuid"
)

// Greeting opens every new session.
const Greeting = "Hello! I'm your agent assistant. Send a message or attach files to get started."

// SendFailedMessage is shown when the backend rejects a message.
const SendFailedMessage = "Failed to send message. Please try again."

// ErrNoBackend is returned by Send when no backend has been selected.
var ErrNoBackend = errors.New("no backend configured")

// Backend answers a user message. Implementations may block on network or
// process I/O and should honour ctx.
type Backend interface {
	SendMessage(ctx context.Context, content string, attachments []AttachedFile) (ChatMessage, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, content string, attachments []AttachedFile) (ChatMessage, error)

// SendMessage calls f.
func (f BackendFunc) SendMessage(ctx context.Context, content string, attachments []AttachedFile) (ChatMessage, error) {
	return f(ctx, content, attachments)
}

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a transient, dismissible message for the user.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Options configures a Manager.
type Options struct {
	Backend     Backend
	BackendName string
	Notifier    Notifier
	Logger      *slog.Logger
}

// Manager owns one chat session. The history is replaced, never mutated,
// on every append. The mutex only guards the swap: callers are expected to
// keep at most one Send in flight per session (e.g. by disabling input
// while waiting) so replies land in the order the user asked.
type Manager struct {
	mu       sync.Mutex
	session  Session
	backend  Backend
	notifier Notifier
	logger   *slog.Logger
}

// NewManager starts a fresh session holding only the greeting.
func NewManager(opts Options) *Manager {
	m := newManager(opts)
	m.session = m.freshSession(opts.BackendName)
	m.logger.Info("created new session", "session_id", m.session.ID, "backend", m.session.Backend)
	return m
}

// Restore resumes a previously persisted session. An empty history gets
// the greeting so the session is never observed empty.
func Restore(sess Session, opts Options) *Manager {
	m := newManager(opts)
	if sess.History.Len() == 0 {
		sess.History = NewHistory(NewMessage(SenderSystem, Greeting, nil))
	}
	if opts.BackendName != "" {
		sess.Backend = opts.BackendName
	}
	m.session = sess
	m.logger.Info("restored session", "session_id", sess.ID, "messages", sess.History.Len())
	return m
}

func newManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	return &Manager{
		backend:  opts.Backend,
		notifier: notifier,
		logger:   logger,
	}
}

func (m *Manager) freshSession(backend string) Session {
	return Session{
		ID:        NewSessionID(),
		StartTime: time.Now(),
		Backend:   backend,
		History:   NewHistory(NewMessage(SenderSystem, Greeting, nil)),
	}
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// History returns a snapshot of the message history.
func (m *Manager) History() History {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.History
}

// SetBackend switches the backend used for subsequent sends.
func (m *Manager) SetBackend(name string, b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = b
	m.session.Backend = name
	m.logger.Info("switched backend", "session_id", m.session.ID, "backend", name)
}

// Reset starts a new session with the same backend.
func (m *Manager) Reset() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = m.freshSession(m.session.Backend)
	m.logger.Info("created new session", "session_id", m.session.ID, "backend", m.session.Backend)
	return m.session
}

// Send appends a user message and asks the backend for a reply. A blank
// text with no attachments is ignored and returns (nil, nil).
//
// On backend failure the user message stays in the history, no assistant
// message is added, the user is notified and the error is returned.
func (m *Manager) Send(ctx context.Context, text string, attachments []AttachedFile) (*ChatMessage, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, nil
	}

	userMsg := NewMessage(SenderUser, ComposeContent(text, attachments), attachments)

	m.mu.Lock()
	m.session.History = m.session.History.Append(userMsg)
	backend := m.backend
	sessionID := m.session.ID
	backendName := m.session.Backend
	m.mu.Unlock()

	if backend == nil {
		return nil, m.fail(sessionID, backendName, ErrNoBackend)
	}

	reply, err := backend.SendMessage(ctx, text, attachments)
	if err != nil {
		return nil, m.fail(sessionID, backendName, err)
	}

	msg := m.Receive(reply)
	return &msg, nil
}

func (m *Manager) fail(sessionID, backend string, err error) error {
	m.logger.Error("failed to send message", "session_id", sessionID, "backend", backend, "error", err)
	m.notifier.Notify(Notification{
		Level:   LevelError,
		Title:   "Error",
		Message: SendFailedMessage,
	})
	return fmt.Errorf("send message: %w", err)
}

// Receive normalises a reply from any producer (chat backend, voice
// processor) and appends it as an assistant message. A reply that
// normalises to blank is recorded as extract.NoResponseContent so the
// history never holds an empty assistant turn.
func (m *Manager) Receive(reply ChatMessage) ChatMessage {
	reply.Sender = SenderAssistant
	reply.Content = extract.ExtractResponseFromContent(reply.Content)
	if strings.TrimSpace(reply.Content) == "" {
		reply.Content = extract.NoResponseContent
	}
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.Timestamp.IsZero() {
		reply.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.session.History = m.session.History.Append(reply)
	m.mu.Unlock()
	return reply
}

// AppendUser records a user message that was answered out of band, such as
// the transcript of a voice note.
func (m *Manager) AppendUser(content string, attachments []AttachedFile) ChatMessage {
	msg := NewMessage(SenderUser, ComposeContent(content, attachments), attachments)
	m.mu.Lock()
	m.session.History = m.session.History.Append(msg)
	m.mu.Unlock()
	return msg
}

// AppendDirect appends a system message without calling the backend.
func (m *Manager) AppendDirect(content string, attachments []AttachedFile) ChatMessage {
	msg := NewMessage(SenderSystem, ComposeContent(content, attachments), attachments)
	m.mu.Lock()
	m.session.History = m.session.History.Append(msg)
	m.mu.Unlock()
	return msg
}
