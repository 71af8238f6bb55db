package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// AttachedFile is a file sent along with a message. Data holds the bytes
// when they are in memory; BlobKey references the temp blob store once the
// bytes have been parked there.
type AttachedFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	BlobKey  string `json:"blob_key,omitempty"`
	Data     []byte `json:"-"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	ID            string         `json:"id"`
	Sender        Sender         `json:"sender"`
	Content       string         `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	AttachedFiles []AttachedFile `json:"attached_files,omitempty"`
}

// NewMessage stamps a message with a fresh ID and the current time.
func NewMessage(sender Sender, content string, files []AttachedFile) ChatMessage {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now(),
	}
	if len(files) > 0 {
		msg.AttachedFiles = append([]AttachedFile(nil), files...)
	}
	return msg
}

// ComposeContent appends a readable manifest of attachment names to text.
func ComposeContent(text string, files []AttachedFile) string {
	if len(files) == 0 {
		return text
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	manifest := "Attached files: " + strings.Join(names, ", ")
	if strings.TrimSpace(text) == "" {
		return manifest
	}
	return text + "\n\n" + manifest
}

// History is an append-only, insertion-ordered list of messages. It is a
// value: Append returns a new History and never touches the receiver, so a
// History handed out earlier is a stable snapshot.
type History struct {
	messages []ChatMessage
}

// NewHistory builds a History from msgs in order.
func NewHistory(msgs ...ChatMessage) History {
	return History{messages: append([]ChatMessage(nil), msgs...)}
}

// Append returns a History with msg added at the end.
func (h History) Append(msg ChatMessage) History {
	next := make([]ChatMessage, len(h.messages), len(h.messages)+1)
	copy(next, h.messages)
	return History{messages: append(next, msg)}
}

// Len returns the number of messages.
func (h History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the messages in display order.
func (h History) Messages() []ChatMessage {
	return append([]ChatMessage(nil), h.messages...)
}

// Last returns the most recent message.
func (h History) Last() (ChatMessage, bool) {
	if len(h.messages) == 0 {
		return ChatMessage{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Backend   string    `json:"backend"`
	History   History   `json:"-"`
}

// NewSessionID returns a time-based session identifier.
func NewSessionID() string {
	return fmt.Sprintf("session_%d", time.Now().UnixNano())
}
