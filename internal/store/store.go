package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"AgentConsole/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSessionNotFound is returned by LoadSession for an unknown ID.
var ErrSessionNotFound = errors.New("session not found")

// Store persists chat sessions in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Summary describes a saved session without its messages.
type Summary struct {
	ID           string
	StartTime    time.Time
	Backend      string
	MessageCount int
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	start_time DATETIME,
	backend TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	FOREIGN KEY(session_id) REFERENCES sessions(id)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
CREATE TABLE IF NOT EXISTS attachments (
	message_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	name TEXT NOT NULL,
	size INTEGER NOT NULL,
	mime_type TEXT,
	blob_key TEXT,
	PRIMARY KEY(message_id, idx),
	FOREIGN KEY(message_id) REFERENCES messages(id)
);`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// DB exposes the handle so other packages can keep their tables alongside.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession writes the session and any messages not yet stored. Messages
// are immutable once appended, so rows already present are left untouched
// and saving the same session twice is harmless.
func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (id, start_time, backend) VALUES (?, ?, ?)",
		sess.ID, sess.StartTime, sess.Backend,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for seq, msg := range sess.History.Messages() {
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO messages (id, session_id, seq, sender, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
			msg.ID, sess.ID, seq, string(msg.Sender), msg.Content, msg.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save message %s: %w", msg.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		for i, f := range msg.AttachedFiles {
			_, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO attachments (message_id, idx, name, size, mime_type, blob_key) VALUES (?, ?, ?, ?, ?, ?)",
				msg.ID, i, f.Name, f.Size, f.MimeType, f.BlobKey,
			)
			if err != nil {
				return fmt.Errorf("failed to save attachment %s: %w", f.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("session saved", "session_id", sess.ID, "message_count", sess.History.Len())
	return nil
}

// LoadSession reads a session and its messages in insertion order.
func (s *Store) LoadSession(ctx context.Context, id string) (session.Session, error) {
	sess := session.Session{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT backend, start_time FROM sessions WHERE id = ?", id).
		Scan(&sess.Backend, &sess.StartTime)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	attachments, err := s.loadAttachments(ctx, id)
	if err != nil {
		return session.Session{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sender, content, timestamp FROM messages WHERE session_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var msgs []session.ChatMessage
	for rows.Next() {
		var msg session.ChatMessage
		var sender string
		if err := rows.Scan(&msg.ID, &sender, &msg.Content, &msg.Timestamp); err != nil {
			return session.Session{}, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Sender = session.Sender(sender)
		msg.AttachedFiles = attachments[msg.ID]
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return session.Session{}, fmt.Errorf("failed to read messages: %w", err)
	}

	sess.History = session.NewHistory(msgs...)
	return sess, nil
}

func (s *Store) loadAttachments(ctx context.Context, sessionID string) (map[string][]session.AttachedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.message_id, a.name, a.size, a.mime_type, a.blob_key
		FROM attachments a JOIN messages m ON m.id = a.message_id
		WHERE m.session_id = ?
		ORDER BY a.message_id, a.idx`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]session.AttachedFile)
	for rows.Next() {
		var msgID string
		var f session.AttachedFile
		var mime, blob sql.NullString
		if err := rows.Scan(&msgID, &f.Name, &f.Size, &mime, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		f.MimeType = mime.String
		f.BlobKey = blob.String
		out[msgID] = append(out[msgID], f)
	}
	return out, rows.Err()
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.start_time, s.backend, COUNT(m.id)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.StartTime, &sum.Backend, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
