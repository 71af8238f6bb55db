package backend

import (
	"context"
	"log/slog"

	"AgentConsole/internal/cache"
	"AgentConsole/internal/session"
)

// Cached answers repeated prompts from a ResponseCache. The key covers the
// conversation so far, so the same question in a different context misses.
type Cached struct {
	name    string
	next    session.Backend
	cache   *cache.ResponseCache
	history HistoryFunc
	logger  *slog.Logger
}

// NewCached wraps next. name keeps entries of different backends apart.
// history may be nil.
func NewCached(name string, next session.Backend, c *cache.ResponseCache, history HistoryFunc, logger *slog.Logger) *Cached {
	return &Cached{name: name, next: next, cache: c, history: history, logger: logger}
}

// Unwrap returns the decorated backend.
func (c *Cached) Unwrap() session.Backend {
	return c.next
}

// SendMessage implements session.Backend.
func (c *Cached) SendMessage(ctx context.Context, content string, attachments []session.AttachedFile) (session.ChatMessage, error) {
	parts := []string{c.name}
	for _, t := range conversation(c.history, content) {
		parts = append(parts, t.Role, t.Content)
	}
	for _, f := range attachments {
		parts = append(parts, f.Name, f.BlobKey)
	}
	key := cache.GenerateCacheKey(parts...)

	if cached, ok := c.cache.Get(key); ok {
		c.logger.Info("cache hit", "backend", c.name, "key", key[:16])
		return reply(cached), nil
	}

	msg, err := c.next.SendMessage(ctx, content, attachments)
	if err != nil {
		return session.ChatMessage{}, err
	}
	c.cache.Put(key, msg.Content)
	c.logger.Debug("cached response", "backend", c.name, "key", key[:16])
	return msg, nil
}
