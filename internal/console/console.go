// Package console is the interactive, line-oriented chat front end.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"AgentConsole/internal/backend"
	"AgentConsole/internal/cache"
	"AgentConsole/internal/catalog"
	"AgentConsole/internal/config"
	"AgentConsole/internal/mcp"
	"AgentConsole/internal/session"
	"AgentConsole/internal/store"
	"AgentConsole/internal/voice"
)

// BackendFactory builds the backend called name. history lets the backend
// send earlier turns along with each message.
type BackendFactory func(ctx context.Context, name string, cfg config.Config, history backend.HistoryFunc) (session.Backend, error)

// Options wires a Console. Everything except Config, In and Out is
// optional; the commands that need a missing piece say so.
type Options struct {
	Config     config.Config
	In         io.Reader
	Out        io.Writer
	Err        io.Writer // notifications, defaults to Out
	Logger     *slog.Logger
	Store      *store.Store
	Catalog    *catalog.Catalog
	Blobs      *cache.BlobStore
	MCP        *mcp.Registry
	Voice      voice.Processor
	NewBackend BackendFactory
}

// Console runs one chat session at a time against the selected backend.
type Console struct {
	cfg        config.Config
	in         *bufio.Scanner
	out        io.Writer
	logger     *slog.Logger
	store      *store.Store
	catalog    *catalog.Catalog
	blobs      *cache.BlobStore
	mcp        *mcp.Registry
	voice      voice.Processor
	newBackend BackendFactory
	manager    *session.Manager
	backend    session.Backend
	pending    []session.AttachedFile
}

// Notifier prints notifications to w, one per line.
type Notifier struct {
	w io.Writer
}

// NewNotifier creates a Notifier writing to w.
func NewNotifier(w io.Writer) *Notifier {
	return &Notifier{w: w}
}

// Notify implements session.Notifier.
func (n *Notifier) Notify(note session.Notification) {
	fmt.Fprintf(n.w, "[%s] %s: %s\n", note.Level, note.Title, note.Message)
}

// New prepares a console. When cfg.SessionID names a saved session it is
// resumed; otherwise a new one starts.
func New(ctx context.Context, opts Options) (*Console, error) {
	if opts.In == nil || opts.Out == nil {
		return nil, fmt.Errorf("console needs input and output")
	}
	if opts.NewBackend == nil {
		return nil, fmt.Errorf("console needs a backend factory")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errOut := opts.Err
	if errOut == nil {
		errOut = opts.Out
	}

	c := &Console{
		cfg:        opts.Config,
		in:         bufio.NewScanner(opts.In),
		out:        opts.Out,
		logger:     logger,
		store:      opts.Store,
		catalog:    opts.Catalog,
		blobs:      opts.Blobs,
		mcp:        opts.MCP,
		voice:      opts.Voice,
		newBackend: opts.NewBackend,
	}
	c.in.Buffer(make([]byte, 64*1024), 1024*1024)

	name := c.backendName()
	b, err := c.newBackend(ctx, c.cfg.Backend, c.cfg, c.history)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", name, err)
	}
	c.backend = b

	managerOpts := session.Options{
		Backend:     b,
		BackendName: name,
		Notifier:    NewNotifier(errOut),
		Logger:      logger,
	}
	c.manager = c.openSession(ctx, managerOpts)
	return c, nil
}

func (c *Console) openSession(ctx context.Context, opts session.Options) *session.Manager {
	if c.cfg.SessionID == "" || c.store == nil {
		return session.NewManager(opts)
	}
	sess, err := c.store.LoadSession(ctx, c.cfg.SessionID)
	if err != nil {
		c.logger.Warn("failed to load session, creating new one", "session_id", c.cfg.SessionID, "error", err)
		return session.NewManager(opts)
	}
	return session.Restore(sess, opts)
}

func (c *Console) backendName() string {
	if c.cfg.Backend == config.BackendAgent {
		return config.BackendAgent + ":" + c.cfg.Agent
	}
	return c.cfg.Backend
}

func (c *Console) history() []session.ChatMessage {
	if c.manager == nil {
		return nil
	}
	return c.manager.History().Messages()
}

// Session returns the session in progress.
func (c *Console) Session() session.Session {
	return c.manager.Session()
}

// Backend returns the backend messages are currently sent to.
func (c *Console) Backend() session.Backend {
	return c.backend
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Run reads lines until EOF, /quit or ctx ends. The session is saved after
// every turn and on the way out.
func (c *Console) Run(ctx context.Context) error {
	sess := c.manager.Session()
	c.printf("=== Agent Console ===\n")
	c.printf("Session: %s\n", sess.ID)
	c.printf("Backend: %s\n", sess.Backend)
	if last, ok := sess.History.Last(); ok {
		c.printf("%s\n", last.Content)
	}
	c.printf("Type /help for commands, /quit to exit\n\n")

	for ctx.Err() == nil {
		c.printf("You: ")
		if !c.in.Scan() {
			break
		}

		input := strings.TrimSpace(c.in.Text())
		if strings.HasPrefix(input, "/") {
			quit, err := c.handleCommand(ctx, input)
			if err != nil {
				c.printf("Error: %v\n", err)
				c.logger.Error("command error", "command", input, "error", err)
			}
			if quit {
				break
			}
			continue
		}
		if input == "" && len(c.pending) == 0 {
			continue
		}

		c.send(ctx, input)
	}

	if err := c.in.Err(); err != nil {
		c.logger.Error("failed to read input", "error", err)
	}
	if err := c.save(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("failed to save session on exit", "error", err)
		return err
	}
	c.printf("Goodbye!\n")
	return nil
}

func (c *Console) send(ctx context.Context, text string) {
	attachments := c.pending
	c.pending = nil

	reply, err := c.manager.Send(ctx, text, attachments)
	switch {
	case err != nil:
		// the notifier has already told the user
		c.logger.Debug("send failed", "error", err)
	case reply != nil:
		c.printf("Bot: %s\n\n", reply.Content)
	}

	if err := c.save(ctx); err != nil {
		c.logger.Error("failed to save session", "error", err)
	}
}

func (c *Console) save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.SaveSession(ctx, c.manager.Session())
}

// switchBackend builds and installs the backend for cfg.
func (c *Console) switchBackend(ctx context.Context, cfg config.Config) error {
	b, err := c.newBackend(ctx, cfg.Backend, cfg, c.history)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.backend = b
	c.manager.SetBackend(c.backendName(), b)
	return nil
}

// ollama digs the Ollama backend out from behind any decorator.
func (c *Console) ollama() (*backend.Ollama, error) {
	b := c.backend
	for {
		switch v := b.(type) {
		case *backend.Ollama:
			return v, nil
		case interface{ Unwrap() session.Backend }:
			b = v.Unwrap()
		default:
			return nil, errors.New("current backend is not ollama; use /switch ollama first")
		}
	}
}
