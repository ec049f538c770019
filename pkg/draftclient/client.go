// Package draftclient is the Go client for the draft session tracker. It
// keeps a WebSocket session alive while a post is being composed, reports
// uploads and removals as they happen, and reconnects with its full local
// file set if the connection drops mid-composition.
package draftclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/emberfeed/backend/internal/draftwatch"
	"go.uber.org/zap"
)

const (
	defaultPingInterval  = 30 * time.Second
	defaultReconnectBase = 2 * time.Second
	defaultMaxReconnects = 5
	handshakeTimeout     = 10 * time.Second
)

// Config configures a Client
type Config struct {
	// ServerURL is the WebSocket endpoint, e.g. wss://host/api/v1/ws/drafts
	ServerURL string

	// Token is the JWT passed as a query parameter
	Token string

	// PingInterval is how often keep-alive pings are sent (default 30s)
	PingInterval time.Duration

	// ReconnectBase is the backoff unit: attempt n waits n*ReconnectBase
	// (default 2s)
	ReconnectBase time.Duration

	// MaxReconnects bounds reconnection attempts per drop (default 5)
	MaxReconnects int

	// Logger receives connection lifecycle events (default: no-op)
	Logger *zap.Logger
}

// Client tracks draft files for one composition session. All methods are
// safe for concurrent use. File reporting is best-effort: a send failure
// only logs, because the local set is replayed on the next register.
type Client struct {
	cfg Config

	// writeMu serializes frame writes; the websocket allows one writer
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	files     map[string]struct{}
	submitted bool
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client; call Connect to open the session
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("draftclient: ServerURL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("draftclient: Token is required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		files:  make(map[string]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Connect dials the tracker, completes the register handshake and starts
// the keep-alive and read loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("draftclient: client is closed")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("draftclient: already connected")
	}
	c.mu.Unlock()

	if err := c.dialAndRegister(ctx); err != nil {
		return err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return nil
}

// SessionID returns the server-issued session id (empty before Connect)
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// TrackFile reports an uploaded file. Idempotent per file id.
func (c *Client) TrackFile(fileID string) {
	if fileID == "" {
		return
	}
	c.mu.Lock()
	if _, dup := c.files[fileID]; dup {
		c.mu.Unlock()
		return
	}
	c.files[fileID] = struct{}{}
	c.mu.Unlock()

	c.sendBestEffort(draftwatch.NewMessage(draftwatch.MessageTypeFileUploaded,
		draftwatch.FilePayload{FileID: fileID}))
}

// RemoveFile reports that a file was detached from the draft
func (c *Client) RemoveFile(fileID string) {
	c.mu.Lock()
	if _, tracked := c.files[fileID]; !tracked {
		c.mu.Unlock()
		return
	}
	delete(c.files, fileID)
	c.mu.Unlock()

	c.sendBestEffort(draftwatch.NewMessage(draftwatch.MessageTypeFileRemoved,
		draftwatch.FilePayload{FileID: fileID}))
}

// TrackedFiles returns the locally tracked file ids
func (c *Client) TrackedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	files := make([]string, 0, len(c.files))
	for id := range c.files {
		files = append(files, id)
	}
	return files
}

// NotifySubmitted tells the tracker the post was submitted, so tracked
// files survive the eventual disconnect. Unlike file events this one must
// arrive, so the send error is returned.
func (c *Client) NotifySubmitted(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.submitted = true
	c.mu.Unlock()

	if conn == nil {
		return errors.New("draftclient: not connected")
	}
	msg := draftwatch.NewMessage(draftwatch.MessageTypePostSubmitted, nil)
	c.writeMu.Lock()
	err := wsjson.Write(ctx, conn, msg)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("draftclient: failed to send post_submitted: %w", err)
	}
	return nil
}

// Disconnect closes the session for good: no reconnection is attempted.
// If the post was not submitted, the server deletes every tracked file.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}
	c.wg.Wait()
}

// dialAndRegister opens the socket and completes the handshake: wait for
// connected, send register with the full local set plus any prior session
// id, wait for registered.
func (c *Client) dialAndRegister(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.cfg.ServerURL+"?token="+c.cfg.Token, nil)
	if err != nil {
		return fmt.Errorf("draftclient: dial failed: %w", err)
	}

	var hello draftwatch.Message
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		_ = conn.CloseNow()
		return fmt.Errorf("draftclient: handshake read failed: %w", err)
	}
	if hello.Type != draftwatch.MessageTypeConnected {
		_ = conn.CloseNow()
		return fmt.Errorf("draftclient: unexpected handshake message %q", hello.Type)
	}

	c.mu.Lock()
	payload := draftwatch.RegisterPayload{
		SessionID: c.sessionID,
		FileIDs:   make([]string, 0, len(c.files)),
	}
	for id := range c.files {
		payload.FileIDs = append(payload.FileIDs, id)
	}
	c.mu.Unlock()

	if err := wsjson.Write(ctx, conn, draftwatch.NewMessage(draftwatch.MessageTypeRegister, payload)); err != nil {
		_ = conn.CloseNow()
		return fmt.Errorf("draftclient: register send failed: %w", err)
	}

	// Skip advisory errors until the registered reply arrives
	for {
		var reply draftwatch.Message
		if err := wsjson.Read(ctx, conn, &reply); err != nil {
			_ = conn.CloseNow()
			return fmt.Errorf("draftclient: register reply read failed: %w", err)
		}
		if reply.Type != draftwatch.MessageTypeRegistered {
			continue
		}
		var registered draftwatch.RegisteredPayload
		if err := reply.ParsePayload(&registered); err != nil {
			_ = conn.CloseNow()
			return fmt.Errorf("draftclient: bad registered payload: %w", err)
		}
		c.mu.Lock()
		c.conn = conn
		c.sessionID = registered.SessionID
		c.mu.Unlock()

		c.cfg.Logger.Info("draft session registered",
			zap.String("session_id", registered.SessionID),
			zap.Int("tracked_files", len(payload.FileIDs)),
		)
		return nil
	}
}

// readLoop drains server messages and triggers reconnection when the
// connection drops without Disconnect having been called.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var msg draftwatch.Message
		if err := wsjson.Read(c.ctx, conn, &msg); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.conn = nil
			c.mu.Unlock()
			if closed {
				return
			}

			c.cfg.Logger.Warn("draft session connection lost, reconnecting", zap.Error(err))
			if !c.reconnect() {
				return
			}
			continue
		}

		switch msg.Type {
		case draftwatch.MessageTypeError:
			var payload draftwatch.ErrorPayload
			_ = msg.ParsePayload(&payload)
			c.cfg.Logger.Warn("draft session server error",
				zap.String("code", payload.Code),
				zap.String("message", payload.Message),
			)
		case draftwatch.MessageTypePong, draftwatch.MessageTypeAck:
			// expected replies, nothing to do
		default:
			c.cfg.Logger.Debug("ignoring draft session message", zap.String("type", msg.Type))
		}
	}
}

// reconnect retries with linear backoff: attempt n waits n*ReconnectBase.
// Returns false when the attempts are exhausted or the client was closed;
// giving up is silent beyond a log line, matching the server's stance that
// an abandoned session is cleaned up there.
func (c *Client) reconnect() bool {
	for attempt := 1; attempt <= c.cfg.MaxReconnects; attempt++ {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * c.cfg.ReconnectBase):
		}

		if err := c.dialAndRegister(c.ctx); err != nil {
			c.cfg.Logger.Warn("draft session reconnect failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		return true
	}

	c.cfg.Logger.Error("draft session reconnect attempts exhausted",
		zap.Int("attempts", c.cfg.MaxReconnects),
	)
	return false
}

// pingLoop keeps the server's read deadline fed
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sendBestEffort(draftwatch.NewMessage(draftwatch.MessageTypePing, nil))
		}
	}
}

// sendBestEffort writes a message if connected, logging on failure. The
// read loop owns failure handling, so errors here are not acted on.
func (c *Client) sendBestEffort(msg *draftwatch.Message) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		c.cfg.Logger.Debug("draft session send failed", zap.String("type", msg.Type), zap.Error(err))
	}
}
