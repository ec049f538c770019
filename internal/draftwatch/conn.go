package draftwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// The client keep-alive pings every 30s; a peer silent for this long
	// is treated as gone and the read fails, which triggers cleanup.
	readWait = 90 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Conn wraps one WebSocket connection for the draft session protocol.
// The read loop is the only goroutine touching sessionID, so the protocol
// state machine needs no locking; writes are serialized with a mutex
// because the reaper may race a Terminate against a reply.
type Conn struct {
	ws     *websocket.Conn
	userID string

	// sessionID is empty until a register message is accepted
	sessionID string

	remoteAddr  string
	connectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn, userID, remoteAddr string) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:          ws,
		userID:      userID,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// send writes one message with a bounded deadline
func (c *Conn) send(msg *Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("connection closed")
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()
	return wsjson.Write(ctx, c.ws, msg)
}

// read blocks for the next frame, bounded by the keep-alive window
func (c *Conn) read() ([]byte, error) {
	ctx, cancel := context.WithTimeout(c.ctx, readWait)
	defer cancel()

	_, data, err := c.ws.Read(ctx)
	return data, err
}

// close shuts the connection down with a normal status
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.ws.Close(websocket.StatusNormalClosure, "closing")
}

// Terminate force-closes the connection. Called by the reaper on sessions
// past the staleness ceiling; the read loop unblocks with an error and the
// normal disconnect path runs (finding the registry entry already gone).
func (c *Conn) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.ws.Close(websocket.StatusGoingAway, "session expired")
}

var _ ConnHandle = (*Conn)(nil)
