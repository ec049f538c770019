package draftwatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/emberfeed/backend/internal/logger"
	"github.com/emberfeed/backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenValidator verifies a JWT and returns the authenticated user id
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// Handler owns the WebSocket upgrade endpoint and the per-connection
// protocol state machine: Unregistered -> Registered -> (Submitted |
// Closing). All collaborators are injected so tests can run isolated
// registries and fake storage.
type Handler struct {
	registry *Registry
	cleanup  *CleanupExecutor
	tokens   TokenValidator
}

// NewHandler creates a draftwatch connection handler
func NewHandler(registry *Registry, cleanup *CleanupExecutor, tokens TokenValidator) *Handler {
	return &Handler{
		registry: registry,
		cleanup:  cleanup,
		tokens:   tokens,
	}
}

// Registry exposes the session table (for the reaper and status endpoints)
func (h *Handler) Registry() *Registry {
	return h.registry
}

// HandleWebSocket upgrades the HTTP request and runs the session protocol
// until the connection closes. Auth via JWT in query param ?token=... or
// Authorization: Bearer header.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Warn("Draft session auth failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // TODO: restrict origins once the web client's domains are settled
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(ws, userID, c.ClientIP())

	// Pushed before registration so the client knows the transport is up
	if err := conn.send(NewMessage(MessageTypeConnected, nil)); err != nil {
		conn.close()
		return
	}

	logger.Log.Info("Draft session connection opened",
		logger.WithUserID(userID),
		zap.String("remote_addr", conn.remoteAddr),
	)

	h.readLoop(conn)
	h.finish(conn)
}

// readLoop processes frames in receipt order until the connection dies.
// One goroutine per connection; in-order processing is what guarantees
// that file_uploaded followed by file_removed nets to removed.
func (h *Handler) readLoop(conn *Conn) {
	conn.ws.SetReadLimit(maxMessageSize)

	for {
		data, err := conn.read()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Info("Draft session connection closed", logger.WithUserID(conn.userID))
			} else if conn.ctx.Err() == nil {
				logger.Log.Info("Draft session connection lost",
					logger.WithUserID(conn.userID),
					zap.Error(err),
				)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// One bad frame must not take down the session
			logger.Log.Warn("Malformed draft session message",
				logger.WithUserID(conn.userID),
				zap.Error(err),
			)
			_ = conn.send(NewErrorMessage("invalid_json", "failed to parse message"))
			continue
		}

		h.handleMessage(conn, &msg)
	}
}

// handleMessage dispatches one inbound message
func (h *Handler) handleMessage(conn *Conn, msg *Message) {
	m := metrics.Get()
	switch msg.Type {
	case MessageTypeRegister, MessageTypeFileUploaded, MessageTypeFileRemoved,
		MessageTypePostSubmitted, MessageTypePing:
		m.WSMessagesTotal.WithLabelValues(msg.Type).Inc()
	default:
		m.WSMessagesTotal.WithLabelValues("unknown").Inc()
	}

	switch msg.Type {
	case MessageTypePing:
		pong := NewMessage(MessageTypePong, nil)
		pong.ReplyTo = msg.ID
		_ = conn.send(pong)

	case MessageTypeRegister:
		h.handleRegister(conn, msg)

	case MessageTypeFileUploaded:
		h.handleFileEvent(conn, msg, true)

	case MessageTypeFileRemoved:
		h.handleFileEvent(conn, msg, false)

	case MessageTypePostSubmitted:
		h.handleSubmitted(conn, msg)

	default:
		// Unknown types are ignored for forward compatibility with newer clients
		logger.Log.Debug("Ignoring unknown draft session message type",
			logger.WithUserID(conn.userID),
			zap.String("type", msg.Type),
		)
	}
}

func (h *Handler) handleRegister(conn *Conn, msg *Message) {
	if conn.sessionID != "" {
		logger.Log.Warn("Duplicate register on draft session, ignoring",
			logger.WithUserID(conn.userID),
			logger.WithSessionID(conn.sessionID),
		)
		return
	}

	var payload RegisterPayload
	if err := msg.ParsePayload(&payload); err != nil {
		logger.Log.Warn("Malformed register payload",
			logger.WithUserID(conn.userID),
			zap.Error(err),
		)
		_ = conn.send(NewErrorMessage("invalid_payload", "failed to parse register payload"))
		return
	}

	// The token is authoritative; the payload's user_id is informational only
	if payload.UserID != "" && payload.UserID != conn.userID {
		logger.Log.Warn("Register payload user does not match token, using token identity",
			logger.WithUserID(conn.userID),
			zap.String("payload_user_id", payload.UserID),
		)
	}

	files := payload.FileIDs
	taken := 0
	if payload.SessionID != "" {
		// Resume after reconnect: detach the prior session's file set so its
		// old connection's disconnect path finds nothing to clean up.
		if prior, ok := h.registry.Take(payload.SessionID, conn.userID); ok {
			files = append(files, prior...)
			taken = len(prior)
		}
	}

	conn.sessionID = h.registry.Create(conn.userID, files, conn)

	m := metrics.Get()
	m.SessionsOpenedTotal.Inc()
	m.SessionsActive.Inc()
	if taken > 0 {
		m.FilesTracked.Sub(float64(taken))
	}
	if snap, ok := h.registry.Get(conn.sessionID); ok {
		m.FilesTracked.Add(float64(len(snap.Files)))
	}

	logger.Log.Info("Draft session registered",
		logger.WithUserID(conn.userID),
		logger.WithSessionID(conn.sessionID),
		zap.Int("initial_files", len(files)),
		zap.String("resumed_from", payload.SessionID),
	)

	reply := NewMessage(MessageTypeRegistered, RegisteredPayload{SessionID: conn.sessionID})
	reply.ReplyTo = msg.ID
	_ = conn.send(reply)
}

func (h *Handler) handleFileEvent(conn *Conn, msg *Message, uploaded bool) {
	if conn.sessionID == "" {
		// Out-of-order delivery on reconnect races; not fatal
		logger.Log.Warn("File event before register, ignoring",
			logger.WithUserID(conn.userID),
			zap.String("type", msg.Type),
		)
		return
	}

	var payload FilePayload
	if err := msg.ParsePayload(&payload); err != nil || payload.FileID == "" {
		logger.Log.Warn("Malformed file event payload",
			logger.WithUserID(conn.userID),
			logger.WithSessionID(conn.sessionID),
			zap.Error(err),
		)
		return
	}

	m := metrics.Get()
	if uploaded {
		if h.registry.AddFile(conn.sessionID, payload.FileID) {
			m.FilesTracked.Inc()
		}
	} else {
		if h.registry.RemoveFile(conn.sessionID, payload.FileID) {
			m.FilesTracked.Dec()
		}
	}
}

func (h *Handler) handleSubmitted(conn *Conn, msg *Message) {
	if conn.sessionID == "" {
		logger.Log.Warn("post_submitted before register, ignoring",
			logger.WithUserID(conn.userID),
		)
		return
	}

	h.registry.MarkSubmitted(conn.sessionID)

	logger.Log.Info("Draft session submitted, files preserved",
		logger.WithUserID(conn.userID),
		logger.WithSessionID(conn.sessionID),
	)

	ack := NewMessage(MessageTypeAck, AckPayload{Message: "post submitted, draft files preserved"})
	ack.ReplyTo = msg.ID
	_ = conn.send(ack)
}

// finish runs after the read loop exits: remove the session and, when the
// draft was abandoned with files still tracked, hand the exact file set to
// the cleanup executor. Teardown never waits on storage.
func (h *Handler) finish(conn *Conn) {
	conn.close()

	if conn.sessionID == "" {
		return
	}

	snap, ok := h.registry.Remove(conn.sessionID)
	if !ok {
		// Reaper or a resuming connection got here first
		return
	}

	m := metrics.Get()
	m.SessionsActive.Dec()
	m.FilesTracked.Sub(float64(len(snap.Files)))

	if snap.Submitted || len(snap.Files) == 0 {
		logger.Log.Info("Draft session closed without cleanup",
			logger.WithSessionID(snap.SessionID),
			zap.Bool("submitted", snap.Submitted),
			zap.Int("tracked_files", len(snap.Files)),
		)
		return
	}

	logger.Log.Info("Draft session abandoned, cleaning up tracked files",
		logger.WithSessionID(snap.SessionID),
		logger.WithUserID(snap.OwnerID),
		zap.Int("tracked_files", len(snap.Files)),
	)
	h.cleanup.Execute(snap)
}

// authenticateRequest extracts and validates the JWT from the request
func (h *Handler) authenticateRequest(c *gin.Context) (string, error) {
	tokenString := c.Query("token")

	if auth := c.GetHeader("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		} else {
			tokenString = auth
		}
	}

	if tokenString == "" {
		return "", errors.New("no authentication token provided")
	}

	return h.tokens.ValidateToken(tokenString)
}

// HandleStatus reports tracker state (for monitoring)
func (h *Handler) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_sessions": h.registry.Len(),
	})
}
