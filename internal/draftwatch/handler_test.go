package draftwatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTokens accepts tokens of the form "token-<user_id>"
type stubTokens struct{}

func (stubTokens) ValidateToken(tokenString string) (string, error) {
	if !strings.HasPrefix(tokenString, "token-") {
		return "", errors.New("invalid token")
	}
	return strings.TrimPrefix(tokenString, "token-"), nil
}

func newTestTracker(t *testing.T) (*httptest.Server, *MockFileDeleter, *Handler) {
	t.Helper()

	deleter := &MockFileDeleter{}
	handler := NewHandler(NewRegistry(), NewCleanupExecutor(deleter), stubTokens{})

	router := gin.New()
	router.GET("/api/v1/ws/drafts", handler.HandleWebSocket)
	router.GET("/api/v1/ws/drafts/status", handler.HandleStatus)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, deleter, handler
}

func dialDrafts(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/drafts?token=" + token
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })

	// Server pushes connected before anything else
	msg := recvMsg(t, c)
	require.Equal(t, MessageTypeConnected, msg.Type)
	return c
}

func sendMsg(t *testing.T, c *websocket.Conn, msg *Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, msg))
}

func recvMsg(t *testing.T, c *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msg Message
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	return msg
}

func registerSession(t *testing.T, c *websocket.Conn, payload RegisterPayload) string {
	t.Helper()

	msg := NewMessage(MessageTypeRegister, payload)
	msg.ID = "reg-1"
	sendMsg(t, c, msg)

	reply := recvMsg(t, c)
	require.Equal(t, MessageTypeRegistered, reply.Type)
	require.Equal(t, "reg-1", reply.ReplyTo)

	var registered RegisteredPayload
	require.NoError(t, reply.ParsePayload(&registered))
	require.NotEmpty(t, registered.SessionID)
	return registered.SessionID
}

func TestHandlerRejectsMissingOrBadToken(t *testing.T) {
	srv, _, _ := newTestTracker(t)

	resp, err := http.Get(srv.URL + "/api/v1/ws/drafts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/api/v1/ws/drafts?token=garbage")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAbandonedSessionDeletesTrackedFiles(t *testing.T) {
	srv, deleter, handler := newTestTracker(t)

	c := dialDrafts(t, srv, "token-alice")
	registerSession(t, c, RegisterPayload{FileIDs: []string{"drafts/alice/a.jpg", "drafts/alice/b.png"}})
	sendMsg(t, c, NewMessage(MessageTypeFileUploaded, FilePayload{FileID: "drafts/alice/c.mp4"}))

	// Disconnect without post_submitted: everything tracked gets deleted
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return len(deleter.Deleted()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t,
		[]string{"drafts/alice/a.jpg", "drafts/alice/b.png", "drafts/alice/c.mp4"},
		deleter.Deleted(),
	)
	assert.Equal(t, 0, handler.Registry().Len())
}

func TestSubmittedSessionPreservesFiles(t *testing.T) {
	srv, deleter, handler := newTestTracker(t)

	c := dialDrafts(t, srv, "token-alice")
	registerSession(t, c, RegisterPayload{FileIDs: []string{"drafts/alice/a.jpg"}})
	sendMsg(t, c, NewMessage(MessageTypeFileUploaded, FilePayload{FileID: "drafts/alice/b.png"}))

	submit := NewMessage(MessageTypePostSubmitted, nil)
	submit.ID = "sub-1"
	sendMsg(t, c, submit)

	ack := recvMsg(t, c)
	assert.Equal(t, MessageTypeAck, ack.Type)
	assert.Equal(t, "sub-1", ack.ReplyTo)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return handler.Registry().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, deleter.Deleted(), "submitted session must not trigger deletes")
}

func TestUploadThenRemoveNetsToNothing(t *testing.T) {
	srv, deleter, handler := newTestTracker(t)

	c := dialDrafts(t, srv, "token-alice")
	registerSession(t, c, RegisterPayload{})
	sendMsg(t, c, NewMessage(MessageTypeFileUploaded, FilePayload{FileID: "drafts/alice/x.jpg"}))
	sendMsg(t, c, NewMessage(MessageTypeFileRemoved, FilePayload{FileID: "drafts/alice/x.jpg"}))

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return handler.Registry().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, deleter.Deleted())
}

func TestSessionsOfSameUserAreIndependent(t *testing.T) {
	srv, deleter, handler := newTestTracker(t)

	c1 := dialDrafts(t, srv, "token-alice")
	registerSession(t, c1, RegisterPayload{FileIDs: []string{"drafts/alice/post1.jpg"}})

	c2 := dialDrafts(t, srv, "token-alice")
	registerSession(t, c2, RegisterPayload{FileIDs: []string{"drafts/alice/post2.jpg"}})

	// Second composition is submitted, first is abandoned
	submit := NewMessage(MessageTypePostSubmitted, nil)
	submit.ID = "sub-1"
	sendMsg(t, c2, submit)
	recvMsg(t, c2)

	require.NoError(t, c1.Close(websocket.StatusNormalClosure, ""))
	require.NoError(t, c2.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return handler.Registry().Len() == 0 && len(deleter.Deleted()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"drafts/alice/post1.jpg"}, deleter.Deleted())
}

func TestReconnectResumesPriorSessionFiles(t *testing.T) {
	srv, deleter, handler := newTestTracker(t)

	c1 := dialDrafts(t, srv, "token-alice")
	oldID := registerSession(t, c1, RegisterPayload{FileIDs: []string{"drafts/alice/a.jpg", "drafts/alice/b.png"}})

	// New connection resumes the old session while it is still registered
	c2 := dialDrafts(t, srv, "token-alice")
	newID := registerSession(t, c2, RegisterPayload{
		SessionID: oldID,
		FileIDs:   []string{"drafts/alice/c.mp4"},
	})
	assert.NotEqual(t, oldID, newID, "server always issues a fresh session id")
	assert.Equal(t, 1, handler.Registry().Len())

	// The superseded connection's disconnect must not delete anything
	require.NoError(t, c1.Close(websocket.StatusNormalClosure, ""))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, deleter.Deleted())

	snap, ok := handler.Registry().Get(newID)
	require.True(t, ok)
	assert.ElementsMatch(t,
		[]string{"drafts/alice/a.jpg", "drafts/alice/b.png", "drafts/alice/c.mp4"},
		snap.Files,
	)

	// Abandoning the resumed session cleans up the merged set
	require.NoError(t, c2.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		return len(deleter.Deleted()) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResumeRejectsForeignSession(t *testing.T) {
	srv, _, handler := newTestTracker(t)

	c1 := dialDrafts(t, srv, "token-alice")
	aliceID := registerSession(t, c1, RegisterPayload{FileIDs: []string{"drafts/alice/a.jpg"}})

	// bob cannot fold alice's session into his own
	c2 := dialDrafts(t, srv, "token-bob")
	registerSession(t, c2, RegisterPayload{SessionID: aliceID})

	snap, ok := handler.Registry().Get(aliceID)
	require.True(t, ok, "alice's session must survive bob's resume attempt")
	assert.ElementsMatch(t, []string{"drafts/alice/a.jpg"}, snap.Files)
}

func TestMalformedFrameDoesNotCloseConnection(t *testing.T) {
	srv, _, _ := newTestTracker(t)

	c := dialDrafts(t, srv, "token-alice")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))

	errMsg := recvMsg(t, c)
	assert.Equal(t, MessageTypeError, errMsg.Type)

	// Connection is still usable
	ping := NewMessage(MessageTypePing, nil)
	ping.ID = "ping-1"
	sendMsg(t, c, ping)
	pong := recvMsg(t, c)
	assert.Equal(t, MessageTypePong, pong.Type)
	assert.Equal(t, "ping-1", pong.ReplyTo)
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	srv, _, _ := newTestTracker(t)

	c := dialDrafts(t, srv, "token-alice")
	sendMsg(t, c, NewMessage("jazz_hands", nil))

	ping := NewMessage(MessageTypePing, nil)
	ping.ID = "ping-1"
	sendMsg(t, c, ping)
	pong := recvMsg(t, c)
	assert.Equal(t, MessageTypePong, pong.Type)
}

func TestFileEventBeforeRegisterIgnored(t *testing.T) {
	srv, deleter, handler := newTestTracker(t)

	c := dialDrafts(t, srv, "token-alice")
	sendMsg(t, c, NewMessage(MessageTypeFileUploaded, FilePayload{FileID: "drafts/alice/early.jpg"}))

	id := registerSession(t, c, RegisterPayload{})
	snap, ok := handler.Registry().Get(id)
	require.True(t, ok)
	assert.Empty(t, snap.Files, "events before register are dropped")

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		return handler.Registry().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, deleter.Deleted())
}

func TestDuplicateRegisterIgnored(t *testing.T) {
	srv, _, handler := newTestTracker(t)

	c := dialDrafts(t, srv, "token-alice")
	registerSession(t, c, RegisterPayload{FileIDs: []string{"drafts/alice/a.jpg"}})

	// Second register is dropped; the session table stays at one entry
	sendMsg(t, c, NewMessage(MessageTypeRegister, RegisterPayload{FileIDs: []string{"drafts/alice/z.jpg"}}))

	ping := NewMessage(MessageTypePing, nil)
	ping.ID = "ping-1"
	sendMsg(t, c, ping)
	pong := recvMsg(t, c)
	assert.Equal(t, MessageTypePong, pong.Type)
	assert.Equal(t, 1, handler.Registry().Len())
}
