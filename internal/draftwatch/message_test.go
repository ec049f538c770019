package draftwatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleTimeAcceptsBothFormats(t *testing.T) {
	var ft FlexibleTime

	require.NoError(t, json.Unmarshal([]byte(`1756300000000`), &ft))
	assert.Equal(t, time.UnixMilli(1756300000000), ft.Time)

	require.NoError(t, json.Unmarshal([]byte(`"2026-08-28T10:00:00Z"`), &ft))
	assert.Equal(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC), ft.Time.UTC())

	assert.Error(t, json.Unmarshal([]byte(`true`), &ft))
	assert.Error(t, json.Unmarshal([]byte(`"not-a-time"`), &ft))
}

func TestMessageEnvelopeRoundTrip(t *testing.T) {
	raw := `{
		"type": "register",
		"id": "msg-1",
		"timestamp": 1756300000000,
		"payload": {"user_id": "user-1", "session_id": "old-session", "file_ids": ["a", "b"]}
	}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, MessageTypeRegister, msg.Type)
	assert.Equal(t, "msg-1", msg.ID)

	var payload RegisterPayload
	require.NoError(t, msg.ParsePayload(&payload))
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, "old-session", payload.SessionID)
	assert.Equal(t, []string{"a", "b"}, payload.FileIDs)
}

func TestParsePayloadNilPayload(t *testing.T) {
	msg := &Message{Type: MessageTypePostSubmitted}

	var payload FilePayload
	require.NoError(t, msg.ParsePayload(&payload))
	assert.Empty(t, payload.FileID)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("invalid_json", "failed to parse message")
	assert.Equal(t, MessageTypeError, msg.Type)

	payload, ok := msg.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "invalid_json", payload.Code)
	assert.False(t, msg.Timestamp.IsZero())
}
