// Package draftwatch ties draft attachment uploads to post submission over
// a WebSocket session. Files uploaded while composing a post are tracked
// per session; if the connection drops before the post is submitted, every
// tracked file is deleted from storage. Sessions live in process memory
// only and are intentionally lost on restart.
package draftwatch

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types for the draft session protocol
const (
	// Client -> server
	MessageTypeRegister      = "register"
	MessageTypeFileUploaded  = "file_uploaded"
	MessageTypeFileRemoved   = "file_removed"
	MessageTypePostSubmitted = "post_submitted"
	MessageTypePing          = "ping"

	// Server -> client
	MessageTypeConnected  = "connected"
	MessageTypeRegistered = "registered"
	MessageTypeAck        = "ack"
	MessageTypePong       = "pong"
	MessageTypeError      = "error"
)

// FlexibleTime accepts both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always emits RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message is the JSON envelope for every frame in both directions
type Message struct {
	Type      string       `json:"type"`
	Payload   interface{}  `json:"payload,omitempty"`
	ID        string       `json:"id,omitempty"`
	ReplyTo   string       `json:"reply_to,omitempty"`
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an advisory error message. Protocol errors never
// close the connection; the client may log or ignore them.
func NewErrorMessage(code, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{Code: code, Message: message})
}

// ParsePayload unmarshals the payload into a concrete type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// RegisterPayload opens (or resumes after a reconnect) a draft session.
// SessionID, when present, names the session a reconnecting client held
// before; its file set is folded into the new session. FileIDs carries the
// client's full locally tracked set so server state re-converges even when
// the prior server-side session is already gone.
type RegisterPayload struct {
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id,omitempty"`
	FileIDs   []string `json:"file_ids"`
}

// FilePayload identifies one tracked file
type FilePayload struct {
	FileID string `json:"file_id"`
}

// RegisteredPayload completes the handshake
type RegisteredPayload struct {
	SessionID string `json:"session_id"`
}

// AckPayload acknowledges post_submitted
type AckPayload struct {
	Message string `json:"message"`
}

// ErrorPayload carries an advisory error
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
