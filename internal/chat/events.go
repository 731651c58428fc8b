package chat

import (
	"encoding/json"
	"fmt"

	"webchat/internal/models"
)

// Event names exchanged with clients. One JSON envelope per websocket
// text frame: {"event": ..., "data": ...}.
const (
	// client -> server
	EventJoin       = "join"
	EventLogin      = "login"
	EventRegister   = "register"
	EventChat       = "chat message"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"

	// server -> client
	EventSystem           = "system"
	EventUserList         = "update user list"
	EventLoginResponse    = "login_response"
	EventRegisterResponse = "register_response"
)

// HistorySender is the sentinel sender id on replayed messages, letting
// clients distinguish history from live traffic.
const HistorySender = "history"

// Envelope is an inbound frame. Data stays raw until the event name
// selects a payload shape.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatPayload is an outbound chat message frame.
type ChatPayload struct {
	User string `json:"user"`
	Text string `json:"text"`
	Type string `json:"type"`
	ID   string `json:"id"`
	Time string `json:"time"`
}

// AuthResponse answers a login or register event.
type AuthResponse struct {
	Success  bool   `json:"success"`
	Msg      string `json:"msg,omitempty"`
	Username string `json:"username,omitempty"`
}

// chatInput is the canonical form of an inbound chat payload. Clients
// may send either a bare string or {msg, type}; both normalize here at
// the boundary before any handler logic runs.
type chatInput struct {
	Msg  string
	Kind string
}

func decodeChatInput(raw json.RawMessage) (chatInput, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return chatInput{Msg: s, Kind: models.KindText}, nil
	}

	var obj struct {
		Msg  string `json:"msg"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return chatInput{}, fmt.Errorf("chat: malformed chat payload: %w", err)
	}
	if obj.Type == "" {
		obj.Type = models.KindText
	}
	if !models.ValidKind(obj.Type) {
		return chatInput{}, fmt.Errorf("chat: unsupported message type %q", obj.Type)
	}
	return chatInput{Msg: obj.Msg, Kind: obj.Type}, nil
}

// encodeEvent marshals an outbound envelope. Payloads are our own
// types, so a marshal failure is a programming error; it degrades to an
// empty frame rather than panicking a handler.
func encodeEvent(event string, data any) []byte {
	frame, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data})
	if err != nil {
		return []byte(`{"event":"system","data":"internal encoding error"}`)
	}
	return frame
}
