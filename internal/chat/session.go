package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"webchat/internal/auth"
	"webchat/internal/config"
	"webchat/internal/logger"
	"webchat/internal/models"
	"webchat/internal/presence"
	"webchat/internal/storage"
)

// Session states. A session starts Anonymous, may become Authenticated
// exactly once, and ends Closed.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateClosed
)

// Session is the per-connection lifecycle state. It is owned by the
// connection; the presence registry only mirrors the display name. All
// transitions are serialized under mu so a disconnect racing a slow
// login can never leak a presence entry.
type Session struct {
	ID string

	mu          sync.Mutex
	state       State
	displayName string
}

// snapshot returns the state and display name under the lock.
func (s *Session) snapshot() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.displayName
}

// Handler processes inbound events for sessions. Collaborators are
// passed in explicitly; handlers never capture ambient connection
// state.
type Handler struct {
	store        storage.Store
	registry     *presence.Registry
	hub          *Hub
	historyLimit int
	guestMode    bool
	maxPayload   int64
	log          *logger.Logger
}

// NewHandler wires the event handlers to their collaborators. When
// cfg.GuestMode is set, the join event (display name, no credentials)
// is the sole entry into the authenticated state and login/register
// are disabled.
func NewHandler(store storage.Store, registry *presence.Registry, hub *Hub, cfg *config.Config) *Handler {
	return &Handler{
		store:        store,
		registry:     registry,
		hub:          hub,
		historyLimit: cfg.HistoryLimit,
		guestMode:    cfg.GuestMode,
		maxPayload:   cfg.MaxPayloadBytes,
		log:          logger.New("chat"),
	}
}

// NewSession creates the session for a freshly attached connection.
func (h *Handler) NewSession() *Session {
	return &Session{ID: uuid.NewString(), state: StateAnonymous}
}

// HandleEvent dispatches one inbound frame for a session. Events for a
// single connection arrive from a single reader goroutine, so a
// session's events are processed in submission order.
func (h *Handler) HandleEvent(ctx context.Context, s *Session, env Envelope) {
	switch env.Event {
	case EventRegister:
		h.handleRegister(ctx, s, env.Data)
	case EventLogin:
		h.handleLogin(ctx, s, env.Data)
	case EventJoin:
		h.handleJoin(ctx, s, env.Data)
	case EventChat:
		h.handleChat(ctx, s, env.Data)
	case EventTyping:
		h.handleTyping(s, false)
	case EventStopTyping:
		h.handleTyping(s, true)
	default:
		h.log.Debug("unknown event %q from %s", env.Event, s.ID)
	}
}

func (h *Handler) handleRegister(ctx context.Context, s *Session, data json.RawMessage) {
	if h.guestMode {
		h.hub.SendTo(s.ID, encodeEvent(EventRegisterResponse, AuthResponse{
			Success: false, Msg: "accounts are disabled on this server",
		}))
		return
	}

	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		h.hub.SendTo(s.ID, encodeEvent(EventRegisterResponse, AuthResponse{
			Success: false, Msg: "malformed register payload",
		}))
		return
	}

	// Validation happens before any storage access.
	if creds.Username == "" || creds.Password == "" {
		h.hub.SendTo(s.ID, encodeEvent(EventRegisterResponse, AuthResponse{
			Success: false, Msg: "username and password are required",
		}))
		return
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		h.log.Error("hashing password for %s: %v", s.ID, err)
		h.hub.SendTo(s.ID, encodeEvent(EventRegisterResponse, AuthResponse{
			Success: false, Msg: "registration failed",
		}))
		return
	}

	err = h.store.CreateUser(ctx, creds.Username, hash)
	switch {
	case errors.Is(err, storage.ErrUserExists):
		h.hub.SendTo(s.ID, encodeEvent(EventRegisterResponse, AuthResponse{
			Success: false, Msg: "that username is already taken",
		}))
	case err != nil:
		h.log.Error("creating user: %v", err)
		h.hub.SendTo(s.ID, encodeEvent(EventRegisterResponse, AuthResponse{
			Success: false, Msg: "registration failed",
		}))
	default:
		// Registration never auto-authenticates.
		h.hub.SendTo(s.ID, encodeEvent(EventRegisterResponse, AuthResponse{
			Success: true, Msg: "account created, please log in",
		}))
	}
}

func (h *Handler) handleLogin(ctx context.Context, s *Session, data json.RawMessage) {
	if h.guestMode {
		h.hub.SendTo(s.ID, encodeEvent(EventLoginResponse, AuthResponse{
			Success: false, Msg: "accounts are disabled on this server, send join instead",
		}))
		return
	}

	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		h.hub.SendTo(s.ID, encodeEvent(EventLoginResponse, AuthResponse{
			Success: false, Msg: "malformed login payload",
		}))
		return
	}

	if creds.Username == "" || creds.Password == "" {
		h.hub.SendTo(s.ID, encodeEvent(EventLoginResponse, AuthResponse{
			Success: false, Msg: "username and password are required",
		}))
		return
	}

	user, err := h.store.GetUser(ctx, creds.Username)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		h.log.Error("looking up user: %v", err)
		h.hub.SendTo(s.ID, encodeEvent(EventLoginResponse, AuthResponse{
			Success: false, Msg: "login failed, try again later",
		}))
		return
	}

	// Unknown user and wrong password get the same response so the
	// failure does not reveal which usernames exist.
	if user == nil || !auth.CheckPasswordHash(creds.Password, user.PasswordHash) {
		h.hub.SendTo(s.ID, encodeEvent(EventLoginResponse, AuthResponse{
			Success: false, Msg: "invalid username or password",
		}))
		return
	}

	h.authenticate(ctx, s, user.Username, EventLoginResponse)
}

func (h *Handler) handleJoin(ctx context.Context, s *Session, data json.RawMessage) {
	if !h.guestMode {
		h.hub.SendTo(s.ID, encodeEvent(EventSystem, "this server requires an account, log in first"))
		return
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil || strings.TrimSpace(name) == "" {
		h.hub.SendTo(s.ID, encodeEvent(EventSystem, "a display name is required to join"))
		return
	}

	h.authenticate(ctx, s, strings.TrimSpace(name), "")
}

// authenticate performs the shared entry transition: bind the display
// name, record presence, announce arrival, and replay history to the
// new arrival. responseEvent, when non-empty, names the private
// success response to send first.
func (h *Handler) authenticate(ctx context.Context, s *Session, displayName, responseEvent string) {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		// The connection disconnected while credentials were being
		// verified. Do not register presence for a dead connection.
		s.mu.Unlock()
		return
	case StateAuthenticated:
		s.mu.Unlock()
		if responseEvent != "" {
			h.hub.SendTo(s.ID, encodeEvent(responseEvent, AuthResponse{
				Success: false, Msg: "already logged in",
			}))
		}
		return
	}
	s.state = StateAuthenticated
	s.displayName = displayName
	// Registered under the session lock so a concurrent disconnect
	// observes either "not yet present" or "present and removable",
	// never a half-done entry.
	h.registry.Register(s.ID, displayName)
	s.mu.Unlock()

	h.log.Info("%s authenticated as %q", s.ID, displayName)

	if responseEvent != "" {
		h.hub.SendTo(s.ID, encodeEvent(responseEvent, AuthResponse{
			Success: true, Username: displayName,
		}))
	}

	// System notice first, user-list refresh second.
	h.hub.Broadcast(encodeEvent(EventSystem, displayName+" is online"))
	h.hub.Broadcast(encodeEvent(EventUserList, h.registry.Names()))

	h.replayHistory(ctx, s)
}

// replayHistory delivers the bounded recent history to one connection,
// tagged with the history sentinel, followed by an end marker. Order is
// the store's ascending sequence order, never re-sorted.
func (h *Handler) replayHistory(ctx context.Context, s *Session) {
	messages, err := h.store.RecentMessages(ctx, h.historyLimit)
	if err != nil {
		h.log.Error("loading history for %s: %v", s.ID, err)
		h.hub.SendTo(s.ID, encodeEvent(EventSystem, "could not load chat history"))
		return
	}

	for _, msg := range messages {
		h.hub.SendTo(s.ID, encodeEvent(EventChat, ChatPayload{
			User: msg.Author,
			Text: msg.Content,
			Type: msg.Kind,
			ID:   HistorySender,
			Time: msg.Time,
		}))
	}
	h.hub.SendTo(s.ID, encodeEvent(EventSystem, "--- end of history ---"))
}

func (h *Handler) handleChat(ctx context.Context, s *Session, data json.RawMessage) {
	state, name := s.snapshot()
	if state != StateAuthenticated {
		// Unauthenticated submissions are dropped, not failed.
		return
	}

	input, err := decodeChatInput(data)
	if err != nil {
		h.log.Debug("dropping malformed chat payload from %s: %v", s.ID, err)
		return
	}
	if input.Msg == "" {
		return
	}

	if isCommand(input.Kind, input.Msg) {
		// Commands short-circuit: no persistence, no chat broadcast.
		res := runCommand(name, input.Msg)
		if res.broadcast != "" {
			h.hub.Broadcast(encodeEvent(EventSystem, res.broadcast))
		}
		if res.private != "" {
			h.hub.SendTo(s.ID, encodeEvent(EventSystem, res.private))
		}
		return
	}

	msg, err := h.store.AppendMessage(ctx, name, input.Msg, input.Kind)
	if err != nil {
		h.log.Error("persisting message from %s: %v", s.ID, err)
		h.hub.SendTo(s.ID, encodeEvent(EventSystem, "your message could not be delivered"))
		return
	}

	h.hub.Broadcast(encodeEvent(EventChat, ChatPayload{
		User: msg.Author,
		Text: msg.Content,
		Type: msg.Kind,
		ID:   s.ID,
		Time: msg.Time,
	}))
}

func (h *Handler) handleTyping(s *Session, stopped bool) {
	state, name := s.snapshot()
	if state != StateAuthenticated {
		return
	}
	if stopped {
		h.hub.BroadcastExcept(s.ID, encodeEvent(EventStopTyping, nil))
		return
	}
	h.hub.BroadcastExcept(s.ID, encodeEvent(EventTyping, name))
}

// Disconnect closes the session. Idempotent; a connection that never
// authenticated produces no departure announcement.
func (h *Handler) Disconnect(s *Session) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasAuthenticated := s.state == StateAuthenticated
	s.state = StateClosed
	var name string
	var hadName bool
	if wasAuthenticated {
		name, hadName = h.registry.Unregister(s.ID)
	}
	s.mu.Unlock()

	if !hadName {
		return
	}

	h.log.Info("%s (%q) disconnected", s.ID, name)
	h.hub.Broadcast(encodeEvent(EventSystem, name+" went offline"))
	h.hub.Broadcast(encodeEvent(EventUserList, h.registry.Names()))
}
