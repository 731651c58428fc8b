package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// client ties one websocket connection to its session and its hub
// subscription.
type client struct {
	session *Session
	conn    *websocket.Conn
	send    <-chan []byte
}

// ServeWS upgrades the request and runs the connection until it
// closes. One reader goroutine per connection keeps a client's events
// in submission order; different connections run concurrently.
func (h *Handler) ServeWS(c *gin.Context) {
	// The browser client is served same-origin by this process, so the
	// upgrader's default origin check (same host, or no Origin header)
	// is exactly the policy we want.
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("upgrade failed for %s: %v", c.Request.RemoteAddr, err)
		return
	}

	session := h.NewSession()
	cl := &client{
		session: session,
		conn:    conn,
		send:    h.hub.Subscribe(session.ID),
	}
	h.log.Info("connection %s attached from %s", session.ID, c.Request.RemoteAddr)

	go cl.writePump()
	go cl.readPump(h)
}

// readPump reads frames from the socket and dispatches them. It owns
// teardown: when the read loop exits, the session is closed and the
// hub subscription removed.
func (c *client) readPump(h *Handler) {
	defer func() {
		h.Disconnect(c.session)
		h.hub.Unsubscribe(c.session.ID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(h.maxPayload)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read error on %s: %v", c.session.ID, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			h.log.Debug("malformed frame from %s: %v", c.session.ID, err)
			continue
		}

		h.HandleEvent(ctx, c.session, env)
	}
}

// writePump drains the hub subscription onto the socket and keeps the
// connection alive with pings. It exits when the hub closes the
// channel or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
