package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webchat/internal/models"
)

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t, false)
	router := gin.New()
	router.GET("/ws", f.handler.ServeWS)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestServeWSRejectsCrossOrigin(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws", nil)
	require.NoError(t, err)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Origin", "http://evil.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWSRoundTrip(t *testing.T) {
	f, srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{srv.URL}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	creds, err := json.Marshal(models.Credentials{Username: "alice", Password: "pw123"})
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Event: EventRegister, Data: creds})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(reply, &env))
	assert.Equal(t, EventRegisterResponse, env.Event)

	var authResp AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &authResp))
	assert.True(t, authResp.Success)

	// The account really was persisted.
	_, err = f.store.GetUser(context.Background(), "alice")
	assert.NoError(t, err)
}
