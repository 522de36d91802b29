package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/auth"
	"backoffice/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *auth.TokenManager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewTokenManager("secret", time.Hour)
	hub := NewHub(tokens, slog.New(slog.NewTextHandler(io.Discard, nil)), model.RoleAdmin, model.RoleLogistics)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	r := gin.New()
	r.GET("/ws", hub.ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, tokens, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func tokenFor(t *testing.T, tokens *auth.TokenManager, role string) string {
	t.Helper()
	token, _, err := tokens.Issue(&model.User{ID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func TestServeWsRejectsMissingAndForbidden(t *testing.T) {
	_, tokens, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token="+tokenFor(t, tokens, model.RoleClient), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPublishReachesConnectedClient(t *testing.T) {
	hub, tokens, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+tokenFor(t, tokens, model.RoleLogistics), nil)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan []byte, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	// registration happens asynchronously; publish until the client sees a message
	var raw []byte
	require.Eventually(t, func() bool {
		hub.Publish("machine.moved", map[string]string{"id": "m-1"})
		select {
		case raw = <-received:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	var got Event
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "machine.moved", got.Event)
	assert.Equal(t, map[string]interface{}{"id": "m-1"}, got.Data)
}

func TestStoppedHubReleasesCallers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := auth.NewTokenManager("secret", time.Hour)
	hub := NewHub(tokens, slog.New(slog.NewTextHandler(io.Discard, nil)), model.RoleAdmin)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	released := make(chan bool, 1)
	go func() {
		client := &Client{Hub: hub, Send: make(chan []byte, 1)}
		hub.leave(client)
		released <- hub.join(client)
	}()
	select {
	case joined := <-released:
		assert.False(t, joined)
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked after shutdown")
	}

	r := gin.New()
	r.GET("/ws", hub.ServeWs)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+tokenFor(t, tokens, model.RoleAdmin), nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
