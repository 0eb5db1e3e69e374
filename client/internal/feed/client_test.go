package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer greets each client, echoes text frames, and closes with the
// status in the "close" query parameter when the client sends "bye".
func echoServer(t *testing.T) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome"}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				code := websocket.CloseNormalClosure
				if r.URL.Query().Get("close") == "policy" {
					code = websocket.ClosePolicyViolation
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, "bye"), time.Now().Add(time.Second))
				return
			}
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_ReceivesAndSends(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t), nil)
	require.NoError(t, err)

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), func(b []byte) { got <- string(b) }) }()

	assert.Equal(t, `{"type":"welcome"}`, <-got)
	require.NoError(t, c.Send("hello"))
	assert.Equal(t, "hello", <-got)

	require.NoError(t, c.Send("bye"))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after normal close")
	}
}

func TestClient_AbnormalCloseReturnsError(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t)+"?close=policy", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), func([]byte) {}) }()
	require.NoError(t, c.Send("bye"))

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "1008")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestClient_ContextCancelStopsRun(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, func([]byte) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDial_BadURL(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", nil)
	assert.Error(t, err)
}
