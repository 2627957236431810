package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsefeed/internal/models"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// listen serves the app on a loopback port and returns its address.
func listen(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := s.App()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return ln.Addr().String()
}

func dialBroadcast(t *testing.T, addr, query string) *gorillaws.Conn {
	t.Helper()
	conn, resp, err := gorillaws.DefaultDialer.Dial("ws://"+addr+"/api/ws"+query, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gorillaws.Conn) testFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame testFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

// awaitRegistered round-trips a ping so the subscriber is known to be attached.
func awaitRegistered(t *testing.T, conn *gorillaws.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestBroadcast_RequiresUpgrade(t *testing.T) {
	_, app := newTestServer(t, nil)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/ws", nil), "")
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestBroadcast_PostLifecycle(t *testing.T) {
	s, app := newTestServer(t, nil)
	addr := listen(t, s)

	token, userID := registerUser(t, app, "Max", "max@example.com")

	conn := dialBroadcast(t, addr, "")
	awaitRegistered(t, conn)

	created := createPost(t, app, token, "Live post")

	frame := readFrame(t, conn)
	require.Equal(t, models.TopicPosts, frame.Type)
	var event models.PostEvent
	require.NoError(t, json.Unmarshal(frame.Payload, &event))
	assert.Equal(t, models.PostCreated, event.Action)
	assert.Equal(t, created.Post.ID, event.Post.ID)
	assert.Equal(t, userID, event.Post.Creator.ID)
	assert.Equal(t, "Max", event.Post.Creator.Name)

	resp := doJSON(t, app, http.MethodDelete, "/api/feed/post/"+itoa(created.Post.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame = readFrame(t, conn)
	require.NoError(t, json.Unmarshal(frame.Payload, &event))
	assert.Equal(t, models.PostDeleted, event.Action)
	assert.Equal(t, "Live post", event.Post.Title)
}

func TestBroadcast_TopicSelection(t *testing.T) {
	s, app := newTestServer(t, nil)
	addr := listen(t, s)
	token, _ := registerUser(t, app, "Max", "max@example.com")

	// Subscribed elsewhere first, then opts into posts.
	conn := dialBroadcast(t, addr, "?topics=other")
	awaitRegistered(t, conn)
	assert.Equal(t, 0, s.hub.SubscriberCount(models.TopicPosts))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "topic": models.TopicPosts}))
	assert.Equal(t, "subscribed", readFrame(t, conn).Type)
	assert.Equal(t, 1, s.hub.SubscriberCount(models.TopicPosts))

	createPost(t, app, token, "Visible post")
	assert.Equal(t, models.TopicPosts, readFrame(t, conn).Type)
}

func TestBroadcast_ShutdownSendsGoingAway(t *testing.T) {
	s, _ := newTestServer(t, nil)
	addr := listen(t, s)

	conn := dialBroadcast(t, addr, "")
	awaitRegistered(t, conn)

	require.NoError(t, s.hub.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *gorillaws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, gorillaws.CloseGoingAway, closeErr.Code)
	assert.Equal(t, "Server shutting down", closeErr.Text)
}
