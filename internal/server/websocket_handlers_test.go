package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"sccompanion/internal/cache"
	"sccompanion/internal/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen serves the app on a random local port until the test ends.
func (ts *testServer) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ts.app.Listener(ln) }()
	t.Cleanup(func() { _ = ts.app.Shutdown() })
	return ln.Addr().String()
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEventsWebsocket_DeliversNotifications(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.MakeUser(t, ts.db)
	bob := testutil.MakeUser(t, ts.db)
	addr := ts.listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = ts.srv.hub.StartWiring(ctx, ts.srv.notifier) }()
	require.Eventually(t, func() bool {
		n, err := cache.GetClient().PubSubNumPat(ctx).Result()
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond)

	u := url.URL{Scheme: "ws", Host: addr, Path: "/api/ws/events", RawQuery: "token=" + ts.tokenFor(t, bob)}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	hello := readFrame(t, conn)
	assert.Equal(t, "connected", hello["type"])
	assert.EqualValues(t, bob.ID, hello["payload"].(map[string]any)["userId"])
	require.Eventually(t, func() bool { return ts.srv.hub.Connections(bob.ID) == 1 }, time.Second, 10*time.Millisecond)

	status, body := ts.do(t, http.MethodPost, "/api/follows", ts.tokenFor(t, alice), map[string]any{"targetUserId": bob.ID})
	require.Equal(t, http.StatusCreated, status, body)

	note := readFrame(t, conn)
	assert.Equal(t, "follow_gained", note["type"])
	assert.EqualValues(t, alice.ID, note["payload"].(map[string]any)["followerId"])

	_ = conn.Close()
	assert.Eventually(t, func() bool { return ts.srv.hub.Connections(bob.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsWebsocket_Rejections(t *testing.T) {
	ts := newTestServer(t)
	user := testutil.MakeUser(t, ts.db)
	addr := ts.listen(t)

	t.Run("Missing token", func(t *testing.T) {
		u := url.URL{Scheme: "ws", Host: addr, Path: "/api/ws/events"}
		_, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Plain HTTP", func(t *testing.T) {
		status, body := ts.do(t, http.MethodGet, "/api/ws/events", ts.tokenFor(t, user), nil)
		assert.Equal(t, http.StatusUpgradeRequired, status)
		assert.Equal(t, "WebSocket upgrade required", body["error"])
	})
}
