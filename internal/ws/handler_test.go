package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/crossword-backend/internal/coordinator"
	"github.com/DoyleJ11/crossword-backend/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()
	c := coordinator.New(context.Background(), store.NewMemoryStore(),
		coordinator.WithLogger(zaptest.NewLogger(t)))

	r := chi.NewRouter()
	r.Get("/move/{team}/{puzzle}/{user}", Handler(c, Options{OutboxSize: 8, WriteTimeout: time.Second}, zap.NewNop()))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		c.Close()
	})
	return srv, c
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	return string(data)
}

func writeText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(s)))
}

func sessions(t *testing.T, c *coordinator.Coordinator) int {
	t.Helper()
	reply := make(chan coordinator.View, 1)
	require.NoError(t, c.Send(context.Background(), coordinator.GetState{Reply: reply}))
	return len((<-reply).Sessions)
}

func TestHandler_MoveRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "/move/t1/p1/alice")
	assert.Equal(t, "[]", readText(t, alice))
	bob := dial(t, srv, "/move/t1/p1/bob")
	assert.Equal(t, "[]", readText(t, bob))

	writeText(t, alice, `[{"x":0,"y":0,"value":"C","modifiedBy":"bob"}]`)

	want := `[{"x":0,"y":0,"value":"C","modifiedBy":"alice"}]`
	assert.JSONEq(t, want, readText(t, alice))
	assert.JSONEq(t, want, readText(t, bob))

	// a later joiner sees the persisted move in its snapshot
	carol := dial(t, srv, "/move/t1/p1/carol")
	assert.JSONEq(t, want, readText(t, carol))
}

func TestHandler_MalformedFrameIsDroppedNotFatal(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "/move/t1/p1/alice")
	readText(t, alice)
	erin := dial(t, srv, "/move/t1/p1/erin")
	readText(t, erin)

	writeText(t, alice, `not json`)
	writeText(t, alice, `{"x":-1,"y":0}`)
	writeText(t, alice, `{"type":"cursor","x":3,"y":4}`)

	assert.JSONEq(t, `{"x":3,"y":4,"user":"alice"}`, readText(t, erin))
	assert.JSONEq(t, `{"x":3,"y":4,"user":"alice"}`, readText(t, alice))
}

func TestHandler_OtherRoomsHearNothing(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "/move/t1/p1/alice")
	readText(t, alice)
	dave := dial(t, srv, "/move/t2/p1/dave")
	readText(t, dave)

	writeText(t, alice, `{"x":1,"y":1}`)
	readText(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, data, err := dave.Read(ctx)
	assert.Error(t, err, "unexpected frame %s", data)
}

func TestHandler_CloseDisconnectsSession(t *testing.T) {
	srv, c := newTestServer(t)

	alice := dial(t, srv, "/move/t1/p1/alice")
	readText(t, alice)
	bob := dial(t, srv, "/move/t1/p1/bob")
	readText(t, bob)
	require.Equal(t, 2, sessions(t, c))

	require.NoError(t, alice.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool { return sessions(t, c) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_ShutdownClosesSockets(t *testing.T) {
	srv, c := newTestServer(t)

	alice := dial(t, srv, "/move/t1/p1/alice")
	readText(t, alice)

	require.NoError(t, c.Send(context.Background(), coordinator.Shutdown{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := alice.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestHandler_RejectsMissingParams(t *testing.T) {
	c := coordinator.New(context.Background(), store.NewMemoryStore())
	t.Cleanup(c.Close)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/move", nil)
	Handler(c, Options{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToCommand(t *testing.T) {
	cmd, err := toCommand("s1", []byte(`[{"x":1,"y":2,"value":"A"}]`))
	require.NoError(t, err)
	mv, ok := cmd.(coordinator.Move)
	require.True(t, ok)
	assert.Equal(t, "s1", mv.SessionID)
	require.Len(t, mv.Items, 1)
	assert.Equal(t, "A", mv.Items[0].Value)

	cmd, err = toCommand("s1", []byte(`{"x":5,"y":6}`))
	require.NoError(t, err)
	assert.Equal(t, coordinator.CurrentCell{SessionID: "s1", X: 5, Y: 6}, cmd)

	_, err = toCommand("s1", []byte(`"hello"`))
	assert.Error(t, err)
}

func TestHandler_PeerVanishingMidBroadcastIsDisconnected(t *testing.T) {
	srv, c := newTestServer(t)

	alice := dial(t, srv, "/move/t1/p1/alice")
	readText(t, alice)
	bob := dial(t, srv, "/move/t1/p1/bob")
	readText(t, bob)
	require.Equal(t, 2, sessions(t, c))

	// no close handshake: pushes to bob now fail on the wire
	bob.CloseNow()

	for i := 0; i < 5; i++ {
		writeText(t, alice, `{"x":1,"y":1}`)
		assert.JSONEq(t, `{"x":1,"y":1,"user":"alice"}`, readText(t, alice))
	}

	require.Eventually(t, func() bool { return sessions(t, c) == 1 }, 2*time.Second, 10*time.Millisecond)

	writeText(t, alice, `[{"x":0,"y":0,"value":"Z"}]`)
	assert.JSONEq(t, `[{"x":0,"y":0,"value":"Z","modifiedBy":"alice"}]`, readText(t, alice))
}
