package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/pkg/api"
)

type wsEnv struct {
	*testServerEnv
	HTTP *httptest.Server
	Conn *websocket.Conn
}

const wsReadTimeout = 2 * time.Second

func dialWebSocket(t *testing.T, env *testServerEnv, userID string) *wsEnv {
	t.Helper()

	httpServer := httptest.NewServer(env.Server.SetupRoutes())
	t.Cleanup(httpServer.Close)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") +
		"/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &wsEnv{
		testServerEnv: env,
		HTTP:          httpServer,
		Conn:          conn,
	}
}

func (e *wsEnv) readFrame(t *testing.T) *api.ServerFrame {
	t.Helper()
	_ = e.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var frame api.ServerFrame
	require.NoError(t, e.Conn.ReadJSON(&frame))
	return &frame
}

func TestWebSocketRequiresUser(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.do("GET", "/ws", nil)
	as.Equal(http.StatusBadRequest, w.Code)
	as.Contains(w.Body.String(), "user_id")
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.do("GET", "/ws?user_id=user-1", nil)
	as.Equal(http.StatusBadRequest, w.Code)
}

func TestWebSocketMessageRoundTrip(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installGreeting(t)

	ws := dialWebSocket(t, env, "user-1")
	require.NoError(t, ws.Conn.WriteJSON(api.ClientFrame{
		Type: api.FrameMessage, Text: "hi there",
	}))

	frame := ws.readFrame(t)
	as.Equal(api.FrameResponse, frame.Type)
	as.Require.NotNil(frame.Response)
	as.Equal("done", frame.Response.Text)
}

func TestWebSocketMalformedFrame(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	ws := dialWebSocket(t, env, "user-1")
	require.NoError(t, ws.Conn.WriteMessage(
		websocket.TextMessage, []byte("not json"),
	))

	frame := ws.readFrame(t)
	as.Equal(api.FrameError, frame.Type)
	as.Contains(frame.Error, "malformed")
}

func TestWebSocketIgnoresUnknownFrameTypes(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installGreeting(t)

	ws := dialWebSocket(t, env, "user-1")
	require.NoError(t, ws.Conn.WriteJSON(api.ClientFrame{Type: "typing"}))
	require.NoError(t, ws.Conn.WriteJSON(api.ClientFrame{
		Type: api.FrameMessage, Text: "hi",
	}))

	// the typing frame produced nothing; the first reply answers the message
	frame := ws.readFrame(t)
	as.Equal(api.FrameResponse, frame.Type)
}

func TestWebSocketNotificationPush(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installPayment(t)
	env.Classifier.Intent = "generate_report"

	ws := dialWebSocket(t, env, "user-1")
	require.NoError(t, ws.Conn.WriteJSON(api.ClientFrame{
		Type: api.FrameMessage, Text: "report please",
	}))

	frame := ws.readFrame(t)
	as.Equal(api.FrameResponse, frame.Type)
	as.Contains(frame.Response.Text, "Pay here")

	// the gateway confirms out of band; the resume is pushed to the socket
	d := events.NewDispatcher(env.Engine)
	res, err := d.Dispatch(context.Background(), &events.Envelope{
		Type: api.EventPaymentCaptured, UserID: "user-1", Token: "tok-1",
	})
	as.Require.NoError(err)
	as.Require.NotNil(res)

	frame = ws.readFrame(t)
	as.Equal(api.FrameNotification, frame.Type)
	as.Require.NotNil(frame.Response)
	as.Equal("Paid!", frame.Response.Text)
}

func TestWebSocketFiltersForeignNotifications(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	ws := dialWebSocket(t, env, "user-2")

	env.Engine.Notifier().Publish(&api.Notification{
		UserID:     "user-1",
		WorkflowID: "generate_report",
		Response:   api.NewResponse("for user-1"),
	})
	env.Engine.Notifier().Publish(&api.Notification{
		UserID:     "user-2",
		WorkflowID: "generate_report",
		Response:   api.NewResponse("for user-2"),
	})

	frame := ws.readFrame(t)
	as.Equal(api.FrameNotification, frame.Type)
	as.Equal("for user-2", frame.Response.Text)
}

func TestCloseWebSockets(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installGreeting(t)

	ws := dialWebSocket(t, env, "user-1")
	require.NoError(t, ws.Conn.WriteJSON(api.ClientFrame{
		Type: api.FrameMessage, Text: "hi",
	}))
	frame := ws.readFrame(t)
	as.Equal(api.FrameResponse, frame.Type)

	env.Server.CloseWebSockets()

	_ = ws.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	_, _, err := ws.Conn.ReadMessage()
	as.Error(err)
	as.True(websocket.IsCloseError(err, websocket.CloseGoingAway))
}
