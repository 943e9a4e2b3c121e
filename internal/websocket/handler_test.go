package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// tokenTable maps tokens to user ids
type tokenTable map[string]string

func (t tokenTable) Verify(token string) (string, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type HandlerTestSuite struct {
	suite.Suite
	hub      *Hub
	presence *Presence
	handler  *Handler
	server   *httptest.Server
}

func (suite *HandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	suite.hub = NewHub()
	suite.presence = NewPresence(suite.hub, PolicyFriends, newFakeFriends([2]string{"alice", "bob"}), nil)
	suite.handler = NewHandler(suite.hub, tokenTable{"t-alice": "alice", "t-bob": "bob"}, []string{"*"})
	suite.handler.SetPresence(suite.presence)

	r := gin.New()
	r.GET("/ws", suite.handler.HandleWebSocket)
	r.POST("/ws/online", suite.handler.HandleOnlineStatus)
	r.GET("/ws/metrics", suite.handler.HandleMetrics)
	suite.server = httptest.NewServer(r)
}

func (suite *HandlerTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = suite.handler.Shutdown(ctx)
	suite.server.Close()
}

func (suite *HandlerTestSuite) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(suite.server.URL, "http") + "/ws" + query
}

func (suite *HandlerTestSuite) dial(ctx context.Context, token string) *websocket.Conn {
	conn, _, err := websocket.Dial(ctx, suite.wsURL("?token="+token), nil)
	require.NoError(suite.T(), err)
	return conn
}

func (suite *HandlerTestSuite) read(ctx context.Context, conn *websocket.Conn) Message {
	var msg Message
	require.NoError(suite.T(), wsjson.Read(ctx, conn, &msg))
	return msg
}

func (suite *HandlerTestSuite) TestRejectsWithoutValidToken() {
	t := suite.T()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, query := range []string{"", "?token=forged"} {
		_, resp, err := websocket.Dial(ctx, suite.wsURL(query), nil)
		require.Error(t, err, query)
		require.NotNil(t, resp, query)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, query)
	}

	resp, err := http.Get(suite.server.URL + "/ws?token=forged")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	assert.Empty(t, suite.hub.OnlineUsers())
	assert.Zero(t, suite.hub.GetMetrics().TotalConnections)
}

func (suite *HandlerTestSuite) TestBearerHeaderAccepted() {
	t := suite.T()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, suite.wsURL(""), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer t-bob"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	welcome := suite.read(ctx, conn)
	assert.Equal(t, MessageTypeSystem, welcome.Type)
	assert.True(t, suite.hub.IsOnline("bob"))
}

func (suite *HandlerTestSuite) TestConnectExchangeDisconnect() {
	t := suite.T()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := suite.dial(ctx, "t-alice")
	welcome := suite.read(ctx, alice)
	assert.Equal(t, MessageTypeSystem, welcome.Type)

	var sys SystemPayload
	require.NoError(t, welcome.ParsePayload(&sys))
	assert.Equal(t, "connected", sys.Event)
	assert.Equal(t, "alice", sys.Data["user_id"])

	require.NoError(t, wsjson.Write(ctx, alice, map[string]interface{}{"type": "ping", "id": "p1"}))
	pong := suite.read(ctx, alice)
	assert.Equal(t, MessageTypePong, pong.Type)
	assert.Equal(t, "p1", pong.ReplyTo)

	bob := suite.dial(ctx, "t-bob")
	suite.read(ctx, bob) // welcome

	// Bob's snapshot and Alice's announcement
	snapshot := suite.read(ctx, bob)
	assert.Equal(t, MessageTypePresence, snapshot.Type)
	announced := suite.read(ctx, alice)
	assert.Equal(t, MessageTypePresence, announced.Type)

	var p PresencePayload
	require.NoError(t, announced.ParsePayload(&p))
	assert.Equal(t, PresencePayload{UserID: "bob", IsOnline: true}, p)

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))

	offline := suite.read(ctx, alice)
	require.NoError(t, offline.ParsePayload(&p))
	assert.Equal(t, PresencePayload{UserID: "bob", IsOnline: false}, p)
	assert.Eventually(t, func() bool { return !suite.hub.IsOnline("bob") }, time.Second, 10*time.Millisecond)

	alice.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return len(suite.hub.OnlineUsers()) == 0 }, time.Second, 10*time.Millisecond)
}

func (suite *HandlerTestSuite) TestOnlineStatus() {
	t := suite.T()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := suite.dial(ctx, "t-alice")
	defer conn.Close(websocket.StatusNormalClosure, "")
	suite.read(ctx, conn)

	body := bytes.NewBufferString(`{"user_ids":["alice","bob"]}`)
	resp, err := http.Post(suite.server.URL+"/ws/online", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Statuses map[string]bool `json:"statuses"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, map[string]bool{"alice": true, "bob": false}, out.Statuses)

	bad, err := http.Post(suite.server.URL+"/ws/online", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func (suite *HandlerTestSuite) TestShutdownNotifiesClients() {
	t := suite.T()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := suite.dial(ctx, "t-alice")
	suite.read(ctx, conn)

	// The close handshake needs this side reading
	done := make(chan error, 1)
	go func() { done <- suite.handler.Shutdown(ctx) }()

	notice := suite.read(ctx, conn)
	var sys SystemPayload
	require.NoError(t, notice.ParsePayload(&sys))
	assert.Equal(t, "server_shutdown", sys.Event)

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	require.NoError(t, <-done)

	// New connections are refused while shutting down
	resp, err := http.Get(suite.server.URL + "/ws?token=t-bob")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
