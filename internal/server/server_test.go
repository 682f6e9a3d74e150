package server

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

	"ctchen222/tictactoe-solo/internal/api/models"
	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/auth"
	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/internal/hub"
	"ctchen222/tictactoe-solo/internal/repository"
	"ctchen222/tictactoe-solo/internal/session"
	"ctchen222/tictactoe-solo/pkg/proto"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Extras  json.RawMessage `json:"extras"`
}

type testServer struct {
	srv *Server
}

func newTestServer(t *testing.T, health HealthCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := events.NewBus()
	sessions := service.NewSessionService(
		repository.NewMemorySessionRepository(time.Hour),
		bus,
		bot.NewSeededOpponent(1),
		bot.NewThinker(0),
		auth.NewTokenIssuer("test", time.Hour),
	)
	h := hub.NewHub(sessions, bus)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	return &testServer{srv: NewServer(h, sessions, health)}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (ts *testServer) create(t *testing.T) (string, string) {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/api/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.CreateSessionResponse
	require.NoError(t, json.Unmarshal(env.Extras, &created))
	require.NotEmpty(t, created.Token)
	return created.Session.ID, created.Token
}

func sessionOf(t *testing.T, env envelope) *proto.SessionView {
	t.Helper()
	var resp models.SessionResponse
	require.NoError(t, json.Unmarshal(env.Extras, &resp))
	require.NotNil(t, resp.Session)
	return resp.Session
}

func changeOf(t *testing.T, env envelope) models.ChangeResponse {
	t.Helper()
	var resp models.ChangeResponse
	require.NoError(t, json.Unmarshal(env.Extras, &resp))
	require.NotNil(t, resp.Session)
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, func(context.Context) error { return nil })
	rec, env := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	ts = newTestServer(t, func(context.Context) error { return errors.New("down") })
	rec, env = ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	id, token := ts.create(t)
	base := "/api/sessions/" + id

	rec, env := ts.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := sessionOf(t, env)
	assert.Equal(t, session.PhaseIdle, view.Phase)

	rec, env = ts.do(t, http.MethodPost, base+"/start", token, models.StartRequest{Mode: "ai"})
	require.Equal(t, http.StatusOK, rec.Code, string(env.Extras))
	assert.Equal(t, session.ModeComputer, sessionOf(t, env).Mode)

	rec, env = ts.do(t, http.MethodPost, base+"/moves", token, map[string]int{"index": 0})
	require.Equal(t, http.StatusOK, rec.Code, string(env.Extras))
	change := changeOf(t, env)
	assert.True(t, change.Applied)
	assert.Equal(t, game.MustParseBoard("X...O...."), change.Session.Board)
	assert.Equal(t, "Next player: X", change.Session.Status)

	rec, env = ts.do(t, http.MethodPost, base+"/moves", token, map[string]int{"index": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	change = changeOf(t, env)
	assert.False(t, change.Applied)
	assert.Equal(t, game.MustParseBoard("X...O...."), change.Session.Board)

	rec, env = ts.do(t, http.MethodPost, base+"/reset", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	change = changeOf(t, env)
	assert.True(t, change.Applied)
	assert.True(t, change.Session.Board.IsEmpty())

	rec, env = ts.do(t, http.MethodPost, base+"/new-game", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.PhaseIdle, sessionOf(t, env).Phase)

	rec, _ = ts.do(t, http.MethodPost, base+"/next-round", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = ts.do(t, http.MethodPost, base+"/start", token, models.StartRequest{Mode: "2p"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = ts.do(t, http.MethodPost, base+"/next-round", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// Every board clear starts a new round.
	assert.Equal(t, 5, sessionOf(t, env).Round)

	rec, env = ts.do(t, http.MethodPost, base+"/change-mode", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.ModeNone, sessionOf(t, env).Mode)

	rec, _ = ts.do(t, http.MethodDelete, base, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = ts.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	id, token := ts.create(t)
	base := "/api/sessions/" + id

	rec, _ := ts.do(t, http.MethodPost, base+"/start", token, map[string]string{"mode": "online"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, base+"/start", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, base+"/start", token, models.StartRequest{Mode: "2p"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, base+"/moves", token, map[string]int{"index": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, base+"/moves", token, map[string]int{"index": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, base+"/moves", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Cell 0 is a valid index.
	rec, env := ts.do(t, http.MethodPost, base+"/moves", token, map[string]int{"index": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, changeOf(t, env).Applied)
}

func TestAuthorization(t *testing.T) {
	ts := newTestServer(t, nil)
	id, _ := ts.create(t)
	_, otherToken := ts.create(t)
	base := "/api/sessions/" + id

	rec, _ := ts.do(t, http.MethodPost, base+"/start", "", models.StartRequest{Mode: "ai"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, base+"/start", otherToken, models.StartRequest{Mode: "ai"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = ts.do(t, http.MethodDelete, base, otherToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocket(t *testing.T) {
	ts := newTestServer(t, nil)
	id, token := ts.create(t)
	httpServer := httptest.NewServer(ts.srv.Engine())
	t.Cleanup(httpServer.Close)
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws?session=" + id

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"&token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"&token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg proto.ServerToClientMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, proto.TypeUpdate, msg.Type)
	assert.Equal(t, session.PhaseIdle, msg.Session.Phase)

	require.NoError(t, conn.WriteJSON(proto.ClientToServerMessage{Type: proto.TypeStart, Mode: "2p"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, session.PhaseWaitingForHuman, msg.Session.Phase)
	assert.Equal(t, session.ModeTwoHuman, msg.Session.Mode)

	// A move made over REST is pushed to the websocket client.
	rec, _ := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/moves", token, map[string]int{"index": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	msg = proto.ServerToClientMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, game.PlayerX, msg.Session.Board[4])
	assert.Equal(t, game.PlayerO, msg.Session.Turn)
}

func TestWebSocket_MissingSession(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, env := ts.do(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}
