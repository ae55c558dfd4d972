package game

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"versus/domain"
	"versus/passage"
)

const testUserHeader = "X-Test-User"

func fakeAuth(ctx *gin.Context) {
	if id := ctx.GetHeader(testUserHeader); id != "" {
		ctx.Set("id", id)
		ctx.Set("username", "user-"+id)
	}
	ctx.Next()
}

type handlerFixture struct {
	lobby    *MockLobbyService
	skills   *MockSkillGetter
	stats    *MockStatsGetter
	presence *Presence
	engine   *gin.Engine
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		lobby:    &MockLobbyService{},
		skills:   &MockSkillGetter{},
		stats:    &MockStatsGetter{},
		presence: NewPresence(),
		engine:   gin.New(),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	h := NewGameHandler(f.lobby, f.presence, f.skills, upgrader)
	sh := NewStatsHandler(f.stats)

	g := f.engine.Group("/game", fakeAuth)
	g.POST("/rooms", h.CreateRoomHandler)
	g.GET("/rooms", h.PublicRoomsHandler)
	g.GET("/rooms/:code", h.RoomStatusHandler)
	g.GET("/rooms/:code/ws", h.JoinRoomHandler)
	g.GET("/quickplay", h.QuickPlayHandler)
	g.GET("/stats/me", sh.MyStatsHandler)
	return f
}

func (f *handlerFixture) do(method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) dial(t *testing.T, server *httptest.Server, path, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	header := http.Header{}
	header.Set(testUserHeader, user)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *websocket.Conn) sentPacket {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var packet sentPacket
	require.NoError(t, json.Unmarshal(data, &packet))
	return packet
}

func TestCreateRoomHandler(t *testing.T) {
	t.Parallel()

	defaults := passage.DefaultConfig()
	tests := []struct {
		name     string
		user     string
		body     string
		settings *RoomSettings
		reserve  error
		wantCode int
		wantBody map[string]string
	}{
		{
			name:     "unauthenticated",
			body:     `{"maxPlayers":4}`,
			wantCode: http.StatusUnauthorized,
			wantBody: map[string]string{"error": "unauthenticated"},
		},
		{
			name:     "malformed body",
			user:     "u1",
			body:     `{"maxPlayers":`,
			wantCode: http.StatusBadRequest,
			wantBody: map[string]string{"error": "invalid-request-format"},
		},
		{
			name:     "too few players",
			user:     "u1",
			body:     `{"maxPlayers":1}`,
			wantCode: http.StatusBadRequest,
			wantBody: map[string]string{"error": "invalid-room-settings", "message": "maxPlayers must be at least 2"},
		},
		{
			name:     "too many players",
			user:     "u1",
			body:     `{"maxPlayers":9}`,
			wantCode: http.StatusBadRequest,
			wantBody: map[string]string{"error": "invalid-room-settings", "message": "maxPlayers cannot exceed 8"},
		},
		{
			name:     "passage too short",
			user:     "u1",
			body:     `{"maxPlayers":4,"passage":{"wordCount":3}}`,
			wantCode: http.StatusBadRequest,
			wantBody: map[string]string{"error": "invalid-room-settings", "message": "wordCount must be between 5 and 100"},
		},
		{
			name:     "lobby unavailable",
			user:     "u1",
			body:     `{"maxPlayers":4}`,
			settings: &RoomSettings{MaxPlayers: 4, Passage: defaults},
			reserve:  ErrLobbyStopped,
			wantCode: http.StatusServiceUnavailable,
			wantBody: map[string]string{"error": ErrLobbyStopped.Error()},
		},
		{
			name:     "created",
			user:     "u1",
			body:     `{"maxPlayers":4,"private":true,"passage":{"punctuation":true}}`,
			settings: &RoomSettings{MaxPlayers: 4, Private: true, Passage: passage.Config{WordCount: defaults.WordCount, Punctuation: true}},
			wantCode: http.StatusCreated,
			wantBody: map[string]string{"code": "ABC123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newHandlerFixture()
			if tt.settings != nil {
				code := "ABC123"
				if tt.reserve != nil {
					code = ""
				}
				f.lobby.On("Reserve", mock.Anything, *tt.settings).Return(code, tt.reserve).Once()
			}

			w := f.do(http.MethodPost, "/game/rooms", tt.user, tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
			f.lobby.AssertExpectations(t)
		})
	}
}

func TestRoomStatusHandler(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture()
	desc := RoomDescription{Code: "ABC123", Status: StatusWaiting, Type: TypePublic, PlayersCount: 2, MaxPlayers: 4}
	f.lobby.On("Status", mock.Anything, "ABC123").Return(desc, nil)
	f.lobby.On("Status", mock.Anything, "NOPE00").Return(RoomDescription{}, ErrRoomNotFound)

	w := f.do(http.MethodGet, "/game/rooms/ABC123", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got RoomDescription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, desc, got)

	w = f.do(http.MethodGet, "/game/rooms/NOPE00", "u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"room-not-found"}`, w.Body.String())
}

func TestPublicRoomsHandler(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		f := newHandlerFixture()
		f.lobby.On("PublicRooms", mock.Anything).Return(nil)

		w := f.do(http.MethodGet, "/game/rooms", "u1", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"rooms":[]}`, w.Body.String())
	})

	t.Run("listed", func(t *testing.T) {
		f := newHandlerFixture()
		rooms := []RoomDescription{{Code: "ABC123", Status: StatusWaiting, Type: TypePublic, PlayersCount: 1, MaxPlayers: 4}}
		f.lobby.On("PublicRooms", mock.Anything).Return(rooms)

		w := f.do(http.MethodGet, "/game/rooms", "u1", "")
		var body struct{ Rooms []RoomDescription }
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, rooms, body.Rooms)
	})
}

func TestJoinRoomHandler_RejectsBeforeUpgrade(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture()

	w := f.do(http.MethodGet, "/game/rooms/ABC123/ws", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	require.NoError(t, f.presence.Acquire("u1", NewMockPlayer("u1", "naruto")))
	w = f.do(http.MethodGet, "/game/rooms/ABC123/ws", "u1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"already-connected-elsewhere"}`, w.Body.String())
	f.lobby.AssertNotCalled(t, "Join", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinRoomHandler_JoinFailure(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture()
	server := httptest.NewServer(f.engine)
	defer server.Close()

	f.skills.On("AverageWpm", mock.Anything, "u1").Return(0.0, errors.New("cache down"))
	f.lobby.On("Join", mock.Anything, "NOPE00", mock.Anything, 0.0).Return(ErrRoomNotFound).Once()

	conn := f.dial(t, server, "/game/rooms/NOPE00/ws", "u1")

	packet := readPacket(t, conn)
	assert.Equal(t, PacketJoinResult, packet.Type)
	assert.JSONEq(t, `{"success":false,"error":"room-not-found"}`, string(packet.Data))

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "socket is closed after a failed join")
	require.Eventually(t, func() bool { return !f.presence.IsConnected("u1") }, time.Second, 10*time.Millisecond)
}

func TestJoinRoomHandler_ForwardsPackets(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture()
	server := httptest.NewServer(f.engine)
	defer server.Close()

	forwarded := make(chan ClientPacketEnvelope, 1)
	removed := make(chan struct{})
	room := &MockRoom{}
	room.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		forwarded <- args.Get(1).(ClientPacketEnvelope)
	}).Return()
	room.On("RemoveMe", mock.Anything).Run(func(mock.Arguments) { close(removed) }).Return().Once()

	f.skills.On("AverageWpm", mock.Anything, "u1").Return(72.5, nil)
	f.lobby.On("Join", mock.Anything, "ABC123", mock.Anything, 72.5).Run(func(args mock.Arguments) {
		p := args.Get(2).(Player)
		p.SetRoom(room)
		p.Send([]byte(`{"type":"join-result","data":{"success":true}}`))
	}).Return(nil).Once()

	conn := f.dial(t, server, "/game/rooms/ABC123/ws", "u1")
	assert.Equal(t, PacketJoinResult, readPacket(t, conn).Type)
	assert.True(t, f.presence.IsConnected("u1"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","data":{"ts":7}}`)))
	pong := readPacket(t, conn)
	assert.Equal(t, PacketPong, pong.Type)
	assert.JSONEq(t, `{"ts":7}`, string(pong.Data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"key-press","data":{"key":"a"}}`)))
	select {
	case envelope := <-forwarded:
		assert.Equal(t, PacketKeyPress, envelope.packet.Type)
		assert.Equal(t, "u1", envelope.from.Id())
		assert.Equal(t, "user-u1", envelope.from.Username())
	case <-time.After(2 * time.Second):
		t.Fatal("key press never reached the room")
	}

	conn.Close()
	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatal("player was not removed from the room")
	}
	require.Eventually(t, func() bool { return !f.presence.IsConnected("u1") }, time.Second, 10*time.Millisecond)
}

func TestQuickPlayHandler(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture()
	server := httptest.NewServer(f.engine)
	defer server.Close()

	f.skills.On("AverageWpm", mock.Anything, "u1").Return(40.0, nil)
	f.lobby.On("QuickPlay", mock.Anything, mock.Anything, 40.0, 1).Return(ErrLobbyStopped).Once()

	conn := f.dial(t, server, "/game/quickplay", "u1")
	packet := readPacket(t, conn)
	assert.JSONEq(t, `{"success":false,"error":"lobby-stopped"}`, string(packet.Data))
	f.lobby.AssertExpectations(t)
}

func TestMyStatsHandler(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture()
	f.stats.On("GetStats", mock.Anything, "u1").Return(domain.UserStats{UserId: "u1", MatchesPlayed: 3, Wins: 1, AvgWpm: 61.5, AvgAccuracy: 97, BestWpm: 80}, nil)
	f.stats.On("GetStats", mock.Anything, "u2").Return(domain.UserStats{}, domain.UnexpectedDatabaseError)

	w := f.do(http.MethodGet, "/game/stats/me", "u1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"matchesPlayed":3,"wins":1,"avgWpm":61.5,"avgAccuracy":97,"bestWpm":80}`, w.Body.String())

	w = f.do(http.MethodGet, "/game/stats/me", "u2", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = f.do(http.MethodGet, "/game/stats/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
