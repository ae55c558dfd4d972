package game

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"versus/domain"
)

const skillLookupTimeout = 2 * time.Second

type LobbyService interface {
	Reserve(ctx context.Context, settings RoomSettings) (string, error)
	Join(ctx context.Context, code string, p Player, skill float64) error
	QuickPlay(ctx context.Context, p Player, skill float64, onlinePlayers int) error
	Status(ctx context.Context, code string) (RoomDescription, error)
	PublicRooms(ctx context.Context) []RoomDescription
}

type GameHandler struct {
	lobby    LobbyService
	presence *Presence
	skills   SkillGetter
	upgrader websocket.Upgrader
}

func NewGameHandler(lobby LobbyService, presence *Presence, skills SkillGetter, upgrader websocket.Upgrader) *GameHandler {
	return &GameHandler{lobby: lobby, presence: presence, skills: skills, upgrader: upgrader}
}

func validateSettings(settings RoomSettings) string {
	switch {
	case settings.MaxPlayers < MinPlayers:
		return "maxPlayers must be at least 2"
	case settings.MaxPlayers > MaxPlayers:
		return "maxPlayers cannot exceed 8"
	}
	if err := settings.Passage.Validate(); err != nil {
		return "wordCount must be between 5 and 100"
	}
	return ""
}

func (h *GameHandler) CreateRoomHandler(ctx *gin.Context) {
	if ctx.GetString("id") == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	settings := RoomSettings{Passage: QuickplaySettings().Passage}
	if err := ctx.ShouldBindJSON(&settings); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-request-format"})
		return
	}
	if msg := validateSettings(settings); msg != "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrInvalidSettings.Error(), "message": msg})
		return
	}

	code, err := h.lobby.Reserve(ctx.Request.Context(), settings)
	if err != nil {
		log.Error().Err(err).Msg("failed to reserve room")
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"code": code})
}

func (h *GameHandler) RoomStatusHandler(ctx *gin.Context) {
	desc, err := h.lobby.Status(ctx.Request.Context(), ctx.Param("code"))
	switch {
	case errors.Is(err, ErrRoomNotFound):
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusOK, desc)
	}
}

func (h *GameHandler) PublicRoomsHandler(ctx *gin.Context) {
	rooms := h.lobby.PublicRooms(ctx.Request.Context())
	if rooms == nil {
		rooms = []RoomDescription{}
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *GameHandler) JoinRoomHandler(ctx *gin.Context) {
	code := ctx.Param("code")
	h.serveConnection(ctx, func(p Player, skill float64) error {
		return h.lobby.Join(ctx.Request.Context(), code, p, skill)
	})
}

func (h *GameHandler) QuickPlayHandler(ctx *gin.Context) {
	h.serveConnection(ctx, func(p Player, skill float64) error {
		return h.lobby.QuickPlay(ctx.Request.Context(), p, skill, h.presence.Count())
	})
}

func (h *GameHandler) lookupSkill(ctx context.Context, userId string) float64 {
	if h.skills == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, skillLookupTimeout)
	defer cancel()

	wpm, err := h.skills.AverageWpm(ctx, userId)
	if err != nil {
		log.Warn().Err(err).Str("user", userId).Msg("skill lookup failed, matching as a new player")
		return 0
	}
	return wpm
}

// serveConnection upgrades, admits the identity and hands the player to join.
// The gin goroutine then becomes the player's read pump.
func (h *GameHandler) serveConnection(ctx *gin.Context, join func(p Player, skill float64) error) {
	id := ctx.GetString("id")
	username := ctx.GetString("username")
	if id == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if h.presence.IsConnected(id) {
		ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": ErrAlreadyConnected.Error()})
		return
	}

	skill := h.lookupSkill(ctx.Request.Context(), id)

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("user", id).Msg("websocket upgrade failed")
		return
	}
	socket := NewWebsocketConnection(conn)
	p := NewPlayer(id, username)

	if err := h.presence.Acquire(id, p); err != nil {
		socket.Write(MakePacketJoinFailure(err))
		socket.Close()
		return
	}
	p.OnRelease(func() { h.presence.Release(id, p) })

	go p.WritePump(socket)

	if err := join(p, skill); err != nil {
		log.Info().Err(err).Str("user", id).Msg("join rejected")
		p.Send(MakePacketJoinFailure(err))
		p.CancelAndRelease()
		return
	}

	p.ReadPump(socket)
}

type StatsGetter interface {
	GetStats(ctx context.Context, userId string) (domain.UserStats, error)
}

type StatsHandler struct {
	stats StatsGetter
}

func NewStatsHandler(stats StatsGetter) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) MyStatsHandler(ctx *gin.Context) {
	id := ctx.GetString("id")
	if id == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	stats, err := h.stats.GetStats(ctx.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("user", id).Msg("failed to load stats")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"matchesPlayed": stats.MatchesPlayed,
		"wins":          stats.Wins,
		"avgWpm":        stats.AvgWpm,
		"avgAccuracy":   stats.AvgAccuracy,
		"bestWpm":       stats.BestWpm,
	})
}
