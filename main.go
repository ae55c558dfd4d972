package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"versus/auth"
	"versus/config"
	"versus/crypto"
	"versus/events"
	"versus/game"
	"versus/logger"
	"versus/migrations"
	"versus/passage"
	"versus/storage"
)

const (
	tokenAge        = 7 * 24 * time.Hour
	statsCacheTTL   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func requestLogger(ctx *gin.Context) {
	start := time.Now()
	ctx.Next()
	log.Info().
		Str("method", ctx.Request.Method).
		Str("path", ctx.FullPath()).
		Int("status", ctx.Writer.Status()).
		Dur("took", time.Since(start)).
		Str("ip", ctx.ClientIP()).
		Msg("request")
}

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger)
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

type AuthRoutes interface {
	SignupHandler(ctx *gin.Context)
	LoginHandler(ctx *gin.Context)
	LogoutHandler(ctx *gin.Context)
	RefreshSessionHandler(ctx *gin.Context)
	RequireAuthMiddleware(trollTime time.Duration) gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, authHandler AuthRoutes, gameHandler *game.GameHandler, statsHandler *game.StatsHandler) {
	{
		auth := r.Group("/auth")
		auth.POST("/signup", authHandler.SignupHandler)
		auth.POST("/login", authHandler.LoginHandler)
		auth.POST("/logout", authHandler.LogoutHandler)
		auth.GET("/refresh", authHandler.RefreshSessionHandler)
	}
	{
		gameGroup := r.Group("/game")
		gameGroup.Use(authHandler.RequireAuthMiddleware(time.Second * 2))

		gameGroup.POST("/rooms", gameHandler.CreateRoomHandler)
		gameGroup.GET("/rooms", gameHandler.PublicRoomsHandler)
		gameGroup.GET("/rooms/:code", gameHandler.RoomStatusHandler)
		gameGroup.GET("/rooms/:code/ws", gameHandler.JoinRoomHandler)
		gameGroup.GET("/quickplay", gameHandler.QuickPlayHandler)
		gameGroup.GET("/stats/me", statsHandler.MyStatsHandler)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := migrations.Migrate(cfg.PostgresURL); err != nil {
		return err
	}

	pgRepo, err := storage.NewPostgresRepo(context.Background(), cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pgRepo.Close()

	recorders := game.MultiRecorder{}
	var skills game.SkillGetter = pgRepo
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		cache := storage.NewStatsCache(client, pgRepo, statsCacheTTL)
		skills = cache
		recorders = append(recorders, cache)
	} else {
		recorders = append(recorders, pgRepo)
	}
	if cfg.NatsURL != "" {
		publisher, err := events.NewPublisher(cfg.NatsURL)
		if err != nil {
			return err
		}
		defer publisher.Close()
		recorders = append(recorders, publisher)
	}

	passwordHasher := crypto.NewArgon2idHasher(3, 1024*64, 32, 16, 1)
	tokenManager := crypto.NewJWTManager(cfg.JWTKey, tokenAge)
	authService := auth.NewService(pgRepo, passwordHasher, tokenManager)
	authHandler := auth.NewAuthHandler(authService, tokenAge)

	tickerGen := game.NewTickerGen()
	sampler := game.NewLatencySampler()
	presence := game.NewPresence()
	buffer := game.NewBufferController(game.BufferSettings{
		Interval:        cfg.Game.BufferInterval,
		OverloadedDelay: cfg.Game.OverloadedDelay,
		StableDelay:     cfg.Game.StableDelay,
		Cooldown:        cfg.Game.BufferCooldown,
		MinBatchSize:    cfg.Game.MinBatchSize,
		MaxBatchSize:    cfg.Game.MaxBatchSize,
	}, sampler, presence, tickerGen)

	bufferCtx, stopBuffer := context.WithCancel(context.Background())
	defer stopBuffer()
	go buffer.Run(bufferCtx)

	factory := game.NewRoomFactory(
		passage.NewGenerator(pgRepo, nil),
		recorders,
		tickerGen,
		sampler,
		buffer,
		game.Timing{
			CountdownSeconds:   cfg.Game.CountdownSeconds,
			CloseGrace:         cfg.Game.CloseGrace,
			PersistenceTimeout: cfg.Game.PersistenceTimeout,
		},
	)
	lobby := game.NewLobby(game.NewIdGen(), tickerGen, factory, cfg.Game.ReservationTTL)
	lobbyStarted := make(chan struct{})
	go lobby.LobbyActor(lobbyStarted)
	<-lobbyStarted

	r := CreateServer(cfg.AllowedOrigins)
	gameHandler := game.NewGameHandler(lobby, presence, skills, NewUpgrader(cfg.AllowedOrigins))
	RegisterRoutes(r, authHandler, gameHandler, game.NewStatsHandler(pgRepo))

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-sigCtx.Done():
		log.Info().Msg("SIGTERM or SIGINT received, closing rooms before shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websockets are not tracked by Shutdown, stopping the lobby
	// releases them.
	lobby.Stop()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown timed out")
	}
	log.Info().Msg("shutting down now")
	return nil
}
