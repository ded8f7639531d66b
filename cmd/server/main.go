package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tutorlane/liveclass/internal/config"
	"github.com/tutorlane/liveclass/internal/handlers"
	"github.com/tutorlane/liveclass/internal/models"
	"github.com/tutorlane/liveclass/internal/repositories"
	"github.com/tutorlane/liveclass/internal/roomstate"
	"github.com/tutorlane/liveclass/internal/routes"
	"github.com/tutorlane/liveclass/internal/services"
	ws "github.com/tutorlane/liveclass/internal/websocket"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("database unreachable")
	}
	cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	sessionRepo := repositories.NewLiveSessionRepository(db)
	resourceRepo := repositories.NewResourceRepository(db)
	store := roomstate.NewStore(rdb, log.Logger)
	hub := ws.NewHub(log.Logger)

	sessionService := services.NewSessionService(sessionRepo, resourceRepo, store, services.SessionConfig{
		JWTSecret:       cfg.JWTSecret,
		RoomAddress:     cfg.RoomAddress,
		JoinEarlyBuffer: cfg.JoinEarlyBuffer,
		RoomTokenTTL:    cfg.RoomTokenTTL,
	}, log.Logger)
	resourceService := services.NewResourceService(resourceRepo, cfg.ResourceDir, log.Logger)

	sessionHandler := handlers.NewSessionHandler(sessionService, resourceService, log.Logger)
	wsHandler := handlers.NewWebSocketHandler(hub, store, log.Logger)

	// Every snapshot write, from this instance or another, reaches all
	// connected clients through the hub.
	subCtx, stopSub := context.WithCancel(context.Background())
	defer stopSub()
	store.Subscribe(subCtx, func(meta models.RoomMetadata) {
		hub.BroadcastMetadata(meta.LessonID, meta)
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	routes.RegisterEndpoints(router, sessionHandler, wsHandler, sessionRepo, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("control plane listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
