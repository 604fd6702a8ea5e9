// Package main provides the main entry point for the realtime
// collaborative editing server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/notehub/collab/internal/config"
	"github.com/notehub/collab/internal/middleware"
	"github.com/notehub/collab/internal/notesvc"
	"github.com/notehub/collab/internal/realtime/admit"
	"github.com/notehub/collab/internal/realtime/conn"
	"github.com/notehub/collab/internal/realtime/registry"
	"github.com/notehub/collab/internal/repository"
	"github.com/notehub/collab/internal/restapi"
	"github.com/notehub/collab/internal/session"
	"github.com/notehub/collab/internal/usersvc"
	"github.com/notehub/collab/pkg/metrics"
)

func main() {
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := repository.Open(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	sessions := session.NewRedisService(redisClient)
	users := usersvc.NewPostgresService(db)
	notes := notesvc.NewPostgresService(db)
	permissions := notesvc.NewOwnerOrPublicPermissions()

	reg := registry.New(logger)
	defer reg.Shutdown()

	m := metrics.NewMetrics()
	reg.SetMetrics(m)

	admitter := admit.New(sessions, users, notes, permissions, reg, logger, cfg, m)

	router := gin.New()
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RateLimit(cfg.RateLimit))

	router.GET("/metrics", gin.WrapH(m.Handler()))

	restHandler := restapi.NewHandler(sessions, users, notes, reg, logger, cfg)
	restHandler.SetupRoutes(router)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	router.GET("/realtime/", func(c *gin.Context) {
		wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		transport := conn.NewWSTransport(wsConn, cfg.Realtime.KeepAliveInterval*2)
		ctx, cancel := context.WithTimeout(c.Request.Context(), admit.DefaultTimeout)
		defer cancel()

		if _, err := admitter.Admit(ctx, transport, c.Request); err != nil {
			logger.Debug("realtime admission failed", zap.Error(err))
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}
