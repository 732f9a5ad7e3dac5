// Package main runs the recording control-plane HTTP/WebSocket server
// with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/recorder/config"
	"github.com/aura-webinar/recorder/internal/control"
	"github.com/aura-webinar/recorder/internal/middleware"
	"github.com/aura-webinar/recorder/internal/orchestrator"
	"github.com/aura-webinar/recorder/internal/registry"
	"github.com/aura-webinar/recorder/internal/sfurouter"
	"github.com/aura-webinar/recorder/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, cross-instance event fan-out disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	reg := registry.New()
	svcCfg := orchestrator.Config{
		OutputRoot:            cfg.Recording.OutputRoot,
		MixedMinRuntime:       cfg.Recording.MixedMinRuntime,
		ParticipantMinRuntime: cfg.Recording.ParticipantMinRuntime,
		KeyframeInterval:      cfg.Recording.KeyframeInterval,
		GridWidth:             cfg.Recording.GridWidth,
		GridHeight:            cfg.Recording.GridHeight,
		MaxVideoInputsMixed:   cfg.Recording.MaxVideoInputsMixed,
		StaleThreshold:        cfg.Recording.StaleThreshold,
		HealthCheckInterval:   cfg.Recording.HealthCheckInterval,
		FFmpegPath:            cfg.Muxer.FFmpegPath,
		FFprobePath:           cfg.Muxer.FFprobePath,
		ExitGrace:             cfg.Muxer.ExitGrace,
		QuitWait:              cfg.Muxer.QuitWait,
		StarveWait:            cfg.Muxer.StarveWait,
		PortMin:               cfg.Ports.Min,
		PortMax:               cfg.Ports.Max,
		PortMaxAttempts:       cfg.Ports.MaxAttempts,
	}
	svc := orchestrator.NewService(svcCfg, reg, logger)

	healthCtx, healthCancel := context.WithCancel(ctx)
	defer healthCancel()
	go svc.RunHealthSweep(healthCtx)

	// The Hub's publish callback closes over bridge, which is only
	// constructed after the Hub exists (Bridge.Publish needs the Hub for
	// DeliverRemote); the closure makes that forward reference safe.
	var bridge *control.Bridge
	var hub *control.Hub
	if rdb != nil {
		hub = control.NewHub(logger, func(room string, payload []byte) {
			if bridge != nil {
				bridge.Publish(room, payload)
			}
		})
		bridge = control.NewBridge(rdb, hub, logger)
	} else {
		hub = control.NewHub(logger, nil)
	}

	// routers resolves a room's live SFU router. The real SFU lives
	// outside this repository; the host application wires its own
	// provider in by replacing this function.
	routers := control.RouterProvider(func(room string) (sfurouter.Router, bool) {
		return nil, false
	})

	surface := control.New(svc, routers, hub, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	r.Use(middleware.Logger(logger))

	r.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	surface.RegisterRoutes(r)

	r.GET("/ws/:room", func(c *gin.Context) {
		if err := hub.ServeWS(c.Writer, c.Request, c.Param("room")); err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	healthCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := cfg.Build()
	return logger
}
