package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrgate/config"
	"qrgate/internal/api"
	"qrgate/internal/generator"
	"qrgate/internal/logger"
	"qrgate/internal/repo"
	transport "qrgate/internal/transport/ws"
	"qrgate/internal/workflow"
	"qrgate/pkg/backend"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to qrgate.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting qrgate",
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", cfg.Backend.BaseURL))

	// 1. Audit store
	store, err := repo.NewSQLiteRepo(cfg.App.DBPath)
	if err != nil {
		log.Fatal("failed to open audit store", zap.String("path", cfg.App.DBPath), zap.Error(err))
	}
	defer store.Close()

	// 2. Backend client
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	// 3. Workflow machine and generator
	machine := workflow.NewMachine(client, store, log)
	gen := generator.New(generator.Options{
		PixelWidth: cfg.Generator.PixelWidth,
		Border:     cfg.Generator.Border,
	}, cfg.App.PublicDir, cfg.PublicBaseURL(), log)

	// 4. Transports
	wsServer := transport.NewServer(machine, gen, store, log)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.NewHandler(machine, gen, store, wsServer, cfg).SetupRoutes(engine)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("addr", cfg.Server.Addr))

	<-stop
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	log.Info("stopped")
}
