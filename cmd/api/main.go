package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/avatarchat/internal/app"
	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/server"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

// This is the main entry point for the API server.
// Loads in all system components
// Exposes functionalities
func main() {
	// fetch cfg
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// load global logger
	logger := Logger.New(cfg.Debug)
	defer logger.Sync()
	logger.Infof("Logger initialized (env=%s)", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to build application: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Errorf("Shutdown err %v", err)
		}
	}()
	if err := a.Start(); err != nil {
		logger.Fatalf("Failed to start background tasks: %v", err)
	}

	// compose router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	routes := server.InitializeRoutes(router, server.NewServerDependencies(a))

	// listen with graceful exit
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("Listening on %s%s", cfg.Server.Addr(), cfg.Server.APIPrefix)
		var err error
		if cfg.Server.EnableSSL {
			err = srv.ListenAndServeTLS(cfg.Server.SSLCertPath, cfg.Server.SSLKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server exiting: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	wait := cfg.Server.ShutdownWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	// hijacked websockets are not tracked by Shutdown
	routes.WebSocket.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown err %v", err)
	}
	logger.Info("Shutdown system")
}
