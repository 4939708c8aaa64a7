package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/cleancoindev/zaidan-dealer-client/internal/app"
	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/handler"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(gin.ReleaseMode)

	// 2. Bootstrap the session against the dealer and the node
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(bootCtx, cfg)
	cancelBoot()
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	a.Refresher.Start()

	// 3. Setup Router
	r := handler.NewRouter(handler.RouterDeps{
		Config:    cfg,
		Trader:    a.Trader,
		Quotes:    a.Quotes,
		Refresher: a.Refresher,
	})

	// 4. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		logger.Info("gateway started", "port", cfg.Server.Port, "read_only", cfg.Server.ReadOnly)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = multierr.Append(srv.Shutdown(ctx), a.Close())
	if err != nil {
		logger.Error("shutdown finished with errors", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway exiting")
}
