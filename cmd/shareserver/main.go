package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	commonlog "share_server/server/common/log"
	shareapp "share_server/server/share/app"
)

func main() {
	cfg, err := shareapp.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := commonlog.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
	server, err := shareapp.NewServer(initCtx, cfg, logger)
	cancelInit()
	if err != nil {
		logger.Fatal("initialize share server", zap.Error(err))
	}

	go func() {
		logger.Info("start share http server", zap.String("addr", server.HTTPServer.Addr), zap.String("env", cfg.Env))
		if err := server.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("run share http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown share server gracefully", zap.Error(err))
	}
	logger.Info("share server stopped")
}
