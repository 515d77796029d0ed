package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soreniverson/shipped-backend/internal/app"
	"github.com/soreniverson/shipped-backend/internal/observability"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "shipped-backend",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})
	if shutdownTracing != nil {
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shCtx)
		}()
	}

	if err := a.Start(ctx); err != nil {
		a.Log.Error("Failed to start background workers", "error", err.Error())
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
		return a.Router.Run(":" + a.Cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		a.Log.Error("Server exited", "error", err.Error())
		os.Exit(1)
	}
	a.Log.Info("Shutting down")
}
