// Package main запускает тестовый сервер витрины с данными в памяти.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/stub/handler"
	"github.com/mmeshcher/storefront/internal/stub/repository"
	"github.com/mmeshcher/storefront/internal/stub/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.ParseStub(os.Args[1:])
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo := repository.NewMemoryRepository()
	defer repo.Close()

	svc := service.NewService(repo, cfg.JWTSecret, cfg.TokenTTL)
	if err := svc.Seed(context.Background()); err != nil {
		sugar.Fatalw("seed error", "error", err.Error())
	}

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting storefront stub", "addr", cfg.RunAddress, "tokenTTL", cfg.TokenTTL.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
