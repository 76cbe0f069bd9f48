// Package main запускает консольный клиент витрины.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/backend"
	"github.com/mmeshcher/storefront/internal/cli"
	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/storefront"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, args, err := config.ParseClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, cli.Usage)
		return 2
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer logger.Sync()

	sessions := session.NewStore(session.NewFileStore(cfg.TokenFile), logger.Named("session"))
	client := backend.NewClient(cfg.APIURL, sessions,
		backend.WithTimeout(cfg.Timeout),
		backend.WithRetryMax(cfg.RetryMax),
		backend.WithLogger(logger.Named("backend")),
	)
	sf := storefront.New(client, sessions, logger)

	// Повреждённый или истёкший токен удаляется; команда продолжается без сессии.
	if _, err := sf.Resume(); err != nil {
		logger.Debug("stored credential discarded", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.New(sf, os.Stdout, cfg.Output).Run(ctx, args); err != nil {
		return report(err)
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func report(err error) int {
	if errors.Is(err, cli.ErrUsage) {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, cli.Usage)
		return 2
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		for field, msg := range apiErr.Fields {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
		}
	}
	return 1
}
