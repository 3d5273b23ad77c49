package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"dispatch-bot/handler"
	"dispatch-bot/internal/app"
	"dispatch-bot/internal/config"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	// .env, when present, never overrides variables already set.
	config.LoadDotEnv()
	settings, err := config.FromEnv(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	a, err := app.New(ctx, settings, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to build application", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Engine, a.Telegram,
		handler.WithSecret(a.WebhookSecret()),
		handler.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
