// Package main запускает HTTP-сервер сервиса гермес.
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

	"github.com/jeninmail/hermes-system/internal/config"
	"github.com/jeninmail/hermes-system/internal/handler"
	"github.com/jeninmail/hermes-system/internal/middleware"
	"github.com/jeninmail/hermes-system/internal/repository"
	"github.com/jeninmail/hermes-system/internal/service"
	"github.com/jeninmail/hermes-system/internal/slack"
	"github.com/jeninmail/hermes-system/internal/theseus"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	mailClient := theseus.NewClient(cfg.TheseusAddress, cfg.TheseusAPIKey)

	slackAddress := cfg.SlackAPIAddress
	if slackAddress == "" {
		slackAddress = slack.DefaultAPIAddress
	}
	notifier := slack.NewClient(slackAddress, cfg.SlackBotToken, cfg.SlackChannel)

	svc := service.NewService(repo, mailClient, notifier, logger, cfg.CheckInterval)
	defer svc.Close()

	eventAuth := middleware.NewEventAuth(svc, logger)
	adminAuth := middleware.NewAdminAuth(cfg.AdminAPIKey)
	slackVerifier := middleware.NewSlackVerifier(cfg.SlackSigningSecret)

	h := handler.NewHandler(svc, logger, eventAuth, adminAuth, slackVerifier)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки статусов писем
	g.Go(func() error {
		svc.StartStatusChecks(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting hermes server", "addr", cfg.RunAddress)
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
