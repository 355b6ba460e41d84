package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tutorlink/tutorlink/internal/auth"
	"github.com/tutorlink/tutorlink/internal/config"
	"github.com/tutorlink/tutorlink/internal/httpapi"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/observability"
	"github.com/tutorlink/tutorlink/internal/presence"
	"github.com/tutorlink/tutorlink/internal/roomsvc"
	"github.com/tutorlink/tutorlink/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(false).Fatal().Err(err).Msg("config error")
	}

	log := logging.New(cfg.LogDebug)
	if cfg.LogConsole {
		log = logging.NewConsole(cfg.LogDebug, "tutorlink", false)
	}
	if cfg.DevMode {
		log.Warn().Msg("dev mode: using the default auth secret when none is configured")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessions, err := session.NewStore(ctx, cfg.DatabaseURL, cfg.JoinCodeLength)
	if err != nil {
		log.Fatal().Err(err).Msg("session store init failed")
	}
	defer sessions.Close()

	tokens := roomsvc.NewTokenIssuer(cfg.MediaAPIKey, cfg.MediaAPISecret, cfg.MediaTokenTTL)
	var webhooks *roomsvc.WebhookVerifier
	if cfg.WebhookVerify {
		webhooks = roomsvc.NewWebhookVerifier(cfg.MediaAPIKey, cfg.MediaAPISecret)
	} else {
		log.Warn().Msg("webhook signature verification disabled")
	}

	reconciler := presence.NewReconciler(cfg.PresenceGraceWindow)
	reconciler.OnChange(func(rec presence.Record) {
		metrics.ObserveTransition(string(rec.Source), string(rec.State))
	})
	registry := presence.NewRegistry()
	rooms := roomsvc.NewClient(cfg.MediaURL, tokens, nil)
	poller := presence.NewPoller(rooms, sessions, reconciler, registry, cfg.PresencePollInterval, metrics, log)

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:   sessions,
		Verifier:   auth.NewVerifier(cfg.AuthJWTSecret),
		Tokens:     tokens,
		Webhooks:   webhooks,
		Ingestor:   presence.NewIngestor(sessions, reconciler, registry, metrics, log),
		Poller:     poller,
		Reconciler: reconciler,
		Registry:   registry,
		Metrics:    metrics,
		Log:        log,
	})
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go poller.Run(runCtx)

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
}
