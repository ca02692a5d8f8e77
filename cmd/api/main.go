package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smsdesk/bridge/internal/api/router"
	"github.com/smsdesk/bridge/internal/bridge"
	appconfig "github.com/smsdesk/bridge/internal/config"
	"github.com/smsdesk/bridge/internal/desk"
	"github.com/smsdesk/bridge/internal/http/handlers"
	"github.com/smsdesk/bridge/internal/messaging"
	"github.com/smsdesk/bridge/internal/observability/metrics"
	"github.com/smsdesk/bridge/pkg/logging"
)

func main() {
	// Load .env if present; production injects real environment variables.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting sms-desk bridge",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	deskClient, err := desk.New(desk.Config{
		BaseURL:      cfg.ZohoBaseURL,
		AccountsURL:  cfg.ZohoAccountsURL,
		ClientID:     cfg.ZohoClientID,
		ClientSecret: cfg.ZohoClientSecret,
		RefreshToken: cfg.ZohoRefreshToken,
		OrgID:        cfg.ZohoOrgID,
		Department:   cfg.ZohoDepartmentID,
		Timeout:      cfg.HTTPTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize desk client", "error", err)
		os.Exit(1)
	}

	sender := messaging.NewTwilioSender(
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		cfg.TwilioFromNumber,
		cfg.HTTPTimeout,
		logger,
	)

	correlator := bridge.NewCorrelator(deskClient, cfg.SearchWindow, logger)
	controller := bridge.NewController(deskClient, correlator, logger)
	replies := bridge.NewReplyRouter(deskClient, sender, cfg.TwilioFromNumber, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bridgeMetrics := metrics.NewBridgeMetrics(registry)

	webhooks := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Controller:    controller,
		Replies:       replies,
		WebhookSecret: cfg.TwilioWebhookSecret,
		Metrics:       bridgeMetrics,
		Logger:        logger,
	})

	r := router.New(&router.Config{
		Logger:         logger,
		Webhooks:       webhooks,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
