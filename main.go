package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goverture/chatrelay/config"
	"github.com/goverture/chatrelay/handlers"
	"github.com/goverture/chatrelay/logging"
	"github.com/goverture/chatrelay/metrics"
	"github.com/goverture/chatrelay/persistence"
	"github.com/goverture/chatrelay/pricing"
	"github.com/goverture/chatrelay/provider"
)

var (
	// Version information - will be set during build
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatrelay:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := logging.Init(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}
	logger.Info("starting chatrelay", "version", Version, "built", BuildTime, "commit", GitCommit)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	g, gctx := errgroup.WithContext(ctx)

	chatOpts := handlers.ChatOptions{
		Provider:      p,
		Metrics:       m,
		Logger:        logger,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		SessionSecret: cfg.SessionSecret,
	}
	routes := handlers.Routes{}
	if m != nil {
		routes.Metrics = m.Handler()
	}

	if cfg.UsageEnabled() {
		ledger, err := persistence.Open(cfg.UsageDB, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := ledger.Close(); err != nil {
				logger.Warn("failed to close usage ledger", "error", err)
			}
		}()

		catalog := pricing.NewCatalog(nil)
		if cfg.PricingFile != "" {
			if catalog, err = pricing.LoadCatalog(cfg.PricingFile); err != nil {
				return err
			}
			g.Go(func() error {
				if err := catalog.Watch(gctx, logger); err != nil {
					logger.Warn("pricing hot reload disabled", "error", err)
				}
				return nil
			})
		}

		retention, err := persistence.NewRetention(ledger, cfg.UsageRetention, cfg.UsagePruneSchedule, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return retention.Run(gctx) })

		chatOpts.Usage = ledger
		chatOpts.Pricing = catalog
		routes.Admin = handlers.NewAdminHandler(ledger, logger)
		logger.Info("usage ledger enabled", "db", cfg.UsageDB, "pricing_file", cfg.PricingFile)
	}

	routes.Chat = handlers.NewChatHandler(chatOpts)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handlers.Wrap(handlers.NewMux(routes), logger, m),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // bounded by the provider request timeout
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "provider", p.Name(), "model", p.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		p, err := provider.NewGeminiProvider(ctx, provider.GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return provider.NewOpenAIProvider(cfg.Model,
			provider.WithAPIKey(cfg.APIKey),
			provider.WithBaseURL(cfg.BaseURL),
			provider.WithTimeout(cfg.RequestTimeout),
			// OpenRouter attribution headers; empty values are skipped.
			provider.WithHeader("HTTP-Referer", cfg.HTTPReferer),
			provider.WithHeader("X-Title", cfg.AppTitle),
		), nil
	}
}
