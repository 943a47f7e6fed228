package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"laundry-smart-queue/config"
	"laundry-smart-queue/internal/api"
	"laundry-smart-queue/internal/auth"
	"laundry-smart-queue/internal/db"
	"laundry-smart-queue/internal/feed"
	"laundry-smart-queue/internal/laundry"
	"laundry-smart-queue/internal/metrics"
	"laundry-smart-queue/internal/mw"
	"laundry-smart-queue/internal/notification"
	"laundry-smart-queue/internal/reconcile"
	"laundry-smart-queue/internal/store"
)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, completion timers and reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or LAUNDRY_JWT_SECRET) must be set")
	}
	metrics.Init()

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var storeOpts []store.Option
	if cfg.Database.ListenNotify {
		storeOpts = append(storeOpts, store.WithPGNotify())
	}
	appStore := store.NewGormStore(gormDB, storeOpts...)

	hub := feed.NewHub()
	defer hub.Close()
	cache := mw.NewResponseCache(cfg.Server.CacheTTL())
	publisher := feed.Tee(feed.PublisherFunc(func(feed.Event) { cache.Flush() }), hub)

	svcOpts := []laundry.Option{
		laundry.WithStopPolicy(laundry.StopPolicy(cfg.Laundry.StopPolicy)),
		laundry.WithLogger(log),
	}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, log)
		workerPool.Start(ctx)
		svcOpts = append(svcOpts, laundry.WithNotifier(workerPool))
	} else {
		log.Warn("VAPID keys are not configured; push notifications are disabled")
	}

	svc := laundry.NewService(appStore, publisher, svcOpts...)
	defer svc.Close()

	if machines := machinesFromConfig(cfg); len(machines) > 0 {
		if err := svc.Provision(ctx, machines); err != nil {
			return fmt.Errorf("failed to provision machines: %w", err)
		}
		log.WithField("count", len(machines)).Info("machines provisioned")
	}

	go reconcile.NewService(svc, cfg.Laundry.ReconcileInterval, log).Run(ctx)

	if cfg.Database.ListenNotify {
		go feed.NewPGListener(cfg.Database.DSN, publisher, log).Run(ctx)
	}

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Sweep(10 * time.Minute)
			}
		}
	}()

	handler := api.NewHandler(svc, appStore, hub, webpushOptions, log)
	router := api.NewRouter(handler, api.RouterOptions{
		Auth:           auth.NewMiddleware([]byte(cfg.Auth.JWTSecret)),
		Cache:          cache,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Log:            log,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping services...")
	}

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	log.Info("server gracefully stopped")
	return nil
}
