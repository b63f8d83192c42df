// Command mynews runs the MyNews service layer: the domain API under /v1,
// /health, /info and /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robfig/cron/v3"

	"github.com/mynews-app/service_layer/internal/app"
	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/config"
	"github.com/mynews-app/service_layer/internal/logging"
	"github.com/mynews-app/service_layer/internal/middleware"
)

func main() {
	envFile := flag.String("env", ".env", "Optional .env file loaded before the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "mynews: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New("mynews", logging.Config{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg.Store, log.Named("docstore"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	application, err := app.New(ctx, cfg, store, log)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build application: %w", err)
	}

	auth, err := newAuth(cfg.Auth, log.Named("auth"))
	if err != nil {
		_ = store.Close()
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, log.Named("ratelimit"))
	scheduler := cron.New()
	if err := limiter.ScheduleCleanup(scheduler, cfg.Server.CleanupSchedule); err != nil {
		_ = store.Close()
		return fmt.Errorf("schedule rate limiter cleanup: %w", err)
	}

	router := application.Router()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.Use(
		middleware.LoggingMiddleware(log.Named("http")),
		middleware.MetricsMiddleware(),
		limiter.Handler,
		auth.Handler,
	)
	handler := middleware.NewCORSMiddleware(middleware.CORSConfig{
		Origins: cfg.Server.CORSOrigins,
		MaxAge:  cfg.Server.CORSMaxAge,
	}).Handler(router)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	scheduler.Start()

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("mynews listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	<-scheduler.Stop().Done()
	if err := application.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	log.Info("stopped")
	return errors.Join(errs...)
}

func newAuth(cfg config.AuthConfig, log *logging.Logger) (*middleware.AuthMiddleware, error) {
	authCfg := middleware.AuthConfig{
		Issuer:    cfg.JWTIssuer,
		SkipPaths: []string{"/health", "/info", "/metrics"},
	}
	switch {
	case cfg.JWTPublicKeyFile != "":
		pemBytes, err := os.ReadFile(cfg.JWTPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		authCfg.PublicKey = key
	case cfg.JWTSecret != "":
		authCfg.HMACSecret = []byte(cfg.JWTSecret)
	default:
		return nil, errors.New("MYNEWS_JWT_SECRET or MYNEWS_JWT_PUBLIC_KEY_FILE is required")
	}
	return middleware.NewAuthMiddleware(authCfg, log), nil
}
