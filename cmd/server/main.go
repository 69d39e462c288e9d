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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sumire/socialauth/internal/cache"
	"github.com/sumire/socialauth/internal/cacheaside"
	"github.com/sumire/socialauth/internal/config"
	"github.com/sumire/socialauth/internal/database"
	"github.com/sumire/socialauth/internal/domain"
	"github.com/sumire/socialauth/internal/handler"
	"github.com/sumire/socialauth/internal/metrics"
	"github.com/sumire/socialauth/internal/repository"
	"github.com/sumire/socialauth/internal/service"
	"github.com/sumire/socialauth/internal/social"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.Default()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connected")

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	kv, closeCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewProviderTokenRepository(db)

	users := cacheaside.New(cacheaside.Config[domain.User]{
		Entity:  "user",
		Cache:   kv,
		Source:  userRepo,
		Key:     cache.UserKey,
		ID:      func(u *domain.User) string { return u.UUID },
		TTL:     cfg.CacheTTL,
		Logger:  logger,
		Metrics: rec,
	})
	providerTokens := cacheaside.New(cacheaside.Config[domain.ProviderToken]{
		Entity:  "provider_token",
		Cache:   kv,
		Source:  tokenRepo,
		Key:     cache.ProviderTokenKey,
		ID:      func(t *domain.ProviderToken) string { return t.Key() },
		TTL:     cfg.CacheTTL,
		Logger:  logger,
		Metrics: rec,
	})

	resolver, err := social.New(social.Config{
		Kakao:   social.KakaoConfig(cfg.Kakao),
		Apple:   social.AppleConfig(cfg.Apple),
		Timeout: cfg.ProviderTimeout,
		Logger:  logger,
		Metrics: rec,
	})
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}
	defer resolver.Close()

	codec, err := service.NewTokenCodec(service.CodecConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("configure tokens: %w", err)
	}

	authSvc := service.NewAuthService(service.AuthDeps{
		Resolver:       resolver,
		Directory:      service.NewDirectory(users, userRepo, service.NewHasher(cfg.BcryptCost), logger),
		Codec:          codec,
		Ledger:         service.NewLedger(kv, logger),
		ProviderTokens: providerTokens,
		Logger:         logger,
		Metrics:        rec,
	})

	e := handler.NewRouter(handler.RouterConfig{
		Auth:           authSvc,
		Metrics:        metrics.Handler(reg),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(srv)
}

func openCache(cfg config.Config, logger *slog.Logger) (cache.Cache, func(), error) {
	if cfg.ValkeyAddr == "" {
		slog.Warn("VALKEY_ADDR not set, using in-process cache; sessions are not shared between instances")
		return cache.NewMemory(), func() {}, nil
	}

	v, err := cache.NewValkey(cache.ValkeyConfig{
		Address:   cfg.ValkeyAddr,
		Password:  cfg.ValkeyPassword,
		DB:        cfg.ValkeyDB,
		KeyPrefix: cfg.CacheKeyPrefix,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return v, v.Close, nil
}

func serve(srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
