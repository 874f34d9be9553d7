package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/paid-url-shortener/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/paid-url-shortener/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/paid-url-shortener/internal/config"
	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
	"github.com/vadimbarashkov/paid-url-shortener/internal/metrics"
	"github.com/vadimbarashkov/paid-url-shortener/internal/payment"
	"github.com/vadimbarashkov/paid-url-shortener/internal/shortcode"
	"github.com/vadimbarashkov/paid-url-shortener/internal/urlpolicy"
	"github.com/vadimbarashkov/paid-url-shortener/internal/usecase"
	"github.com/vadimbarashkov/paid-url-shortener/pkg/middleware/ratelimit"
	"golang.org/x/sync/errgroup"

	myhttp "github.com/vadimbarashkov/paid-url-shortener/internal/adapter/delivery/http"
	pgpkg "github.com/vadimbarashkov/paid-url-shortener/pkg/postgres"
)

const (
	serviceName      = "paid-url-shortener"
	shutdownTimeout  = 10 * time.Second
	limiterSweepTick = time.Minute
	connectAttempts  = 5
	connectDelay     = 2 * time.Second
)

type urlRepository interface {
	Exists(ctx context.Context, shortCode string) (bool, error)
	Save(ctx context.Context, shortCode, originalURL string, payment entity.Payment, expiresAt *time.Time) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error)
	Deactivate(ctx context.Context, shortCode string) error
}

func newLogger(cfg *config.Config) *httplog.Logger {
	opts := httplog.Options{
		JSON:     true,
		LogLevel: slog.LevelInfo,
	}

	if cfg.Env == config.EnvDev {
		opts.JSON = false
		opts.Concise = true
		opts.LogLevel = slog.LevelDebug
	}

	return httplog.NewLogger(serviceName, opts)
}

func newURLRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (urlRepository, func() error, error) {
	const op = "app.newURLRepository"

	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.NewURLRepository(), func() error { return nil }, nil
	}

	db, err := pgpkg.New(
		ctx,
		cfg.Postgres.DSN(),
		pgpkg.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		pgpkg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pgpkg.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		pgpkg.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
		pgpkg.WithConnectRetry(connectAttempts, connectDelay),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}

	version, err := pgpkg.RunMigrations(cfg.Postgres.MigrationsPath, cfg.Postgres.DSN())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}
	logger.Info("database is ready", slog.Uint64("schema_version", uint64(version)))

	return postgres.NewURLRepository(db), db.Close, nil
}

// newRateLimiter returns a nil store when rate limiting is disabled.
func newRateLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Store, func() error, error) {
	const op = "app.newRateLimiter"

	noop := func() error { return nil }

	if !cfg.RateLimit.Enabled {
		return nil, noop, nil
	}

	limiterCfg := ratelimit.Config{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute}

	if cfg.RateLimit.RedisURL == "" {
		return ratelimit.New(limiterCfg), noop, nil
	}

	opt, err := redis.ParseURL(cfg.RateLimit.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to parse redis url: %w", op, err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}
	logger.Info("rate limit counters are shared through redis", slog.String("addr", opt.Addr))

	return ratelimit.NewRedis(rdb, limiterCfg), rdb.Close, nil
}

// newHandler wires the URL policy, payment verifier, use case and router around urlRepo.
// A nil limiter disables rate limiting.
func newHandler(cfg *config.Config, logger *httplog.Logger, urlRepo urlRepository, limiter ratelimit.Store) http.Handler {
	paymentPolicy := payment.Policy{
		Network:    cfg.Payment.Network,
		Asset:      cfg.Payment.Asset,
		PayTo:      cfg.Payment.PayTo,
		MinAmount:  cfg.Payment.MinAmount,
		MaxAmount:  cfg.Payment.MaxAmount,
		MaxTimeout: cfg.Payment.MaxTimeout,
	}

	validator := urlpolicy.New(urlpolicy.Policy{
		MaxLength:         cfg.URLPolicy.MaxLength,
		MaxPathLength:     cfg.URLPolicy.MaxPathLength,
		MaxQueryLength:    cfg.URLPolicy.MaxQueryLength,
		BlockedShorteners: cfg.URLPolicy.BlockedShorteners,
	})

	ucOpts := []usecase.Option{
		usecase.WithMaxAttempts(cfg.Shortener.MaxAttempts),
		usecase.WithTTL(cfg.Shortener.TTL),
		usecase.WithLogger(logger.Logger),
	}

	routerCfg := myhttp.RouterConfig{
		BaseURL:     cfg.HTTPServer.BaseURL,
		Payment:     paymentPolicy,
		RateLimiter: limiter,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		ucOpts = append(ucOpts, usecase.WithMetrics(m))
		routerCfg.Metrics = m.Handler()
	}

	urlUseCase := usecase.New(
		urlRepo,
		validator,
		payment.NewVerifier(paymentPolicy),
		shortcode.New(),
		ucOpts...,
	)

	return myhttp.NewRouter(logger, urlUseCase, routerCfg)
}

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := newLogger(cfg)

	urlRepo, closeRepo, err := newURLRepository(ctx, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeRepo()

	limiter, closeLimiter, err := newRateLimiter(ctx, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeLimiter()

	handler := newHandler(cfg, logger, urlRepo, limiter)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        handler,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server",
			slog.String("addr", server.Addr),
			slog.String("env", cfg.Env),
			slog.String("storage", cfg.Storage),
		)

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	if l, ok := limiter.(*ratelimit.Limiter); ok {
		g.Go(func() error {
			return l.Run(ctx, limiterSweepTick)
		})
	}

	return g.Wait()
}
