package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"notebook.app/internal/auth"
	"notebook.app/internal/cleanup"
	"notebook.app/internal/config"
	"notebook.app/internal/httpapi"
	"notebook.app/internal/migrate"
	"notebook.app/internal/notes"
	"notebook.app/internal/obs"
	"notebook.app/internal/ratelimit"
	"notebook.app/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("notebook-api stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Инициализация observability (регистрация метрик, логгер)
	obs.SetLogger(obs.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))
	obs.Init()
	obs.SetBuildInfo(version, commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		users    auth.UserStore
		tokens   auth.RefreshTokenRepository
		noteRepo notes.Repository
		ready    httpapi.ReadyProbe
	)
	if cfg.DatabaseURL != "" {
		store, err := pg.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.MigrateOnStart {
			mgr, err := migrate.NewManager(store.DB())
			if err != nil {
				return err
			}
			n, err := mgr.Up(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations applied", slog.Int("count", n))
		}
		users, tokens, noteRepo = store.Users(), store.RefreshTokens(), store.Notes()
		ready = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Warn("DATABASE_URL is empty, using in-memory stores")
		users, tokens, noteRepo = auth.NewMemoryUsers(), auth.NewMemoryRefreshTokens(), notes.NewInMemory()
	}

	codec, err := auth.NewCodec([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTTL, nil)
	if err != nil {
		return err
	}
	refresh := auth.NewRefreshTokens(tokens, cfg.RefreshTTL, nil)
	authSvc, err := auth.NewService(users, codec, refresh, auth.WithBcryptCost(cfg.BcryptCost))
	if err != nil {
		return err
	}

	var limiter interface {
		ratelimit.Limiter
		ratelimit.Sweeper
	}
	switch cfg.RateLimitStrategy {
	case config.StrategyTokenBucket:
		limiter = ratelimit.NewTokenBucket(cfg.RateLimitRequests, cfg.RateLimitWindow)
	default:
		limiter = ratelimit.NewFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	ratelimit.StartJanitor(ctx, limiter, cfg.RateLimitWindow)

	hour, minute, _ := cfg.CleanupClock()
	job := cleanup.New(refresh,
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithDailyAt(hour, minute),
	)
	log.Info("token cleanup scheduled", slog.Time("first_run", job.NextRun(time.Now())), slog.Duration("interval", cfg.CleanupInterval))
	go job.Run(ctx)

	api := httpapi.New(httpapi.Deps{
		Auth:              authSvc,
		Notes:             notes.NewService(noteRepo),
		Limiter:           limiter,
		Ready:             ready,
		Version:           version,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		CookieSecure:      cfg.CookieSecure,
		MaxBodyBytes:      cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting notebook-api", slog.String("version", version), slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcSrv, httpapi.NewGRPCServer(ready))
		go func() {
			log.Info("starting grpc health", slog.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	// graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		return err
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
