package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brickfolio/brickfolio/internal/app"
	"github.com/brickfolio/brickfolio/internal/identity"
	"github.com/brickfolio/brickfolio/internal/platform/cache"
	"github.com/brickfolio/brickfolio/internal/platform/db"
	"github.com/brickfolio/brickfolio/internal/session"
	"github.com/brickfolio/brickfolio/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	codec := session.NewTokenCodec(cfg.AuthAccessSecret, cfg.AuthRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessionService := session.NewService(identity.NewRepository(pool), codec, logger)
	middleware := session.Middleware{Codec: codec}
	limiter := session.NewLoginLimiter(redisClient, cfg.LoginRateLimit, cfg.LoginRateWindow, logger)
	sessionHandler := session.NewHandler(logger, sessionService, middleware, limiter, cfg.IsProduction())

	signer := storage.NewURLSigner(cfg.StorageURLSecret, cfg.SignedURLTTL)
	gateway := storage.NewGateway(storage.NewRegistry(), signer, storage.NewLocalStore(cfg.StorageRoot), logger)
	storageHandler := storage.NewHandler(logger, gateway, middleware)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionHandler: sessionHandler,
		StorageHandler: storageHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
