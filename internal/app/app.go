package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/document"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/history"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/notification"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/outgoing"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/user"
	"github.com/mailroomhq/mailroom-backend/internal/audit"
	"github.com/mailroomhq/mailroom-backend/internal/auth"
	"github.com/mailroomhq/mailroom-backend/internal/config"
	"github.com/mailroomhq/mailroom-backend/internal/lifecycle"
	"github.com/mailroomhq/mailroom-backend/internal/notify"
	"github.com/mailroomhq/mailroom-backend/internal/sequence"
	"github.com/mailroomhq/mailroom-backend/internal/transport/middleware"
	"github.com/mailroomhq/mailroom-backend/internal/transport/rest"
)

// Run wires the application together and serves HTTP until the context is
// cancelled or a termination signal arrives.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	documentRepo := document.New(pool)
	outgoingRepo := outgoing.New(pool)
	historyRepo := history.New(pool)
	notificationRepo := notification.New(pool)
	userRepo := user.New(pool)
	txManager := postgres.NewTxManager(pool)

	seqAllocator := sequence.New(logger, sequence.ScannerFunc(documentRepo.LastAllocatedSequence))
	refAllocator := sequence.New(logger, sequence.ScannerFunc(documentRepo.LastAllocatedReference))
	outRefAllocator := sequence.New(logger, sequence.ScannerFunc(outgoingRepo.LastAllocatedReference))

	recorder := audit.NewRecorder(logger, historyRepo)
	fanout := notify.NewFanout(logger, userRepo, notificationRepo)

	lifecycleService := lifecycle.NewService(
		logger,
		documentRepo,
		outgoingRepo,
		recorder,
		seqAllocator,
		refAllocator,
		outRefAllocator,
		fanout,
		txManager,
	)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)

	router := rest.NewRouter(rest.Handlers{
		Health:        rest.NewHealthHandler(pool, BuildVersion()),
		Documents:     rest.NewDocumentHandler(lifecycleService, recorder, logger),
		Notifications: rest.NewNotificationHandler(notificationRepo, logger),
	})

	middlewares := []middleware.Middleware{
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.Metrics(),
		middleware.CORS(cfg.CORS),
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.CleanupInterval)
		defer rateLimiter.Stop()
		middlewares = append(middlewares, rateLimiter.Limit(cfg.RateLimit.PerMinute))
	}
	middlewares = append(middlewares, middleware.Auth(jwtManager))

	handler := middleware.Chain(middlewares...)(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("shutting down", slog.String("reason", "context cancelled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
