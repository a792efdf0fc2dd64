package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-clinic-queue/internal/config"
	httpapi "github.com/tbourn/go-clinic-queue/internal/http"
	"github.com/tbourn/go-clinic-queue/internal/observability"
	"github.com/tbourn/go-clinic-queue/internal/services"
	"github.com/tbourn/go-clinic-queue/internal/sysutil"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the priority sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func runServer(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, ver,
		attribute.String("clinic.timezone", cfg.Location().String()))
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return err
	}
	logger.Info().Str("driver", cfg.DB.Driver).Str("version", ver).Msg("database ready")

	sweeper := services.NewSweeper(a.priority, cfg.Queue.SweepInterval)
	sweeper.Start(ctx)

	srv := newHTTPServer(cfg, a)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("server error")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	sweeper.Stop()
	if err := a.Close(sctx); err != nil {
		logger.Error().Err(err).Msg("resource cleanup failed")
	}
	if err := otelShutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return serveErr
}

func newHTTPServer(cfg config.Config, a *app) *http.Server {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{
		Tickets:     a.tickets,
		Assessments: a.assessments,
		Doctors:     a.doctors,
	}, a.db, cfg)

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}
