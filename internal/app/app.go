package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/authsvc/internal/config"
	"github.com/you/authsvc/internal/logging"
)

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	gin.SetMode(cfg.HTTP.GinMode)

	c, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			logging.LogError(closeCtx, logger, "shutdown cleanup failed", err)
		}
	}()

	router, err := c.Router()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		RunJanitor(janitorCtx, cfg.OTP.PurgeInterval, c.OTPSvc.PurgeExpired, logger)
	}()
	defer func() {
		stopJanitor()
		<-janitorDone
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "otp_store", cfg.OTP.Store, "otp_channel", cfg.OTP.Channel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// RunJanitor calls purge every interval until ctx is done
func RunJanitor(ctx context.Context, interval time.Duration, purge func(context.Context) (int, error), logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.LogError(ctx, logger, "otp purge failed", err)
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "purged expired otp entries", "count", n)
			}
		}
	}
}
