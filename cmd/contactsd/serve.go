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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/celerix-dev/celerix-contacts/internal/api"
	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/platform"
	"github.com/celerix-dev/celerix-contacts/internal/server"
	"github.com/celerix-dev/celerix-contacts/internal/vault"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP and HTTP servers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *opts.cfg, opts.logger)
		},
	}
}

// serve runs both servers until ctx ends or one of them fails, then flushes
// pending writes.
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	p, err := platform.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("Finalizing disk writes")
		if err := p.Close(); err != nil {
			logger.Error("Persistence did not complete", zap.Error(err))
			return
		}
		logger.Info("Persistence complete")
	}()

	router := server.NewRouter(p,
		server.WithLogger(logger),
		server.WithMaxConnections(cfg.Server.MaxConnections))
	if cfg.Server.DisableTLS {
		logger.Warn("TLS encryption disabled")
	} else {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			return fmt.Errorf("failed to generate TLS certificate: %w", err)
		}
		router.SetCertificate(cert)
		logger.Info("TLS encryption enabled")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), api.CORS())
	h := &api.Handler{Backend: p, Logger: logger, AllowRedirect: p.Auth().AllowsRedirect}
	h.Register(r)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Contacts engine listening (TCP)", zap.String("port", cfg.Server.TCPPort))
		if err := router.Listen(cfg.Server.TCPPort); err != nil {
			return fmt.Errorf("tcp server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("REST API listening (HTTP)", zap.String("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(router.Stop(), httpServer.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
