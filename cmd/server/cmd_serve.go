package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/events"
	httpserver "github.com/Clark-Hu/pokedex-ratings/internal/http"
	"github.com/Clark-Hu/pokedex-ratings/internal/lifecycle"
	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
	"github.com/Clark-Hu/pokedex-ratings/internal/repository"
)

func serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the user deletion consumer and the reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			st, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if !skipMigrate {
				if err := st.Migrate(); err != nil {
					return err
				}
			}

			var (
				publisher rating.Publisher
				js        nats.JetStreamContext
			)
			if cfg.NATS.Enabled() {
				nc, err := events.Connect(cfg.NATS)
				if err != nil {
					return err
				}
				defer func() { _ = nc.Drain() }()

				js, err = nc.JetStream()
				if err != nil {
					return fmt.Errorf("jetstream: %w", err)
				}
				if err := events.EnsureStream(js, cfg.NATS); err != nil {
					return err
				}
				publisher = events.NewPublisher(js, cfg.NATS.RatingChangedSubject, logger)
				logger.Info("nats events enabled", zap.String("stream", cfg.NATS.Stream))
			} else {
				logger.Warn("NATS_URL not set, rating events are disabled")
			}

			repo := repository.New(st)
			svc := rating.NewService(repo, publisher, retryConfig(), logger.Named("rating"))
			coord := lifecycle.NewCoordinator(repo, svc, retryConfig(), logger.Named("lifecycle"))
			reconciler := rating.NewReconciler(repo, retryConfig(), logger.Named("reconciler"))

			go reconciler.Run(ctx, cfg.ReconcileInterval())

			if js != nil {
				consumer := events.NewConsumer(js, cfg.NATS.Stream, cfg.NATS.UserDeletedSubject,
					cfg.NATS.ConsumerName, coord, logger.Named("consumer"))
				go func() {
					if err := consumer.Run(ctx); err != nil {
						logger.Error("user deletion consumer stopped", zap.Error(err))
					}
				}()
			}

			server := httpserver.New(cfg, st, svc, coord, logger.Named("http"))

			serverErrCh := make(chan error, 1)
			go func() {
				if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					serverErrCh <- err
					return
				}
				serverErrCh <- nil
			}()

			var runErr error
			select {
			case err := <-serverErrCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					runErr = fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("graceful shutdown error", zap.Error(err))
			}
			if stats := st.Stats(); stats != nil {
				logger.Info("shutdown complete",
					zap.Int32("total_conns", stats.TotalConns()),
					zap.Int64("acquire_count", stats.AcquireCount()),
				)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on startup")
	return cmd
}
