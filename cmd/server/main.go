package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/crossword-backend/internal/config"
	"github.com/DoyleJ11/crossword-backend/internal/coordinator"
	"github.com/DoyleJ11/crossword-backend/internal/httpapi"
	"github.com/DoyleJ11/crossword-backend/internal/logging"
	"github.com/DoyleJ11/crossword-backend/internal/store"
	"github.com/DoyleJ11/crossword-backend/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const releaseVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(newCmd().ExecuteContext(ctx))
}

func newCmd() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "crossword-server",
		Short:         "Real-time collaborative crossword solving over websockets.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			config.ApplyEnv(cmd.Flags(), viper.New())
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	cfg.AddFlags(cmd.Flags())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("crossword-server v{{.Version}}\n")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := store.Open(cfg.Store, cfg.DatabaseURL, log.Named("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	c := coordinator.New(ctx, st,
		coordinator.WithLogger(log.Named("coordinator")),
		coordinator.WithRegisterer(prometheus.DefaultRegisterer),
		coordinator.WithWorkers(cfg.PersistWorkers),
		coordinator.WithCallTimeout(cfg.PersistTimeout),
		coordinator.WithInboxSize(cfg.InboxSize),
	)
	defer c.Close()

	handler := httpapi.SetupRoutes(c, prometheus.DefaultGatherer, ws.Options{
		OutboxSize:     cfg.OutboxSize,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		OriginPatterns: cfg.OriginPatterns,
	}, log.Named("ws"))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store), zap.String("version", releaseVersion))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.Done():
		}
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
