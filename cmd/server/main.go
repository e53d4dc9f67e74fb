package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"testapi/internal/app"
	"testapi/internal/config"
	"testapi/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:           "testapi",
		Short:         "Test results API sign-in and authorization service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return err
				}
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger.Init(cfg.Debug)
			defer logger.Sync()

			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("config", "", "Path to a config file (yaml, json or toml)")
	cmd.Flags().String("port", "8000", "HTTP listen port")
	cmd.Flags().Bool("debug", false, "Enable debug logging and debug routes")
	_ = v.BindPFlag("app_port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("debug", cmd.Flags().Lookup("debug"))

	return cmd
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(
		parent,
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize app", map[string]any{
			"error": err,
		})
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	logger.Info("testapi started", map[string]any{
		"port":   cfg.AppPort,
		"prefix": cfg.RoutePrefix,
	})

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", map[string]any{
				"error": err,
			})
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]any{
			"error": err,
		})
		return err
	}

	logger.Info("testapi stopped cleanly", nil)
	return nil
}
