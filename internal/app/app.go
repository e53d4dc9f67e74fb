package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"testapi/internal/config"
	"testapi/internal/visibility"
)

type App struct {
	httpServer *http.Server
	authorizer *visibility.Authorizer
	cleanup    func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	router, authorizer, cleanup, err := setupHTTP(ctx, cfg)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		httpServer: server,
		authorizer: authorizer,
		cleanup:    cleanup,
	}, nil
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Authorizer is what data-read handlers mount to scope their queries.
func (a *App) Authorizer() *visibility.Authorizer {
	return a.authorizer
}

// Run blocks serving HTTP. A clean Shutdown is not reported as an error.
func (a *App) Run() error {
	err := a.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
