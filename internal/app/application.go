// Package app assembles the server components and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"chatsync/internal/api"
	"chatsync/internal/config"
	"chatsync/internal/dispatch"
	"chatsync/internal/session"
	"chatsync/internal/store"
	"chatsync/internal/websocket"
)

// Application coordinates all system components. Initialization follows
// dependency order: store → registry → dispatcher → coordinator → handlers.
type Application struct {
	config      *config.Config
	store       *store.Store
	registry    *websocket.Registry
	dispatcher  *dispatch.Dispatcher
	coordinator *session.Coordinator
	httpServer  *http.Server
}

// NewApplication builds a ready-to-start application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath, store.Options{
		HistoryLimit: cfg.HistoryLimit,
		EditCooldown: cfg.EditCooldown,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	registry := websocket.NewRegistry()
	dispatcher := dispatch.New(registry)
	coordinator := session.NewCoordinator(registry, st, dispatcher, cfg.HistoryLimit)

	wsHandler := websocket.NewHandler(coordinator, websocket.HeartbeatConfig{
		PingInterval: cfg.PingInterval,
		ReadTimeout:  cfg.ReadTimeout,
	})
	apiServer := api.NewServer(st, registry, cfg.HistoryLimit)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Routes())
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       st,
		registry:    registry,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		httpServer:  httpServer,
	}, nil
}

// Start begins serving. It returns once the listener is up or startup fails.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("starting chatsync on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("chatsync started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP listener first, then the message store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down chatsync")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("store shutdown error: %v", err)
	}

	log.Printf("chatsync shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
