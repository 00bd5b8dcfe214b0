// Package app implements the monitor: an HTTP and websocket mirror of a
// session's output log with a remote input endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"SerialShell/internal/model"
)

// Session is the part of a running session the monitor drives.
type Session interface {
	Dispatch(ctx context.Context, line string)
	Status() model.StatusReport
}

// Feed is the output log the monitor mirrors.
type Feed interface {
	Events() []model.Event
	Since(seq uint64) []model.Event
	OnEvent(fn func(model.Event))
}

type App struct {
	Session Session
	Feed    Feed
	Mux     *http.ServeMux
	Server  *http.Server

	hub *hub
	log *slog.Logger
}

// NewApp creates the monitor and subscribes it to feed.
func NewApp(sess Session, feed Feed, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "monitor")
	a := &App{
		Session: sess,
		Feed:    feed,
		Mux:     http.NewServeMux(),
		hub:     newHub(logger),
		log:     logger,
	}
	feed.OnEvent(a.hub.broadcast)
	a.registerRoutes()
	return a
}

// Handler returns the monitor's routes wrapped in request logging.
func (a *App) Handler() http.Handler {
	return LogMiddleware(a.log, a.Mux)
}

// Start launches the web server and blocks until stopped.
func (a *App) Start(addr string) error {
	if addr == "" {
		a.log.Info("monitor not started (empty address)")
		return nil
	}
	a.Server = a.newServer(addr)
	return a.serve()
}

// Run serves on addr until ctx is cancelled.
func (a *App) Run(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	a.Server = a.newServer(addr)
	errc := make(chan error, 1)
	go func() { errc <- a.serve() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		a.Stop()
		return <-errc
	}
}

func (a *App) newServer(addr string) *http.Server {
	addr = strings.TrimPrefix(addr, "http://")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) serve() error {
	a.log.Info("monitor listening", "addr", "http://"+a.Server.Addr)
	if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

// Stop shuts the server down and disconnects websocket clients.
func (a *App) Stop() {
	if a.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.Server.Shutdown(ctx); err != nil {
			a.log.Warn("monitor shutdown", "err", err)
		} else {
			a.log.Info("monitor stopped")
		}
	}
	a.hub.closeAll()
}
