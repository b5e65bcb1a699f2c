// Package api provides the HTTP server for ArgPipe.
//
// It accepts structured command interactions and injected chat messages,
// lists registered commands and pending prompts, and hosts the Twilio webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/commands"
	"github.com/BTreeMap/ArgPipe/internal/messaging"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
)

// Server configuration defaults
const (
	// DefaultAddr is the default HTTP listen address
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds reading request headers
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr   string                   // HTTP listen address
	Twilio *messaging.TwilioService // serves /twilio/webhook when set
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithTwilioWebhook mounts the Twilio inbound webhook.
func WithTwilioWebhook(svc *messaging.TwilioService) Option {
	return func(o *Opts) {
		o.Twilio = svc
	}
}

// Server serves the ArgPipe HTTP API.
type Server struct {
	registry   *commands.Registry
	dispatcher *commands.Dispatcher
	router     *messaging.Router
	collector  *prompt.Collector
	opts       Opts

	// wg tracks interactions still being fulfilled after their request returned.
	wg sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(registry *commands.Registry, dispatcher *commands.Dispatcher, router *messaging.Router, collector *prompt.Collector, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		registry:   registry,
		dispatcher: dispatcher,
		router:     router,
		collector:  collector,
		opts:       o,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/interactions", s.interactionsHandler)
	mux.HandleFunc("/messages", s.messagesHandler)
	mux.HandleFunc("/prompts", s.promptsHandler)
	mux.HandleFunc("/commands", s.commandsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if s.opts.Twilio != nil {
		mux.HandleFunc("/twilio/webhook", s.opts.Twilio.TwilioWebhookHandler)
	}
	return mux
}

// Run serves HTTP until ctx is done, then shuts down gracefully and waits
// for accepted interactions to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: ArgPipe API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.Wait()
	return nil
}

// Wait blocks until all accepted interactions have been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}
