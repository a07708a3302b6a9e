package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/kanbanhq/demandkit/pkg/logger"
)

// Server runs an http.Server until its context is cancelled, then drains it.
type Server struct {
	opts  options
	ready chan struct{}
	addr  net.Addr
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	o := options{
		addr:            ":8080",
		shutdownTimeout: 10 * time.Second,
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{opts: o, ready: make(chan struct{})}
}

// Run serves handler and blocks until ctx is cancelled or the listener fails.
// Cancellation triggers a graceful shutdown bounded by the shutdown timeout.
// Signal handling belongs to the caller, typically via signal.NotifyContext.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	ln := s.opts.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.opts.addr); err != nil {
			return errors.Join(ErrStart, err)
		}
	}
	s.addr = ln.Addr()
	close(s.ready)

	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       s.opts.readTimeout,
		ReadHeaderTimeout: s.opts.readTimeout,
		WriteTimeout:      s.opts.writeTimeout,
		IdleTimeout:       s.opts.idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	log := s.opts.logger.With(logger.Component("httpserver"))
	log.InfoContext(ctx, "http server started", "addr", s.addr.String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Join(ErrStart, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "http server shutdown failed", logger.Error(err))
		return errors.Join(ErrShutdown, err)
	}
	<-errCh
	log.InfoContext(shutdownCtx, "http server stopped")
	return nil
}

// Addr blocks until Run has bound its listener and returns the address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		return s.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
