package httpserver

import "errors"

var (
	// ErrStart indicates that the server failed to start or stopped unexpectedly.
	ErrStart = errors.New("httpserver: failed to serve")
	// ErrShutdown indicates that graceful shutdown failed.
	ErrShutdown = errors.New("httpserver: failed to shut down gracefully")
)
