package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// serveOptions overrides the process defaults used by serveHTTP. Tests
// inject a listener and a signal channel.
type serveOptions struct {
	listener net.Listener
	signals  <-chan os.Signal
	// onShutdown runs after the HTTP server has stopped, each hook bounded by
	// a fresh shutdown budget.
	onShutdown []func(ctx context.Context)
}

// serveHTTP blocks until the server fails or a termination signal arrives,
// then drains in-flight requests within shutdownTimeout.
func serveHTTP(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, opts serveOptions) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if opts.listener != nil {
			err = server.Serve(opts.listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	signals := opts.signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	err := waitForShutdown(server, shutdownTimeout, logger, errCh, signals)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, hook := range opts.onShutdown {
		hook(ctx)
	}
	return err
}

func waitForShutdown(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, errCh <-chan error, signals <-chan os.Signal) error {
	select {
	case err := <-errCh:
		return err
	case sig, ok := <-signals:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
