package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Listener is the lifecycle half of *http.Server.
type Listener interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Service runs an HTTP server under a suture supervisor.
type Service struct {
	srv             Listener
	shutdownTimeout time.Duration
}

// NewService wraps srv. Shutdown waits at most shutdownTimeout for active
// requests to drain.
func NewService(srv Listener, shutdownTimeout time.Duration) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Service{srv: srv, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. It returns when the server fails or ctx
// is canceled, shutting the server down gracefully in the latter case.
func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// ctx is already canceled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Service) String() string { return "http" }
