// README: HTTP server construction and graceful shutdown.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bagdrop/internal/config"
	"bagdrop/internal/logger"
)

type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(cfg config.Config, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			// Websocket streams manage their own write deadlines.
			WriteTimeout: 0,
			IdleTimeout:  time.Minute,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then drains connections for up to 15s.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
