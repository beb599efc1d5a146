// Package http expone la API del step-up: abrir un intento, verificar el
// código, health y métricas.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/mailotp/internal/authflow"
	"github.com/dropDatabas3/mailotp/internal/metrics"
	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/rate"
	"github.com/dropDatabas3/mailotp/internal/session"
)

type Server struct {
	addr      string
	auth      *authflow.Authenticator
	sessions  *session.Store
	directory authflow.Directory

	srv *http.Server
}

func NewServer(addr string, auth *authflow.Authenticator, sessions *session.Store, directory authflow.Directory, limiter rate.Limiter) *Server {
	s := &Server{
		addr:      addr,
		auth:      auth,
		sessions:  sessions,
		directory: directory,
	}

	r := chi.NewRouter()
	r.Use(withRequestID, withRecover, withObservability)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/auth/{tenant}/otp", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return withRateLimit(limiter, next) })
		r.Post("/start", s.handleStart)
		r.Post("/verify", s.handleVerify)
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler expone el router (tests).
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run levanta el listener y se queda hasta que el contexto muera; ahí
// drena con un shutdown graceful.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("http listening", logger.Component("http"), logger.String("addr", s.addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
