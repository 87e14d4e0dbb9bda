package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pneumoscan/internal/logging"
)

// Server HTTP-сервер API
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	log        *slog.Logger
}

// NewServer создаёт сервер с зарегистрированными маршрутами
func NewServer(addr string, h *Handler) *Server {
	s := &Server{
		router: mux.NewRouter(),
		log:    logging.New("server"),
	}
	s.router.Use(s.logRequests)
	h.RegisterRoutes(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Router возвращает роутер, используется в тестах
func (s *Server) Router() http.Handler {
	return s.router
}

// Start слушает адрес до вызова Shutdown
func (s *Server) Start() error {
	s.log.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown плавно останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
