// Package server exposes the schema cache and the condition renderer over
// HTTP.
//
//	GET  /health
//	GET  /schemas
//	GET  /tables?schema=&refresh=
//	GET  /views?schema=&refresh=
//	GET  /tables/{table}
//	GET  /tables/{table}/{metadata}   primary-key, foreign-keys, indexes, uniques, checks, default-values
//	POST /tables/{table}/refresh
//	POST /tables/{table}/select
//	POST /refresh
//	POST /conditions/render
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/dbkit/internal/config"
	"github.com/koustreak/dbkit/internal/logger"
	"github.com/koustreak/dbkit/internal/querybuilder"
	"github.com/koustreak/dbkit/internal/schema"
)

// Server serves one connection's schema cache.
type Server struct {
	schema  *schema.Schema
	builder *querybuilder.Builder
	log     *logger.Logger
	router  chi.Router
}

// New builds the router. A nil log discards request logs.
func New(s *schema.Schema, b *querybuilder.Builder, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	srv := &Server{schema: s, builder: b, log: log}
	srv.router = srv.routes()
	return srv
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Get("/schemas", s.listSchemas)
	r.Get("/tables", s.listTables)
	r.Get("/views", s.listViews)
	r.Post("/refresh", s.refreshAll)
	r.Post("/conditions/render", s.renderCondition)

	r.Route("/tables/{table}", func(r chi.Router) {
		r.Get("/", s.getTable)
		r.Get("/{metadata}", s.getTableMetadata)
		r.Post("/refresh", s.refreshTable)
		r.Post("/select", s.renderSelect)
	})
	return r
}

// requestLogger logs every request with its status and latency, and stores
// a logger tagged with the request ID in the request context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(log.WithContext(r.Context())))
		log.Request(r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	httpSrv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", cfg.Addr).Logger().Info("server listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("server shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
