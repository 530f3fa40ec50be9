package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Handler        *Handler
	MetricsHandler http.Handler
}

// NewRouter creates the chi router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	h := cfg.Handler
	r.Get("/healthz", h.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Get("/stats", h.Stats)
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", h.CreateConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetConversation)
				r.Post("/messages", h.PostMessage)
				r.Get("/escalation", h.GetEscalation)
				r.Post("/return-to-bot", h.ReturnToBot)
			})
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logx.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
