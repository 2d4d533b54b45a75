package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"
)

// NewRouter mounts the REST API and the websocket attempt endpoint.
func NewRouter(h *Handler, ws *AttemptHandler, authn *auth.Service, allowedOrigins []string, logger *slog.Logger) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		participant := auth.RequireRole(domain.RoleParticipant)

		r.Route("/quizzes/{code}", func(r chi.Router) {
			r.Get("/", h.GetQuiz)
			r.With(participant).Post("/start", h.Start)
			r.With(participant).Post("/submit", h.Submit)
			r.With(participant).Get("/submission", h.GetSubmission)
			r.With(auth.RequireRole(domain.RoleOrganizer)).Get("/submissions", h.ListSubmissions)
		})
		r.With(participant).Get("/ws/attempt", ws.ServeWS)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
