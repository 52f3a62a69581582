package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/aiquiz/internal/middleware"
	"github.com/sirupsen/logrus"
)

// RouterOptions carries the HTTP settings that vary per environment.
type RouterOptions struct {
	// AllowedOrigin is the single browser origin permitted by CORS.
	AllowedOrigin  string
	RequestTimeout time.Duration
}

// NewRouter wires every route. /health is the only unauthenticated endpoint.
func NewRouter(svc QuizAPI, tokens TokenValidator, opts RouterOptions, logger *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.LogMiddleware(logger))
	r.Use(middleware.Recoverer(logger))
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{opts.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.Heartbeat("/health"))

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(tokens, logger))

		r.Get("/games", ListGamesHandler(svc, logger))
		r.Post("/games", CreateGameHandler(svc, logger))
		r.Route("/games/{game}", func(r chi.Router) {
			r.Get("/", GetGameHandler(svc, logger))
			r.Post("/retry", RetryGameHandler(svc, logger))
			r.Get("/questions", ListQuestionsHandler(svc, logger))
			r.Get("/questions/{question}", GetQuestionHandler(svc, logger))
			r.Post("/questions/ask", AskQuestionHandler(svc, logger))
			r.Post("/questions/answer", AnswerQuestionHandler(svc, logger))
		})
	})
	return r
}
