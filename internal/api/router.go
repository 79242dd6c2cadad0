// Package api exposes survey submission, result polling and the guestbook
// over HTTP, and the read side over MCP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kalambet/doomclock/internal/analysis"
	"github.com/kalambet/doomclock/internal/guestbook"
	"github.com/kalambet/doomclock/internal/session"
	"github.com/kalambet/doomclock/internal/storage"
)

// Sessions is the part of the session state machine the handlers drive.
type Sessions interface {
	Start(ctx context.Context, s storage.Session) error
	Fail(ctx context.Context, id string, reason string)
	Read(ctx context.Context, id string) (session.Outcome, error)
}

// Dispatcher hands a started session to the analysis worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, profile analysis.Profile) error
}

type Deps struct {
	Sessions   Sessions
	Dispatcher Dispatcher
	Guestbook  guestbook.Store
	Logger     *zap.Logger
}

type handlers struct {
	sessions   Sessions
	dispatcher Dispatcher
	feed       *guestbook.Feed
	counter    *guestbook.Counter
	poster     *guestbook.Poster
	logger     *zap.Logger
}

func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		feed:       guestbook.NewFeed(deps.Guestbook),
		counter:    guestbook.NewCounter(deps.Guestbook),
		poster:     guestbook.NewPoster(deps.Guestbook),
		logger:     logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(corsOptions))

	r.Get("/health", handleHealth)
	r.Post("/survey", h.handleSurvey)
	r.Get("/result/{sid}", h.handleResult)
	r.Post("/guestbook", h.handlePostEntry)
	r.Get("/guestbook", h.handleListEntries)
	r.Post("/guestbook/{id}/reaction", h.handleReaction)

	return r
}

// corsOptions lets the browser frontend call the API from another origin.
var corsOptions = cors.Options{
	AllowedOrigins:       []string{"*"},
	AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	AllowedHeaders:       []string{"Content-Type"},
	MaxAge:               300,
	OptionsSuccessStatus: http.StatusNoContent,
}
