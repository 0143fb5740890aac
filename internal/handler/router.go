package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parlohq/parlo/backend/internal/handler/profilehttp"
	"github.com/parlohq/parlo/backend/internal/handler/scenariohttp"
	"github.com/parlohq/parlo/backend/internal/handler/ws"
	middlewarePkg "github.com/parlohq/parlo/backend/internal/middleware"
	"github.com/parlohq/parlo/backend/internal/model/profile"
	"github.com/parlohq/parlo/backend/internal/model/scenario"
	"github.com/parlohq/parlo/backend/internal/quota"
	"github.com/parlohq/parlo/backend/internal/session"
	"github.com/parlohq/parlo/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(
	profiles profile.Store,
	scenarios scenario.Store,
	engine *quota.Engine,
	registry *session.Registry,
	dialogues ws.DialogueService,
	allowedOrigins []string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	profileHandler := profilehttp.New(profiles, engine)
	scenarioHandler := scenariohttp.New(scenarios)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		profileHandler.RegisterRoutes(api)
		scenarioHandler.RegisterRoutes(api)

		// The conversation relay needs a working provider; without one the
		// endpoint reports unavailable instead of accepting connections.
		if dialogues != nil {
			wsHandler := ws.New(profiles, engine, registry, dialogues, allowedOrigins)
			wsHandler.RegisterRoutes(api)
		} else {
			api.Get("/ws", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "conversation relay unavailable")
			})
		}
	})

	return r
}
