package scenariohttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parlohq/parlo/backend/internal/model/scenario"
	"github.com/parlohq/parlo/backend/pkg/utils"
)

// Handler serves the scenario catalog.
type Handler struct {
	scenarios scenario.Store
}

// New creates the scenario handler.
func New(scenarios scenario.Store) *Handler {
	return &Handler{scenarios: scenarios}
}

// RegisterRoutes registers the scenario routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/scenarios", h.handleListScenarios)
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.scenarios.List())
}
