package profilehttp

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parlohq/parlo/backend/internal/clock"
	"github.com/parlohq/parlo/backend/internal/model/profile"
	"github.com/parlohq/parlo/backend/internal/quota"
	"github.com/parlohq/parlo/backend/pkg/utils"
)

// Handler exposes profiles over REST, running the same login reconciliation
// as the websocket fetchProfile event.
type Handler struct {
	profiles profile.Store
	engine   *quota.Engine

	now func() time.Time
}

// New creates the profile handler.
func New(profiles profile.Store, engine *quota.Engine) *Handler {
	return &Handler{profiles: profiles, engine: engine, now: time.Now}
}

// RegisterRoutes registers the profile routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profile/{userID}", h.handleGetProfile)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userID is required")
		return
	}

	snapshot, err := h.profiles.Get(r.Context(), userID)
	if errors.Is(err, profile.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		log.Printf("[profile] lookup failed user=%s: %v", userID, err)
		utils.RespondError(w, http.StatusInternalServerError, "profile lookup failed")
		return
	}

	now := h.now()
	update := h.engine.ReconcileLogin(snapshot, clock.Today(now), clock.Yesterday(now))
	if update.Empty() {
		utils.RespondJSON(w, http.StatusOK, snapshot)
		return
	}

	updated, err := h.profiles.Update(r.Context(), userID, update)
	if err != nil {
		// Answer with the stale snapshot; the record catches up on the next
		// successful fetch.
		log.Printf("[profile] reconcile write failed user=%s: %v", userID, err)
		utils.RespondJSON(w, http.StatusOK, snapshot)
		return
	}

	utils.RespondJSON(w, http.StatusOK, updated)
}
