package title

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"circulate/internal/circulation"
	"circulate/internal/copypool"
	"circulate/internal/waitlist"
)

// Handler exposes the catalog-administration surface: title counters are
// owned here, title metadata lives in the external catalog service.
type Handler struct {
	pool *copypool.Service
	svc  *circulation.Service
}

func NewHandler(pool *copypool.Service, svc *circulation.Service) *Handler {
	return &Handler{pool: pool, svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/titles", h.create)
	r.Get("/titles/{id}", h.get)
	r.Patch("/titles/{id}/copies", h.adjustCopies)
	r.Get("/titles/{id}/waitlist/position", h.waitlistPosition)
	r.Delete("/titles/{id}/waitlist", h.leaveWaitlist)
}

type createTitleRequest struct {
	ID          uuid.UUID `json:"id"`
	TotalCopies int       `json:"total_copies"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.TotalCopies < 0 {
		http.Error(w, "total_copies must be nonnegative", http.StatusBadRequest)
		return
	}

	t, err := h.pool.Create(r.Context(), copypool.CreateParams{
		ID:          req.ID,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toTitleResponse(t))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	t, err := h.pool.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, copypool.ErrNotFound) {
			http.Error(w, "title not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, toTitleResponse(t))
}

type adjustCopiesRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) adjustCopies(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req adjustCopiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.pool.AdjustTotal(r.Context(), id, req.Delta)
	if err != nil {
		if errors.Is(err, copypool.ErrNotFound) {
			http.Error(w, "title not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, toTitleResponse(t))
}

func (h *Handler) waitlistPosition(w http.ResponseWriter, r *http.Request) {
	titleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	requesterID, err := uuid.Parse(r.URL.Query().Get("requester_id"))
	if err != nil {
		http.Error(w, "invalid requester_id", http.StatusBadRequest)
		return
	}

	pos, err := h.svc.WaitlistPosition(r.Context(), titleID, requesterID)
	if err != nil {
		if errors.Is(err, waitlist.ErrNotWaitlisted) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, positionResponse{Position: pos})
}

func (h *Handler) leaveWaitlist(w http.ResponseWriter, r *http.Request) {
	titleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	requesterID, err := uuid.Parse(r.URL.Query().Get("requester_id"))
	if err != nil {
		http.Error(w, "invalid requester_id", http.StatusBadRequest)
		return
	}

	if err := h.svc.LeaveWaitlist(r.Context(), titleID, requesterID); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type titleResponse struct {
	ID              uuid.UUID  `json:"id"`
	TotalCopies     int        `json:"total_copies"`
	AvailableCopies int        `json:"available_copies"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

type positionResponse struct {
	Position int `json:"position"`
}

func toTitleResponse(t *copypool.Title) titleResponse {
	return titleResponse{
		ID:              t.ID,
		TotalCopies:     t.TotalCopies,
		AvailableCopies: t.AvailableCopies,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
