package circulation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"circulate/internal/circulation"
	"circulate/internal/copypool"
	"circulate/internal/waitlist"
)

type Handler struct {
	svc *circulation.Service
}

func NewHandler(svc *circulation.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/borrow", h.requestBorrow)
	r.Post("/pickup", h.confirmPickup)
	r.Post("/return", h.returnCopy)
	r.Post("/transactions/{id}/cancel", h.cancelHold)
	r.Get("/transactions/{id}", h.get)
	r.Get("/transactions/{id}/fine", h.previewFine)
	r.Get("/requesters/{id}/transactions", h.history)
}

type borrowRequest struct {
	TitleID     uuid.UUID `json:"title_id"`
	RequesterID uuid.UUID `json:"requester_id"`
}

func (h *Handler) requestBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.TitleID == uuid.Nil || req.RequesterID == uuid.Nil {
		http.Error(w, "title_id and requester_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.RequestBorrow(r.Context(), req.TitleID, req.RequesterID)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Hold != nil {
		status = http.StatusCreated
	}

	writeJSON(w, status, toBorrowResponse(result))
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) confirmPickup(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ConfirmPickup(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toIssueResponse(result))
}

func (h *Handler) returnCopy(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Return(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReturnResponse(result))
}

type cancelRequest struct {
	RequesterID uuid.UUID `json:"requester_id"`
}

func (h *Handler) cancelHold(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.RequesterID == uuid.Nil {
		http.Error(w, "requester_id is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.CancelHold(r.Context(), id, req.RequesterID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	tx, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) previewFine(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	amount, err := h.svc.PreviewFine(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fineResponse{TransactionID: id, FineAmount: amount})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	txs, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponseList(txs))
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, circulation.ErrNotFound),
		errors.Is(err, copypool.ErrNotFound),
		errors.Is(err, waitlist.ErrNotWaitlisted):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, circulation.ErrInvalidToken):
		http.Error(w, "invalid, expired or already used token", http.StatusConflict)
	case errors.Is(err, circulation.ErrWrongState),
		errors.Is(err, waitlist.ErrAlreadyWaitlisted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, circulation.ErrBorrowLimit):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, circulation.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
