package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adledger/internal/model"
	"adledger/internal/service"
)

type Handler struct {
	svc service.BillingService
}

func NewHandler(svc service.BillingService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /accounts", h.CreateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", h.RetireAccount)
	mux.HandleFunc("GET /accounts/{id}", h.GetAccount)
	mux.HandleFunc("GET /accounts/{id}/balance", h.GetBalance)
	mux.HandleFunc("GET /accounts/{id}/entries", h.ListEntries)
	mux.HandleFunc("POST /admin/resettle", h.ForceResettle)
	mux.HandleFunc("POST /admin/topup", h.ForceTopUp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID       string `json:"account_id"`
		DailyBudgetBase int64  `json:"daily_budget_base_cents"`
		Timezone        string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.AccountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account_id")
		return
	}
	if err := h.svc.CreateAccount(r.Context(), req.AccountID, model.Money(req.DailyBudgetBase), req.Timezone); err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *Handler) RetireAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RetireAccount(r.Context(), r.PathValue("id")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, acct)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	balance, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"account_id":    id,
		"balance_cents": balance.Cents(),
		"balance":       balance.String(),
	})
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}
	entries, next, err := h.svc.Entries(r.Context(), r.PathValue("id"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"entries":     entries,
		"next_cursor": next,
	})
}

func (h *Handler) ForceResettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID    string `json:"account_id"`
		BusinessDate string `json:"business_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.ForceResettle(r.Context(), req.AccountID, req.BusinessDate); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func (h *Handler) ForceTopUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	outcome, err := h.svc.ForceTopUp(r.Context(), req.AccountID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, outcome)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidCursor):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidStateTransition):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrConcurrencyConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrGatewayUnavailable), errors.Is(err, model.ErrSpendSourceUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
