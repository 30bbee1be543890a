package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/service"
)

// PolicyHandler manages per-customer OTP policies. Admin only.
type PolicyHandler struct {
	policies *service.PolicyService
}

func NewPolicyHandler(policies *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

// Upsert replaces the policy for (customer, transaction type).
func (h *PolicyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid customer id")
		return
	}

	var req struct {
		TransactionType string   `json:"transaction_type"`
		Enabled         bool     `json:"enabled"`
		Checkpoints     []int32  `json:"checkpoints"`
		Codes           []string `json:"codes"`
		Messages        []string `json:"messages"`
		DeliveryMode    string   `json:"delivery_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	policy, err := service.NewOtpPolicy(customerID, req.TransactionType, req.Enabled, req.Checkpoints, req.Codes, req.Messages, req.DeliveryMode)
	if err != nil {
		if errors.Is(err, models.ErrPolicyLengthMismatch) {
			RespondError(w, r, http.StatusBadRequest, "policy/length-mismatch", "checkpoints, codes and messages must have the same length")
			return
		}
		RespondError(w, r, http.StatusBadRequest, "policy/invalid", err.Error())
		return
	}

	if err := h.policies.Upsert(r.Context(), policy); err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			RespondError(w, r, http.StatusNotFound, "customer/not-found", "customer not found")
			return
		}
		if status, problemType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, msg)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
		return
	}

	RespondJSON(w, http.StatusOK, policy)
}

// Get returns the configured policy, or 404 when none exists.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid customer id")
		return
	}
	transactionType := r.URL.Query().Get("type")

	policy, err := h.policies.Get(r.Context(), customerID, transactionType)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
		return
	}
	if policy == nil {
		RespondError(w, r, http.StatusNotFound, "policy/not-found", "no policy configured for this customer and type")
		return
	}

	RespondJSON(w, http.StatusOK, policy)
}
