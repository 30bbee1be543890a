package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/service"
)

// TransactionHandler serves the transaction workflow: open, checkpoint
// evaluation, code verification, settlement and administrative delete.
type TransactionHandler struct {
	transactions *service.TransactionService
	gate         *service.CheckpointGate
	verifier     *service.OtpVerifier
	settlements  *service.SettlementEngine
}

func NewTransactionHandler(
	transactions *service.TransactionService,
	gate *service.CheckpointGate,
	verifier *service.OtpVerifier,
	settlements *service.SettlementEngine,
) *TransactionHandler {
	return &TransactionHandler{
		transactions: transactions,
		gate:         gate,
		verifier:     verifier,
		settlements:  settlements,
	}
}

// Open creates a pending transaction for the authenticated customer.
func (h *TransactionHandler) Open(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		SourceAccountNo string `json:"source_account_number"`
		DestAccountNo   string `json:"dest_account_number"`
		DestBank        string `json:"dest_bank"`
		Amount          string `json:"amount"`
		TransactionType string `json:"transaction_type"`
		TransferType    string `json:"transfer_type"`
		Remarks         string `json:"remarks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transaction/invalid-amount", "Invalid amount: "+err.Error())
		return
	}

	tx, err := h.transactions.Open(r.Context(), service.OpenTransactionRequest{
		CustomerID:      actorID,
		SourceAccountNo: req.SourceAccountNo,
		DestAccountNo:   req.DestAccountNo,
		DestBank:        req.DestBank,
		Amount:          amount,
		TransactionType: req.TransactionType,
		TransferType:    req.TransferType,
		Remarks:         req.Remarks,
	})
	if err != nil {
		h.respondTransactionError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, tx)
}

// Get returns a transaction. Customers may only read their own.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	txID, ok := transactionID(w, r)
	if !ok {
		return
	}

	tx, err := h.transactions.Get(r.Context(), txID)
	if err != nil {
		h.respondTransactionError(w, r, err)
		return
	}
	if !isAdmin && tx.CustomerID != actorID {
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "transaction not found")
		return
	}

	RespondJSON(w, http.StatusOK, tx)
}

// EvaluateCheckpoint reports whether the given progress percentage requires a
// verification code. Safe to call repeatedly; it never consumes anything.
func (h *TransactionHandler) EvaluateCheckpoint(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	txID, ok := transactionID(w, r)
	if !ok {
		return
	}
	percent, err := strconv.Atoi(r.URL.Query().Get("percent"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "checkpoint/invalid-percent", "percent query parameter must be an integer")
		return
	}

	if !h.authorizeTransaction(w, r, txID, actorID, isAdmin) {
		return
	}

	result, err := h.gate.Evaluate(r.Context(), txID, percent, r.URL.Query().Get("type"))
	if err != nil {
		h.respondTransactionError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// VerifyOtp checks a submitted code and consumes the checkpoint on success.
func (h *TransactionHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	txID, ok := transactionID(w, r)
	if !ok {
		return
	}

	var req struct {
		Percent int    `json:"percent"`
		Code    string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	if !h.authorizeTransaction(w, r, txID, actorID, isAdmin) {
		return
	}

	if err := h.verifier.Verify(r.Context(), txID, req.Percent, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidOtp):
			RespondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"success": false,
				"error":   "invalid verification code",
			})
		case errors.Is(err, models.ErrCheckpointUsed):
			RespondError(w, r, http.StatusConflict, "otp/checkpoint-consumed", "checkpoint already verified")
		case errors.Is(err, models.ErrCheckpointNotFound):
			RespondError(w, r, http.StatusBadRequest, "otp/no-checkpoint", "no checkpoint configured at this percentage")
		case errors.Is(err, models.ErrOtpNotEnabled):
			RespondError(w, r, http.StatusBadRequest, "otp/not-enabled", "step-up verification is not enabled for this transaction")
		default:
			h.respondTransactionError(w, r, err)
		}
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"checkpoint": req.Percent,
	})
}

// Complete settles the transaction. Guarded by the idempotency middleware;
// replaying a completed settlement returns the settled state.
func (h *TransactionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	txID, ok := transactionID(w, r)
	if !ok {
		return
	}

	var req struct {
		FinalStatusLabel string `json:"final_status_label"`
		DestBank         string `json:"dest_bank"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.FinalStatusLabel == "" {
		req.FinalStatusLabel = "Transaction Successful"
	}

	if !h.authorizeTransaction(w, r, txID, actorID, isAdmin) {
		return
	}

	result, err := h.settlements.Settle(r.Context(), txID, req.FinalStatusLabel, req.DestBank)
	if err != nil {
		h.respondTransactionError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Delete removes an unsettled transaction. Admin only.
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	txID, ok := transactionID(w, r)
	if !ok {
		return
	}

	if err := h.transactions.Delete(r.Context(), txID, &actorID); err != nil {
		if errors.Is(err, models.ErrAlreadyCompleted) {
			RespondError(w, r, http.StatusConflict, "transaction/already-completed", "completed transactions cannot be deleted")
			return
		}
		h.respondTransactionError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizeTransaction loads the transaction and hides it from customers who
// don't own it. Admins see everything.
func (h *TransactionHandler) authorizeTransaction(w http.ResponseWriter, r *http.Request, txID, actorID uuid.UUID, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	tx, err := h.transactions.Get(r.Context(), txID)
	if err != nil {
		h.respondTransactionError(w, r, err)
		return false
	}
	if tx.CustomerID != actorID {
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "transaction not found")
		return false
	}
	return true
}

func (h *TransactionHandler) respondTransactionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrTransactionNotFound):
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "transaction not found")
	case errors.Is(err, models.ErrCustomerNotFound):
		RespondError(w, r, http.StatusNotFound, "customer/not-found", "customer not found")
	case errors.Is(err, models.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account/not-found", "account not found")
	case errors.Is(err, models.ErrAccountNotActive):
		RespondError(w, r, http.StatusConflict, "account/not-active", "account is not active")
	case errors.Is(err, models.ErrTransactionNotPending):
		RespondError(w, r, http.StatusConflict, "transaction/not-pending", "transaction is not pending")
	case errors.Is(err, models.ErrTypeMismatch):
		RespondError(w, r, http.StatusConflict, "transaction/type-mismatch", err.Error())
	case errors.Is(err, models.ErrInsufficientFunds):
		RespondError(w, r, http.StatusUnprocessableEntity, "transaction/insufficient-funds", "insufficient funds")
	case errors.Is(err, models.ErrInvalidPercent):
		RespondError(w, r, http.StatusBadRequest, "checkpoint/invalid-percent", "percent must be between 0 and 100")
	default:
		if status, problemType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, msg)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func transactionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid transaction id")
		return uuid.Nil, false
	}
	return id, true
}
