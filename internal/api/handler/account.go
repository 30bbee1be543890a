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

// AccountHandler serves account balances and ledger statements.
type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// GetBalance returns the current balance. Customers may only read their own
// accounts.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.GetBalance(r.Context(), accountID)
	if err != nil {
		h.respondAccountError(w, r, err)
		return
	}
	if !isAdmin && account.CustomerID != actorID {
		RespondError(w, r, http.StatusNotFound, "account/not-found", "account not found")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":    account.ID,
		"balance_cents": account.BalanceCents,
		"balance":       domain.NewMoney(account.BalanceCents).String(),
		"status":        account.Status,
	})
}

// GetStatement lists ledger entries for the account, newest first.
func (h *AccountHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.GetBalance(r.Context(), accountID)
	if err != nil {
		h.respondAccountError(w, r, err)
		return
	}
	if !isAdmin && account.CustomerID != actorID {
		RespondError(w, r, http.StatusNotFound, "account/not-found", "account not found")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	entries, err := h.accounts.GetStatement(r.Context(), accountID, page, pageSize)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"entries":    entries,
	})
}

// Create opens a new account for a customer. Admin only.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID     string `json:"customer_id"`
		AccountType    string `json:"account_type"`
		AccountNumber  string `json:"account_number"`
		RoutingNumber  string `json:"routing_number"`
		OpeningBalance string `json:"opening_balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid customer_id")
		return
	}
	opening := domain.Money{}
	if req.OpeningBalance != "" {
		opening, err = domain.ParseAmount(req.OpeningBalance)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "account/invalid-balance", "Invalid opening balance: "+err.Error())
			return
		}
	}

	account, err := h.accounts.CreateAccount(r.Context(), customerID, req.AccountType, req.AccountNumber, req.RoutingNumber, opening)
	if err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			RespondError(w, r, http.StatusNotFound, "customer/not-found", "customer not found")
			return
		}
		if status, problemType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, msg)
			return
		}
		RespondError(w, r, http.StatusBadRequest, "account/invalid", err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) respondAccountError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, models.ErrAccountNotFound) {
		RespondError(w, r, http.StatusNotFound, "account/not-found", "account not found")
		return
	}
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid account id")
		return uuid.Nil, false
	}
	return id, true
}
