package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/elitetrust/stepup-ledger/internal/observability"
)

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that debits and credits across all entries net to zero. Every
// settlement books balanced pairs, so a nonzero net means money was created
// or destroyed somewhere.
func (s *ReconciliationService) Run(ctx context.Context) error {
	net, err := s.store.Queries().GetLedgerNet(ctx)
	if err != nil {
		return fmt.Errorf("run ledger net query: %w", err)
	}

	if net != 0 {
		observability.IncrementLedgerImbalance()
		zap.L().Error("CRITICAL: ledger imbalance detected", zap.Int64("net_cents", net))
		return nil
	}

	zap.L().Info("ledger balanced")
	return nil
}
