package service

import (
	"context"
	"fmt"
	"time"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/repository"
)

// ExpiryService retires transactions that have sat pending past the
// configured TTL. Expired transactions never touched a balance and accept
// no further verification or settlement.
type ExpiryService struct {
	store QueryStore
	audit *AuditService
	ttl   time.Duration
}

func NewExpiryService(store QueryStore, ttl time.Duration) *ExpiryService {
	return &ExpiryService{
		store: store,
		audit: NewAuditService(store),
		ttl:   ttl,
	}
}

// Sweep expires one batch of stale pending transactions and returns the
// number expired. SKIP LOCKED in the claim query keeps concurrent sweeps
// from stepping on each other.
func (s *ExpiryService) Sweep(ctx context.Context, batchSize int32) (int, error) {
	cutoff := time.Now().Add(-s.ttl)
	var expired int

	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		stale, err := qtx.ListStalePendingTransactions(ctx, cutoff, batchSize)
		if err != nil {
			return fmt.Errorf("list stale pending transactions: %w", err)
		}
		for _, tx := range stale {
			if err := transitionTransactionState(ctx, qtx, s.audit, tx.ID, domain.TxStatusExpired, nil, nil, "expired", nil); err != nil {
				return fmt.Errorf("expire transaction %s: %w", tx.ID, err)
			}
		}
		expired = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}
