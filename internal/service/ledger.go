package service

import (
	"context"

	"rewardgate/internal/model"
)

// LedgerStore is the only mutation surface for balances.
// All transports depend on this interface, not on a concrete store.
type LedgerStore interface {
	// CreditOnce must behave as if serialized per dedupe key: under any
	// number of concurrent calls with the same key exactly one reports
	// Credited.
	CreditOnce(ctx context.Context, req model.CreditRequest) (model.CreditResult, error)
	Balance(ctx context.Context, userID string) (int64, error)
}
