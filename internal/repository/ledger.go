package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rewardgate/internal/model"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidCredit = errors.New("invalid credit request")
	ErrCorruptState  = errors.New("stored balance is not an integer")
)

// LedgerRepo is the PostgreSQL ledger. The unique index on dedupe_key is the
// single source of truth for whether a delivery is the first one.
type LedgerRepo struct {
	dbPool *pgxpool.Pool
	ids    *snowflake.Node
}

func NewLedgerRepo(db *pgxpool.Pool, ids *snowflake.Node) *LedgerRepo {
	return &LedgerRepo{
		dbPool: db,
		ids:    ids,
	}
}

const (
	insertTransactionSQL = `
		INSERT INTO reward_transactions (id, dedupe_key, provider, user_id, amount, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING id`

	incrementBalanceSQL = `
		UPDATE users SET coin_balance = coin_balance + $1
		WHERE id = $2
		RETURNING coin_balance`
)

// CreditOnce records the transaction and increments the balance in one
// database transaction. A concurrent insert of the same dedupe key blocks on
// the unique index until the first commits, then inserts nothing.
func (r *LedgerRepo) CreditOnce(ctx context.Context, req model.CreditRequest) (model.CreditResult, error) {
	if err := validateCredit(req); err != nil {
		return model.CreditResult{}, err
	}

	tx, err := r.dbPool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return model.CreditResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var txID int64
	err = tx.QueryRow(ctx, insertTransactionSQL,
		r.ids.Generate().Int64(),
		req.DedupeKey,
		req.Provider,
		req.UserID,
		req.Amount,
		req.RawPayload,
		time.Now().UTC(),
	).Scan(&txID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CreditResult{Status: model.AlreadyCredited}, nil
	}
	if err != nil {
		return model.CreditResult{}, fmt.Errorf("insert reward transaction: %w", err)
	}

	var balance int64
	err = tx.QueryRow(ctx, incrementBalanceSQL, req.Amount, req.UserID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Rolled back by the deferred call; the transaction row never lands.
		return model.CreditResult{Status: model.UserNotFound}, nil
	}
	if err != nil {
		return model.CreditResult{}, fmt.Errorf("increment balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.CreditResult{}, fmt.Errorf("commit credit: %w", err)
	}

	return model.CreditResult{
		Status:        model.Credited,
		TransactionID: txID,
		NewBalance:    balance,
	}, nil
}

func (r *LedgerRepo) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.dbPool.QueryRow(ctx, `SELECT coin_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("database query error: %w", err)
	}
	return balance, nil
}

func validateCredit(req model.CreditRequest) error {
	if req.DedupeKey == "" || req.UserID == "" || req.Amount <= 0 {
		return ErrInvalidCredit
	}
	return nil
}
