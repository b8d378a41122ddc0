package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"

	"rewardgate/internal/model"
)

//go:embed credit.lua
var creditLuaScript string

var creditScript = redis.NewScript(creditLuaScript)

// RedisLedger keeps balances and transaction records in Redis. Lua scripts
// run atomically, so the existence check, increment and insert in credit.lua
// are serialized against every other command.
//
// The transaction and balance keys live in different hash slots, so the
// ledger needs a single-node (or sentinel) deployment, not Redis Cluster.
type RedisLedger struct {
	redisClient *redis.Client
	ids         *snowflake.Node
}

func NewRedisLedger(rdb *redis.Client, ids *snowflake.Node) *RedisLedger {
	return &RedisLedger{
		redisClient: rdb,
		ids:         ids,
	}
}

func TransactionKey(dedupeKey string) string {
	return fmt.Sprintf("reward:tx:%s", dedupeKey)
}

// BalanceKey is owned by the user-management system; its presence is what
// makes a user exist for this ledger.
func BalanceKey(userID string) string {
	return fmt.Sprintf("user:%s:coins", userID)
}

func (r *RedisLedger) CreditOnce(ctx context.Context, req model.CreditRequest) (model.CreditResult, error) {
	if err := validateCredit(req); err != nil {
		return model.CreditResult{}, err
	}

	record := model.RewardTransaction{
		ID:         r.ids.Generate().Int64(),
		DedupeKey:  req.DedupeKey,
		Provider:   req.Provider,
		UserID:     req.UserID,
		Amount:     req.Amount,
		RawPayload: req.RawPayload,
		CreatedAt:  time.Now().UTC(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return model.CreditResult{}, fmt.Errorf("encode transaction: %w", err)
	}

	keys := []string{TransactionKey(req.DedupeKey), BalanceKey(req.UserID)}
	result, err := creditScript.Run(ctx, r.redisClient, keys, req.Amount, encoded).Result()
	if err != nil {
		return model.CreditResult{}, fmt.Errorf("error executing Lua script: %w", err)
	}

	resArray, ok := result.([]interface{})
	if !ok || len(resArray) < 2 {
		return model.CreditResult{}, errors.New("unexpected response format from Redis")
	}
	statusCode, ok1 := resArray[0].(int64)
	balance, ok2 := resArray[1].(int64)
	if !ok1 || !ok2 {
		return model.CreditResult{}, errors.New("unexpected response types from Redis")
	}

	switch statusCode {
	case 1:
		return model.CreditResult{Status: model.Credited, TransactionID: record.ID, NewBalance: balance}, nil
	case 0:
		return model.CreditResult{Status: model.AlreadyCredited}, nil
	case -1:
		return model.CreditResult{Status: model.UserNotFound}, nil
	case -2:
		return model.CreditResult{}, ErrCorruptState
	default:
		return model.CreditResult{}, fmt.Errorf("unknown status from Lua: %d", statusCode)
	}
}

func (r *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := r.redisClient.Get(ctx, BalanceKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis get balance: %w", err)
	}
	return balance, nil
}

// Transaction loads a stored transaction record, mainly for audits.
func (r *RedisLedger) Transaction(ctx context.Context, dedupeKey string) (*model.RewardTransaction, error) {
	raw, err := r.redisClient.Get(ctx, TransactionKey(dedupeKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get transaction: %w", err)
	}
	var tx model.RewardTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &tx, nil
}
