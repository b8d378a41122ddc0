package model

import "time"

// EventKind tells the processor whether an event moves coins.
type EventKind int

const (
	KindReward EventKind = iota
	// KindInformational covers cancel and chargeback notices. They are
	// acknowledged after verification and never reach the ledger.
	KindInformational
)

func (k EventKind) String() string {
	if k == KindInformational {
		return "informational"
	}
	return "reward"
}

// RewardEvent is the canonical form of one inbound postback.
type RewardEvent struct {
	Provider   string
	UserID     string
	RawAmount  string
	Amount     int64
	ExternalID string
	// Status carries the provider's own event-type field, if any.
	Status string

	ClaimedSignature string
	// URL is the externally visible callback URL, used by providers that
	// sign the full URL.
	URL        string
	RawPayload []byte
}

// DedupeKey scopes the provider's transaction id to the provider.
func (e *RewardEvent) DedupeKey() string {
	return e.Provider + ":" + e.ExternalID
}

type RewardTransaction struct {
	ID         int64     `json:"id"`
	DedupeKey  string    `json:"dedupe_key"`
	Provider   string    `json:"provider"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	RawPayload []byte    `json:"raw_payload"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreditRequest struct {
	DedupeKey  string
	Provider   string
	UserID     string
	Amount     int64
	RawPayload []byte
}

type CreditStatus int

const (
	Credited CreditStatus = iota + 1
	AlreadyCredited
	UserNotFound
)

func (s CreditStatus) String() string {
	switch s {
	case Credited:
		return "credited"
	case AlreadyCredited:
		return "already_credited"
	case UserNotFound:
		return "user_not_found"
	default:
		return "unknown"
	}
}

type CreditResult struct {
	Status        CreditStatus
	TransactionID int64
	NewBalance    int64
}

// CreditedEvent is published on the bus after a successful credit.
type CreditedEvent struct {
	TransactionID int64     `json:"transaction_id"`
	DedupeKey     string    `json:"dedupe_key"`
	Provider      string    `json:"provider"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	NewBalance    int64     `json:"new_balance"`
	CreatedAt     time.Time `json:"created_at"`
}
