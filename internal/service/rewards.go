package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"rewardgate/internal/model"
	"rewardgate/internal/provider"
	"rewardgate/internal/repository"
	"rewardgate/internal/signature"
)

const CreditedTopic = "rewards.credited"

type Outcome int

const (
	OutcomeParseError Outcome = iota + 1
	OutcomeUnauthorized
	OutcomeValidationError
	OutcomeAcknowledged
	OutcomeCredited
	OutcomeAlreadyCredited
	OutcomeUserNotFound
	OutcomeInternalError
)

var outcomeInfo = map[Outcome]struct {
	name    string
	status  int
	message string
}{
	OutcomeParseError:      {"parse_error", http.StatusBadRequest, "Missing parameters"},
	OutcomeUnauthorized:    {"unauthorized", http.StatusForbidden, "Unauthorized"},
	OutcomeValidationError: {"validation_error", http.StatusBadRequest, "Invalid parameters"},
	OutcomeAcknowledged:    {"acknowledged", http.StatusOK, "Notice acknowledged"},
	OutcomeCredited:        {"credited", http.StatusOK, "Coins updated successfully"},
	OutcomeAlreadyCredited: {"already_credited", http.StatusOK, "Duplicate transaction - already credited"},
	OutcomeUserNotFound:    {"user_not_found", http.StatusNotFound, "User not found"},
	OutcomeInternalError:   {"internal_error", http.StatusInternalServerError, "Server error"},
}

func (o Outcome) String() string {
	if info, ok := outcomeInfo[o]; ok {
		return info.name
	}
	return "unknown"
}

// StatusCode is the HTTP status returned to the network. Duplicates are 200
// so that retrying networks stop retrying.
func (o Outcome) StatusCode() int {
	if info, ok := outcomeInfo[o]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message is the short status line sent back. It never carries error detail.
func (o Outcome) Message() string {
	if info, ok := outcomeInfo[o]; ok {
		return info.message
	}
	return "Server error"
}

type Result struct {
	Outcome Outcome
	Event   *model.RewardEvent
	Credit  model.CreditResult
}

// Recorder receives one observation per processed postback.
type Recorder interface {
	ObservePostback(provider, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObservePostback(string, string, time.Duration) {}

type Options struct {
	Store   LedgerStore
	Secrets map[string]string
	Bus     repository.MessageBus
	Logger  *zap.Logger
	Metrics Recorder
	// Timeout bounds every store call. Zero means 5s.
	Timeout time.Duration
}

// RewardProcessor is the single pipeline every postback route goes through:
// parse, verify, validate, classify, credit.
type RewardProcessor struct {
	store   LedgerStore
	secrets map[string]string
	bus     repository.MessageBus
	log     *zap.Logger
	metrics Recorder
	timeout time.Duration
}

func NewRewardProcessor(opts Options) *RewardProcessor {
	p := &RewardProcessor{
		store:   opts.Store,
		secrets: make(map[string]string, len(opts.Secrets)),
		bus:     opts.Bus,
		log:     opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.Timeout,
	}
	for k, v := range opts.Secrets {
		p.secrets[k] = v
	}
	if p.bus == nil {
		p.bus = repository.NopBus{}
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.metrics == nil {
		p.metrics = nopRecorder{}
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	p.log = p.log.Named("rewards")
	return p
}

// Enabled reports whether a secret is configured for the provider.
func (p *RewardProcessor) Enabled(providerName string) bool {
	return p.secrets[providerName] != ""
}

func (p *RewardProcessor) Process(ctx context.Context, adapter provider.Adapter, r *http.Request, body []byte) Result {
	start := time.Now()
	res := p.process(ctx, adapter, r, body)
	p.metrics.ObservePostback(adapter.Name(), res.Outcome.String(), time.Since(start))
	return res
}

func (p *RewardProcessor) process(ctx context.Context, adapter provider.Adapter, r *http.Request, body []byte) Result {
	log := p.log.With(zap.String("provider", adapter.Name()))

	ev, err := adapter.Parse(r, body)
	if err != nil {
		log.Info("postback rejected: unparseable", zap.Error(err))
		return Result{Outcome: OutcomeParseError}
	}
	log = log.With(zap.String("external_id", ev.ExternalID), zap.String("user_id", ev.UserID))

	secret := p.secrets[adapter.Name()]
	if secret == "" {
		log.Error("postback rejected: no secret configured")
		return Result{Outcome: OutcomeUnauthorized, Event: ev}
	}
	alg, payload := adapter.Canonicalize(ev, secret)
	if !signature.Verify(alg, secret, payload, ev.ClaimedSignature) {
		log.Warn("postback rejected: signature mismatch", zap.Stringer("algorithm", alg))
		return Result{Outcome: OutcomeUnauthorized, Event: ev}
	}

	kind := adapter.Classify(ev)
	if err := validate(ev, kind); err != nil {
		log.Info("postback rejected: invalid fields", zap.Error(err), zap.String("amount", ev.RawAmount))
		return Result{Outcome: OutcomeValidationError, Event: ev}
	}

	if kind == model.KindInformational {
		log.Info("postback notice acknowledged", zap.String("status", ev.Status))
		return Result{Outcome: OutcomeAcknowledged, Event: ev}
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	credit, err := p.store.CreditOnce(storeCtx, model.CreditRequest{
		DedupeKey:  ev.DedupeKey(),
		Provider:   ev.Provider,
		UserID:     ev.UserID,
		Amount:     ev.Amount,
		RawPayload: ev.RawPayload,
	})
	if err != nil {
		log.Error("postback credit failed", zap.Error(err))
		return Result{Outcome: OutcomeInternalError, Event: ev}
	}

	switch credit.Status {
	case model.Credited:
		log.Info("postback credited",
			zap.Int64("amount", ev.Amount),
			zap.Int64("transaction_id", credit.TransactionID),
			zap.Int64("new_balance", credit.NewBalance),
		)
		p.publish(log, ev, credit)
		return Result{Outcome: OutcomeCredited, Event: ev, Credit: credit}
	case model.AlreadyCredited:
		log.Info("postback duplicate ignored")
		return Result{Outcome: OutcomeAlreadyCredited, Event: ev, Credit: credit}
	case model.UserNotFound:
		log.Warn("postback for unknown user")
		return Result{Outcome: OutcomeUserNotFound, Event: ev, Credit: credit}
	default:
		log.Error("postback credit returned unknown status", zap.Stringer("status", credit.Status))
		return Result{Outcome: OutcomeInternalError, Event: ev}
	}
}

// publish is best effort; the ledger row is the record of truth.
func (p *RewardProcessor) publish(log *zap.Logger, ev *model.RewardEvent, credit model.CreditResult) {
	data, err := json.Marshal(model.CreditedEvent{
		TransactionID: credit.TransactionID,
		DedupeKey:     ev.DedupeKey(),
		Provider:      ev.Provider,
		UserID:        ev.UserID,
		Amount:        ev.Amount,
		NewBalance:    credit.NewBalance,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Error("encode credited event", zap.Error(err))
		return
	}
	if err := p.bus.Publish(CreditedTopic, data); err != nil {
		log.Warn("publish credited event", zap.Error(err))
	}
}

var errMissingField = errors.New("missing required field")

// validate runs after verification. Informational notices only need the
// external id; rewards need a user and a positive integer amount.
func validate(ev *model.RewardEvent, kind model.EventKind) error {
	if strings.TrimSpace(ev.ExternalID) == "" {
		return errMissingField
	}
	if kind == model.KindInformational {
		return nil
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return errMissingField
	}
	amount, err := provider.ParseAmount(ev.RawAmount)
	if err != nil {
		return err
	}
	ev.Amount = amount
	return nil
}
