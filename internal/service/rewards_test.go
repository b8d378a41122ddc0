package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"rewardgate/internal/model"
	"rewardgate/internal/provider"
	"rewardgate/internal/signature"
)

type memStore struct {
	mu       sync.Mutex
	balances map[string]int64
	txs      map[string]model.CreditRequest
	calls    int
	err      error
}

func newMemStore() *memStore {
	return &memStore{balances: map[string]int64{}, txs: map[string]model.CreditRequest{}}
}

func (m *memStore) CreditOnce(ctx context.Context, req model.CreditRequest) (model.CreditResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return model.CreditResult{}, m.err
	}
	if _, ok := m.txs[req.DedupeKey]; ok {
		return model.CreditResult{Status: model.AlreadyCredited}, nil
	}
	bal, ok := m.balances[req.UserID]
	if !ok {
		return model.CreditResult{Status: model.UserNotFound}, nil
	}
	m.txs[req.DedupeKey] = req
	m.balances[req.UserID] = bal + req.Amount
	return model.CreditResult{Status: model.Credited, TransactionID: int64(len(m.txs)), NewBalance: bal + req.Amount}, nil
}

func (m *memStore) Balance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, errors.New("user not found")
	}
	return bal, nil
}

type recordingBus struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (b *recordingBus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return b.err
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingRecorder) ObservePostback(_ string, outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

const cpxSecret = "cpx-secret"

func cpxRequest(user, amount, tx, status string) *http.Request {
	hash, _ := signature.Compute(signature.MD5Hex, "", []byte(tx+"-"+cpxSecret))
	q := url.Values{}
	q.Set("user_id", user)
	q.Set("amount_local", amount)
	q.Set("trans_id", tx)
	q.Set("status", status)
	q.Set("hash", hash)
	return httptest.NewRequest(http.MethodGet, "/postbacks/cpx?"+q.Encode(), nil)
}

func newTestProcessor(store LedgerStore, bus *recordingBus, rec Recorder, log *zap.Logger) *RewardProcessor {
	return NewRewardProcessor(Options{
		Store:   store,
		Secrets: map[string]string{"cpx": cpxSecret, "adgem": "adgem-token"},
		Bus:     bus,
		Logger:  log,
		Metrics: rec,
		Timeout: time.Second,
	})
}

func TestProcess_ExampleScenario(t *testing.T) {
	store := newMemStore()
	store.balances["u1"] = 100
	bus := &recordingBus{}
	p := newTestProcessor(store, bus, nil, nil)
	ctx := context.Background()

	res := p.Process(ctx, provider.CPX{}, cpxRequest("u1", "50", "tx1", "1"), nil)
	if res.Outcome != OutcomeCredited || res.Outcome.StatusCode() != http.StatusOK {
		t.Fatalf("expected credited 200, got %s", res.Outcome)
	}
	if store.balances["u1"] != 150 {
		t.Fatalf("expected balance 150, got %d", store.balances["u1"])
	}

	res = p.Process(ctx, provider.CPX{}, cpxRequest("u1", "50", "tx1", "1"), nil)
	if res.Outcome != OutcomeAlreadyCredited || res.Outcome.StatusCode() != http.StatusOK {
		t.Fatalf("expected duplicate 200, got %s", res.Outcome)
	}
	if store.balances["u1"] != 150 {
		t.Fatalf("expected balance to stay 150, got %d", store.balances["u1"])
	}

	tampered := cpxRequest("u1", "50", "tx1", "1")
	q := tampered.URL.Query()
	h := []byte(q.Get("hash"))
	if h[0] == '0' {
		h[0] = '1'
	} else {
		h[0] = '0'
	}
	q.Set("hash", string(h))
	tampered.URL.RawQuery = q.Encode()
	res = p.Process(ctx, provider.CPX{}, tampered, nil)
	if res.Outcome != OutcomeUnauthorized || res.Outcome.StatusCode() != http.StatusForbidden {
		t.Fatalf("expected unauthorized 403, got %s", res.Outcome)
	}

	res = p.Process(ctx, provider.CPX{}, cpxRequest("unknown", "50", "tx2", "1"), nil)
	if res.Outcome != OutcomeUserNotFound || res.Outcome.StatusCode() != http.StatusNotFound {
		t.Fatalf("expected not found 404, got %s", res.Outcome)
	}
	if _, ok := store.txs["cpx:tx2"]; ok {
		t.Fatal("no transaction may be stored for an unknown user")
	}
	if store.balances["u1"] != 150 || len(store.txs) != 1 {
		t.Fatalf("unexpected final state: %v %v", store.balances, store.txs)
	}
	if len(bus.topics) != 1 || bus.topics[0] != CreditedTopic {
		t.Fatalf("expected exactly one credited event, got %v", bus.topics)
	}
}

func TestProcess_IdempotentUnderConcurrency(t *testing.T) {
	store := newMemStore()
	store.balances["u1"] = 0
	p := newTestProcessor(store, &recordingBus{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.Process(context.Background(), provider.CPX{}, cpxRequest("u1", "10", "same", "1"), nil)
			if res.Outcome != OutcomeCredited && res.Outcome != OutcomeAlreadyCredited {
				t.Errorf("unexpected outcome %s", res.Outcome)
			}
		}()
	}
	wg.Wait()

	if store.balances["u1"] != 10 || len(store.txs) != 1 {
		t.Fatalf("expected a single credit of 10, got balance %d with %d txs", store.balances["u1"], len(store.txs))
	}
}

func TestProcess_InformationalNeverTouchesStore(t *testing.T) {
	store := newMemStore()
	store.balances["u1"] = 100
	core, logs := observer.New(zapcore.InfoLevel)
	p := newTestProcessor(store, &recordingBus{}, nil, zap.New(core))

	res := p.Process(context.Background(), provider.CPX{}, cpxRequest("u1", "50", "tx9", "2"), nil)
	if res.Outcome != OutcomeAcknowledged || res.Outcome.StatusCode() != http.StatusOK {
		t.Fatalf("expected acknowledged 200, got %s", res.Outcome)
	}
	if store.calls != 0 {
		t.Fatalf("expected no store calls, got %d", store.calls)
	}
	if logs.FilterMessage("postback notice acknowledged").Len() != 1 {
		t.Fatal("expected the notice to be logged")
	}

	// A notice without amount or user is still acknowledged.
	res = p.Process(context.Background(), provider.CPX{}, cpxRequest("", "", "tx10", "2"), nil)
	if res.Outcome != OutcomeAcknowledged {
		t.Fatalf("expected acknowledged, got %s", res.Outcome)
	}
}

func TestProcess_InvalidNoticeSignatureRejected(t *testing.T) {
	store := newMemStore()
	p := newTestProcessor(store, &recordingBus{}, nil, nil)
	r := httptest.NewRequest(http.MethodGet, "/postbacks/cpx?trans_id=tx1&status=2&hash=deadbeef", nil)
	if res := p.Process(context.Background(), provider.CPX{}, r, nil); res.Outcome != OutcomeUnauthorized {
		t.Fatalf("expected unauthorized, got %s", res.Outcome)
	}
}

func TestProcess_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		amount string
	}{
		{"non-numeric amount", "u1", "abc"},
		{"fractional amount", "u1", "1.5"},
		{"zero amount", "u1", "0"},
		{"negative amount", "u1", "-5"},
		{"missing user", "", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.balances["u1"] = 1
			p := newTestProcessor(store, &recordingBus{}, nil, nil)
			res := p.Process(context.Background(), provider.CPX{}, cpxRequest(tt.user, tt.amount, "tx1", "1"), nil)
			if res.Outcome != OutcomeValidationError || res.Outcome.StatusCode() != http.StatusBadRequest {
				t.Fatalf("expected validation error 400, got %s", res.Outcome)
			}
			if store.calls != 0 {
				t.Fatal("store must not be called for invalid postbacks")
			}
		})
	}
}

func TestProcess_ParseError(t *testing.T) {
	p := newTestProcessor(newMemStore(), &recordingBus{}, nil, nil)
	r := httptest.NewRequest(http.MethodGet, "/postbacks/adgem?user_id=u1&amount=5&tx_id=t", nil)
	res := p.Process(context.Background(), provider.AdGem{}, r, nil)
	if res.Outcome != OutcomeParseError || res.Outcome.StatusCode() != http.StatusBadRequest {
		t.Fatalf("expected parse error 400, got %s", res.Outcome)
	}
}

func TestProcess_AdGemStaticToken(t *testing.T) {
	store := newMemStore()
	store.balances["u1"] = 0
	p := newTestProcessor(store, &recordingBus{}, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/postbacks/adgem?user_id=u1&amount=5&tx_id=t&auth=adgem-token", nil)
	if res := p.Process(context.Background(), provider.AdGem{}, r, nil); res.Outcome != OutcomeCredited {
		t.Fatalf("expected credited, got %s", res.Outcome)
	}
	r = httptest.NewRequest(http.MethodGet, "/postbacks/adgem?user_id=u1&amount=5&tx_id=t2&auth=adgem-tokeN", nil)
	if res := p.Process(context.Background(), provider.AdGem{}, r, nil); res.Outcome != OutcomeUnauthorized {
		t.Fatalf("expected unauthorized, got %s", res.Outcome)
	}
}

func TestProcess_MissingSecretFailsClosed(t *testing.T) {
	p := NewRewardProcessor(Options{Store: newMemStore()})
	if p.Enabled("cpx") {
		t.Fatal("expected cpx to be disabled without a secret")
	}
	if res := p.Process(context.Background(), provider.CPX{}, cpxRequest("u1", "5", "t", "1"), nil); res.Outcome != OutcomeUnauthorized {
		t.Fatalf("expected unauthorized, got %s", res.Outcome)
	}
}

func TestProcess_StoreFailureIsInternalError(t *testing.T) {
	store := newMemStore()
	store.err = context.DeadlineExceeded
	rec := &countingRecorder{}
	p := newTestProcessor(store, &recordingBus{}, rec, nil)

	res := p.Process(context.Background(), provider.CPX{}, cpxRequest("u1", "5", "t", "1"), nil)
	if res.Outcome != OutcomeInternalError || res.Outcome.StatusCode() != http.StatusInternalServerError {
		t.Fatalf("expected internal error 500, got %s", res.Outcome)
	}
	if strings.Contains(res.Outcome.Message(), "deadline") {
		t.Fatal("error detail must not leak into the response")
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "internal_error" {
		t.Fatalf("expected one internal_error observation, got %v", rec.outcomes)
	}
}

func TestProcess_PublishFailureKeepsCredit(t *testing.T) {
	store := newMemStore()
	store.balances["u1"] = 0
	p := newTestProcessor(store, &recordingBus{err: errors.New("bus down")}, nil, nil)
	if res := p.Process(context.Background(), provider.CPX{}, cpxRequest("u1", "5", "t", "1"), nil); res.Outcome != OutcomeCredited {
		t.Fatalf("expected credited despite bus failure, got %s", res.Outcome)
	}
}
