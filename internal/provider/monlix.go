package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"rewardgate/internal/model"
	"rewardgate/internal/signature"
)

const monlixSignatureHeader = "X-Monlix-Signature"

// Monlix posts a JSON body and signs the raw bytes, not a re-serialized form.
type Monlix struct{}

type monlixBody struct {
	UserID        string      `json:"user_id"`
	Reward        json.Number `json:"reward"`
	TransactionID string      `json:"transaction_id"`
	Event         string      `json:"event"`
}

func (Monlix) Name() string   { return "monlix" }
func (Monlix) Method() string { return http.MethodPost }

func (m Monlix) Parse(r *http.Request, body []byte) (*model.RewardEvent, error) {
	sig := strings.TrimSpace(r.Header.Get(monlixSignatureHeader))
	if sig == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, monlixSignatureHeader)
	}
	var b monlixBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(b.TransactionID) == "" {
		return nil, fmt.Errorf("%w: missing transaction_id", ErrMalformed)
	}
	return &model.RewardEvent{
		Provider:         m.Name(),
		UserID:           b.UserID,
		RawAmount:        b.Reward.String(),
		ExternalID:       b.TransactionID,
		Status:           strings.ToLower(b.Event),
		ClaimedSignature: sig,
		RawPayload:       body,
	}, nil
}

func (Monlix) Canonicalize(ev *model.RewardEvent, _ string) (signature.Algorithm, []byte) {
	return signature.HMACSHA256Hex, ev.RawPayload
}

func (Monlix) Classify(ev *model.RewardEvent) model.EventKind {
	if ev.Status == "chargeback" {
		return model.KindInformational
	}
	return model.KindReward
}
