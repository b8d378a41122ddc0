package provider

import (
	"net/http"
	"strings"

	"rewardgate/internal/model"
	"rewardgate/internal/signature"
)

// AdGem authenticates with a static inbound token in the auth parameter.
type AdGem struct{}

func (AdGem) Name() string   { return "adgem" }
func (AdGem) Method() string { return http.MethodGet }

func (a AdGem) Parse(r *http.Request, _ []byte) (*model.RewardEvent, error) {
	q := r.URL.Query()
	if err := require(q, "auth"); err != nil {
		return nil, err
	}
	// auth is the shared secret itself and must never reach storage.
	return &model.RewardEvent{
		Provider:         a.Name(),
		UserID:           q.Get("user_id"),
		RawAmount:        q.Get("amount"),
		ExternalID:       q.Get("tx_id"),
		ClaimedSignature: q.Get("auth"),
		RawPayload:       []byte(stripParam(r.URL.RawQuery, "auth")),
	}, nil
}

func (AdGem) Canonicalize(_ *model.RewardEvent, _ string) (signature.Algorithm, []byte) {
	return signature.StaticToken, nil
}

func (AdGem) Classify(*model.RewardEvent) model.EventKind { return model.KindReward }

// CPX signs md5("{trans_id}-{secret}"). status 2 marks a reversed survey.
type CPX struct{}

func (CPX) Name() string   { return "cpx" }
func (CPX) Method() string { return http.MethodGet }

func (c CPX) Parse(r *http.Request, _ []byte) (*model.RewardEvent, error) {
	q := r.URL.Query()
	if err := require(q, "hash", "trans_id"); err != nil {
		return nil, err
	}
	return &model.RewardEvent{
		Provider:         c.Name(),
		UserID:           q.Get("user_id"),
		RawAmount:        q.Get("amount_local"),
		ExternalID:       q.Get("trans_id"),
		Status:           q.Get("status"),
		ClaimedSignature: q.Get("hash"),
		RawPayload:       []byte(r.URL.RawQuery),
	}, nil
}

func (CPX) Canonicalize(ev *model.RewardEvent, secret string) (signature.Algorithm, []byte) {
	return signature.MD5Hex, []byte(ev.ExternalID + "-" + secret)
}

func (CPX) Classify(ev *model.RewardEvent) model.EventKind {
	if ev.Status == "2" {
		return model.KindInformational
	}
	return model.KindReward
}

// BitLabs appends an HMAC-SHA1 of the full callback URL as the final hash
// parameter.
type BitLabs struct {
	BaseURL string
}

func (BitLabs) Name() string   { return "bitlabs" }
func (BitLabs) Method() string { return http.MethodGet }

func (b BitLabs) Parse(r *http.Request, _ []byte) (*model.RewardEvent, error) {
	q := r.URL.Query()
	if err := require(q, "hash", "tx"); err != nil {
		return nil, err
	}
	return &model.RewardEvent{
		Provider:         b.Name(),
		UserID:           q.Get("uid"),
		RawAmount:        q.Get("val"),
		ExternalID:       q.Get("tx"),
		Status:           strings.ToUpper(q.Get("type")),
		ClaimedSignature: q.Get("hash"),
		URL:              strings.TrimRight(b.BaseURL, "/") + r.URL.EscapedPath() + "?" + stripParam(r.URL.RawQuery, "hash"),
		RawPayload:       []byte(r.URL.RawQuery),
	}, nil
}

func (BitLabs) Canonicalize(ev *model.RewardEvent, _ string) (signature.Algorithm, []byte) {
	return signature.HMACSHA1Hex, []byte(ev.URL)
}

func (BitLabs) Classify(ev *model.RewardEvent) model.EventKind {
	if ev.Status == "RECONCILIATION" {
		return model.KindInformational
	}
	return model.KindReward
}

// Ayet sends an HMAC-SHA256 of the sorted, url-encoded query in a header.
type Ayet struct{}

const ayetSignatureHeader = "X-Ayetstudios-Security-Hash"

func (Ayet) Name() string   { return "ayet" }
func (Ayet) Method() string { return http.MethodGet }

func (a Ayet) Parse(r *http.Request, _ []byte) (*model.RewardEvent, error) {
	q := r.URL.Query()
	if err := require(q, "transaction_id"); err != nil {
		return nil, err
	}
	sig := strings.TrimSpace(r.Header.Get(ayetSignatureHeader))
	if sig == "" {
		return nil, ErrMalformed
	}
	status := ""
	if q.Get("is_chargeback") == "1" {
		status = "chargeback"
	}
	return &model.RewardEvent{
		Provider:         a.Name(),
		UserID:           q.Get("uid"),
		RawAmount:        q.Get("currency_amount"),
		ExternalID:       q.Get("transaction_id"),
		Status:           status,
		ClaimedSignature: sig,
		RawPayload:       []byte(r.URL.RawQuery),
	}, nil
}

func (Ayet) Canonicalize(ev *model.RewardEvent, _ string) (signature.Algorithm, []byte) {
	// url.Values.Encode sorts by key.
	q, err := parseQuery(ev.RawPayload)
	if err != nil {
		return signature.HMACSHA256Hex, nil
	}
	return signature.HMACSHA256Hex, []byte(q.Encode())
}

func (Ayet) Classify(ev *model.RewardEvent) model.EventKind {
	if ev.Status == "chargeback" {
		return model.KindInformational
	}
	return model.KindReward
}

// Lootably signs a fixed subset of fields and sends it base64url-encoded
// in a header.
type Lootably struct{}

const lootablySignatureHeader = "X-Lootably-Signature"

func (Lootably) Name() string   { return "lootably" }
func (Lootably) Method() string { return http.MethodGet }

func (l Lootably) Parse(r *http.Request, _ []byte) (*model.RewardEvent, error) {
	q := r.URL.Query()
	if err := require(q, "click_id"); err != nil {
		return nil, err
	}
	sig := strings.TrimSpace(r.Header.Get(lootablySignatureHeader))
	if sig == "" {
		return nil, ErrMalformed
	}
	return &model.RewardEvent{
		Provider:         l.Name(),
		UserID:           q.Get("user_id"),
		RawAmount:        q.Get("amount"),
		ExternalID:       q.Get("click_id"),
		ClaimedSignature: sig,
		RawPayload:       []byte(r.URL.RawQuery),
	}, nil
}

func (Lootably) Canonicalize(ev *model.RewardEvent, _ string) (signature.Algorithm, []byte) {
	return signature.HMACSHA256Base64URL, []byte(ev.UserID + ":" + ev.ExternalID + ":" + ev.RawAmount)
}

func (Lootably) Classify(*model.RewardEvent) model.EventKind { return model.KindReward }
