// Package provider translates each ad network's postback format into a
// model.RewardEvent and tells the processor how that network signs it.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"rewardgate/internal/model"
	"rewardgate/internal/signature"
)

var (
	ErrMalformed     = errors.New("malformed postback")
	ErrInvalidAmount = errors.New("amount must be a positive integer")
)

// Adapter is implemented once per network. Parse must not consult secrets;
// Canonicalize rebuilds the exact bytes the network signed.
type Adapter interface {
	Name() string
	Method() string
	Parse(r *http.Request, body []byte) (*model.RewardEvent, error)
	Canonicalize(ev *model.RewardEvent, secret string) (signature.Algorithm, []byte)
	Classify(ev *model.RewardEvent) model.EventKind
}

// ParseAmount accepts base-10 integers greater than zero and nothing else.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidAmount
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidAmount
	}
	return n, nil
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// All returns adapters ordered by name so route registration is stable.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Defaults returns every supported network. baseURL is the externally
// visible scheme and host used by networks that sign the full callback URL.
func Defaults(baseURL string) []Adapter {
	return []Adapter{
		AdGem{},
		CPX{},
		BitLabs{BaseURL: baseURL},
		Ayet{},
		Lootably{},
		Monlix{},
	}
}

func require(q url.Values, names ...string) error {
	for _, name := range names {
		if strings.TrimSpace(q.Get(name)) == "" {
			return fmt.Errorf("%w: missing %s", ErrMalformed, name)
		}
	}
	return nil
}

// stripParam removes name from a raw query without re-encoding the rest, so
// the remaining bytes match what the network signed.
func stripParam(rawQuery, name string) string {
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		key, _, _ := strings.Cut(p, "=")
		if key == name || p == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "&")
}

func parseQuery(raw []byte) (url.Values, error) {
	return url.ParseQuery(string(raw))
}
