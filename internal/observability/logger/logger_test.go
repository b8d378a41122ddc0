package logger

import (
	"net/url"
	"strings"
	"testing"
)

func TestMaskQuery(t *testing.T) {
	masked := MaskQuery("user_id=u1&amount=50&auth=supersecret&hash=abcdef123456")
	values, err := url.ParseQuery(masked)
	if err != nil {
		t.Fatalf("masked query must stay parseable: %v", err)
	}
	if values.Get("user_id") != "u1" || values.Get("amount") != "50" {
		t.Errorf("non-sensitive params must be kept, got %q", masked)
	}
	if values.Get("auth") != "*******cret" {
		t.Errorf("unexpected masked auth %q", values.Get("auth"))
	}
	if strings.Contains(masked, "abcdef12") {
		t.Errorf("hash leaked: %q", masked)
	}
}

func TestMaskQuery_ShortAndEmpty(t *testing.T) {
	if got := MaskQuery(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := MaskQuery("sig=abc"); got != "sig=%2A%2A%2A%2A" {
		t.Errorf("expected fully masked short value, got %q", got)
	}
}

func TestNew_UnknownLevelFallsBack(t *testing.T) {
	log, err := New("verbose")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(0) {
		t.Error("expected info level to be enabled")
	}
	if log.Core().Enabled(-1) {
		t.Error("expected debug level to be disabled")
	}
}
