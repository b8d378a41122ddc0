package logger

import (
	"net/url"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the JSON production logger at the given level ("debug",
// "info", "warn", "error"). Unknown levels fall back to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

var sensitiveParams = []string{
	"auth",
	"hash",
	"sig",
	"signature",
	"token",
	"secret",
}

// MaskQuery masks signature-bearing query parameters, preserving only the
// last 4 characters.
func MaskQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[unparseable]"
	}
	for key, vals := range values {
		if !isSensitive(key) {
			continue
		}
		for i := range vals {
			vals[i] = maskLast4(vals[i])
		}
	}
	return values.Encode()
}

func isSensitive(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveParams {
		if key == s {
			return true
		}
	}
	return false
}

func maskLast4(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
