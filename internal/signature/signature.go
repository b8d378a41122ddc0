// Package signature computes and checks the authenticity tokens that ad
// networks attach to their postbacks.
package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

type Algorithm int

const (
	// StaticToken compares the claimed token against the shared secret itself.
	StaticToken Algorithm = iota + 1
	// MD5Hex digests a payload that already embeds the secret.
	MD5Hex
	HMACSHA1Hex
	HMACSHA256Hex
	// HMACSHA256Base64URL encodes the keyed hash as base64url without padding.
	HMACSHA256Base64URL
)

func (a Algorithm) String() string {
	switch a {
	case StaticToken:
		return "static-token"
	case MD5Hex:
		return "md5-hex"
	case HMACSHA1Hex:
		return "hmac-sha1-hex"
	case HMACSHA256Hex:
		return "hmac-sha256-hex"
	case HMACSHA256Base64URL:
		return "hmac-sha256-base64url"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

var ErrUnknownAlgorithm = errors.New("unknown signature algorithm")

// Compute returns the token a provider holding secret would send for payload.
func Compute(alg Algorithm, secret string, payload []byte) (string, error) {
	switch alg {
	case StaticToken:
		return secret, nil
	case MD5Hex:
		sum := md5.Sum(payload)
		return hex.EncodeToString(sum[:]), nil
	case HMACSHA1Hex:
		return hex.EncodeToString(keyed(sha1.New, secret, payload)), nil
	case HMACSHA256Hex:
		return hex.EncodeToString(keyed(sha256.New, secret, payload)), nil
	case HMACSHA256Base64URL:
		return base64.RawURLEncoding.EncodeToString(keyed(sha256.New, secret, payload)), nil
	default:
		return "", ErrUnknownAlgorithm
	}
}

// Verify reports whether claimed matches the expected token. The comparison
// runs in constant time over the token bytes. Hex tokens are matched
// case-insensitively.
func Verify(alg Algorithm, secret string, payload []byte, claimed string) bool {
	if secret == "" || claimed == "" {
		return false
	}
	expected, err := Compute(alg, secret, payload)
	if err != nil {
		return false
	}
	if isHex(alg) {
		claimed = strings.ToLower(claimed)
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}

func keyed(h func() hash.Hash, secret string, payload []byte) []byte {
	mac := hmac.New(h, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

func isHex(alg Algorithm) bool {
	return alg == MD5Hex || alg == HMACSHA1Hex || alg == HMACSHA256Hex
}
