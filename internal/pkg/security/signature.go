package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// CanonicalRequest builds the string covered by a gateway request signature.
// The method is uppercased; path must include the raw query string; body is
// the exact request bytes (empty when there is no body).
func CanonicalRequest(method, pathWithQuery, timestamp, nonce string, body []byte) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(pathWithQuery)
	b.WriteByte('\n')
	b.WriteString(timestamp)
	b.WriteByte('\n')
	b.WriteString(nonce)
	b.WriteByte('\n')
	b.Write(body)
	return b.String()
}

// SignRequest computes the hex HMAC-SHA256 of a canonical request string.
func SignRequest(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRequest compares a presented hex signature against the expected one
// in constant time. The presented value is decoded first so that casing does
// not matter.
func VerifyRequest(secret, canonical, presented string) bool {
	got, err := hex.DecodeString(presented)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hmac.Equal(got, mac.Sum(nil))
}

// SignWebhook computes the signature for an outbound webhook body. The signed
// material is "<timestamp>.<payload>" so receivers can bind the timestamp.
func SignWebhook(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks a webhook signature in constant time.
func VerifyWebhook(secret string, timestamp int64, payload []byte, presented string) bool {
	got, err := hex.DecodeString(presented)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(SignWebhook(secret, timestamp, payload))
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}
