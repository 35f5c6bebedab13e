package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRequest(t *testing.T) {
	canonical := CanonicalRequest("post", "/v1/invoices?limit=10", "1700000000", "n-1", []byte(`{"amount":100}`))
	assert.Equal(t, "POST\n/v1/invoices?limit=10\n1700000000\nn-1\n{\"amount\":100}", canonical)

	// Empty body leaves the last line empty.
	canonical = CanonicalRequest("GET", "/v1/health", "1700000000", "n-2", nil)
	assert.True(t, strings.HasSuffix(canonical, "\n"))
}

func TestSignVerifyRequest(t *testing.T) {
	canonical := CanonicalRequest("POST", "/v1/invoices", "1700000000", "abc", []byte("{}"))
	sig := SignRequest("sksec_secret", canonical)
	require.Len(t, sig, 64)

	assert.True(t, VerifyRequest("sksec_secret", canonical, sig))
	assert.True(t, VerifyRequest("sksec_secret", canonical, strings.ToUpper(sig)))
	assert.False(t, VerifyRequest("sksec_other", canonical, sig))
	assert.False(t, VerifyRequest("sksec_secret", canonical+"x", sig))
	assert.False(t, VerifyRequest("sksec_secret", canonical, "not-hex"))
	assert.False(t, VerifyRequest("sksec_secret", canonical, ""))
}

func TestSignWebhook(t *testing.T) {
	payload := []byte(`{"event_type":"payment.paid"}`)
	sig := SignWebhook("whsec_secret", 1700000000, payload)
	require.Len(t, sig, 64)

	// Covers the joined "<ts>.<payload>" form.
	assert.Equal(t, SignRequest("whsec_secret", "1700000000."+string(payload)), sig)

	assert.True(t, VerifyWebhook("whsec_secret", 1700000000, payload, sig))
	assert.False(t, VerifyWebhook("whsec_secret", 1700000001, payload, sig))
	assert.False(t, VerifyWebhook("whsec_other", 1700000000, payload, sig))
	assert.False(t, VerifyWebhook("whsec_secret", 1700000000, []byte("{}"), sig))
}
