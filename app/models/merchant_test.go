package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMerchantCanonicalizesEmail(t *testing.T) {
	merchant, err := CreateMerchant("Warung Kopi", "  Owner@Example.COM ")
	require.NoError(t, err)

	assert.Equal(t, "owner@example.com", merchant.Email)
	assert.Equal(t, MERCHANT_STATUS_UNVERIFIED, merchant.Status)
	assert.Equal(t, 70, merchant.FeeBps)
}

func TestCreateMerchantValidation(t *testing.T) {
	_, err := CreateMerchant("ab", "owner@example.com")
	assert.Error(t, err, "name below the minimum length")

	_, err = CreateMerchant("Warung Kopi", "not-an-email")
	assert.Error(t, err)

	_, err = CreateMerchant("", "")
	assert.Error(t, err)
}

func TestMerchantBeforeCreate(t *testing.T) {
	merchant := &Merchant{Name: "Warung Kopi", Email: " MIXED@Case.Dev "}
	require.NoError(t, merchant.BeforeCreate(nil))

	assert.NotEmpty(t, merchant.ID)
	assert.Equal(t, "mixed@case.dev", merchant.Email)

	// An explicit ID survives the hook.
	fixed := &Merchant{ID: "keep-me", Email: "a@b.co"}
	require.NoError(t, fixed.BeforeCreate(nil))
	assert.Equal(t, "keep-me", fixed.ID)
}

func TestMerchantIsActive(t *testing.T) {
	for _, status := range []string{
		MERCHANT_STATUS_UNVERIFIED,
		MERCHANT_STATUS_SUBMITTED,
		MERCHANT_STATUS_REJECTED,
		MERCHANT_STATUS_SUSPENDED,
	} {
		assert.False(t, (&Merchant{Status: status}).IsActive(), status)
	}
	assert.True(t, (&Merchant{Status: MERCHANT_STATUS_ACTIVE}).IsActive())
}

func TestMerchantWebhookTarget(t *testing.T) {
	merchant := &Merchant{
		WebhookURL:        "https://live.example.com/hooks",
		WebhookEnabled:    true,
		SandboxWebhookURL: "https://staging.example.com/hooks",
		SandboxWebhookOn:  false,
	}

	url, enabled := merchant.WebhookTarget(ENV_PRODUCTION)
	assert.Equal(t, "https://live.example.com/hooks", url)
	assert.True(t, enabled)

	url, enabled = merchant.WebhookTarget(ENV_SANDBOX)
	assert.Equal(t, "https://staging.example.com/hooks", url)
	assert.False(t, enabled)
}

func TestMerchantIPWhitelistEntries(t *testing.T) {
	assert.Nil(t, (&Merchant{}).IPWhitelistEntries())
	assert.Nil(t, (&Merchant{IPWhitelist: "  "}).IPWhitelistEntries())

	merchant := &Merchant{IPWhitelist: "10.0.0.0/8, 192.168.1.7 ,, 2001:db8::1"}
	assert.Equal(t,
		[]string{"10.0.0.0/8", "192.168.1.7", "2001:db8::1"},
		merchant.IPWhitelistEntries())
}
