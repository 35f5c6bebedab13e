package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nusapay/qrisgate/internal/pkg/security"
)

func TestMintProductionKeys(t *testing.T) {
	creds := &MerchantCredentials{MerchantID: "m-1"}

	minted, err := creds.Mint(ENV_PRODUCTION)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(minted.APIKey, "sk_live_"))
	assert.True(t, strings.HasPrefix(minted.APISecret, "sksec_"))
	assert.True(t, strings.HasPrefix(minted.WebhookSecret, "whsec_"))

	// Only the fingerprint and display prefix land on the row.
	assert.Equal(t, security.HashAPIKey(minted.APIKey), creds.APIKeyHash)
	assert.Equal(t, minted.APIKey[:12], creds.APIKeyPrefix)
	assert.NotContains(t, creds.APIKeyHash, minted.APIKey)

	require.NotNil(t, creds.KeyCreatedAt)
	assert.Nil(t, creds.KeyRotatedAt)

	// Sandbox columns stay empty.
	assert.Empty(t, creds.SandboxAPIKeyHash)
	assert.Nil(t, creds.SandboxKeyCreatedAt)
}

func TestMintSandboxKeys(t *testing.T) {
	creds := &MerchantCredentials{MerchantID: "m-1"}

	minted, err := creds.Mint(ENV_SANDBOX)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(minted.APIKey, "sk_test_"))
	assert.Equal(t, security.HashAPIKey(minted.APIKey), creds.SandboxAPIKeyHash)
	require.NotNil(t, creds.SandboxKeyCreatedAt)
	assert.Nil(t, creds.SandboxKeyRotatedAt)
	assert.Empty(t, creds.APIKeyHash)
}

func TestMintRotationStampsRotatedAt(t *testing.T) {
	creds := &MerchantCredentials{MerchantID: "m-1"}

	first, err := creds.Mint(ENV_PRODUCTION)
	require.NoError(t, err)
	createdAt := creds.KeyCreatedAt

	second, err := creds.Mint(ENV_PRODUCTION)
	require.NoError(t, err)

	assert.NotEqual(t, first.APIKey, second.APIKey)
	assert.Equal(t, security.HashAPIKey(second.APIKey), creds.APIKeyHash)
	assert.Equal(t, createdAt, creds.KeyCreatedAt)
	require.NotNil(t, creds.KeyRotatedAt)
}

func TestSecretsFor(t *testing.T) {
	creds := &MerchantCredentials{
		APISecret:            "live-signing",
		WebhookSecret:        "live-webhook",
		SandboxAPISecret:     "test-signing",
		SandboxWebhookSecret: "test-webhook",
	}

	signing, webhook := creds.SecretsFor(ENV_PRODUCTION)
	assert.Equal(t, "live-signing", signing)
	assert.Equal(t, "live-webhook", webhook)

	signing, webhook = creds.SecretsFor(ENV_SANDBOX)
	assert.Equal(t, "test-signing", signing)
	assert.Equal(t, "test-webhook", webhook)
}

func TestEnvForHash(t *testing.T) {
	creds := &MerchantCredentials{}

	live, err := creds.Mint(ENV_PRODUCTION)
	require.NoError(t, err)
	test, err := creds.Mint(ENV_SANDBOX)
	require.NoError(t, err)

	assert.Equal(t, ENV_PRODUCTION, creds.EnvForHash(security.HashAPIKey(live.APIKey)))
	assert.Equal(t, ENV_SANDBOX, creds.EnvForHash(security.HashAPIKey(test.APIKey)))
	assert.Equal(t, "", creds.EnvForHash(security.HashAPIKey("sk_live_unknown")))
	assert.Equal(t, "", (&MerchantCredentials{}).EnvForHash(""))
}
