package models

import (
	"time"

	"github.com/nusapay/qrisgate/internal/pkg/security"
)

// MerchantCredentials holds the per-environment secret material for one
// merchant. Raw API keys are never stored; lookups go through the SHA-256
// fingerprint.
type MerchantCredentials struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	MerchantID string `gorm:"type:varchar(36);uniqueIndex;not null" json:"merchant_id"`

	APIKeyHash    string     `gorm:"type:varchar(64);index" json:"-"`
	APIKeyPrefix  string     `gorm:"type:varchar(16)" json:"api_key_prefix"`
	APISecret     string     `gorm:"type:varchar(64)" json:"-"`
	WebhookSecret string     `gorm:"type:varchar(64)" json:"-"`
	KeyCreatedAt  *time.Time `gorm:"type:timestamp;default:null" json:"key_created_at"`
	KeyRotatedAt  *time.Time `gorm:"type:timestamp;default:null" json:"key_rotated_at"`

	SandboxAPIKeyHash    string     `gorm:"type:varchar(64);index" json:"-"`
	SandboxAPIKeyPrefix  string     `gorm:"type:varchar(16)" json:"sandbox_api_key_prefix"`
	SandboxAPISecret     string     `gorm:"type:varchar(64)" json:"-"`
	SandboxWebhookSecret string     `gorm:"type:varchar(64)" json:"-"`
	SandboxKeyCreatedAt  *time.Time `gorm:"type:timestamp;default:null" json:"sandbox_key_created_at"`
	SandboxKeyRotatedAt  *time.Time `gorm:"type:timestamp;default:null" json:"sandbox_key_rotated_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MintedKeys carries the raw secrets of a mint or rotation. This is the only
// moment the raw API key exists; it is returned to the caller and dropped.
type MintedKeys struct {
	APIKey        string
	APISecret     string
	WebhookSecret string
}

// Mint issues a fresh key set for env and writes hash, prefix and secrets
// into the matching column group. Existing material for the other env is
// untouched.
func (mc *MerchantCredentials) Mint(env string) (*MintedKeys, error) {
	keyEnv := security.EnvProduction
	if env == ENV_SANDBOX {
		keyEnv = security.EnvSandbox
	}

	apiKey, err := security.GenerateKey(security.RoleAPIKey, keyEnv)
	if err != nil {
		return nil, err
	}
	apiSecret, err := security.GenerateKey(security.RoleSigningSecret, keyEnv)
	if err != nil {
		return nil, err
	}
	webhookSecret, err := security.GenerateKey(security.RoleWebhookSecret, keyEnv)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if env == ENV_SANDBOX {
		rotated := mc.SandboxAPIKeyHash != ""
		mc.SandboxAPIKeyHash = security.HashAPIKey(apiKey)
		mc.SandboxAPIKeyPrefix = security.KeyPrefix(apiKey)
		mc.SandboxAPISecret = apiSecret
		mc.SandboxWebhookSecret = webhookSecret
		if rotated {
			mc.SandboxKeyRotatedAt = &now
		} else {
			mc.SandboxKeyCreatedAt = &now
		}
	} else {
		rotated := mc.APIKeyHash != ""
		mc.APIKeyHash = security.HashAPIKey(apiKey)
		mc.APIKeyPrefix = security.KeyPrefix(apiKey)
		mc.APISecret = apiSecret
		mc.WebhookSecret = webhookSecret
		if rotated {
			mc.KeyRotatedAt = &now
		} else {
			mc.KeyCreatedAt = &now
		}
	}

	return &MintedKeys{APIKey: apiKey, APISecret: apiSecret, WebhookSecret: webhookSecret}, nil
}

// SecretsFor returns the signing and webhook secrets for an environment.
func (mc *MerchantCredentials) SecretsFor(env string) (signing, webhook string) {
	if env == ENV_SANDBOX {
		return mc.SandboxAPISecret, mc.SandboxWebhookSecret
	}
	return mc.APISecret, mc.WebhookSecret
}

// EnvForHash reports which environment a fingerprint belongs to, or "" when
// neither matches.
func (mc *MerchantCredentials) EnvForHash(hash string) string {
	switch {
	case mc.APIKeyHash != "" && mc.APIKeyHash == hash:
		return ENV_PRODUCTION
	case mc.SandboxAPIKeyHash != "" && mc.SandboxAPIKeyHash == hash:
		return ENV_SANDBOX
	}
	return ""
}
