package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
)

// credentialsRepository implements the CredentialsRepository interface
type credentialsRepository struct {
	db *gorm.DB
}

// NewCredentialsRepository creates a new credentials repository instance
func NewCredentialsRepository(db *gorm.DB) CredentialsRepository {
	return &credentialsRepository{db: db}
}

func (r *credentialsRepository) Create(creds *models.MerchantCredentials) error {
	return r.db.Create(creds).Error
}

func (r *credentialsRepository) GetByMerchantID(merchantID string) (*models.MerchantCredentials, error) {
	var creds models.MerchantCredentials
	err := r.db.Where("merchant_id = ?", merchantID).First(&creds).Error
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

// GetByAPIKeyHash resolves a key fingerprint to its credential row and the
// environment the key belongs to, checking both columns in one query.
func (r *credentialsRepository) GetByAPIKeyHash(hash string) (*models.MerchantCredentials, string, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, "", gorm.ErrRecordNotFound
	}
	var creds models.MerchantCredentials
	err := r.db.Where("(api_key_hash = ? AND api_key_hash <> '') OR (sandbox_api_key_hash = ? AND sandbox_api_key_hash <> '')",
		trimmed, trimmed).First(&creds).Error
	if err != nil {
		return nil, "", err
	}
	env := creds.EnvForHash(trimmed)
	if env == "" {
		return nil, "", gorm.ErrRecordNotFound
	}
	return &creds, env, nil
}

func (r *credentialsRepository) Update(creds *models.MerchantCredentials) error {
	return r.db.Save(creds).Error
}
