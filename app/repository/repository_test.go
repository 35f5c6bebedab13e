package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/internal/pkg/database"
	"github.com/nusapay/qrisgate/internal/pkg/security"
)

func newTestRepositories(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(database.SetupTestDatabase())
}

func createMerchant(t *testing.T, repos *Repositories) *models.Merchant {
	t.Helper()

	merchant := &models.Merchant{
		Name:   "Warung Kopi",
		Email:  fmt.Sprintf("repo-%s@example.com", uuid.NewString()),
		Status: models.MERCHANT_STATUS_ACTIVE,
	}
	require.NoError(t, repos.Merchant.Create(merchant))
	return merchant
}

func createInvoice(t *testing.T, repos *Repositories, merchantID string) *models.Invoice {
	t.Helper()

	invoice := &models.Invoice{
		MerchantID:   merchantID,
		Env:          models.ENV_PRODUCTION,
		Principal:    "alice",
		BaseAmount:   10000,
		UniqueSuffix: 1,
		FinalAmount:  10001,
		Status:       models.INVOICE_STATUS_PENDING,
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, repos.Invoice.Create(invoice))
	return invoice
}

func TestCredentialsGetByAPIKeyHash(t *testing.T) {
	repos := newTestRepositories(t)
	merchant := createMerchant(t, repos)

	creds := &models.MerchantCredentials{MerchantID: merchant.ID}
	live, err := creds.Mint(models.ENV_PRODUCTION)
	require.NoError(t, err)
	test, err := creds.Mint(models.ENV_SANDBOX)
	require.NoError(t, err)
	require.NoError(t, repos.Credentials.Create(creds))

	found, env, err := repos.Credentials.GetByAPIKeyHash(security.HashAPIKey(live.APIKey))
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, found.MerchantID)
	assert.Equal(t, models.ENV_PRODUCTION, env)

	_, env, err = repos.Credentials.GetByAPIKeyHash(security.HashAPIKey(test.APIKey))
	require.NoError(t, err)
	assert.Equal(t, models.ENV_SANDBOX, env)

	_, _, err = repos.Credentials.GetByAPIKeyHash(security.HashAPIKey("sk_live_who"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, _, err = repos.Credentials.GetByAPIKeyHash("  ")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestInvoiceUpdateStatusIfGuards(t *testing.T) {
	repos := newTestRepositories(t)
	merchant := createMerchant(t, repos)
	invoice := createInvoice(t, repos, merchant.ID)

	paidAt := time.Now()
	ok, err := repos.Invoice.UpdateStatusIf(invoice.ID, models.INVOICE_STATUS_PENDING, models.INVOICE_STATUS_PAID, &paidAt)
	require.NoError(t, err)
	assert.True(t, ok)

	// The row moved on, so the same guarded transition loses.
	ok, err = repos.Invoice.UpdateStatusIf(invoice.ID, models.INVOICE_STATUS_PENDING, models.INVOICE_STATUS_EXPIRED, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repos.Invoice.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INVOICE_STATUS_PAID, stored.Status)
	require.NotNil(t, stored.PaidAt)
}

func TestInvoiceEventsListInOrder(t *testing.T) {
	repos := newTestRepositories(t)
	merchant := createMerchant(t, repos)
	invoice := createInvoice(t, repos, merchant.ID)

	for _, eventType := range []string{models.EVENT_PAYMENT_CREATED, models.EVENT_PAYMENT_PAID} {
		require.NoError(t, repos.Invoice.AppendEvent(&models.InvoiceEvent{
			InvoiceID: invoice.ID,
			EventType: eventType,
			Payload:   "{}",
		}))
	}

	events, err := repos.Invoice.ListEvents(invoice.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EVENT_PAYMENT_CREATED, events[0].EventType)
	assert.Equal(t, models.EVENT_PAYMENT_PAID, events[1].EventType)
}

func TestPendingClaimsAndSuffixQueries(t *testing.T) {
	repos := newTestRepositories(t)
	merchant := createMerchant(t, repos)

	now := time.Now()
	for i, suffix := range []int{3, 1, 7} {
		require.NoError(t, repos.Invoice.CreatePending(&models.PendingTransaction{
			InvoiceID:    uuid.NewString(),
			MerchantID:   merchant.ID,
			Principal:    "alice",
			UniqueSuffix: suffix,
			FinalAmount:  int64(10000 + suffix),
			ExpiresAt:    now.Add(time.Duration(i+1) * time.Minute),
		}))
	}

	// Duplicate suffix for the same principal violates the unique index.
	err := repos.Invoice.CreatePending(&models.PendingTransaction{
		InvoiceID:    uuid.NewString(),
		MerchantID:   merchant.ID,
		Principal:    "alice",
		UniqueSuffix: 3,
		FinalAmount:  10003,
		ExpiresAt:    now.Add(time.Minute),
	})
	assert.Error(t, err)

	// The same suffix under another principal is fine.
	require.NoError(t, repos.Invoice.CreatePending(&models.PendingTransaction{
		InvoiceID:    uuid.NewString(),
		MerchantID:   merchant.ID,
		Principal:    "bob",
		UniqueSuffix: 3,
		FinalAmount:  10003,
		ExpiresAt:    now.Add(time.Minute),
	}))

	suffixes, err := repos.Invoice.ClaimedSuffixes("alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 3, 7}, suffixes)
}

func TestNonceMarkUsedRejectsReplay(t *testing.T) {
	repos := newTestRepositories(t)
	merchant := createMerchant(t, repos)
	other := createMerchant(t, repos)

	expires := time.Now().Add(5 * time.Minute)
	require.NoError(t, repos.Nonce.MarkUsed(merchant.ID, "n-1", expires))
	assert.Error(t, repos.Nonce.MarkUsed(merchant.ID, "n-1", expires))

	// Nonces are scoped per merchant.
	require.NoError(t, repos.Nonce.MarkUsed(other.ID, "n-1", expires))

	used, err := repos.Nonce.IsUsed(merchant.ID, "n-1", time.Now())
	require.NoError(t, err)
	assert.True(t, used)

	// An expired row no longer counts as used.
	used, err = repos.Nonce.IsUsed(merchant.ID, "n-1", expires.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, used)
}

func TestWebhookClaimDueIsExclusive(t *testing.T) {
	repos := newTestRepositories(t)
	merchant := createMerchant(t, repos)

	now := time.Now()
	due := &models.WebhookDelivery{
		MerchantID:  merchant.ID,
		Env:         models.ENV_PRODUCTION,
		EventType:   models.EVENT_PAYMENT_PAID,
		Payload:     "{}",
		Status:      models.DELIVERY_STATUS_QUEUED,
		NextRetryAt: now.Add(-time.Second),
	}
	require.NoError(t, repos.Webhook.Enqueue(due))

	future := &models.WebhookDelivery{
		MerchantID:  merchant.ID,
		Env:         models.ENV_PRODUCTION,
		EventType:   models.EVENT_PAYMENT_PAID,
		Payload:     "{}",
		Status:      models.DELIVERY_STATUS_QUEUED,
		NextRetryAt: now.Add(time.Hour),
	}
	require.NoError(t, repos.Webhook.Enqueue(future))

	claimed, err := repos.Webhook.ClaimDue(now, 20)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)

	// The claim pushed next_retry_at forward, so a second pass sees nothing.
	claimed, err = repos.Webhook.ClaimDue(now, 20)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestAlertResolve(t *testing.T) {
	repos := newTestRepositories(t)
	merchant := createMerchant(t, repos)

	alert := &models.Alert{
		MerchantID: &merchant.ID,
		Type:       models.ALERT_TYPE_WEBHOOK_FAILED,
		Message:    "delivery d-1 exhausted its retries",
	}
	require.NoError(t, repos.Alert.Create(alert))

	open, err := repos.Alert.ListOpen(10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, repos.Alert.Resolve(alert.ID))

	open, err = repos.Alert.ListOpen(10)
	require.NoError(t, err)
	assert.Empty(t, open)
}
