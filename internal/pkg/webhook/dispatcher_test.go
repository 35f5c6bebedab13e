package webhook

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/app/repository"
	"github.com/nusapay/qrisgate/internal/pkg/database"
	"github.com/nusapay/qrisgate/internal/pkg/security"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (n *recordingNotifier) NotifyAlert(alert *models.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *repository.Repositories, *recordingNotifier) {
	t.Helper()

	repos := repository.NewRepositories(database.SetupTestDatabase())
	notifier := &recordingNotifier{}
	return NewDispatcher(repos, notifier), repos, notifier
}

func seedMerchantWithHook(t *testing.T, repos *repository.Repositories, url string) (*models.Merchant, string) {
	t.Helper()

	merchant := &models.Merchant{
		Name:           "Warung Makmur",
		Email:          fmt.Sprintf("hooks-%s@example.com", uuid.NewString()),
		Status:         models.MERCHANT_STATUS_ACTIVE,
		WebhookURL:     url,
		WebhookEnabled: url != "",
	}
	require.NoError(t, repos.Merchant.Create(merchant))

	creds := &models.MerchantCredentials{MerchantID: merchant.ID}
	minted, err := creds.Mint(models.ENV_PRODUCTION)
	require.NoError(t, err)
	require.NoError(t, repos.Credentials.Create(creds))

	return merchant, minted.WebhookSecret
}

func enqueue(t *testing.T, repos *repository.Repositories, merchantID, payload string) *models.WebhookDelivery {
	t.Helper()

	delivery := &models.WebhookDelivery{
		MerchantID:  merchantID,
		Env:         models.ENV_PRODUCTION,
		EventType:   models.EVENT_PAYMENT_PAID,
		Payload:     payload,
		Status:      models.DELIVERY_STATUS_QUEUED,
		NextRetryAt: time.Now().Add(-time.Second),
	}
	require.NoError(t, repos.Webhook.Enqueue(delivery))
	return delivery
}

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	var gotBody []byte
	var gotEvent, gotTimestamp, gotSignature string
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotEvent = r.Header.Get("X-Event-Type")
		gotTimestamp = r.Header.Get("X-Webhook-Timestamp")
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}))
	defer receiver.Close()

	dispatcher, repos, _ := newTestDispatcher(t)
	merchant, secret := seedMerchantWithHook(t, repos, receiver.URL)
	delivery := enqueue(t, repos, merchant.ID, `{"invoice_id":"inv-1"}`)

	attempted := dispatcher.ProcessBatch(time.Now())
	assert.Equal(t, 1, attempted)

	assert.Equal(t, `{"invoice_id":"inv-1"}`, string(gotBody))
	assert.Equal(t, models.EVENT_PAYMENT_PAID, gotEvent)

	ts, err := strconv.ParseInt(gotTimestamp, 10, 64)
	require.NoError(t, err)
	assert.True(t, security.VerifyWebhook(secret, ts, gotBody, gotSignature))

	stored, err := repos.Webhook.GetByID(delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DELIVERY_STATUS_DELIVERED, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastHTTPStatus)
	assert.Equal(t, http.StatusOK, *stored.LastHTTPStatus)
	assert.Equal(t, "ok", stored.ResponseSnippet)
	require.NotNil(t, stored.DeliveredAt)
}

func TestDispatcherSchedulesExponentialRetries(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer receiver.Close()

	dispatcher, repos, notifier := newTestDispatcher(t)
	merchant, _ := seedMerchantWithHook(t, repos, receiver.URL)
	delivery := enqueue(t, repos, merchant.ID, `{}`)

	now := time.Now()
	expected := []time.Duration{
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
	}
	for attempt, want := range expected {
		dispatcher.ProcessBatch(now)

		stored, err := repos.Webhook.GetByID(delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DELIVERY_STATUS_QUEUED, stored.Status)
		assert.Equal(t, attempt+1, stored.AttemptCount)
		assert.WithinDuration(t, now.Add(want), stored.NextRetryAt, time.Second)

		// Make the row due again for the next round.
		now = stored.NextRetryAt.Add(time.Second)
	}
	assert.Empty(t, notifier.alerts)
}

func TestDispatcherFailsPermanentlyAndAlerts(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer receiver.Close()

	dispatcher, repos, notifier := newTestDispatcher(t)
	dispatcher.maxAttempts = 2
	merchant, _ := seedMerchantWithHook(t, repos, receiver.URL)
	delivery := enqueue(t, repos, merchant.ID, `{}`)

	now := time.Now()
	dispatcher.ProcessBatch(now)

	stored, err := repos.Webhook.GetByID(delivery.ID)
	require.NoError(t, err)
	require.Equal(t, models.DELIVERY_STATUS_QUEUED, stored.Status)

	dispatcher.ProcessBatch(stored.NextRetryAt.Add(time.Second))

	stored, err = repos.Webhook.GetByID(delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DELIVERY_STATUS_FAILED, stored.Status)
	assert.Equal(t, 2, stored.AttemptCount)

	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, models.ALERT_TYPE_WEBHOOK_FAILED, alert.Type)
	require.NotNil(t, alert.MerchantID)
	assert.Equal(t, merchant.ID, *alert.MerchantID)

	open, err := repos.Alert.ListOpen(10)
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestDispatcherDisabledTargetFailsWithoutAlert(t *testing.T) {
	dispatcher, repos, notifier := newTestDispatcher(t)
	merchant, _ := seedMerchantWithHook(t, repos, "")
	delivery := enqueue(t, repos, merchant.ID, `{}`)

	dispatcher.ProcessBatch(time.Now())

	stored, err := repos.Webhook.GetByID(delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DELIVERY_STATUS_FAILED, stored.Status)
	assert.Equal(t, models.DELIVERY_REASON_DISABLED, stored.LastError)
	assert.Zero(t, stored.AttemptCount)
	assert.Empty(t, notifier.alerts)
}

func TestDispatcherMissingCredentialsFailsWithoutAlert(t *testing.T) {
	dispatcher, repos, notifier := newTestDispatcher(t)

	merchant := &models.Merchant{
		Name:           "No Keys Yet",
		Email:          fmt.Sprintf("nokeys-%s@example.com", uuid.NewString()),
		Status:         models.MERCHANT_STATUS_ACTIVE,
		WebhookURL:     "https://example.com/hooks",
		WebhookEnabled: true,
	}
	require.NoError(t, repos.Merchant.Create(merchant))
	delivery := enqueue(t, repos, merchant.ID, `{}`)

	dispatcher.ProcessBatch(time.Now())

	stored, err := repos.Webhook.GetByID(delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DELIVERY_STATUS_FAILED, stored.Status)
	assert.Equal(t, models.DELIVERY_REASON_NO_CREDENTIALS, stored.LastError)
	assert.Empty(t, notifier.alerts)
}

func TestDispatcherTruncatesResponseSnippet(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 100; i++ {
			fmt.Fprint(w, "0123456789")
		}
	}))
	defer receiver.Close()

	dispatcher, repos, _ := newTestDispatcher(t)
	merchant, _ := seedMerchantWithHook(t, repos, receiver.URL)
	delivery := enqueue(t, repos, merchant.ID, `{}`)

	dispatcher.ProcessBatch(time.Now())

	stored, err := repos.Webhook.GetByID(delivery.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ResponseSnippet, snippetLimit)
}

func TestBackoffCapsExponent(t *testing.T) {
	d := &Dispatcher{baseBackoff: time.Second}
	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 2*time.Second, d.backoff(2))
	assert.Equal(t, 1024*time.Second, d.backoff(11))
	// Attempts past the cap reuse the capped exponent.
	assert.Equal(t, 1024*time.Second, d.backoff(50))
}
