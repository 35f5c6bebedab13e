package webhook

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/app/repository"
	"github.com/nusapay/qrisgate/internal/pkg/env"
	"github.com/nusapay/qrisgate/internal/pkg/security"
)

const (
	snippetLimit   = 500
	maxBackoffExp  = 10
	defaultBatch   = 20
	defaultRetries = 8
)

// Notifier is told about permanent delivery failures. The SMTP mailer
// implements it in production; tests plug in a recorder.
type Notifier interface {
	NotifyAlert(alert *models.Alert)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyAlert(*models.Alert) {}

// Dispatcher drains queued webhook deliveries: sign, POST, record the
// outcome, schedule the retry or give up with an Alert.
type Dispatcher struct {
	repos    *repository.Repositories
	client   *http.Client
	notifier Notifier

	batchSize   int
	maxAttempts int
	baseBackoff time.Duration
}

// NewDispatcher wires a dispatcher with its knobs from the environment.
func NewDispatcher(repos *repository.Repositories, notifier Notifier) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Dispatcher{
		repos: repos,
		client: &http.Client{
			Timeout: env.GetEnvDuration("WEBHOOK_TIMEOUT", 8*time.Second),
		},
		notifier:    notifier,
		batchSize:   env.GetEnvInt("WEBHOOK_BATCH_SIZE", defaultBatch),
		maxAttempts: env.GetEnvInt("WEBHOOK_MAX_ATTEMPTS", defaultRetries),
		baseBackoff: env.GetEnvDuration("WEBHOOK_BASE_BACKOFF", 60*time.Second),
	}
}

// ProcessBatch claims one batch of due deliveries and attempts each in turn.
// Returns the number of deliveries attempted.
func (d *Dispatcher) ProcessBatch(now time.Time) int {
	deliveries, err := d.repos.Webhook.ClaimDue(now, d.batchSize)
	if err != nil {
		log.Errorf("[Webhook] claim failed: %v", err)
		return 0
	}
	for i := range deliveries {
		d.attempt(&deliveries[i], now)
	}
	return len(deliveries)
}

func (d *Dispatcher) attempt(delivery *models.WebhookDelivery, now time.Time) {
	merchant, err := d.repos.Merchant.GetByID(delivery.MerchantID)
	if err != nil {
		log.Errorf("[Webhook] delivery %s: merchant %s not loadable: %v", delivery.ID, delivery.MerchantID, err)
		return
	}

	url, enabled := merchant.WebhookTarget(delivery.Env)
	if !enabled || url == "" {
		d.markImpossible(delivery, models.DELIVERY_REASON_DISABLED)
		return
	}

	creds, err := d.repos.Credentials.GetByMerchantID(delivery.MerchantID)
	if err != nil {
		d.markImpossible(delivery, models.DELIVERY_REASON_NO_CREDENTIALS)
		return
	}
	_, webhookSecret := creds.SecretsFor(delivery.Env)
	if webhookSecret == "" {
		d.markImpossible(delivery, models.DELIVERY_REASON_NO_CREDENTIALS)
		return
	}

	status, snippet, sendErr := d.send(url, webhookSecret, delivery, now)

	delivery.AttemptCount++
	if sendErr == nil && status >= 200 && status < 300 {
		deliveredAt := time.Now()
		delivery.Status = models.DELIVERY_STATUS_DELIVERED
		delivery.LastHTTPStatus = &status
		delivery.LastError = ""
		delivery.ResponseSnippet = snippet
		delivery.DeliveredAt = &deliveredAt
		if err := d.repos.Webhook.Update(delivery); err != nil {
			log.Errorf("[Webhook] delivery %s: persist success failed: %v", delivery.ID, err)
		}
		return
	}

	reason := "unexpected status"
	if sendErr != nil {
		reason = sendErr.Error()
	}
	if status > 0 {
		delivery.LastHTTPStatus = &status
	}
	delivery.LastError = truncate(reason, snippetLimit)
	delivery.ResponseSnippet = snippet

	if delivery.AttemptCount >= d.maxAttempts {
		delivery.Status = models.DELIVERY_STATUS_FAILED
		if err := d.repos.Webhook.Update(delivery); err != nil {
			log.Errorf("[Webhook] delivery %s: persist failure failed: %v", delivery.ID, err)
			return
		}
		d.raiseAlert(delivery, reason)
		return
	}

	delivery.NextRetryAt = now.Add(d.backoff(delivery.AttemptCount))
	if err := d.repos.Webhook.Update(delivery); err != nil {
		log.Errorf("[Webhook] delivery %s: persist retry failed: %v", delivery.ID, err)
	}
}

// send posts the payload with its signature headers. Payload bytes are stable
// across retries; only the timestamp and signature change.
func (d *Dispatcher) send(url, secret string, delivery *models.WebhookDelivery, now time.Time) (int, string, error) {
	ts := now.Unix()
	signature := security.SignWebhook(secret, ts, []byte(delivery.Payload))

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(delivery.Payload)))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", delivery.EventType)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
	return resp.StatusCode, string(body), nil
}

// markImpossible fails a delivery that can never succeed. No retry, no alert.
func (d *Dispatcher) markImpossible(delivery *models.WebhookDelivery, reason string) {
	delivery.Status = models.DELIVERY_STATUS_FAILED
	delivery.LastError = reason
	if err := d.repos.Webhook.Update(delivery); err != nil {
		log.Errorf("[Webhook] delivery %s: persist %s failed: %v", delivery.ID, reason, err)
	}
}

func (d *Dispatcher) raiseAlert(delivery *models.WebhookDelivery, reason string) {
	merchantID := delivery.MerchantID
	alert := &models.Alert{
		MerchantID: &merchantID,
		Type:       models.ALERT_TYPE_WEBHOOK_FAILED,
		Message: fmt.Sprintf("webhook %s for event %s failed after %d attempts: %s",
			delivery.ID, delivery.EventType, delivery.AttemptCount, truncate(reason, 200)),
	}
	if err := d.repos.Alert.Create(alert); err != nil {
		log.Errorf("[Webhook] delivery %s: alert create failed: %v", delivery.ID, err)
		return
	}
	d.notifier.NotifyAlert(alert)
}

// backoff returns base * 2^(attempt-1) with the exponent capped.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	exp := attempt - 1
	if exp > maxBackoffExp {
		exp = maxBackoffExp
	}
	return d.baseBackoff * time.Duration(int64(1)<<uint(exp))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
