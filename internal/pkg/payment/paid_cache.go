package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nusapay/qrisgate/internal/pkg/cache"
)

// PaidRecord is the short-lived witness that an invoice's credit was seen
// upstream. It lets repeated check calls short-circuit without re-polling.
type PaidRecord struct {
	InvoiceID string    `json:"invoice_id"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

// PaidCache stores paid-transaction records with a TTL.
type PaidCache interface {
	Put(record PaidRecord, ttl time.Duration) error
	Lookup(invoiceID string) (*PaidRecord, bool)
	Forget(invoiceID string) error
}

// redisPaidCache keeps records in Redis under paidtx:<invoice_id>.
type redisPaidCache struct{}

// NewPaidCache returns the Redis-backed cache used in production.
func NewPaidCache() PaidCache {
	return &redisPaidCache{}
}

func paidKey(invoiceID string) string {
	return fmt.Sprintf("paidtx:%s", invoiceID)
}

func (c *redisPaidCache) Put(record PaidRecord, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return cache.Set(context.Background(), paidKey(record.InvoiceID), raw, ttl)
}

func (c *redisPaidCache) Lookup(invoiceID string) (*PaidRecord, bool) {
	raw, err := cache.Get(context.Background(), paidKey(invoiceID))
	if err != nil {
		return nil, false
	}
	var record PaidRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, false
	}
	return &record, true
}

func (c *redisPaidCache) Forget(invoiceID string) error {
	return cache.Delete(context.Background(), paidKey(invoiceID))
}

// memoryPaidCache is the in-process implementation used by the tests; the
// service binary always wires the Redis-backed cache.
type memoryPaidCache struct {
	mu      sync.Mutex
	entries map[string]memoryPaidEntry
}

type memoryPaidEntry struct {
	record    PaidRecord
	expiresAt time.Time
}

// NewMemoryPaidCache returns a process-local cache.
func NewMemoryPaidCache() PaidCache {
	return &memoryPaidCache{entries: make(map[string]memoryPaidEntry)}
}

func (c *memoryPaidCache) Put(record PaidRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[record.InvoiceID] = memoryPaidEntry{record: record, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *memoryPaidCache) Lookup(invoiceID string) (*PaidRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[invoiceID]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, invoiceID)
		return nil, false
	}
	record := entry.record
	return &record, true
}

func (c *memoryPaidCache) Forget(invoiceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, invoiceID)
	return nil
}
