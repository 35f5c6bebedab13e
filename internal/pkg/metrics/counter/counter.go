package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nusapay/qrisgate/internal/pkg/cache"
	"github.com/nusapay/qrisgate/internal/pkg/database"
)

// Counter kinds. Each maps to a Redis hash keyed by merchant id and a column
// on the merchants table the pending increments are flushed into.
const (
	InvoicesCreated = "merchant:counters:invoices_created"
	InvoicesPaid    = "merchant:counters:invoices_paid"
)

var flushColumns = map[string]string{
	InvoicesCreated: "invoices_created",
	InvoicesPaid:    "invoices_paid",
}

// Increment bumps the pending counter for a merchant in Redis. Best-effort:
// a cache outage loses increments, never requests.
func Increment(kind, merchantID string) {
	ctx := context.Background()
	_ = cache.GetClient().HIncrBy(ctx, kind, merchantID, 1).Err()
}

// FlushAll drains every pending counter hash into the merchants table.
func FlushAll() error {
	for kind, column := range flushColumns {
		if err := flushHashToMerchants(kind, column); err != nil {
			return err
		}
	}
	return nil
}

// flushHashToMerchants drains a Redis hash atomically and applies batched
// increments. Uses RENAME to a temporary key for atomic drain without losing
// in-flight increments.
func flushHashToMerchants(redisKey, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// Missing key means nothing to flush.
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err.Error() == "redis: nil" {
			return nil
		}
		return err
	}
	defer rdb.Del(ctx, tmpKey)

	pending, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	increments := make(map[string]int64, len(pending))
	ids := make([]string, 0, len(pending))
	for merchantID, raw := range pending {
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || n == 0 {
			continue
		}
		increments[merchantID] = n
		ids = append(ids, merchantID)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	// One statement per flush: <column> = <column> + CASE id ... END.
	cases := make([]string, 0, len(ids))
	placeholders := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids)*3)
	for _, id := range ids {
		cases = append(cases, "WHEN ? THEN ?")
		args = append(args, id, increments[id])
	}
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	stmt := fmt.Sprintf("UPDATE merchants SET %s = %s + CASE id %s END WHERE id IN (%s)",
		column, column, strings.Join(cases, " "), strings.Join(placeholders, ","))
	return database.GetDB().Exec(stmt, args...).Error
}
