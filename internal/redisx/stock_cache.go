package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/redis/go-redis/v9"
)

// StockCache keeps short-lived snapshots for read-heavy "n left" displays.
// Entries are advisory; callers holding a version detect staleness on write.
type StockCache struct {
	rdb      *redis.Client
	location string
}

func NewStockCache(rdb *redis.Client, location string) *StockCache {
	return &StockCache{rdb: rdb, location: location}
}

func (c *StockCache) key(variantID string) string {
	return fmt.Sprintf(KeyStockSnapshot, c.location, variantID)
}

// Get returns nil, nil on a miss.
func (c *StockCache) Get(ctx context.Context, variantID string) (*inventory.Snapshot, error) {
	b, err := c.rdb.Get(ctx, c.key(variantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s inventory.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *StockCache) Set(ctx context.Context, s *inventory.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(s.VariantID), b, TTLStockSnapshot).Err()
}

func (c *StockCache) Invalidate(ctx context.Context, variantIDs ...string) error {
	if len(variantIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(variantIDs))
	for _, id := range variantIDs {
		keys = append(keys, c.key(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
