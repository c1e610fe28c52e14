package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lease lets one scheduler instance at a time run a job. Row locks already
// prevent double-processing; the lease only avoids wasted passes.
type Lease struct {
	rdb   *redis.Client
	owner string
}

func NewLease(rdb *redis.Client) *Lease {
	return &Lease{rdb: rdb, owner: uuid.NewString()}
}

func (l *Lease) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, fmt.Sprintf(KeyLease, job), l.owner, ttl).Result()
}

func (l *Lease) Release(ctx context.Context, job string) error {
	return releaseScript.Run(ctx, l.rdb, []string{fmt.Sprintf(KeyLease, job)}, l.owner).Err()
}
