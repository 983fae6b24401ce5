package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Redis is a Locker shared by every instance pointing at the same Redis.
// Locks expire after ttl so a crashed holder cannot wedge a user.
type Redis struct {
	rs  *redsync.Redsync
	ttl time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rs: redsync.New(goredis.NewPool(client)), ttl: ttl}
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	m := r.rs.NewMutex(key,
		redsync.WithExpiry(r.ttl),
		redsync.WithTries(64),
		redsync.WithRetryDelay(25*time.Millisecond),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// a lost lock only means the ttl already expired it
			_, _ = m.Unlock()
		})
	}, nil
}
