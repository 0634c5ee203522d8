package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultDispatchTTL = 2 * time.Minute

// releaseScript deletes the key only while it still holds our token, so an
// expired lease that someone else re-acquired is never released by us.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DispatchLock is a Redis lease that keeps two dispatches of the same quote
// request from running at once across service instances.
type DispatchLock struct {
	rdb       goredis.Cmdable
	namespace string
	ttl       time.Duration
}

// NewDispatchLock creates a lock on top of an existing Redis client.
func NewDispatchLock(rdb goredis.Cmdable, namespace string, ttl time.Duration) *DispatchLock {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = "rfq"
	}
	if ttl <= 0 {
		ttl = defaultDispatchTTL
	}
	return &DispatchLock{rdb: rdb, namespace: namespace, ttl: ttl}
}

// ConnectRedis dials Redis and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Key returns the Redis key guarding a quote request.
func (l *DispatchLock) Key(requestID string) string {
	return fmt.Sprintf("%s:dispatch:%s", l.namespace, requestID)
}

// Acquire tries to take the lease for requestID. When it is already held,
// acquired is false and release is nil.
func (l *DispatchLock) Acquire(ctx context.Context, requestID string) (release func(), acquired bool, err error) {
	key := l.Key(requestID)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// The caller's context may already be cancelled; the release must
		// still reach Redis.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
