package execution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teranos/tradepulse/errors"
)

const idempotencyKeyPrefix = "tradepulse:idempotency:"

// completeScript overwrites a live entry while keeping its remaining TTL
var completeScript = redis.NewScript(`
	local ttl = redis.call("pttl", KEYS[1])
	if ttl <= 0 then
		return 0
	end
	redis.call("set", KEYS[1], ARGV[1], "px", ttl)
	return 1
`)

// RedisIdempotencyCache shares entries between gateway processes.
// Expiry is left to Redis key TTLs.
type RedisIdempotencyCache struct {
	client redis.UniversalClient
}

// NewRedisIdempotencyCache creates a cache on client
func NewRedisIdempotencyCache(client redis.UniversalClient) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client}
}

func (c *RedisIdempotencyCache) key(requestID string) string {
	return idempotencyKeyPrefix + requestID
}

// Get returns the live entry for requestID, or nil
func (c *RedisIdempotencyCache) Get(ctx context.Context, requestID string, now time.Time) (*Entry, error) {
	raw, err := c.client.Get(ctx, c.key(requestID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read idempotency entry %s", requestID)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, errors.Wrapf(err, "corrupt idempotency entry %s", requestID)
	}
	return &entry, nil
}

// Reserve claims requestID with SET NX PX
func (c *RedisIdempotencyCache) Reserve(ctx context.Context, requestID string, now time.Time, ttl time.Duration) (*Entry, bool, error) {
	entry := &Entry{
		RequestID:   requestID,
		State:       EntryPending,
		FirstSeenAt: now.UTC(),
		ExpiresAt:   now.Add(ttl).UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to encode idempotency entry")
	}

	ok, err := c.client.SetNX(ctx, c.key(requestID), raw, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to reserve request %s", requestID)
	}
	if ok {
		return entry, true, nil
	}

	existing, err := c.Get(ctx, requestID, now)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Expired between SETNX and GET; the caller treats this as in flight and retries
		return &Entry{RequestID: requestID, State: EntryPending}, false, nil
	}
	return existing, false, nil
}

// Complete stores the snapshot on the reserved key
func (c *RedisIdempotencyCache) Complete(ctx context.Context, entry *Entry, snapshot []byte) error {
	completed := *entry
	completed.State = EntryCompleted
	completed.Snapshot = snapshot

	raw, err := json.Marshal(&completed)
	if err != nil {
		return errors.Wrap(err, "failed to encode idempotency entry")
	}

	n, err := completeScript.Run(ctx, c.client, []string{c.key(entry.RequestID)}, raw).Int()
	if err != nil {
		return errors.Wrapf(err, "failed to complete request %s", entry.RequestID)
	}
	if n == 0 {
		return errors.Newf("idempotency entry %s expired before completion", entry.RequestID)
	}

	*entry = completed
	return nil
}

// PurgeExpired is a no-op; Redis drops expired keys itself
func (c *RedisIdempotencyCache) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
