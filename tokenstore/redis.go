package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/redis/go-redis/v9"
)

const (
	consumeStatusMissing  int64 = 0
	consumeStatusConsumed int64 = 1
)

// consumeScript deletes a record and returns it, so concurrent consumers of
// the same key see exactly one success. It touches KEYS[1] only; the owner
// index is updated by a separate command so the script stays on one cluster
// slot.
const consumeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
redis.call("DEL", KEYS[1])
return {1, data}
`

var consumeLua = redis.NewScript(consumeScript)

const createAttempts = 3

// RedisStore keeps records under <prefix>:<key> with PX expiry and indexes
// them by owner under <prefix>:owner:<ownerID>.
//
// Every command and script touches a single key, so the store runs unchanged
// on Redis Cluster. The owner index is therefore not updated atomically with
// the records: it may briefly list keys that no longer exist, which
// ConsumeAll tolerates and PurgeExpired prunes.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store over client. The client stays owned by the caller.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{redis: client, prefix: o.prefix, now: o.now}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) ownerPrefix() string {
	return s.prefix + ":owner:"
}

func (s *RedisStore) ownerKey(ownerID string) string {
	return s.ownerPrefix() + ownerID
}

// Create indexes a new key under its owner, then stores the record with
// SET NX PX. The index entry is written first so a record never exists
// without one; otherwise ConsumeAll could miss it.
//
//	Performance: 1 pipeline (SADD, PEXPIRE on the owner index) + 1 SET.
func (s *RedisStore) Create(ctx context.Context, ownerID string, ttl time.Duration) (string, error) {
	if err := checkCreate(ownerID, ttl); err != nil {
		return "", err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		token, key, err := refresh.NewToken()
		if err != nil {
			return "", err
		}
		now := s.now()
		data, err := encodeRecord(Record{Key: key, OwnerID: ownerID, CreatedAt: now, ExpiresAt: now.Add(ttl)})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}

		ownerKey := s.ownerKey(ownerID)
		_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, ownerKey, key)
			pipe.PExpire(ctx, ownerKey, ttl)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		created, err := s.redis.SetNX(ctx, s.key(key), data, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if created {
			return token, nil
		}
		// The key belongs to another record; keep it out of this owner's index.
		_ = s.redis.SRem(ctx, ownerKey, key).Err()
	}
	return "", fmt.Errorf("%w: could not allocate a unique token key", ErrUnavailable)
}

// FindValid reads the record and checks its expiry against the store clock.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) FindValid(ctx context.Context, key string) (string, bool, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := decodeRecord(key, data)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !rec.Live(s.now()) {
		return "", false, nil
	}
	return rec.OwnerID, true, nil
}

// Consume atomically deletes key. Deleting a missing key is not an error.
//
//	Performance: 1 EVALSHA, plus 1 SREM on the owner index when a record
//	was deleted.
func (s *RedisStore) Consume(ctx context.Context, key string) (bool, error) {
	result, err := consumeLua.Run(ctx, s.redis, []string{s.key(key)}).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return false, fmt.Errorf("%w: invalid consume script response", ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return false, fmt.Errorf("%w: invalid consume script status", ErrUnavailable)
	}

	switch code {
	case consumeStatusMissing:
		return false, nil
	case consumeStatusConsumed:
		if len(parts) < 2 {
			return false, fmt.Errorf("%w: missing consumed payload", ErrUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return false, fmt.Errorf("%w: invalid consumed payload type", ErrUnavailable)
		}
		rec, err := decodeRecord(key, blob)
		if err != nil {
			// The key is gone either way; an undecodable record was never usable.
			return false, nil
		}
		// A failed SREM leaves a dangling index entry for PurgeExpired.
		_ = s.redis.SRem(ctx, s.ownerKey(rec.OwnerID), key).Err()
		return rec.Live(s.now()), nil
	default:
		return false, fmt.Errorf("%w: unknown consume status %d", ErrUnavailable, code)
	}
}

// ConsumeAll deletes every record in the owner index.
//
// The index is read before deletion, so a record created concurrently may
// survive; it still expires on its own TTL. Records are deleted one key per
// command, which a cluster client routes slot by slot.
//
//	Performance: 1 SMEMBERS + 1 pipeline.
func (s *RedisStore) ConsumeAll(ctx context.Context, ownerID string) (int, error) {
	ownerKey := s.ownerKey(ownerID)
	members, err := s.redis.SMembers(ctx, ownerKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	delCmds := make([]*redis.IntCmd, len(members))
	indexed := make([]interface{}, len(members))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			delCmds[i] = pipe.Del(ctx, s.key(m))
			indexed[i] = m
		}
		// Only the members read above; keys indexed since then stay listed.
		pipe.SRem(ctx, ownerKey, indexed...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	removed := 0
	for _, cmd := range delCmds {
		removed += int(cmd.Val())
	}
	return removed, nil
}

// PurgeExpired prunes owner-index entries whose records Redis has already
// expired. Records themselves expire through their key TTL, so now is unused.
// On a cluster every master is scanned.
func (s *RedisStore) PurgeExpired(ctx context.Context, _ time.Time) (int64, error) {
	var pruned atomic.Int64
	scan := func(ctx context.Context, node redis.Cmdable) error {
		var cursor uint64
		for {
			ownerKeys, next, err := node.Scan(ctx, cursor, s.ownerPrefix()+"*", 100).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			for _, ownerKey := range ownerKeys {
				n, err := s.pruneOwnerIndex(ctx, ownerKey)
				if err != nil {
					return err
				}
				pruned.Add(n)
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	}

	var err error
	if cluster, ok := s.redis.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scan(ctx, node)
		})
	} else {
		err = scan(ctx, s.redis)
	}
	return pruned.Load(), err
}

func (s *RedisStore) pruneOwnerIndex(ctx context.Context, ownerKey string) (int64, error) {
	members, err := s.redis.SMembers(ctx, ownerKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(members))
	for i, m := range members {
		existsCmds[i] = pipe.Exists(ctx, s.key(m))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	stale := make([]interface{}, 0)
	for i, cmd := range existsCmds {
		if cmd.Val() == 0 {
			stale = append(stale, members[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := s.redis.SRem(ctx, ownerKey, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
