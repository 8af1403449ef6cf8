package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T, opts ...Option) (*RedisStore, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, append([]Option{WithPrefix("rt")}, opts...)...)
	return store, mr, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRedisStoreCreateFindConsume(t *testing.T) {
	store, mr, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	token, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := mustKey(t, token)

	if mr.Exists("rt:" + token) {
		t.Fatal("raw token value must never be used as a redis key")
	}
	if !mr.Exists("rt:" + key) {
		t.Fatal("expected record stored under its digest key")
	}
	if ttl := mr.TTL("rt:" + key); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected record ttl %v", ttl)
	}

	owner, found, err := store.FindValid(ctx, key)
	if err != nil || !found || owner != "u1" {
		t.Fatalf("find valid = (%q, %v, %v)", owner, found, err)
	}

	live, err := store.Consume(ctx, key)
	if err != nil || !live {
		t.Fatalf("consume = (%v, %v)", live, err)
	}
	if members, _ := mr.Members("rt:owner:u1"); len(members) != 0 {
		t.Fatalf("owner index should be empty after consume, got %v", members)
	}

	live, err = store.Consume(ctx, key)
	if err != nil || live {
		t.Fatalf("repeat consume = (%v, %v), want idempotent no-op", live, err)
	}
}

func TestRedisStoreReactiveExpiry(t *testing.T) {
	clock := newFakeClock()
	store, _, _, done := newRedisStoreTest(t, WithClock(clock.Now))
	defer done()
	ctx := context.Background()

	token, err := store.Create(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := mustKey(t, token)

	// Redis has not expired the key yet; the read-side check must still reject it.
	clock.Advance(2 * time.Minute)
	if _, found, err := store.FindValid(ctx, key); err != nil || found {
		t.Fatalf("expired record must not validate, got found=%v err=%v", found, err)
	}
}

func TestRedisStorePassiveExpiry(t *testing.T) {
	store, mr, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	token, err := store.Create(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, found, err := store.FindValid(ctx, mustKey(t, token)); err != nil || found {
		t.Fatalf("expired key must be gone, got found=%v err=%v", found, err)
	}
}

func TestRedisStoreConcurrentConsumeSingleWinner(t *testing.T) {
	store, _, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	token, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := mustKey(t, token)

	const workers = 16
	var wins atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if live, err := store.Consume(ctx, key); err == nil && live {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one live consume, got %d", wins.Load())
	}
}

func TestRedisStoreConsumeAllAndPrune(t *testing.T) {
	store, mr, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	var keys []string
	for i := 0; i < 3; i++ {
		token, err := store.Create(ctx, "u1", time.Hour)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		keys = append(keys, mustKey(t, token))
	}

	// Simulate a record vanishing by TTL while its index entry remains.
	mr.Del("rt:" + keys[0])
	pruned, err := store.PurgeExpired(ctx, time.Now())
	if err != nil || pruned != 1 {
		t.Fatalf("prune = (%d, %v), want 1", pruned, err)
	}

	n, err := store.ConsumeAll(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("consume all = (%d, %v), want 2", n, err)
	}
	if mr.Exists("rt:owner:u1") {
		t.Fatal("owner index should be removed")
	}
}

func TestRedisStoreCorruptRecord(t *testing.T) {
	store, mr, _, done := newRedisStoreTest(t)
	defer done()

	key := mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	mr.Set("rt:"+key, "\x09garbage")
	if _, _, err := store.FindValid(context.Background(), key); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	live, err := store.Consume(context.Background(), key)
	if err != nil || live {
		t.Fatalf("consume of corrupt record = (%v, %v), want (false, nil)", live, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, rdb, _ := newRedisStoreTest(t)
	defer rdb.Close()
	mr.Close()

	if _, err := store.Create(context.Background(), "u1", time.Hour); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ping ErrUnavailable, got %v", err)
	}
}

func TestRecordEncodingRejectsTruncatedInput(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli())
	data, err := encodeRecord(Record{OwnerID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rec, err := decodeRecord("k", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.OwnerID != "u1" || !rec.ExpiresAt.Equal(now.Add(time.Hour)) || rec.Key != "k" {
		t.Fatalf("unexpected record %+v", rec)
	}
	for i := 0; i < len(data); i++ {
		if _, err := decodeRecord("k", data[:i]); err == nil {
			t.Fatalf("truncated input of length %d decoded", i)
		}
	}
}

// slotGuard records commands that a Redis Cluster would reject: a single
// command naming several keys, or a MULTI/EXEC block spanning several keys.
// Distinct keys are treated as distinct slots.
type slotGuard struct {
	mu         sync.Mutex
	violations []string
}

func (g *slotGuard) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (g *slotGuard) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		g.check([]redis.Cmder{cmd})
		return next(ctx, cmd)
	}
}

func (g *slotGuard) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if len(cmds) > 0 && cmds[0].Name() == "multi" {
			g.check(cmds)
		} else {
			for _, cmd := range cmds {
				g.check([]redis.Cmder{cmd})
			}
		}
		return next(ctx, cmds)
	}
}

func (g *slotGuard) check(cmds []redis.Cmder) {
	keys := map[string]bool{}
	var names []string
	for _, cmd := range cmds {
		names = append(names, cmd.Name())
		for _, k := range commandKeys(cmd) {
			keys[k] = true
		}
	}
	if len(keys) > 1 {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.violations = append(g.violations, fmt.Sprintf("%v touches %d keys", names, len(keys)))
	}
}

func commandKeys(cmd redis.Cmder) []string {
	args := cmd.Args()
	var keys []string
	switch cmd.Name() {
	case "ping", "scan", "multi", "exec", "hello", "client", "script":
	case "eval", "evalsha":
		n, _ := args[2].(int)
		for _, a := range args[3 : 3+n] {
			keys = append(keys, fmt.Sprint(a))
		}
	case "del", "exists", "unlink":
		for _, a := range args[1:] {
			keys = append(keys, fmt.Sprint(a))
		}
	default:
		if len(args) > 1 {
			keys = append(keys, fmt.Sprint(args[1]))
		}
	}
	return keys
}

func TestRedisStoreKeepsEachCommandOnOneKey(t *testing.T) {
	store, mr, rdb, done := newRedisStoreTest(t)
	defer done()
	guard := &slotGuard{}
	rdb.AddHook(guard)
	ctx := context.Background()

	var keys []string
	for i := 0; i < 3; i++ {
		token, err := store.Create(ctx, "u1", time.Hour)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		keys = append(keys, mustKey(t, token))
	}
	if _, _, err := store.FindValid(ctx, keys[0]); err != nil {
		t.Fatalf("find valid: %v", err)
	}
	if _, err := store.Consume(ctx, keys[0]); err != nil {
		t.Fatalf("consume: %v", err)
	}
	mr.Del("rt:" + keys[1])
	if _, err := store.PurgeExpired(ctx, time.Now()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n, err := store.ConsumeAll(ctx, "u1"); err != nil || n != 1 {
		t.Fatalf("consume all = (%d, %v), want 1", n, err)
	}

	if len(guard.violations) > 0 {
		t.Fatalf("commands would fail on a cluster: %v", guard.violations)
	}
	if strings.Contains(consumeScript, "ARGV") {
		t.Fatal("the consume script must only touch keys it declares")
	}
}

func TestRedisStoreConsumeAllSkipsDanglingIndexEntries(t *testing.T) {
	store, mr, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	token, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// An index entry whose record was consumed while the SREM failed.
	if _, err := mr.SAdd("rt:owner:u1", "gone"); err != nil {
		t.Fatalf("sadd: %v", err)
	}

	n, err := store.ConsumeAll(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("consume all = (%d, %v), want 1", n, err)
	}
	if _, found, _ := store.FindValid(ctx, mustKey(t, token)); found {
		t.Fatal("record must be gone after consume all")
	}
	if mr.Exists("rt:owner:u1") {
		t.Fatal("owner index should be empty")
	}
}
