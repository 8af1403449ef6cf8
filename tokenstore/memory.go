package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. Expired records stay until
// consumed or purged but are never returned by FindValid.
type MemoryStore struct {
	mu      sync.Mutex
	byKey   map[string]Record
	byOwner map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		byKey:   make(map[string]Record),
		byOwner: make(map[string]map[string]struct{}),
		now:     o.now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID string, ttl time.Duration) (string, error) {
	if err := checkCreate(ownerID, ttl); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		token, key, err := refresh.NewToken()
		if err != nil {
			return "", err
		}
		if _, taken := s.byKey[key]; taken {
			continue
		}
		now := s.now()
		s.byKey[key] = Record{
			ID:        uuid.NewString(),
			Key:       key,
			OwnerID:   ownerID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		keys := s.byOwner[ownerID]
		if keys == nil {
			keys = make(map[string]struct{})
			s.byOwner[ownerID] = keys
		}
		keys[key] = struct{}{}
		return token, nil
	}
}

func (s *MemoryStore) FindValid(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byKey[key]
	if !ok || !rec.Live(s.now()) {
		return "", false, nil
	}
	return rec.OwnerID, true, nil
}

func (s *MemoryStore) Consume(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byKey[key]
	if !ok {
		return false, nil
	}
	s.removeLocked(rec)
	return rec.Live(s.now()), nil
}

func (s *MemoryStore) ConsumeAll(ctx context.Context, ownerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.byOwner[ownerID] {
		delete(s.byKey, key)
		n++
	}
	delete(s.byOwner, ownerID)
	return n, nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.byKey {
		if !rec.Live(now) {
			s.removeLocked(rec)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *MemoryStore) removeLocked(rec Record) {
	delete(s.byKey, rec.Key)
	if keys := s.byOwner[rec.OwnerID]; keys != nil {
		delete(keys, rec.Key)
		if len(keys) == 0 {
			delete(s.byOwner, rec.OwnerID)
		}
	}
}
