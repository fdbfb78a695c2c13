package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gigsafe/internal/regional/models"
)

// snapshotKey holds the last snapshot built from a successful refresh.
const snapshotKey = "gigsafe:regional:last_good"

// RedisStore persists the last-good snapshot so a restarted instance can serve
// feed data before its first refresh completes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

// WithTTL expires the cached snapshot. Zero keeps it indefinitely.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load returns nil without error when no snapshot has been saved.
func (s *RedisStore) Load(ctx context.Context) (*models.Snapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load regional snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode regional snapshot: %w", err)
	}
	if len(snap.Regions) == 0 {
		return nil, nil
	}
	return &snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode regional snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save regional snapshot: %w", err)
	}
	return nil
}
