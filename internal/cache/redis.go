package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cat-map-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// SnapshotStore persists the last fetched photo set between restarts
type SnapshotStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewSnapshotStore creates a snapshot store under key
func NewSnapshotStore(client *redis.Client, key string, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, key: key, ttl: ttl}
}

// Save writes the photo set
func (s *SnapshotStore) Save(ctx context.Context, photos []*models.Photo) error {
	val, err := json.Marshal(photos)
	if err != nil {
		return fmt.Errorf("failed to marshal photo snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, val, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save photo snapshot: %w", err)
	}
	return nil
}

// Load reads the photo set; ok is false when nothing was saved
func (s *SnapshotStore) Load(ctx context.Context) ([]*models.Photo, bool, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load photo snapshot: %w", err)
	}
	var photos []*models.Photo
	if err := json.Unmarshal(val, &photos); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal photo snapshot: %w", err)
	}
	return photos, true, nil
}

// RedisDenylist records revoked session token ids until they would have expired
type RedisDenylist struct {
	client *redis.Client
	prefix string
}

// NewRedisDenylist creates a denylist storing keys under prefix
func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	return &RedisDenylist{client: client, prefix: prefix}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return n > 0, nil
}

// MemoryDenylist is the in-process denylist used when Redis is not configured
type MemoryDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist creates an empty denylist
func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{revoked: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, exp := range d.revoked {
		if !exp.After(now) {
			delete(d.revoked, id)
		}
	}
	if expiresAt.After(now) {
		d.revoked[jti] = expiresAt
	}
	return nil
}

func (d *MemoryDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.revoked[jti]
	return ok && exp.After(d.now()), nil
}
