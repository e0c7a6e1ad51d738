package tape

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultRedisKeyPrefix prefixes all tape keys in Redis.
const DefaultRedisKeyPrefix = "tapedeck:tape:"

// RedisStoreConfig contains Redis store configuration.
type RedisStoreConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore persists tapes in Redis so multiple proxy instances can share
// recordings. Tapes are stored as the same YAML documents the file store
// writes.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		keyPrefix: prefix,
	}
}

// NewRedisStoreWithClient creates a store over an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// key maps a tape name to its Redis key.
func (s *RedisStore) key(name string) string {
	return s.keyPrefix + name
}

// Load reads the tape stored under name.
func (s *RedisStore) Load(ctx context.Context, name string) ([]Interaction, error) {
	if !validName(name) {
		return nil, ErrInvalidTapeName
	}

	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTapeNotFound
		}
		return nil, fmt.Errorf("load tape %q: %w", name, err)
	}

	var doc tapeDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tape %q: %w", name, err)
	}
	return doc.Interactions, nil
}

// Save persists the tape under name. Tapes do not expire.
func (s *RedisStore) Save(ctx context.Context, name string, interactions []Interaction) error {
	if !validName(name) {
		return ErrInvalidTapeName
	}

	data, err := yaml.Marshal(tapeDocument{
		Name:         name,
		Interactions: interactions,
	})
	if err != nil {
		return fmt.Errorf("encode tape %q: %w", name, err)
	}

	if err := s.client.Set(ctx, s.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("save tape %q: %w", name, err)
	}
	return nil
}

// Ping verifies connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
