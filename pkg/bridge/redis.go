package bridge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore caches property snapshots as Redis hashes.
//
// Each property lives at <prefix>:prop:<device>:<name>; the names of a
// device's cached properties are kept in the set <prefix>:dev:<device>.
// Both keys expire after TTL unless refreshed by a newer update.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures DialRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// DialRedis connects to Redis and verifies the connection with PING.
func DialRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStore(rdb, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "indi"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// PropertyKey returns the hash key of a property.
func (s *RedisStore) PropertyKey(device, name string) string {
	return s.prefix + ":prop:" + device + ":" + name
}

// DeviceKey returns the set key listing a device's properties.
func (s *RedisStore) DeviceKey(device string) string {
	return s.prefix + ":dev:" + device
}

// Put replaces the cached snapshot of a property.
func (s *RedisStore) Put(ctx context.Context, device, name string, fields map[string]any) error {
	key := s.PropertyKey(device, name)
	devKey := s.DeviceKey(device)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, devKey, name)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
			pipe.Expire(ctx, devKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// Delete removes a property. An empty name removes every cached property of
// the device.
func (s *RedisStore) Delete(ctx context.Context, device, name string) error {
	devKey := s.DeviceKey(device)
	if name == "" {
		names, err := s.rdb.SMembers(ctx, devKey).Result()
		if err != nil {
			return fmt.Errorf("redis delete %s: %w", devKey, err)
		}
		keys := []string{devKey}
		for _, n := range names {
			keys = append(keys, s.PropertyKey(device, n))
		}
		return s.rdb.Del(ctx, keys...).Err()
	}

	key := s.PropertyKey(device, name)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, devKey, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Get returns the cached fields of a property. A missing property yields
// an empty map.
func (s *RedisStore) Get(ctx context.Context, device, name string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, s.PropertyKey(device, name)).Result()
}

// Properties returns the sorted names of a device's cached properties.
func (s *RedisStore) Properties(ctx context.Context, device string) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.DeviceKey(device)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
