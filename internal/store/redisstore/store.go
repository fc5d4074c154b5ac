package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func preferenceKey(userID uint64) string {
	return fmt.Sprintf("ai_pref:%d", userID)
}

// GetJSON decodes the value at key into v. found is false on a cache miss.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (found bool, err error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *Store) GetPreference(ctx context.Context, userID uint64, v any) (bool, error) {
	return s.GetJSON(ctx, preferenceKey(userID), v)
}

func (s *Store) SetPreference(ctx context.Context, userID uint64, v any, ttl time.Duration) error {
	return s.SetJSON(ctx, preferenceKey(userID), v, ttl)
}

func (s *Store) DeletePreference(ctx context.Context, userID uint64) error {
	return s.Delete(ctx, preferenceKey(userID))
}
