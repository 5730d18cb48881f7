package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record under its own key and commits both in one MULTI guarded
// by WATCH.
type RedisStore struct {
	client     redis.UniversalClient
	counterKey string
	aclKey     string
}

// NewRedisStore builds a RedisStore whose keys share prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rolecounter"
	}
	return &RedisStore{
		client:     client,
		counterKey: prefix + ":counter",
		aclKey:     prefix + ":acl",
	}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	vals, err := s.client.MGet(ctx, s.counterKey, s.aclKey).Result()
	if err != nil {
		return nil, fmt.Errorf("state/redis: load: %w", err)
	}
	return decodeRecords(vals)
}

// Update implements Store. A write by another client between read and commit yields
// ErrConflict and nothing is written.
func (s *RedisStore) Update(ctx context.Context, fn UpdateFunc) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, s.counterKey, s.aclKey).Result()
		if err != nil {
			return fmt.Errorf("state/redis: read: %w", err)
		}
		current, err := decodeRecords(vals)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		counterJSON, err := json.Marshal(next.Counter)
		if err != nil {
			return fmt.Errorf("state/redis: encode counter: %w", err)
		}
		aclJSON, err := json.Marshal(next.ACL)
		if err != nil {
			return fmt.Errorf("state/redis: encode acl: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.counterKey, counterJSON, 0)
			pipe.Set(ctx, s.aclKey, aclJSON, 0)
			return nil
		})
		return err
	}, s.counterKey, s.aclKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func decodeRecords(vals []any) (*Snapshot, error) {
	if len(vals) != 2 {
		return nil, fmt.Errorf("state/redis: expected 2 records, got %d", len(vals))
	}
	if vals[0] == nil && vals[1] == nil {
		return nil, nil
	}
	if vals[0] == nil || vals[1] == nil {
		return nil, errors.New("state/redis: partial snapshot")
	}
	var snap Snapshot
	if err := decodeRecord(vals[0], &snap.Counter); err != nil {
		return nil, fmt.Errorf("state/redis: decode counter: %w", err)
	}
	if err := decodeRecord(vals[1], &snap.ACL); err != nil {
		return nil, fmt.Errorf("state/redis: decode acl: %w", err)
	}
	return &snap, nil
}

func decodeRecord(val any, target any) error {
	raw, ok := val.(string)
	if !ok {
		return fmt.Errorf("unexpected type %T", val)
	}
	return json.Unmarshal([]byte(raw), target)
}
