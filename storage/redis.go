package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/songzhibin97/mediaflow/types"
)

const (
	sharedPrefix = "mediaflow:shared:"
	runPrefix    = "mediaflow:run:"
	runIndexKey  = "mediaflow:runs:finished"
	pruneBatch   = 100
)

// RedisStorage is a Redis-backed implementation of the Storage interface.
type RedisStorage struct {
	client *redis.Client
	runTTL time.Duration
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
	// RunTTL expires run records on the Redis side. Zero keeps them until pruned.
	RunTTL time.Duration
}

// NewRedisStorage creates a new RedisStorage instance with configurable options.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{client: client, runTTL: opts.RunTTL}, nil
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

func marshalValue(key string, value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return data, nil
}

// getFromRedis retrieves and unmarshals the value stored at key.
func getFromRedis[T any](ctx context.Context, client *redis.Client, key string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("%w: key=%s", errNotFound, key)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %w", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		return result, nil
	})
}

func sharedKey(id uint64) string { return fmt.Sprintf("%s%d", sharedPrefix, id) }

func runKey(id string) string { return runPrefix + id }

// SaveShared stores a share link. Share links never expire.
func (s *RedisStorage) SaveShared(ctx context.Context, sw types.SharedWorkflow) error {
	return withContextError(ctx, func() error {
		key := sharedKey(sw.ID)
		data, err := marshalValue(key, sw)
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %w", key, err)
		}
		return nil
	})
}

// GetShared loads a share link.
func (s *RedisStorage) GetShared(ctx context.Context, id uint64) (types.SharedWorkflow, error) {
	return getFromRedis[types.SharedWorkflow](ctx, s.client, sharedKey(id), ErrSharedNotFound)
}

// SaveRun stores the record and indexes it by finish time in one transaction.
func (s *RedisStorage) SaveRun(ctx context.Context, rec types.RunRecord) error {
	return withContextError(ctx, func() error {
		key := runKey(rec.ID)
		data, err := marshalValue(key, rec)
		if err != nil {
			return err
		}

		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.runTTL)
			pipe.ZAdd(ctx, runIndexKey, &redis.Z{Score: float64(rec.FinishedAt), Member: rec.ID})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
		}
		return nil
	})
}

// GetRun loads a run record.
func (s *RedisStorage) GetRun(ctx context.Context, id string) (types.RunRecord, error) {
	return getFromRedis[types.RunRecord](ctx, s.client, runKey(id), ErrRunNotFound)
}

// PruneRuns deletes runs that finished before the cutoff, in batches taken
// from the finish-time index. Index entries whose record already expired
// through RunTTL are dropped without being counted.
func (s *RedisStorage) PruneRuns(ctx context.Context, before int64) (int, error) {
	return withContext(ctx, func() (int, error) {
		ids, err := s.client.ZRangeByScore(ctx, runIndexKey, &redis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(before, 10),
		}).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to read run index: %w", err)
		}

		removed := 0
		for len(ids) > 0 {
			n := pruneBatch
			if n > len(ids) {
				n = len(ids)
			}
			batch := ids[:n]
			ids = ids[n:]

			pipe := s.client.TxPipeline()
			dels := make([]*redis.IntCmd, len(batch))
			members := make([]interface{}, len(batch))
			for i, id := range batch {
				dels[i] = pipe.Del(ctx, runKey(id))
				members[i] = id
			}
			pipe.ZRem(ctx, runIndexKey, members...)
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, fmt.Errorf("failed to prune runs: %w", err)
			}
			for _, cmd := range dels {
				removed += int(cmd.Val())
			}
		}
		return removed, nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

var _ Storage = (*RedisStorage)(nil)
