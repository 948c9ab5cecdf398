package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	logx "matchwatch/pkg/logx"
)

// RedisStore keeps one hash field per tenant under <prefix>:tenants.
type RedisStore struct {
	rdb *redis.Client
	key string
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Backend, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("redis: dsn is required")
	}
	var opts *redis.Options
	if strings.Contains(dsn, "://") {
		o, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: dsn}
	}
	st := NewRedis(opts, cfg.KeyPrefix)
	st.log = log
	return st, nil
}

// NewRedis returns a redis-backed store. An empty prefix uses DefaultKeyPrefix.
func NewRedis(opts *redis.Options, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		rdb: redis.NewClient(opts),
		key: prefix + ":tenants",
		log: logx.Nop(),
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Snapshot{}, err
	}
	snap := make(Snapshot, len(fields))
	for id, raw := range fields {
		ts, err := decodeTenant([]byte(raw))
		if err != nil {
			return Snapshot{}, fmt.Errorf("tenant %q: %w", id, err)
		}
		snap[id] = ts
	}
	return snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	values := make([]any, 0, len(snap)*2)
	for _, id := range sortedTenantIDs(snap) {
		b, err := encodeTenant(snap[id])
		if err != nil {
			return err
		}
		values = append(values, id, string(b))
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values...)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
