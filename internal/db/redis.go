package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

const (
	redisBackend     = "redis"
	defaultKeyPrefix = "kubilitics:investigator"
	defaultRedisTTL  = 30 * 24 * time.Hour
	redisFetchBatch  = 100
)

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	// URL is parsed with redis.ParseURL; a bare host:port is accepted too.
	URL string
	// TTL applies to every case key and is refreshed on save. Zero means 30 days.
	TTL time.Duration
	// KeyPrefix namespaces all keys.
	KeyPrefix string
}

// RedisStore keeps each case as one JSON value with a sliding TTL. Two sorted
// sets scored by update time index cases globally and per user.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

var _ CaseStore = (*RedisStore)(nil)

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		opt = &redis.Options{Addr: opts.URL}
	}

	s := NewRedisStoreFromClient(redis.NewClient(opt), opts)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, opts RedisOptions) *RedisStore {
	if opts.TTL <= 0 {
		opts.TTL = defaultRedisTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, ttl: opts.TTL, prefix: opts.KeyPrefix}
}

func (s *RedisStore) caseKey(id string) string { return s.prefix + ":case:" + id }

func (s *RedisStore) allKey() string { return s.prefix + ":cases" }

func (s *RedisStore) userKey(userID string) string { return s.prefix + ":user:" + userID + ":cases" }

func (s *RedisStore) SaveCase(ctx context.Context, c *models.Case) (err error) {
	defer func() { observe(redisBackend, "save", err) }()

	data, err := encodeCase(c)
	if err != nil {
		return err
	}
	score := float64(c.UpdatedAt.UnixNano())

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.caseKey(c.ID), data, s.ttl)
		pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: c.ID})
		pipe.ZAdd(ctx, s.userKey(c.UserID), redis.Z{Score: score, Member: c.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save case %s: %w", c.ID, err)
	}
	return nil
}

func (s *RedisStore) GetCase(ctx context.Context, id string) (c *models.Case, err error) {
	defer func() { observe(redisBackend, "get", err) }()
	return s.get(ctx, id)
}

func (s *RedisStore) get(ctx context.Context, id string) (*models.Case, error) {
	data, err := s.rdb.Get(ctx, s.caseKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w", id, err)
	}
	return decodeCase(data)
}

// ListCases walks the index newest first. Index entries whose case key has
// expired are removed as they are found.
func (s *RedisStore) ListCases(ctx context.Context, f CaseFilter) (out []CaseSummary, err error) {
	defer func() { observe(redisBackend, "list", err) }()

	index := s.allKey()
	if f.UserID != "" {
		index = s.userKey(f.UserID)
	}

	ids, err := s.rdb.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	out = make([]CaseSummary, 0)
	var stale []any
	for start := 0; start < len(ids); start += redisFetchBatch {
		end := min(start+redisFetchBatch, len(ids))
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, s.caseKey(id))
		}

		values, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("fetch cases: %w", err)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, ids[start+i])
				continue
			}
			c, err := decodeCase([]byte(raw))
			if err != nil {
				return nil, err
			}
			if sum := Summarize(c); f.matches(sum) {
				out = append(out, sum)
			}
		}
	}

	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, index, stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune index: %w", err)
		}
	}

	sortSummaries(out)
	return page(out, f), nil
}

func (s *RedisStore) ListTurns(ctx context.Context, caseID string) (turns []models.TurnProgress, err error) {
	defer func() { observe(redisBackend, "list_turns", err) }()

	c, err := s.get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return c.TurnHistory, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }
