package db

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

// CachedStore is a read-through cache in front of another CaseStore.
// Entries hold encoded bytes, so callers always receive fresh copies.
type CachedStore struct {
	inner  CaseStore
	cache  *cache.Cache
	logger *zap.Logger
}

var _ CaseStore = (*CachedStore)(nil)

// NewCachedStore caches GetCase results for ttl. Expired entries are purged
// every 2*ttl.
func NewCachedStore(inner CaseStore, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		inner:  inner,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.Named("case-cache"),
	}
}

// SaveCase writes through and refreshes the cached copy. A failed write
// evicts the entry so the next read goes to the backend.
func (s *CachedStore) SaveCase(ctx context.Context, c *models.Case) error {
	if err := s.inner.SaveCase(ctx, c); err != nil {
		s.cache.Delete(c.ID)
		return err
	}

	data, err := encodeCase(c)
	if err != nil {
		s.cache.Delete(c.ID)
		return nil
	}
	s.cache.Set(c.ID, data, cache.DefaultExpiration)
	return nil
}

func (s *CachedStore) GetCase(ctx context.Context, id string) (*models.Case, error) {
	if x, found := s.cache.Get(id); found {
		if c, err := decodeCase(x.([]byte)); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return c, nil
		}
		s.cache.Delete(id)
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	c, err := s.inner.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := encodeCase(c); err == nil {
		s.cache.Set(id, data, cache.DefaultExpiration)
	}
	s.logger.Debug("case cached", zap.String("case_id", id))
	return c, nil
}

func (s *CachedStore) ListCases(ctx context.Context, f CaseFilter) ([]CaseSummary, error) {
	return s.inner.ListCases(ctx, f)
}

func (s *CachedStore) ListTurns(ctx context.Context, caseID string) ([]models.TurnProgress, error) {
	return s.inner.ListTurns(ctx, caseID)
}

// Invalidate drops a cached case.
func (s *CachedStore) Invalidate(id string) {
	s.cache.Delete(id)
}

func (s *CachedStore) Close() error {
	s.cache.Flush()
	return s.inner.Close()
}

func (s *CachedStore) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }
