package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/config"
	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

// ErrNotFound is returned when a case id is unknown to the store.
var ErrNotFound = errors.New("case not found")

// CaseStore is the persistence interface for cases. Every backend returns
// independent copies: mutating a loaded case never affects the stored one.
type CaseStore interface {
	// SaveCase inserts or replaces the case, including its turn history.
	SaveCase(ctx context.Context, c *models.Case) error

	// GetCase loads a full case. Unknown ids return ErrNotFound.
	GetCase(ctx context.Context, id string) (*models.Case, error)

	// ListCases returns summaries, most recently updated first.
	ListCases(ctx context.Context, filter CaseFilter) ([]CaseSummary, error)

	// ListTurns returns the turn history of a case in turn order.
	ListTurns(ctx context.Context, caseID string) ([]models.TurnProgress, error)

	// Close releases backend resources.
	Close() error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// CaseFilter narrows ListCases. Zero values match everything.
type CaseFilter struct {
	UserID string
	Status models.CaseStatus
	Limit  int
	Offset int
}

const defaultListLimit = 50

func (f CaseFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f CaseFilter) matches(s CaseSummary) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// CaseSummary is the list view of a case.
type CaseSummary struct {
	ID           string                  `json:"id" yaml:"id"`
	UserID       string                  `json:"user_id" yaml:"user_id"`
	Title        string                  `json:"title" yaml:"title"`
	Status       models.CaseStatus       `json:"status" yaml:"status"`
	CurrentTurn  int                     `json:"current_turn" yaml:"current_turn"`
	DegradedMode models.DegradedModeType `json:"degraded_mode,omitempty" yaml:"degraded_mode,omitempty"`
	CreatedAt    time.Time               `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at" yaml:"updated_at"`
}

// Summarize builds the list view of c.
func Summarize(c *models.Case) CaseSummary {
	s := CaseSummary{
		ID:          c.ID,
		UserID:      c.UserID,
		Title:       c.Title,
		Status:      c.Status,
		CurrentTurn: c.CurrentTurn,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.DegradedMode != nil {
		s.DegradedMode = c.DegradedMode.ModeType
	}
	return s
}

// Open builds the store selected by cfg.Database, wrapped in a read-through
// cache when caching is enabled.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (CaseStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store CaseStore
		err   error
	)
	switch cfg.Database.Type {
	case "sqlite", "":
		store, err = NewSQLiteStore(cfg.Database.SQLitePath)
	case "redis":
		store, err = NewRedisStore(ctx, RedisOptions{
			URL: cfg.Database.RedisURL,
			TTL: time.Duration(cfg.Database.RedisTTLHours) * time.Hour,
		})
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Type, err)
	}

	logger.Info("case store opened", zap.String("type", cfg.Database.Type))

	if cfg.Database.CacheEnabled && cfg.Database.CacheTTLSeconds > 0 {
		store = NewCachedStore(store, time.Duration(cfg.Database.CacheTTLSeconds)*time.Second, logger)
	}
	return store, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func encodeCase(c *models.Case) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode case %s: %w", c.ID, err)
	}
	return data, nil
}

func decodeCase(data []byte) (*models.Case, error) {
	var c models.Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode case: %w", err)
	}
	return &c, nil
}

// cloneCase deep-copies c through its JSON form.
func cloneCase(c *models.Case) (*models.Case, error) {
	data, err := encodeCase(c)
	if err != nil {
		return nil, err
	}
	return decodeCase(data)
}

func sortSummaries(s []CaseSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].ID < s[j].ID
	})
}

func page(s []CaseSummary, f CaseFilter) []CaseSummary {
	if f.Offset >= len(s) {
		return make([]CaseSummary, 0)
	}
	s = s[f.Offset:]
	if n := f.limit(); len(s) > n {
		s = s[:n]
	}
	return s
}

// observe records the outcome of one store operation.
func observe(backend, op string, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues(backend, op, status).Inc()
}
