package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

const memoryBackend = "memory"

// MemoryStore keeps encoded cases in a map. It is intended for tests and
// single-process runs where durability does not matter.
type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string][]byte
}

var _ CaseStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string][]byte)}
}

func (s *MemoryStore) SaveCase(_ context.Context, c *models.Case) error {
	data, err := encodeCase(c)
	observe(memoryBackend, "save", err)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cases[c.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetCase(_ context.Context, id string) (*models.Case, error) {
	c, err := s.get(id)
	observe(memoryBackend, "get", err)
	return c, err
}

func (s *MemoryStore) get(id string) (*models.Case, error) {
	s.mu.RLock()
	data, ok := s.cases[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeCase(data)
}

func (s *MemoryStore) ListCases(_ context.Context, f CaseFilter) ([]CaseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CaseSummary, 0, len(s.cases))
	for _, data := range s.cases {
		c, err := decodeCase(data)
		if err != nil {
			observe(memoryBackend, "list", err)
			return nil, err
		}
		if sum := Summarize(c); f.matches(sum) {
			out = append(out, sum)
		}
	}
	sortSummaries(out)
	observe(memoryBackend, "list", nil)
	return page(out, f), nil
}

func (s *MemoryStore) ListTurns(_ context.Context, caseID string) ([]models.TurnProgress, error) {
	c, err := s.get(caseID)
	observe(memoryBackend, "list_turns", err)
	if err != nil {
		return nil, err
	}
	return c.TurnHistory, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Ping(context.Context) error { return nil }
