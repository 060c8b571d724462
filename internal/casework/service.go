// Package casework hosts the investigation engine: it owns case storage,
// serializes turns per case and writes the audit trail.
//
// A turn is load → ProcessTurn → save. The case is saved only when the
// engine returns without error, so a failed turn leaves the stored case
// exactly as it was.
package casework

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/audit"
	"github.com/kubilitics/kubilitics-investigator/internal/db"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/investigation"
)

// ErrInvalidRequest reports missing or malformed caller input.
var ErrInvalidRequest = errors.New("invalid request")

// Service coordinates engine, store and audit logger.
type Service struct {
	engine *investigation.Engine
	store  db.CaseStore
	audit  audit.Logger
	logger *zap.Logger
	locks  *keyedMutex
	now    func() time.Time
}

// NewService creates a Service. audit may be nil to disable the audit trail.
func NewService(engine *investigation.Engine, store db.CaseStore, auditLogger audit.Logger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine: engine,
		store:  store,
		audit:  auditLogger,
		logger: logger.Named("casework"),
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OpenCase creates and stores a new CONSULTING case.
func (s *Service) OpenCase(ctx context.Context, userID, title string) (*models.Case, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}

	ctx = withCorrelation(ctx)
	c := models.NewCase(models.NewID("case"), userID, strings.TrimSpace(title), s.now())
	if err := s.store.SaveCase(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("case opened", zap.String("case_id", c.ID), zap.String("user_id", userID))
	s.record(func() error { return s.audit.LogCaseOpened(ctx, c.ID, userID) })
	return c, nil
}

// SubmitTurn runs one turn against the stored case. Turns for the same case
// never overlap; different cases proceed in parallel.
func (s *Service) SubmitTurn(ctx context.Context, caseID string, in investigation.TurnInput) (*investigation.TurnResult, error) {
	unlock := s.locks.Lock(caseID)
	defer unlock()

	ctx = withCorrelation(ctx)
	start := time.Now()
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.ProcessTurn(ctx, c, in)
	if err != nil {
		s.logger.Warn("turn failed", zap.String("case_id", caseID), zap.Error(err))
		s.record(func() error { return s.audit.LogTurnFailed(ctx, caseID, err) })
		return nil, err
	}

	if err := s.store.SaveCase(ctx, c); err != nil {
		s.logger.Error("saving case after turn", zap.String("case_id", caseID), zap.Error(err))
		s.record(func() error { return s.audit.LogTurnFailed(ctx, caseID, err) })
		return nil, err
	}

	s.auditTurn(ctx, c, res, time.Since(start))
	return res, nil
}

func (s *Service) auditTurn(ctx context.Context, c *models.Case, res *investigation.TurnResult, d time.Duration) {
	s.record(func() error {
		return s.audit.LogTurnProcessed(ctx, c.ID, res.TurnNumber, string(res.Outcome), d)
	})
	if res.StatusTransitioned {
		s.record(func() error {
			return s.audit.LogStatusChanged(ctx, c.ID, res.TurnNumber, string(res.PreviousStatus), string(res.Status))
		})
	}
	if res.DegradedExited {
		s.record(func() error { return s.audit.LogDegradedExited(ctx, c.ID, res.TurnNumber) })
	}
	if res.DegradedEntered && c.DegradedMode != nil {
		mode := c.DegradedMode
		s.record(func() error {
			return s.audit.LogDegradedEntered(ctx, c.ID, res.TurnNumber, string(mode.ModeType), mode.Reason)
		})
	}
}

// CloseCase moves the case to CLOSED and stores it.
func (s *Service) CloseCase(ctx context.Context, caseID, reason string) (*models.Case, error) {
	unlock := s.locks.Lock(caseID)
	defer unlock()

	ctx = withCorrelation(ctx)
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.CloseCase(c, reason); err != nil {
		return nil, err
	}
	if err := s.store.SaveCase(ctx, c); err != nil {
		return nil, err
	}

	s.record(func() error { return s.audit.LogCaseClosed(ctx, c.ID, c.ClosureReason) })
	return c, nil
}

// GetCase loads a case.
func (s *Service) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	return s.store.GetCase(ctx, caseID)
}

// ListCases lists case summaries.
func (s *Service) ListCases(ctx context.Context, filter db.CaseFilter) ([]db.CaseSummary, error) {
	return s.store.ListCases(ctx, filter)
}

// ListTurns returns the recorded turn history of a case.
func (s *Service) ListTurns(ctx context.Context, caseID string) ([]models.TurnProgress, error) {
	return s.store.ListTurns(ctx, caseID)
}

// withCorrelation tags ctx with a fresh correlation id unless the caller
// already supplied one, so all audit events of one operation share it.
func withCorrelation(ctx context.Context) context.Context {
	if audit.GetCorrelationID(ctx) != "" {
		return ctx
	}
	return audit.WithCorrelationID(ctx, audit.GenerateCorrelationID())
}

// record writes one audit event. Audit failures are logged, never returned.
func (s *Service) record(write func() error) {
	if s.audit == nil {
		return
	}
	if err := write(); err != nil {
		s.logger.Warn("audit write failed", zap.Error(err))
	}
}
