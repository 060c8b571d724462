// Package hypothesis owns the lifecycle and confidence arithmetic of causal theories.
//
// Lifecycle:
//
//	CAPTURED ──promote──▶ ACTIVE ──▶ VALIDATED | REFUTED | RETIRED
//	any non-terminal ──supersede──▶ SUPERSEDED
//
// CAPTURED is reachable only through opportunistic creation. Automatic
// transitions fire only from ACTIVE and are evaluated in priority order
// VALIDATED, REFUTED, RETIRED; the first match wins. The check is re-run after
// every confidence change.
//
// Confidence from evidence:
//
//	likelihood = clamp(initial + 0.15·supporting − 0.20·refuting, 0, 1)
//
// Stagnation decay (only when iterations_without_progress ≥ 2):
//
//	likelihood *= 0.85^iterations_without_progress
package hypothesis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

const (
	SupportingWeight = 0.15
	RefutingWeight   = 0.20

	// ProgressThreshold is the minimum absolute confidence change that counts as progress.
	ProgressThreshold = 0.05

	ValidatedThreshold = 0.70
	MinSupporting      = 2
	RefutedThreshold   = 0.20
	MinRefuting        = 2
	RetireThreshold    = 0.30

	DecayFactor        = 0.85
	DecayMinIterations = 2

	AnchoringCategoryLimit = 4
	StalledIterations      = 3
	StalledHypothesesLimit = 2
	TopStagnantConfidence  = 0.70
	RetireOnAnchoringIters = 2
	MinAlternatives        = 2

	// TestableFloor excludes near-dead hypotheses from the testing queue.
	TestableFloor = 0.2

	epsilon = 1e-9
)

// Manager applies hypothesis lifecycle rules. It holds no per-case state.
type Manager struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used to stamp new hypotheses.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a hypothesis manager
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger: logger.Named("hypothesis"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateParams describes a new hypothesis.
type CreateParams struct {
	Statement             string
	Category              string
	InitialLikelihood     float64
	Turn                  int
	Mode                  models.GenerationMode
	TriggeringObservation string
	RequiredEvidence      []string

	// CreatedAt defaults to the manager clock when zero.
	CreatedAt time.Time
}

// Create builds a hypothesis. Opportunistic hypotheses start CAPTURED with no
// promotion turn; every other mode starts ACTIVE.
func (m *Manager) Create(p CreateParams) *models.Hypothesis {
	if p.Mode == "" {
		p.Mode = models.GenerationSystematic
	}
	likelihood := clamp(p.InitialLikelihood)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}

	h := &models.Hypothesis{
		ID:                    models.NewID("hyp"),
		Statement:             p.Statement,
		Category:              p.Category,
		Status:                models.HypothesisActive,
		Likelihood:            likelihood,
		InitialLikelihood:     likelihood,
		ConfidenceTrajectory:  []models.ConfidencePoint{{Turn: p.Turn, Value: likelihood}},
		SupportingEvidence:    make([]string, 0),
		RefutingEvidence:      make([]string, 0),
		RequiredEvidence:      append([]string(nil), p.RequiredEvidence...),
		LastProgressAtTurn:    p.Turn,
		GenerationMode:        p.Mode,
		TriggeringObservation: p.TriggeringObservation,
		CapturedAtTurn:        p.Turn,
		LastUpdatedTurn:       p.Turn,
		CreatedAt:             p.CreatedAt,
	}
	if p.Mode == models.GenerationOpportunistic {
		h.Status = models.HypothesisCaptured
	} else {
		turn := p.Turn
		h.PromotedToActiveAtTurn = &turn
	}

	m.logger.Info("hypothesis created",
		zap.String("hypothesis_id", h.ID),
		zap.String("category", h.Category),
		zap.Float64("likelihood", h.Likelihood),
		zap.String("mode", string(h.GenerationMode)),
		zap.String("status", string(h.Status)),
	)
	return h
}

// Promote moves a CAPTURED hypothesis to ACTIVE. Any other status is left unchanged.
func (m *Manager) Promote(h *models.Hypothesis, turn int) bool {
	if h.Status != models.HypothesisCaptured {
		m.logger.Warn("promote ignored: hypothesis not captured",
			zap.String("hypothesis_id", h.ID),
			zap.String("status", string(h.Status)),
		)
		return false
	}
	h.Status = models.HypothesisActive
	t := turn
	h.PromotedToActiveAtTurn = &t
	h.LastUpdatedTurn = turn
	return true
}

// Supersede marks a non-terminal hypothesis as replaced by another.
func (m *Manager) Supersede(h *models.Hypothesis, byID string, turn int) bool {
	if h.Status.IsTerminal() {
		return false
	}
	h.Status = models.HypothesisSuperseded
	h.SupersededBy = byID
	h.LastUpdatedTurn = turn
	metrics.HypothesisTransitions.WithLabelValues(string(models.HypothesisSuperseded)).Inc()
	return true
}

// LinkEvidence adds evidenceID to the supporting or refuting set and
// recomputes confidence. Re-linking an existing id does not duplicate it.
func (m *Manager) LinkEvidence(h *models.Hypothesis, evidenceID string, supports bool, turn int) {
	if supports {
		if !h.HasSupporting(evidenceID) {
			h.SupportingEvidence = append(h.SupportingEvidence, evidenceID)
		}
	} else {
		if !h.HasRefuting(evidenceID) {
			h.RefutingEvidence = append(h.RefutingEvidence, evidenceID)
		}
	}
	m.logger.Debug("evidence linked",
		zap.String("hypothesis_id", h.ID),
		zap.String("evidence_id", evidenceID),
		zap.Bool("supports", supports),
	)
	m.UpdateConfidenceFromEvidence(h, turn)
}

// UpdateConfidenceFromEvidence recomputes likelihood from the evidence counts.
func (m *Manager) UpdateConfidenceFromEvidence(h *models.Hypothesis, turn int) {
	s := float64(len(h.SupportingEvidence))
	r := float64(len(h.RefutingEvidence))
	m.setConfidence(h, h.InitialLikelihood+SupportingWeight*s-RefutingWeight*r, turn)
	m.checkStatusTransition(h)
}

// UpdateConfidence sets likelihood directly, as used when recording tests.
func (m *Manager) UpdateConfidence(h *models.Hypothesis, value float64, turn int, reason string) {
	old := h.Likelihood
	m.setConfidence(h, value, turn)
	m.logger.Debug("confidence updated",
		zap.String("hypothesis_id", h.ID),
		zap.Float64("from", old),
		zap.Float64("to", h.Likelihood),
		zap.String("reason", reason),
	)
	m.checkStatusTransition(h)
}

func (m *Manager) setConfidence(h *models.Hypothesis, value float64, turn int) {
	old := h.Likelihood
	h.Likelihood = clamp(value)
	h.LastUpdatedTurn = turn
	h.ConfidenceTrajectory = append(h.ConfidenceTrajectory, models.ConfidencePoint{Turn: turn, Value: h.Likelihood})

	if math.Abs(h.Likelihood-old) >= ProgressThreshold-epsilon {
		h.IterationsWithoutProgress = 0
		h.LastProgressAtTurn = turn
	} else {
		h.IterationsWithoutProgress++
	}
}

// ApplyConfidenceDecay penalises a stagnant hypothesis. Hypotheses with fewer
// than two iterations without progress are left untouched.
func (m *Manager) ApplyConfidenceDecay(h *models.Hypothesis, turn int) bool {
	if h.IterationsWithoutProgress < DecayMinIterations {
		return false
	}
	old := h.Likelihood
	h.Likelihood = clamp(h.Likelihood * math.Pow(DecayFactor, float64(h.IterationsWithoutProgress)))
	h.LastUpdatedTurn = turn
	h.ConfidenceTrajectory = append(h.ConfidenceTrajectory, models.ConfidencePoint{Turn: turn, Value: h.Likelihood})

	m.logger.Info("confidence decayed",
		zap.String("hypothesis_id", h.ID),
		zap.Float64("from", old),
		zap.Float64("to", h.Likelihood),
		zap.Int("iterations_without_progress", h.IterationsWithoutProgress),
	)

	m.checkStatusTransition(h)
	if h.Status == models.HypothesisRetired {
		m.logger.Warn("hypothesis retired by confidence decay", zap.String("hypothesis_id", h.ID))
	}
	return true
}

// Refute explicitly marks a non-terminal hypothesis REFUTED with zero likelihood.
func (m *Manager) Refute(h *models.Hypothesis, turn int, evidenceIDs []string, reason string) bool {
	if h.Status.IsTerminal() {
		return false
	}
	for _, id := range evidenceIDs {
		if !h.HasRefuting(id) {
			h.RefutingEvidence = append(h.RefutingEvidence, id)
		}
	}
	h.Status = models.HypothesisRefuted
	h.Likelihood = 0
	h.RetirementReason = reason
	h.LastUpdatedTurn = turn
	h.ConfidenceTrajectory = append(h.ConfidenceTrajectory, models.ConfidencePoint{Turn: turn, Value: 0})
	metrics.HypothesisTransitions.WithLabelValues(string(models.HypothesisRefuted)).Inc()

	m.logger.Info("hypothesis refuted",
		zap.String("hypothesis_id", h.ID),
		zap.String("reason", reason),
		zap.Strings("evidence", evidenceIDs),
	)
	return true
}

// TestParams describes one executed hypothesis test.
type TestParams struct {
	Description      string
	EvidenceRequired []string
	EvidenceObtained []string
	Result           models.TestResult
	ConfidenceChange float64
	Turn             int
}

// RecordTest applies a test outcome. Supports adds |change|, refutes subtracts
// it, inconclusive leaves the likelihood as is; the manual update path follows.
func (m *Manager) RecordTest(h *models.Hypothesis, p TestParams) models.HypothesisTest {
	test := models.HypothesisTest{
		HypothesisID:     h.ID,
		Description:      p.Description,
		EvidenceRequired: append([]string(nil), p.EvidenceRequired...),
		EvidenceObtained: append([]string(nil), p.EvidenceObtained...),
		Result:           p.Result,
		ConfidenceChange: p.ConfidenceChange,
		ExecutedAtTurn:   p.Turn,
	}

	next := h.Likelihood
	switch p.Result {
	case models.TestSupports:
		next = h.Likelihood + math.Abs(p.ConfidenceChange)
		for _, id := range p.EvidenceObtained {
			if !h.HasSupporting(id) {
				h.SupportingEvidence = append(h.SupportingEvidence, id)
			}
		}
	case models.TestRefutes:
		next = h.Likelihood - math.Abs(p.ConfidenceChange)
		for _, id := range p.EvidenceObtained {
			if !h.HasRefuting(id) {
				h.RefutingEvidence = append(h.RefutingEvidence, id)
			}
		}
	}

	m.UpdateConfidence(h, next, p.Turn, fmt.Sprintf("Test result: %s", p.Result))
	return test
}

// checkStatusTransition applies the automatic transitions to ACTIVE hypotheses.
func (m *Manager) checkStatusTransition(h *models.Hypothesis) {
	if h.Status != models.HypothesisActive {
		return
	}

	supporting := len(h.SupportingEvidence)
	refuting := len(h.RefutingEvidence)

	switch {
	case h.Likelihood >= ValidatedThreshold-epsilon && supporting >= MinSupporting:
		h.Status = models.HypothesisValidated
	case h.Likelihood <= RefutedThreshold+epsilon && refuting >= MinRefuting:
		h.Status = models.HypothesisRefuted
		h.RetirementReason = "Refuted by evidence"
	case h.Likelihood < RetireThreshold:
		h.Status = models.HypothesisRetired
		h.RetirementReason = "Low confidence after testing"
	default:
		return
	}

	metrics.HypothesisTransitions.WithLabelValues(string(h.Status)).Inc()
	m.logger.Info("hypothesis transitioned",
		zap.String("hypothesis_id", h.ID),
		zap.String("status", string(h.Status)),
		zap.Float64("likelihood", h.Likelihood),
		zap.Int("supporting", supporting),
		zap.Int("refuting", refuting),
	)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ─── Anchoring ────────────────────────────────────────────────────────────────

// AnchoringResult reports whether the hypothesis set shows anchoring bias.
type AnchoringResult struct {
	Anchored      bool     `json:"anchored"`
	Reason        string   `json:"reason,omitempty"`
	HypothesisIDs []string `json:"hypothesis_ids,omitempty"`
}

// AlternativeConstraint instructs the hypothesis-generation caller how to diversify.
type AlternativeConstraint struct {
	DominantCategory         string   `json:"dominant_category,omitempty"`
	RetiredIDs               []string `json:"retired_ids,omitempty"`
	ExcludeCategories        []string `json:"exclude_categories,omitempty"`
	RequireDiverseCategories bool     `json:"require_diverse_categories"`
	MinNewHypotheses         int      `json:"min_new_hypotheses"`
}

// RetiredCount is the number of hypotheses retired to break anchoring.
func (c AlternativeConstraint) RetiredCount() int {
	return len(c.RetiredIDs)
}

// DetectAnchoring evaluates three conditions over hypotheses that are neither
// retired nor refuted, returning on the first match:
//  1. one category holds four or more hypotheses
//  2. two or more hypotheses have gone three iterations without progress
//  3. the top hypothesis has stagnated three iterations below 0.70
func (m *Manager) DetectAnchoring(hs []*models.Hypothesis) AnchoringResult {
	live := liveHypotheses(hs)
	if len(live) == 0 {
		return AnchoringResult{}
	}

	order, byCategory := groupByCategory(live)
	for _, category := range order {
		ids := byCategory[category]
		if len(ids) >= AnchoringCategoryLimit {
			return m.anchored(fmt.Sprintf("Anchoring: %d hypotheses in '%s' category", len(ids), category), ids)
		}
	}

	var stalled []string
	for _, h := range live {
		if h.IterationsWithoutProgress >= StalledIterations {
			stalled = append(stalled, h.ID)
		}
	}
	if len(stalled) >= StalledHypothesesLimit {
		return m.anchored(fmt.Sprintf("Anchoring: %d hypotheses without progress for %d+ iterations", len(stalled), StalledIterations), stalled)
	}

	top := live[0]
	for _, h := range live[1:] {
		if h.Likelihood > top.Likelihood {
			top = h
		}
	}
	if top.IterationsWithoutProgress >= StalledIterations && top.Likelihood < TopStagnantConfidence {
		return m.anchored(fmt.Sprintf("Anchoring: Top hypothesis stagnant for %d iterations with only %.0f%% confidence",
			top.IterationsWithoutProgress, top.Likelihood*100), []string{top.ID})
	}

	return AnchoringResult{}
}

func (m *Manager) anchored(reason string, ids []string) AnchoringResult {
	metrics.AnchoringDetected.Inc()
	m.logger.Warn("anchoring detected", zap.String("reason", reason), zap.Strings("hypotheses", ids))
	return AnchoringResult{Anchored: true, Reason: reason, HypothesisIDs: ids}
}

// ForceAlternativeGeneration retires stagnant ACTIVE hypotheses in the most
// represented category and returns the constraint for generating replacements.
// With no live hypotheses it returns an empty constraint.
func (m *Manager) ForceAlternativeGeneration(hs []*models.Hypothesis, turn int) AlternativeConstraint {
	order, byCategory := groupByCategory(liveHypotheses(hs))
	if len(order) == 0 {
		return AlternativeConstraint{}
	}

	dominant := order[0]
	for _, category := range order[1:] {
		if len(byCategory[category]) > len(byCategory[dominant]) {
			dominant = category
		}
	}

	var retired []string
	for _, h := range hs {
		if h.Category != dominant || h.Status != models.HypothesisActive || h.IterationsWithoutProgress < RetireOnAnchoringIters {
			continue
		}
		h.Status = models.HypothesisRetired
		h.RetirementReason = fmt.Sprintf("Anchoring prevention: retired to diversify from %s", dominant)
		h.LastUpdatedTurn = turn
		retired = append(retired, h.ID)
		metrics.HypothesisTransitions.WithLabelValues(string(models.HypothesisRetired)).Inc()
	}

	m.logger.Warn("anchoring prevention triggered",
		zap.String("dominant_category", dominant),
		zap.Int("retired", len(retired)),
	)

	return AlternativeConstraint{
		DominantCategory:         dominant,
		RetiredIDs:               retired,
		ExcludeCategories:        []string{dominant},
		RequireDiverseCategories: true,
		MinNewHypotheses:         MinAlternatives,
	}
}

func liveHypotheses(hs []*models.Hypothesis) []*models.Hypothesis {
	live := make([]*models.Hypothesis, 0, len(hs))
	for _, h := range hs {
		if h.Status != models.HypothesisRetired && h.Status != models.HypothesisRefuted {
			live = append(live, h)
		}
	}
	return live
}

// groupByCategory returns categories in first-seen order with their hypothesis ids.
func groupByCategory(hs []*models.Hypothesis) ([]string, map[string][]string) {
	var order []string
	byCategory := make(map[string][]string)
	for _, h := range hs {
		if _, ok := byCategory[h.Category]; !ok {
			order = append(order, h.Category)
		}
		byCategory[h.Category] = append(byCategory[h.Category], h.ID)
	}
	return order, byCategory
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// Testable returns ACTIVE hypotheses above the testable floor, highest likelihood first.
func (m *Manager) Testable(hs []*models.Hypothesis, limit int) []*models.Hypothesis {
	var out []*models.Hypothesis
	for _, h := range hs {
		if h.Status == models.HypothesisActive && h.Likelihood > TestableFloor {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Likelihood > out[j].Likelihood })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Best returns the highest-likelihood ACTIVE hypothesis, or nil.
func (m *Manager) Best(hs []*models.Hypothesis) *models.Hypothesis {
	return maxWhere(hs, func(h *models.Hypothesis) bool {
		return h.Status == models.HypothesisActive
	})
}

// Validated returns the highest-likelihood VALIDATED hypothesis at or above 0.70, or nil.
func (m *Manager) Validated(hs []*models.Hypothesis) *models.Hypothesis {
	return maxWhere(hs, func(h *models.Hypothesis) bool {
		return h.Status == models.HypothesisValidated && h.Likelihood >= ValidatedThreshold-epsilon
	})
}

// HasValidated reports whether any hypothesis is VALIDATED.
func (m *Manager) HasValidated(hs []*models.Hypothesis) bool {
	for _, h := range hs {
		if h.Status == models.HypothesisValidated {
			return true
		}
	}
	return false
}

// ByCategory returns hypotheses in the given category, in input order.
func (m *Manager) ByCategory(hs []*models.Hypothesis, category string) []*models.Hypothesis {
	var out []*models.Hypothesis
	for _, h := range hs {
		if h.Category == category {
			out = append(out, h)
		}
	}
	return out
}

// RankByLikelihood returns a copy of hs sorted by likelihood, highest first.
func RankByLikelihood(hs []*models.Hypothesis) []*models.Hypothesis {
	out := append([]*models.Hypothesis(nil), hs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Likelihood > out[j].Likelihood })
	return out
}

func maxWhere(hs []*models.Hypothesis, keep func(*models.Hypothesis) bool) *models.Hypothesis {
	var best *models.Hypothesis
	for _, h := range hs {
		if !keep(h) {
			continue
		}
		if best == nil || h.Likelihood > best.Likelihood {
			best = h
		}
	}
	return best
}

// Summary holds aggregate statistics over a hypothesis set.
type Summary struct {
	Total      int `json:"total"`
	Captured   int `json:"captured"`
	Active     int `json:"active"`
	Validated  int `json:"validated"`
	Refuted    int `json:"refuted"`
	Retired    int `json:"retired"`
	Superseded int `json:"superseded"`

	Opportunistic     int `json:"opportunistic"`
	Systematic        int `json:"systematic"`
	ForcedAlternative int `json:"forced_alternative"`

	MaxConfidence float64  `json:"max_confidence"`
	AvgConfidence float64  `json:"avg_confidence"`
	Categories    []string `json:"categories"`
}

// Summarize computes status and generation-mode counts plus ACTIVE confidence stats.
func (m *Manager) Summarize(hs []*models.Hypothesis) Summary {
	s := Summary{Total: len(hs), Categories: make([]string, 0)}
	seen := make(map[string]bool)
	var sum float64

	for _, h := range hs {
		switch h.Status {
		case models.HypothesisCaptured:
			s.Captured++
		case models.HypothesisActive:
			s.Active++
			sum += h.Likelihood
			s.MaxConfidence = math.Max(s.MaxConfidence, h.Likelihood)
			if !seen[h.Category] {
				seen[h.Category] = true
				s.Categories = append(s.Categories, h.Category)
			}
		case models.HypothesisValidated:
			s.Validated++
		case models.HypothesisRefuted:
			s.Refuted++
		case models.HypothesisRetired:
			s.Retired++
		case models.HypothesisSuperseded:
			s.Superseded++
		}

		switch h.GenerationMode {
		case models.GenerationOpportunistic:
			s.Opportunistic++
		case models.GenerationSystematic:
			s.Systematic++
		case models.GenerationForcedAlternative:
			s.ForcedAlternative++
		}
	}

	if s.Active > 0 {
		s.AvgConfidence = sum / float64(s.Active)
	}
	return s
}
