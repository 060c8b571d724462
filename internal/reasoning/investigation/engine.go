// Package investigation drives a case through its lifecycle one turn at a time.
//
//	CONSULTING ──confirmed + decided──▶ INVESTIGATING ──solution_verified──▶ RESOLVED
//	CONSULTING | INVESTIGATING ──CloseCase──▶ CLOSED
//
// The engine consumes structured TurnFacts and never parses free text. It
// mutates the supplied case in place and performs no persistence; callers
// serialize turns per case and save only after ProcessTurn succeeds.
package investigation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-investigator/internal/memory/hierarchical"
	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/hypothesis"
)

const (
	DefaultDegradedModeThreshold = 3
	DefaultEscalationTurns       = 6
	DefaultTestableLimit         = 3

	userSummaryLimit   = 200
	agentSummaryLimit  = 500
	maxActionsRecorded = 5

	defaultDegradedReason = "Investigation limitations encountered"
	defaultRefuteReason   = "Refuted by evidence"
	defaultCloseReason    = "closed"
	resolvedReason        = "resolved"
)

// Options configures an Engine. Hypotheses is required; Memory and
// Interpreter are optional.
type Options struct {
	Hypotheses  *hypothesis.Manager
	Memory      *hierarchical.Manager
	Interpreter Interpreter
	Logger      *zap.Logger
	Clock       func() time.Time

	DegradedModeThreshold int
	EscalationTurns       int
	TestableLimit         int
}

// Engine is the turn-level state machine. It holds no per-case state.
type Engine struct {
	hypotheses  *hypothesis.Manager
	memory      *hierarchical.Manager
	interpreter Interpreter
	logger      *zap.Logger
	now         func() time.Time

	degradedThreshold int
	escalationTurns   int
	testableLimit     int
}

// NewEngine creates an engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Hypotheses == nil {
		opts.Hypotheses = hypothesis.NewManager(opts.Logger, hypothesis.WithClock(opts.Clock))
	}
	if opts.DegradedModeThreshold <= 0 {
		opts.DegradedModeThreshold = DefaultDegradedModeThreshold
	}
	if opts.EscalationTurns <= 0 {
		opts.EscalationTurns = DefaultEscalationTurns
	}
	if opts.TestableLimit <= 0 {
		opts.TestableLimit = DefaultTestableLimit
	}

	return &Engine{
		hypotheses:        opts.Hypotheses,
		memory:            opts.Memory,
		interpreter:       opts.Interpreter,
		logger:            opts.Logger.Named("investigation"),
		now:               opts.Clock,
		degradedThreshold: opts.DegradedModeThreshold,
		escalationTurns:   opts.EscalationTurns,
		testableLimit:     opts.TestableLimit,
	}
}

// TurnResult summarises what one turn changed.
type TurnResult struct {
	CaseID             string            `json:"case_id"`
	TurnNumber         int               `json:"turn_number"`
	PreviousStatus     models.CaseStatus `json:"previous_status"`
	Status             models.CaseStatus `json:"status"`
	StatusTransitioned bool              `json:"status_transitioned"`

	MilestonesCompleted []models.Milestone `json:"milestones_completed"`
	EvidenceAdded       []string           `json:"evidence_added"`
	FilesUploaded       []string           `json:"files_uploaded"`
	HypothesesGenerated []string           `json:"hypotheses_generated"`
	HypothesesValidated []string           `json:"hypotheses_validated"`
	SolutionsProposed   []string           `json:"solutions_proposed"`
	TestableHypotheses  []string           `json:"testable_hypotheses,omitempty"`

	Tests []models.HypothesisTest `json:"tests,omitempty"`

	ProgressMade  bool               `json:"progress_made"`
	Outcome       models.TurnOutcome `json:"outcome"`
	AgentResponse string             `json:"agent_response,omitempty"`

	DegradedEntered bool `json:"degraded_entered"`
	DegradedExited  bool `json:"degraded_exited"`

	Strategy       models.InvestigationStrategy `json:"strategy,omitempty"`
	StrategyReason string                       `json:"strategy_reason,omitempty"`

	StartInvestigation *StartInvestigationSuggestion `json:"start_investigation,omitempty"`
	Resolution         *ResolutionSummary            `json:"resolution,omitempty"`

	Anchoring             *hypothesis.AnchoringResult       `json:"anchoring,omitempty"`
	AlternativeConstraint *hypothesis.AlternativeConstraint `json:"alternative_constraint,omitempty"`
	Conclusion            *WorkingConclusion                `json:"conclusion,omitempty"`
	Escalation            *EscalationSuggestion             `json:"escalation,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

type turnState struct {
	turn   int
	now    time.Time
	facts  *TurnFacts
	result *TurnResult
}

// ProcessTurn applies one conversational turn to c. On error the case may
// be partially mutated and must be discarded by the caller.
func (e *Engine) ProcessTurn(ctx context.Context, c *models.Case, in TurnInput) (result *TurnResult, err error) {
	if c == nil {
		return nil, newEngineError("", "process_turn", ErrNilCase)
	}
	if !c.Status.IsValid() {
		return nil, newEngineError(c.ID, "process_turn", fmt.Errorf("%w: %q", ErrInvalidState, c.Status))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while processing turn",
				zap.String("case_id", c.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result = nil
			err = newEngineError(c.ID, "process_turn", fmt.Errorf("panic: %v", r))
		}
	}()

	facts, err := e.resolveFacts(ctx, c, in)
	if err != nil {
		return nil, newEngineError(c.ID, "interpret", err)
	}

	ts := &turnState{
		turn:  c.CurrentTurn + 1,
		now:   e.now(),
		facts: facts,
	}
	ts.result = &TurnResult{
		CaseID:              c.ID,
		TurnNumber:          ts.turn,
		PreviousStatus:      c.Status,
		MilestonesCompleted: make([]models.Milestone, 0),
		EvidenceAdded:       make([]string, 0),
		FilesUploaded:       make([]string, 0),
		HypothesesGenerated: make([]string, 0),
		HypothesesValidated: make([]string, 0),
		SolutionsProposed:   make([]string, 0),
		AgentResponse:       facts.AgentResponse,
		Timestamp:           ts.now,
	}

	switch c.Status {
	case models.StatusConsulting:
		e.processConsulting(c, in, ts)
	case models.StatusInvestigating:
		if err := e.processInvestigating(ctx, c, in, ts); err != nil {
			return nil, newEngineError(c.ID, "process_turn", err)
		}
	default:
		e.logger.Info("turn on terminal case, investigation state left unchanged",
			zap.String("case_id", c.ID),
			zap.String("status", string(c.Status)),
		)
	}

	e.finishTurn(c, in, ts)

	res := ts.result
	metrics.TurnsTotal.WithLabelValues(string(res.Status), string(res.Outcome)).Inc()
	metrics.TurnDuration.WithLabelValues(string(res.Status)).Observe(time.Since(start).Seconds())

	e.logger.Info("turn processed",
		zap.String("case_id", c.ID),
		zap.Int("turn", res.TurnNumber),
		zap.String("status", string(res.Status)),
		zap.String("outcome", string(res.Outcome)),
		zap.Bool("progress", res.ProgressMade),
		zap.Int("turns_without_progress", c.TurnsWithoutProgress),
	)
	return res, nil
}

func (e *Engine) resolveFacts(ctx context.Context, c *models.Case, in TurnInput) (*TurnFacts, error) {
	if in.Facts != nil {
		return in.Facts, nil
	}
	if e.interpreter == nil {
		return &TurnFacts{}, nil
	}
	facts, err := e.interpreter.Interpret(ctx, c, in)
	if err != nil {
		return nil, err
	}
	if facts == nil {
		return &TurnFacts{}, nil
	}
	return facts, nil
}

// ─── CONSULTING ───────────────────────────────────────────────────────────────

func (e *Engine) processConsulting(c *models.Case, in TurnInput, ts *turnState) {
	f := ts.facts
	cd := &c.Consulting
	changed := false

	for _, a := range in.Attachments {
		a = a.withDefaults()
		c.UploadedFiles = append(c.UploadedFiles, uploadedFile(a, ts.turn, ts.now))
		ts.result.FilesUploaded = append(ts.result.FilesUploaded, a.FileID)
	}

	if s := strings.TrimSpace(f.ProposedProblemStatement); s != "" && !cd.ProblemStatementConfirmed && s != cd.ProposedProblemStatement {
		cd.ProposedProblemStatement = s
		changed = true
	}

	if f.ConfirmsProblemStatement && cd.ProposedProblemStatement != "" && !cd.ProblemStatementConfirmed {
		confirmedAt := ts.now
		cd.ProblemStatementConfirmed = true
		cd.ConfirmedAt = &confirmedAt
		changed = true
		e.logger.Info("problem statement confirmed", zap.String("case_id", c.ID))
	}

	if f.RequestsInvestigation && !cd.ProblemStatementConfirmed {
		cd.InvestigationRequested = true
	}

	if f.RequestsInvestigation && cd.ProblemStatementConfirmed && !cd.DecidedToInvestigate {
		decidedAt := ts.now
		cd.DecidedToInvestigate = true
		cd.DecisionMadeAt = &decidedAt
		changed = true
		e.logger.Info("user decided to investigate", zap.String("case_id", c.ID))
	}

	if cd.ProblemStatementConfirmed && cd.DecidedToInvestigate {
		e.startInvestigation(c, ts)
		changed = true
	}

	ts.result.ProgressMade = changed || len(ts.result.FilesUploaded) > 0
}

func (e *Engine) startInvestigation(c *models.Case, ts *turnState) {
	c.Description = c.Consulting.ProposedProblemStatement
	c.Progress = models.InvestigationProgress{}
	c.ProblemVerification = &models.ProblemVerification{
		SymptomStatement: c.Consulting.ProposedProblemStatement,
		InitializedAt:    ts.now,
	}
	if c.Memory == nil {
		c.Memory = models.NewHierarchicalMemory()
	}

	var since time.Duration
	if started := ts.facts.IncidentStartedAt; started != nil {
		since = ts.now.Sub(*started)
	}
	strategy, reason := SelectStrategy(ts.facts.StrategyPreference, ts.facts.Urgency, since)
	e.setStrategy(c, strategy, reason, ts)

	e.transition(c, models.StatusInvestigating, ts)
}

func (e *Engine) setStrategy(c *models.Case, s models.InvestigationStrategy, reason string, ts *turnState) {
	c.Strategy = s
	ts.result.Strategy = s
	ts.result.StrategyReason = reason
	e.logger.Info("investigation strategy selected",
		zap.String("case_id", c.ID),
		zap.String("strategy", string(s)),
		zap.String("reason", reason),
	)
}

func (e *Engine) transition(c *models.Case, to models.CaseStatus, ts *turnState) {
	from := c.Status
	c.Status = to
	ts.result.StatusTransitioned = true
	metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	e.logger.Info("case status changed",
		zap.String("case_id", c.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("turn", ts.turn),
	)
}

// ─── INVESTIGATING ────────────────────────────────────────────────────────────

func (e *Engine) processInvestigating(ctx context.Context, c *models.Case, in TurnInput, ts *turnState) error {
	if c.Memory == nil {
		c.Memory = models.NewHierarchicalMemory()
	}
	res := ts.result
	before := hypothesisStatuses(c.Hypotheses)
	confidenceBefore := topConfidence(c.Hypotheses)

	category := InferEvidenceCategory(&c.Progress)
	firstNewEvidence := len(c.Evidence)
	for _, a := range in.Attachments {
		a = a.withDefaults()
		c.UploadedFiles = append(c.UploadedFiles, uploadedFile(a, ts.turn, ts.now))
		res.FilesUploaded = append(res.FilesUploaded, a.FileID)

		ev := evidenceFromAttachment(a, category, c.UserID, ts.turn, ts.now)
		c.Evidence = append(c.Evidence, ev)
		res.EvidenceAdded = append(res.EvidenceAdded, ev.ID)
	}

	if s, reason, ok := strategyChange(c.Strategy, ts.facts.StrategyPreference, ts.facts.Urgency); ok {
		e.setStrategy(c, s, reason, ts)
	}

	e.applyMilestones(c, ts)
	e.applyHypothesisFacts(c, ts)
	e.applySolutions(c, ts)

	if c.Progress.IsVerificationComplete() {
		c.Progress.VerificationComplete = true
	}
	if len(res.MilestonesCompleted) > 0 {
		for i := firstNewEvidence; i < len(c.Evidence); i++ {
			c.Evidence[i].AdvancesMilestones = append([]models.Milestone(nil), res.MilestonesCompleted...)
		}
	}

	e.hypothesisHousekeeping(c, before, ts)

	res.ProgressMade = len(res.MilestonesCompleted) > 0 ||
		len(res.EvidenceAdded) > 0 ||
		len(res.HypothesesGenerated) > 0 ||
		len(res.HypothesesValidated) > 0 ||
		len(res.SolutionsProposed) > 0

	if e.memory == nil {
		return nil
	}
	iteration := models.Iteration{
		IterationNumber:      ts.turn,
		Phase:                c.Progress.CurrentStage(),
		StartedAtTurn:        ts.turn,
		DurationTurns:        1,
		StepsCompleted:       stepsCompleted(res),
		NewInsights:          append(make([]string, 0, len(ts.facts.Insights)), ts.facts.Insights...),
		NewEvidenceCollected: len(res.EvidenceAdded),
		ConfidenceDelta:      topConfidence(c.Hypotheses) - confidenceBefore,
		MadeProgress:         res.ProgressMade,
	}
	if err := e.memory.UpdateMemory(ctx, c.Memory, iteration, ts.turn); err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return nil
}

func (e *Engine) applyMilestones(c *models.Case, ts *turnState) {
	for _, u := range ts.facts.MilestoneUpdates {
		if !u.Milestone.IsValid() {
			e.logger.Warn("ignoring unknown milestone",
				zap.String("case_id", c.ID),
				zap.String("milestone", string(u.Milestone)),
			)
			continue
		}
		if u.Milestone == models.MilestoneRootCauseIdentified {
			if u.RootCauseConfidence > 0 {
				c.Progress.RootCauseConfidence = min(u.RootCauseConfidence, 1)
			}
			if u.RootCauseMethod != "" {
				c.Progress.RootCauseMethod = u.RootCauseMethod
			}
		}
		if c.Progress.Complete(u.Milestone) {
			ts.result.MilestonesCompleted = append(ts.result.MilestonesCompleted, u.Milestone)
			e.logger.Info("milestone completed",
				zap.String("case_id", c.ID),
				zap.String("milestone", string(u.Milestone)),
				zap.Int("turn", ts.turn),
			)
		}
	}
}

func (e *Engine) applyHypothesisFacts(c *models.Case, ts *turnState) {
	f := ts.facts
	res := ts.result
	exhausted := hypothesisSpaceExhausted(c.Hypotheses)

	for _, p := range f.NewHypotheses {
		if strings.TrimSpace(p.Statement) == "" {
			e.logger.Warn("ignoring hypothesis proposal without statement", zap.String("case_id", c.ID))
			continue
		}
		h := e.hypotheses.Create(hypothesis.CreateParams{
			Statement:             p.Statement,
			Category:              p.Category,
			InitialLikelihood:     p.Likelihood,
			Turn:                  ts.turn,
			Mode:                  p.Mode,
			TriggeringObservation: p.TriggeringObservation,
			RequiredEvidence:      p.RequiredEvidence,
			CreatedAt:             ts.now,
		})
		c.Hypotheses = append(c.Hypotheses, h)
		res.HypothesesGenerated = append(res.HypothesesGenerated, h.ID)
	}
	if exhausted && len(res.HypothesesGenerated) > 0 {
		c.LoopBackCount++
		e.logger.Info("looped back to hypothesis generation",
			zap.String("case_id", c.ID),
			zap.Int("loop_backs", c.LoopBackCount),
		)
	}

	for _, id := range f.PromoteHypotheses {
		if h := e.lookupHypothesis(c, id, "promote"); h != nil {
			e.hypotheses.Promote(h, ts.turn)
		}
	}

	for _, l := range f.EvidenceLinks {
		h := e.lookupHypothesis(c, l.HypothesisID, "link_evidence")
		if h == nil || l.EvidenceID == "" {
			continue
		}
		e.hypotheses.LinkEvidence(h, l.EvidenceID, l.Supports, ts.turn)
	}

	for _, t := range f.HypothesisTests {
		h := e.lookupHypothesis(c, t.HypothesisID, "record_test")
		if h == nil {
			continue
		}
		res.Tests = append(res.Tests, e.hypotheses.RecordTest(h, hypothesis.TestParams{
			Description:      t.Description,
			EvidenceRequired: t.EvidenceRequired,
			EvidenceObtained: t.EvidenceObtained,
			Result:           t.Result,
			ConfidenceChange: t.ConfidenceChange,
			Turn:             ts.turn,
		}))
	}

	for _, r := range f.RefutedHypotheses {
		h := e.lookupHypothesis(c, r.HypothesisID, "refute")
		if h == nil {
			continue
		}
		reason := r.Reason
		if reason == "" {
			reason = defaultRefuteReason
		}
		e.hypotheses.Refute(h, ts.turn, r.EvidenceIDs, reason)
	}

	for _, s := range f.SupersededHypotheses {
		if h := e.lookupHypothesis(c, s.HypothesisID, "supersede"); h != nil {
			e.hypotheses.Supersede(h, s.SupersededBy, ts.turn)
		}
	}
}

func (e *Engine) lookupHypothesis(c *models.Case, id, op string) *models.Hypothesis {
	h := c.FindHypothesis(id)
	if h == nil {
		e.logger.Warn("unknown hypothesis referenced",
			zap.String("case_id", c.ID),
			zap.String("hypothesis_id", id),
			zap.String("op", op),
		)
	}
	return h
}

func (e *Engine) applySolutions(c *models.Case, ts *turnState) {
	for _, p := range ts.facts.Solutions {
		if strings.TrimSpace(p.Title) == "" {
			e.logger.Warn("ignoring solution proposal without title", zap.String("case_id", c.ID))
			continue
		}
		kind := p.Type
		if kind == "" {
			kind = models.SolutionMitigation
		}
		sol := models.Solution{
			ID:              models.NewID("sol"),
			Title:           p.Title,
			Description:     p.Description,
			Type:            kind,
			ProposedAtTurn:  ts.turn,
			ProposedAt:      ts.now,
			AddressesCauses: append([]string(nil), p.AddressesCauses...),
		}
		c.Solutions = append(c.Solutions, sol)
		ts.result.SolutionsProposed = append(ts.result.SolutionsProposed, sol.ID)
	}

	if len(ts.result.SolutionsProposed) > 0 && c.Progress.Complete(models.MilestoneSolutionProposed) {
		ts.result.MilestonesCompleted = append(ts.result.MilestonesCompleted, models.MilestoneSolutionProposed)
	}
}

// hypothesisHousekeeping decays stagnant hypotheses, breaks anchoring and
// records hypotheses validated during this turn.
func (e *Engine) hypothesisHousekeeping(c *models.Case, before map[string]models.HypothesisStatus, ts *turnState) {
	res := ts.result

	for _, h := range c.Hypotheses {
		if h.Status == models.HypothesisActive {
			e.hypotheses.ApplyConfidenceDecay(h, ts.turn)
		}
	}

	if anchoring := e.hypotheses.DetectAnchoring(c.Hypotheses); anchoring.Anchored {
		constraint := e.hypotheses.ForceAlternativeGeneration(c.Hypotheses, ts.turn)
		res.Anchoring = &anchoring
		res.AlternativeConstraint = &constraint
	}

	for _, h := range c.Hypotheses {
		if h.Status != models.HypothesisValidated || before[h.ID] == models.HypothesisValidated {
			continue
		}
		res.HypothesesValidated = append(res.HypothesesValidated, h.ID)
		if e.memory != nil {
			e.memory.AddPersistentInsight(c.Memory, fmt.Sprintf("Validated: %s (%.0f%% confidence)", h.Statement, h.Likelihood*100))
		}
	}

	for _, h := range e.hypotheses.Testable(c.Hypotheses, e.testableLimit) {
		res.TestableHypotheses = append(res.TestableHypotheses, h.ID)
	}
}

// ─── Bookkeeping ──────────────────────────────────────────────────────────────

func (e *Engine) finishTurn(c *models.Case, in TurnInput, ts *turnState) {
	res := ts.result
	c.CurrentTurn = ts.turn
	res.Outcome = classifyOutcome(res)

	c.TurnHistory = append(c.TurnHistory, models.TurnProgress{
		TurnNumber:           ts.turn,
		Timestamp:            ts.now,
		Status:               c.Status,
		MilestonesCompleted:  append([]models.Milestone(nil), res.MilestonesCompleted...),
		EvidenceAdded:        append([]string(nil), res.EvidenceAdded...),
		FilesUploaded:        append([]string(nil), res.FilesUploaded...),
		HypothesesGenerated:  append([]string(nil), res.HypothesesGenerated...),
		HypothesesValidated:  append([]string(nil), res.HypothesesValidated...),
		SolutionsProposed:    append([]string(nil), res.SolutionsProposed...),
		ProgressMade:         res.ProgressMade,
		ActionsTaken:         headStrings(ts.facts.AttemptedActions, maxActionsRecorded),
		Outcome:              res.Outcome,
		UserMessageSummary:   truncate(in.UserMessage, userSummaryLimit),
		AgentResponseSummary: truncate(ts.facts.AgentResponse, agentSummaryLimit),
	})

	if res.ProgressMade {
		c.TurnsWithoutProgress = 0
		if c.DegradedMode != nil {
			e.exitDegradedMode(c)
			res.DegradedExited = true
		}
	} else {
		c.TurnsWithoutProgress++
		if c.DegradedMode != nil {
			c.DegradedMode.AttemptedActions = append(c.DegradedMode.AttemptedActions, ts.facts.AttemptedActions...)
		}
	}

	// a progress turn never enters degraded mode, even right after leaving it
	if !res.ProgressMade {
		e.checkDegradedEntry(c, res)
	}

	if c.Status == models.StatusInvestigating && c.Progress.SolutionVerified {
		resolvedAt := ts.now
		closedAt := ts.now
		e.transition(c, models.StatusResolved, ts)
		c.ResolvedAt = &resolvedAt
		c.ClosedAt = &closedAt
		c.ClosureReason = resolvedReason
		res.Resolution = summarizeResolution(c)
	}

	c.UpdatedAt = ts.now
	c.LastActivityAt = ts.now

	res.Status = c.Status
	if c.Status == models.StatusInvestigating {
		res.Conclusion = GenerateWorkingConclusion(c, ts.turn)
	}
	res.StartInvestigation = SuggestStartInvestigation(c, ts.turn)
	res.Escalation = suggestEscalation(c, e.escalationTurns)
}

func (e *Engine) checkDegradedEntry(c *models.Case, res *TurnResult) {
	if !c.Status.IsTerminal() && c.DegradedMode == nil && c.TurnsWithoutProgress >= e.degradedThreshold {
		reason := fmt.Sprintf("No progress for %d consecutive turns", c.TurnsWithoutProgress)
		res.DegradedEntered = e.EnterDegradedMode(c, models.DegradedNoProgress, reason)
	}

	if c.Status == models.StatusInvestigating && c.DegradedMode == nil && hypothesisSpaceExhausted(c.Hypotheses) {
		reason := fmt.Sprintf("All %d hypotheses refuted, retired or superseded", len(c.Hypotheses))
		res.DegradedEntered = e.EnterDegradedMode(c, models.DegradedHypothesisSpaceExhausted, reason)
	}
}

// EnterDegradedMode flags c as degraded. An already active degraded mode is
// never overwritten: the attempt is logged and ignored.
func (e *Engine) EnterDegradedMode(c *models.Case, modeType models.DegradedModeType, reason string) bool {
	if c.DegradedMode != nil {
		metrics.DegradedModeEvents.WithLabelValues("conflict").Inc()
		e.logger.Warn("degraded mode already active, ignoring entry",
			zap.String("case_id", c.ID),
			zap.String("active", string(c.DegradedMode.ModeType)),
			zap.String("requested", string(modeType)),
		)
		return false
	}
	if reason == "" {
		reason = defaultDegradedReason
	}

	c.DegradedMode = &models.DegradedMode{
		ModeType:         modeType,
		Reason:           reason,
		EnteredAt:        e.now(),
		EnteredAtTurn:    c.CurrentTurn,
		AttemptedActions: make([]string, 0),
	}
	metrics.DegradedModeEvents.WithLabelValues("entered").Inc()
	e.logger.Warn("entered degraded mode",
		zap.String("case_id", c.ID),
		zap.String("mode", string(modeType)),
		zap.String("reason", reason),
		zap.Int("turn", c.CurrentTurn),
	)
	return true
}

func (e *Engine) exitDegradedMode(c *models.Case) {
	mode := c.DegradedMode
	c.DegradedMode = nil
	metrics.DegradedModeEvents.WithLabelValues("exited").Inc()
	e.logger.Info("exited degraded mode",
		zap.String("case_id", c.ID),
		zap.String("mode", string(mode.ModeType)),
		zap.Int("turns_degraded", c.CurrentTurn-mode.EnteredAtTurn),
	)
}

// CloseCase moves a non-terminal case to CLOSED.
func (e *Engine) CloseCase(c *models.Case, reason string) error {
	if c == nil {
		return newEngineError("", "close_case", ErrNilCase)
	}
	if !c.Status.IsValid() {
		return newEngineError(c.ID, "close_case", fmt.Errorf("%w: %q", ErrInvalidState, c.Status))
	}
	if c.Status.IsTerminal() {
		return newEngineError(c.ID, "close_case", ErrCaseTerminal)
	}
	if reason == "" {
		reason = defaultCloseReason
	}

	now := e.now()
	from := c.Status
	c.Status = models.StatusClosed
	c.ClosedAt = &now
	c.ClosureReason = reason
	c.UpdatedAt = now
	c.LastActivityAt = now

	metrics.StatusTransitions.WithLabelValues(string(from), string(models.StatusClosed)).Inc()
	e.logger.Info("case closed",
		zap.String("case_id", c.ID),
		zap.String("from", string(from)),
		zap.String("reason", reason),
	)
	return nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func classifyOutcome(res *TurnResult) models.TurnOutcome {
	switch {
	case len(res.MilestonesCompleted) > 0:
		return models.OutcomeMilestoneCompleted
	case len(res.EvidenceAdded) > 0 || len(res.FilesUploaded) > 0:
		return models.OutcomeDataProvided
	default:
		return models.OutcomeConversation
	}
}

func hypothesisStatuses(hs []*models.Hypothesis) map[string]models.HypothesisStatus {
	out := make(map[string]models.HypothesisStatus, len(hs))
	for _, h := range hs {
		out[h.ID] = h.Status
	}
	return out
}

// topConfidence is the highest likelihood among ACTIVE and VALIDATED hypotheses.
func topConfidence(hs []*models.Hypothesis) float64 {
	best := 0.0
	for _, h := range hs {
		if (h.Status == models.HypothesisActive || h.Status == models.HypothesisValidated) && h.Likelihood > best {
			best = h.Likelihood
		}
	}
	return best
}

func hypothesisSpaceExhausted(hs []*models.Hypothesis) bool {
	if len(hs) == 0 {
		return false
	}
	for _, h := range hs {
		switch h.Status {
		case models.HypothesisCaptured, models.HypothesisActive, models.HypothesisValidated:
			return false
		}
	}
	return true
}

func stepsCompleted(res *TurnResult) []string {
	steps := make([]string, 0, len(res.MilestonesCompleted)+len(res.SolutionsProposed))
	for _, m := range res.MilestonesCompleted {
		steps = append(steps, string(m))
	}
	for _, id := range res.SolutionsProposed {
		steps = append(steps, "proposed "+id)
	}
	return steps
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

func headStrings(s []string, n int) []string {
	if len(s) < n {
		n = len(s)
	}
	out := make([]string, n)
	copy(out, s[:n])
	return out
}
