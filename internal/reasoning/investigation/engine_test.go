package investigation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kubilitics/kubilitics-investigator/internal/memory/hierarchical"
	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/hypothesis"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, interpreter Interpreter) *Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewEngine(Options{
		Hypotheses:  hypothesis.NewManager(logger),
		Memory:      hierarchical.NewManager(hierarchical.DefaultSettings(), nil, logger),
		Interpreter: interpreter,
		Logger:      logger,
		Clock:       func() time.Time { return fixedNow },
	})
}

func consultingCase() *models.Case {
	return models.NewCase("case_1", "user_1", "Checkout errors", fixedNow)
}

func investigatingCase() *models.Case {
	c := consultingCase()
	c.Status = models.StatusInvestigating
	c.Memory = models.NewHierarchicalMemory()
	return c
}

func processFacts(t *testing.T, e *Engine, c *models.Case, facts TurnFacts) *TurnResult {
	t.Helper()
	res, err := e.ProcessTurn(context.Background(), c, TurnInput{UserMessage: "msg", Facts: &facts})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

type interpreterFunc func(ctx context.Context, c *models.Case, in TurnInput) (*TurnFacts, error)

func (f interpreterFunc) Interpret(ctx context.Context, c *models.Case, in TurnInput) (*TurnFacts, error) {
	return f(ctx, c, in)
}

// ─── CONSULTING ───────────────────────────────────────────────────────────────

func TestConsultingConfirmThenInvestigate(t *testing.T) {
	e := newTestEngine(t, nil)
	c := consultingCase()
	c.Consulting.ProposedProblemStatement = "Checkout API returns 502 since the 14:00 deploy"
	c.Progress.SymptomVerified = true

	res := processFacts(t, e, c, TurnFacts{ConfirmsProblemStatement: true})
	assert.True(t, c.Consulting.ProblemStatementConfirmed)
	require.NotNil(t, c.Consulting.ConfirmedAt)
	assert.Equal(t, models.StatusConsulting, c.Status)
	assert.False(t, res.StatusTransitioned)
	assert.True(t, res.ProgressMade)
	assert.Equal(t, 1, c.CurrentTurn)

	res = processFacts(t, e, c, TurnFacts{RequestsInvestigation: true})
	assert.True(t, c.Consulting.DecidedToInvestigate)
	assert.Equal(t, models.StatusInvestigating, c.Status)
	assert.Equal(t, "Checkout API returns 502 since the 14:00 deploy", c.Description)
	assert.Empty(t, cmp.Diff(models.InvestigationProgress{}, c.Progress))
	require.NotNil(t, c.ProblemVerification)
	assert.Equal(t, c.Description, c.ProblemVerification.SymptomStatement)
	assert.NotNil(t, c.Memory)

	assert.True(t, res.StatusTransitioned)
	assert.Equal(t, models.StatusConsulting, res.PreviousStatus)
	assert.Equal(t, models.StatusInvestigating, res.Status)
	assert.Equal(t, 2, res.TurnNumber)
	require.Len(t, c.TurnHistory, 2)
	assert.Equal(t, 0, c.TurnsWithoutProgress)
}

func TestConsultingSignalsRequirePreconditions(t *testing.T) {
	e := newTestEngine(t, nil)
	c := consultingCase()

	res := processFacts(t, e, c, TurnFacts{ConfirmsProblemStatement: true, RequestsInvestigation: true})
	assert.False(t, c.Consulting.ProblemStatementConfirmed, "nothing to confirm without a proposed statement")
	assert.False(t, c.Consulting.DecidedToInvestigate, "decision requires prior confirmation")
	assert.False(t, res.ProgressMade)
	assert.Equal(t, 1, c.TurnsWithoutProgress)

	processFacts(t, e, c, TurnFacts{ProposedProblemStatement: "  Pods crash-looping in payments  "})
	assert.Equal(t, "Pods crash-looping in payments", c.Consulting.ProposedProblemStatement)

	processFacts(t, e, c, TurnFacts{RequestsInvestigation: true})
	assert.False(t, c.Consulting.DecidedToInvestigate)
	assert.Equal(t, models.StatusConsulting, c.Status)
}

func TestConsultingConfirmAndDecideInOneTurn(t *testing.T) {
	e := newTestEngine(t, nil)
	c := consultingCase()

	res := processFacts(t, e, c, TurnFacts{
		ProposedProblemStatement: "Disk pressure on node pool b",
		ConfirmsProblemStatement: true,
		RequestsInvestigation:    true,
	})
	assert.Equal(t, models.StatusInvestigating, c.Status)
	assert.Equal(t, "Disk pressure on node pool b", c.Description)
	assert.True(t, res.StatusTransitioned)
}

func TestConsultingAttachmentsAreFilesOnly(t *testing.T) {
	e := newTestEngine(t, nil)
	c := consultingCase()

	res, err := e.ProcessTurn(context.Background(), c, TurnInput{
		UserMessage: "here are the logs",
		Attachments: []Attachment{{Size: 2048}},
	})
	require.NoError(t, err)

	require.Len(t, c.UploadedFiles, 1)
	assert.Empty(t, c.Evidence)
	f := c.UploadedFiles[0]
	assert.True(t, strings.HasPrefix(f.FileID, "file_"))
	assert.Equal(t, "unknown", f.Filename)
	assert.Equal(t, "unknown", f.DataType)
	assert.Equal(t, "file_upload", f.SourceType)
	assert.Equal(t, f.FileID, f.ContentRef)
	assert.Equal(t, int64(2048), f.SizeBytes)
	assert.Equal(t, 1, f.UploadedAtTurn)

	assert.Equal(t, []string{f.FileID}, res.FilesUploaded)
	assert.Equal(t, models.OutcomeDataProvided, res.Outcome)
	assert.True(t, res.ProgressMade)
}

// ─── INVESTIGATING ────────────────────────────────────────────────────────────

func TestInvestigatingAttachmentsBecomeEvidence(t *testing.T) {
	tests := []struct {
		name     string
		progress models.InvestigationProgress
		want     models.EvidenceCategory
	}{
		{name: "verification incomplete", progress: models.InvestigationProgress{SymptomVerified: true}, want: models.EvidenceSymptom},
		{
			name: "verification complete",
			progress: models.InvestigationProgress{
				SymptomVerified: true, ScopeAssessed: true, TimelineEstablished: true, ChangesIdentified: true,
			},
			want: models.EvidenceCausal,
		},
		{
			name: "solution proposed",
			progress: models.InvestigationProgress{
				SymptomVerified: true, ScopeAssessed: true, TimelineEstablished: true, ChangesIdentified: true,
				SolutionProposed: true,
			},
			want: models.EvidenceResolution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			c := investigatingCase()
			c.Progress = tt.progress

			res, err := e.ProcessTurn(context.Background(), c, TurnInput{
				Attachments: []Attachment{{
					FileID:     "file_abc",
					Filename:   "app.log",
					Size:       512,
					DataType:   "log",
					SourceType: "paste",
					S3URI:      "s3://bucket/app.log",
				}},
			})
			require.NoError(t, err)

			require.Len(t, c.UploadedFiles, 1)
			require.Len(t, c.Evidence, 1)
			ev := c.Evidence[0]
			assert.Equal(t, tt.want, ev.Category)
			assert.Equal(t, "Uploaded file: app.log", ev.Summary)
			assert.Equal(t, "s3://bucket/app.log", ev.ContentRef)
			assert.Equal(t, "pending", ev.PreprocessingMethod)
			assert.Equal(t, "user_1", ev.CollectedBy)
			assert.Equal(t, "paste", ev.SourceType)
			assert.True(t, strings.HasPrefix(ev.ID, "ev_"))

			assert.Equal(t, []string{ev.ID}, res.EvidenceAdded)
			assert.Equal(t, []string{"file_abc"}, res.FilesUploaded)
			assert.Equal(t, models.OutcomeDataProvided, res.Outcome)
		})
	}
}

func TestMilestonesAreMonotonic(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	res := processFacts(t, e, c, TurnFacts{MilestoneUpdates: []MilestoneUpdate{
		{Milestone: models.MilestoneSymptomVerified},
		{Milestone: models.MilestoneScopeAssessed},
		{Milestone: "not_a_milestone"},
	}})
	assert.Equal(t, []models.Milestone{models.MilestoneSymptomVerified, models.MilestoneScopeAssessed}, res.MilestonesCompleted)
	assert.Equal(t, models.OutcomeMilestoneCompleted, res.Outcome)
	assert.False(t, c.Progress.VerificationComplete)

	res = processFacts(t, e, c, TurnFacts{MilestoneUpdates: []MilestoneUpdate{
		{Milestone: models.MilestoneSymptomVerified},
	}})
	assert.Empty(t, res.MilestonesCompleted, "re-completing a milestone is not progress")
	assert.False(t, res.ProgressMade)

	processFacts(t, e, c, TurnFacts{})
	assert.True(t, c.Progress.SymptomVerified)
	assert.True(t, c.Progress.ScopeAssessed)

	processFacts(t, e, c, TurnFacts{MilestoneUpdates: []MilestoneUpdate{
		{Milestone: models.MilestoneTimelineEstablished},
		{Milestone: models.MilestoneChangesIdentified},
		{Milestone: models.MilestoneRootCauseIdentified, RootCauseConfidence: 0.85, RootCauseMethod: "log correlation"},
	}})
	assert.True(t, c.Progress.VerificationComplete)
	assert.InDelta(t, 0.85, c.Progress.RootCauseConfidence, 1e-9)
	assert.Equal(t, "log correlation", c.Progress.RootCauseMethod)
	assert.Equal(t, models.StageSolution, c.Progress.CurrentStage())
}

func TestMilestonesRecordedOnNewEvidence(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	_, err := e.ProcessTurn(context.Background(), c, TurnInput{
		Attachments: []Attachment{{Filename: "events.txt"}},
		Facts: &TurnFacts{MilestoneUpdates: []MilestoneUpdate{
			{Milestone: models.MilestoneTimelineEstablished},
		}},
	})
	require.NoError(t, err)
	require.Len(t, c.Evidence, 1)
	assert.Equal(t, []models.Milestone{models.MilestoneTimelineEstablished}, c.Evidence[0].AdvancesMilestones)
}

func TestSolutionProposalCompletesMilestone(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	res := processFacts(t, e, c, TurnFacts{Solutions: []SolutionProposal{
		{Title: "Roll back deploy 4812", AddressesCauses: []string{"hyp_1"}},
		{Title: ""},
	}})
	require.Len(t, c.Solutions, 1)
	sol := c.Solutions[0]
	assert.Equal(t, models.SolutionMitigation, sol.Type)
	assert.Equal(t, 1, sol.ProposedAtTurn)
	assert.Equal(t, []string{sol.ID}, res.SolutionsProposed)
	assert.Equal(t, []models.Milestone{models.MilestoneSolutionProposed}, res.MilestonesCompleted)
	assert.True(t, c.Progress.SolutionProposed)
}

func TestSolutionVerifiedResolvesCase(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	res := processFacts(t, e, c, TurnFacts{MilestoneUpdates: []MilestoneUpdate{
		{Milestone: models.MilestoneSolutionVerified},
	}})

	assert.Equal(t, models.StatusResolved, c.Status)
	assert.Equal(t, "resolved", c.ClosureReason)
	require.NotNil(t, c.ResolvedAt)
	require.NotNil(t, c.ClosedAt)
	assert.Equal(t, fixedNow, *c.ResolvedAt)
	assert.True(t, res.StatusTransitioned)
	assert.Equal(t, models.StatusResolved, res.Status)
	assert.Nil(t, res.Conclusion)
}

func TestHypothesisValidatedThroughEvidence(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	res := processFacts(t, e, c, TurnFacts{NewHypotheses: []HypothesisProposal{
		{Statement: "Connection pool exhausted", Category: "database", Likelihood: 0.5},
		{Statement: "   "},
	}})
	require.Len(t, res.HypothesesGenerated, 1)
	require.Len(t, c.Hypotheses, 1)
	h := c.Hypotheses[0]
	assert.Equal(t, fixedNow, h.CreatedAt)
	assert.Equal(t, models.HypothesisActive, h.Status)
	assert.Equal(t, []string{h.ID}, res.TestableHypotheses)
	require.NotNil(t, res.Conclusion)
	assert.Equal(t, "Connection pool exhausted", res.Conclusion.Statement)

	res = processFacts(t, e, c, TurnFacts{EvidenceLinks: []EvidenceLink{
		{HypothesisID: h.ID, EvidenceID: "ev_1", Supports: true},
		{HypothesisID: h.ID, EvidenceID: "ev_2", Supports: true},
		{HypothesisID: "hyp_missing", EvidenceID: "ev_3", Supports: true},
	}})

	assert.InDelta(t, 0.80, h.Likelihood, 1e-9)
	assert.Equal(t, models.HypothesisValidated, h.Status)
	assert.Equal(t, []string{h.ID}, res.HypothesesValidated)
	assert.True(t, res.ProgressMade)
	assert.Equal(t, []string{"Validated: Connection pool exhausted (80% confidence)"}, c.Memory.PersistentInsights)
	assert.Equal(t, ConfidenceConfident, res.Conclusion.Level)
	assert.True(t, res.Conclusion.CanProceedWithSolution)

	res = processFacts(t, e, c, TurnFacts{})
	assert.Empty(t, res.HypothesesValidated, "already validated hypotheses are not reported again")
}

func TestHypothesisPromoteTestRefuteSupersede(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	processFacts(t, e, c, TurnFacts{NewHypotheses: []HypothesisProposal{
		{Statement: "DNS flapping", Category: "network", Likelihood: 0.4, Mode: models.GenerationOpportunistic},
		{Statement: "Bad config push", Category: "config", Likelihood: 0.5},
		{Statement: "Memory leak", Category: "application", Likelihood: 0.5},
	}})
	dns, cfg, leak := c.Hypotheses[0], c.Hypotheses[1], c.Hypotheses[2]
	assert.Equal(t, models.HypothesisCaptured, dns.Status)

	res := processFacts(t, e, c, TurnFacts{
		PromoteHypotheses: []string{dns.ID},
		HypothesisTests: []HypothesisTestResult{{
			HypothesisID:     cfg.ID,
			Description:      "diff config against last known good",
			EvidenceObtained: []string{"ev_diff"},
			Result:           models.TestSupports,
			ConfidenceChange: 0.1,
		}},
		RefutedHypotheses:    []Refutation{{HypothesisID: leak.ID, EvidenceIDs: []string{"ev_heap"}}},
		SupersededHypotheses: []Supersession{{HypothesisID: dns.ID, SupersededBy: cfg.ID}},
	})

	assert.Equal(t, models.HypothesisSuperseded, dns.Status)
	assert.Equal(t, cfg.ID, dns.SupersededBy)
	assert.InDelta(t, 0.6, cfg.Likelihood, 1e-9)
	assert.Equal(t, []string{"ev_diff"}, cfg.SupportingEvidence)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, models.TestSupports, res.Tests[0].Result)
	assert.Equal(t, 2, res.Tests[0].ExecutedAtTurn)

	assert.Equal(t, models.HypothesisRefuted, leak.Status)
	assert.Equal(t, "Refuted by evidence", leak.RetirementReason)
	assert.Zero(t, leak.Likelihood)
}

func TestAnchoringReturnsConstraint(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	proposals := make([]HypothesisProposal, 0, 4)
	for _, s := range []string{"MTU mismatch", "Packet loss", "DNS timeout", "LB misroute"} {
		proposals = append(proposals, HypothesisProposal{Statement: s, Category: "network", Likelihood: 0.5})
	}

	res := processFacts(t, e, c, TurnFacts{NewHypotheses: proposals})
	require.NotNil(t, res.Anchoring)
	assert.True(t, res.Anchoring.Anchored)
	assert.Len(t, res.Anchoring.HypothesisIDs, 4)
	require.NotNil(t, res.AlternativeConstraint)
	assert.Equal(t, "network", res.AlternativeConstraint.DominantCategory)
	assert.Equal(t, []string{"network"}, res.AlternativeConstraint.ExcludeCategories)
	assert.Equal(t, 2, res.AlternativeConstraint.MinNewHypotheses)
	assert.Zero(t, res.AlternativeConstraint.RetiredCount(), "fresh hypotheses are not stagnant")
	assert.Len(t, res.TestableHypotheses, DefaultTestableLimit)
}

// ─── Degraded mode ────────────────────────────────────────────────────────────

func TestDegradedModeEntryAndExit(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	for i := 1; i <= 2; i++ {
		res := processFacts(t, e, c, TurnFacts{})
		assert.False(t, res.DegradedEntered)
		assert.Equal(t, i, c.TurnsWithoutProgress)
	}

	res := processFacts(t, e, c, TurnFacts{})
	assert.True(t, res.DegradedEntered)
	require.NotNil(t, c.DegradedMode)
	assert.Equal(t, models.DegradedNoProgress, c.DegradedMode.ModeType)
	assert.Equal(t, "No progress for 3 consecutive turns", c.DegradedMode.Reason)
	assert.Equal(t, 3, c.DegradedMode.EnteredAtTurn)
	assert.Equal(t, fixedNow, c.DegradedMode.EnteredAt)

	res = processFacts(t, e, c, TurnFacts{AttemptedActions: []string{"asked for pod events"}})
	assert.False(t, res.DegradedEntered)
	assert.Equal(t, []string{"asked for pod events"}, c.DegradedMode.AttemptedActions)
	assert.Equal(t, []string{"asked for pod events"}, c.TurnHistory[3].ActionsTaken)

	res, err := e.ProcessTurn(context.Background(), c, TurnInput{Attachments: []Attachment{{Filename: "events.yaml"}}})
	require.NoError(t, err)
	assert.True(t, res.DegradedExited)
	assert.Nil(t, c.DegradedMode)
	assert.Equal(t, 0, c.TurnsWithoutProgress)
}

func TestEnterDegradedModeConflictIsNoOp(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()
	conflicts := testutil.ToFloat64(metrics.DegradedModeEvents.WithLabelValues("conflict"))

	require.True(t, e.EnterDegradedMode(c, models.DegradedLimitedData, ""))
	assert.Equal(t, "Investigation limitations encountered", c.DegradedMode.Reason)

	assert.False(t, e.EnterDegradedMode(c, models.DegradedNoProgress, "other"))
	assert.Equal(t, models.DegradedLimitedData, c.DegradedMode.ModeType)
	assert.Equal(t, conflicts+1, testutil.ToFloat64(metrics.DegradedModeEvents.WithLabelValues("conflict")))
}

func TestHypothesisSpaceExhausted(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	processFacts(t, e, c, TurnFacts{NewHypotheses: []HypothesisProposal{
		{Statement: "Quota exceeded", Category: "capacity", Likelihood: 0.5},
	}})
	h := c.Hypotheses[0]

	res := processFacts(t, e, c, TurnFacts{RefutedHypotheses: []Refutation{{HypothesisID: h.ID, Reason: "quota at 20%"}}})
	assert.True(t, res.DegradedEntered)
	require.NotNil(t, c.DegradedMode)
	assert.Equal(t, models.DegradedHypothesisSpaceExhausted, c.DegradedMode.ModeType)
	require.NotNil(t, res.Escalation)
	assert.Equal(t, models.DegradedHypothesisSpaceExhausted, res.Escalation.ModeType)
	require.NotNil(t, res.Conclusion)
	assert.Equal(t, "All 1 hypotheses refuted - investigation requires loop-back", res.Conclusion.Statement)
}

func TestProgressAfterExhaustionLeavesDegradedMode(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	processFacts(t, e, c, TurnFacts{NewHypotheses: []HypothesisProposal{
		{Statement: "Quota exceeded", Category: "capacity", Likelihood: 0.5},
	}})
	h := c.Hypotheses[0]
	res := processFacts(t, e, c, TurnFacts{RefutedHypotheses: []Refutation{{HypothesisID: h.ID}}})
	require.True(t, res.DegradedEntered)

	res, err := e.ProcessTurn(context.Background(), c, TurnInput{
		Attachments: []Attachment{{Filename: "quota.txt", Size: 64}},
	})
	require.NoError(t, err)
	assert.True(t, res.ProgressMade)
	assert.True(t, res.DegradedExited)
	assert.False(t, res.DegradedEntered)
	assert.Nil(t, c.DegradedMode, "every hypothesis is still ruled out but the turn made progress")
	assert.Nil(t, res.Escalation)

	res = processFacts(t, e, c, TurnFacts{})
	assert.True(t, res.DegradedEntered, "the next turn without progress re-enters")
	require.NotNil(t, c.DegradedMode)
	assert.Equal(t, 4, c.DegradedMode.EnteredAtTurn)
	assert.Zero(t, c.LoopBackCount)
}

func TestLoopBacksSuggestEscalation(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	var res *TurnResult
	for i := 0; i < MaxLoopBacks+1; i++ {
		res = processFacts(t, e, c, TurnFacts{NewHypotheses: []HypothesisProposal{
			{Statement: "Theory " + string(rune('A'+i)), Category: "config", Likelihood: 0.5},
		}})
		assert.Equal(t, i, c.LoopBackCount)
		if i == MaxLoopBacks {
			break
		}
		h := c.Hypotheses[len(c.Hypotheses)-1]
		processFacts(t, e, c, TurnFacts{RefutedHypotheses: []Refutation{{HypothesisID: h.ID}}})
		require.NotNil(t, c.DegradedMode)
	}

	assert.Nil(t, c.DegradedMode)
	require.NotNil(t, res.Escalation)
	assert.Equal(t, MaxLoopBacks, res.Escalation.LoopBacks)
	assert.Empty(t, res.Escalation.ModeType)
	assert.Contains(t, res.Escalation.Reason, "looped back 3 times")
	assert.Len(t, res.Escalation.Recommendations, 3)
}

// ─── Terminal, errors and history ─────────────────────────────────────────────

func TestTerminalCaseOnlyLogsHistory(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()
	c.Status = models.StatusResolved

	for i := 0; i < 4; i++ {
		res := processFacts(t, e, c, TurnFacts{MilestoneUpdates: []MilestoneUpdate{{Milestone: models.MilestoneSymptomVerified}}})
		assert.Equal(t, models.StatusResolved, res.Status)
		assert.Equal(t, models.OutcomeConversation, res.Outcome)
	}

	assert.False(t, c.Progress.SymptomVerified)
	assert.Len(t, c.TurnHistory, 4)
	assert.Equal(t, 4, c.CurrentTurn)
	assert.Nil(t, c.DegradedMode, "terminal cases never enter degraded mode")
}

func TestProcessTurnErrors(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.ProcessTurn(context.Background(), nil, TurnInput{})
	assert.ErrorIs(t, err, ErrNilCase)

	c := consultingCase()
	c.Status = "archived"
	_, err = e.ProcessTurn(context.Background(), c, TurnInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)

	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "case_1", engineErr.CaseID)
	assert.Equal(t, "process_turn", engineErr.Op)
	assert.Empty(t, c.TurnHistory)
}

func TestInterpreterSuppliesFacts(t *testing.T) {
	var seen string
	e := newTestEngine(t, interpreterFunc(func(_ context.Context, _ *models.Case, in TurnInput) (*TurnFacts, error) {
		seen = in.UserMessage
		return &TurnFacts{ProposedProblemStatement: "Latency on /search", AgentResponse: "Is this correct?"}, nil
	}))
	c := consultingCase()

	res, err := e.ProcessTurn(context.Background(), c, TurnInput{UserMessage: "search is slow"})
	require.NoError(t, err)
	assert.Equal(t, "search is slow", seen)
	assert.Equal(t, "Latency on /search", c.Consulting.ProposedProblemStatement)
	assert.Equal(t, "Is this correct?", res.AgentResponse)
	assert.Equal(t, "Is this correct?", c.TurnHistory[0].AgentResponseSummary)
}

func TestInterpreterFailureAndPanic(t *testing.T) {
	boom := errors.New("interpreter offline")
	e := newTestEngine(t, interpreterFunc(func(context.Context, *models.Case, TurnInput) (*TurnFacts, error) {
		return nil, boom
	}))
	c := consultingCase()

	_, err := e.ProcessTurn(context.Background(), c, TurnInput{UserMessage: "hi"})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.CurrentTurn)

	e = newTestEngine(t, interpreterFunc(func(context.Context, *models.Case, TurnInput) (*TurnFacts, error) {
		panic("unexpected")
	}))
	res, err := e.ProcessTurn(context.Background(), c, TurnInput{UserMessage: "hi"})
	assert.Nil(t, res)
	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Contains(t, engineErr.Error(), "panic: unexpected")
}

func TestCloseCase(t *testing.T) {
	e := newTestEngine(t, nil)
	c := consultingCase()

	require.NoError(t, e.CloseCase(c, "duplicate of case_0"))
	assert.Equal(t, models.StatusClosed, c.Status)
	assert.Equal(t, "duplicate of case_0", c.ClosureReason)
	require.NotNil(t, c.ClosedAt)

	err := e.CloseCase(c, "again")
	assert.ErrorIs(t, err, ErrCaseTerminal)
	assert.Equal(t, "duplicate of case_0", c.ClosureReason)

	assert.ErrorIs(t, e.CloseCase(nil, ""), ErrNilCase)
}

func TestTurnHistorySummariesAreTruncated(t *testing.T) {
	e := newTestEngine(t, nil)
	c := consultingCase()

	_, err := e.ProcessTurn(context.Background(), c, TurnInput{
		UserMessage: strings.Repeat("a", 300),
		Facts:       &TurnFacts{AgentResponse: strings.Repeat("b", 600)},
	})
	require.NoError(t, err)

	rec := c.TurnHistory[0]
	assert.Len(t, rec.UserMessageSummary, 200)
	assert.True(t, strings.HasSuffix(rec.UserMessageSummary, "..."))
	assert.Len(t, rec.AgentResponseSummary, 500)
	assert.Equal(t, models.StatusConsulting, rec.Status)
	assert.Equal(t, fixedNow, rec.Timestamp)
}

func TestMemoryFoldedEachInvestigatingTurn(t *testing.T) {
	e := newTestEngine(t, nil)
	c := investigatingCase()

	for i := 0; i < 4; i++ {
		processFacts(t, e, c, TurnFacts{Insights: []string{"insight"}})
	}

	require.Len(t, c.Memory.HotMemory, 2)
	assert.Equal(t, 3, c.Memory.HotMemory[0].IterationNumber)
	assert.Equal(t, 4, c.Memory.HotMemory[1].IterationNumber)
	assert.Len(t, c.Memory.WarmSnapshots, 2)
	assert.Equal(t, 3, c.Memory.LastCompressionTurn)
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name string
		res  TurnResult
		want models.TurnOutcome
	}{
		{name: "nothing", want: models.OutcomeConversation},
		{name: "files", res: TurnResult{FilesUploaded: []string{"f"}}, want: models.OutcomeDataProvided},
		{name: "evidence", res: TurnResult{EvidenceAdded: []string{"e"}}, want: models.OutcomeDataProvided},
		{
			name: "milestone wins",
			res:  TurnResult{EvidenceAdded: []string{"e"}, MilestonesCompleted: []models.Milestone{models.MilestoneScopeAssessed}},
			want: models.OutcomeMilestoneCompleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyOutcome(&tt.res))
		})
	}
}
