package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/investigation"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// render writes v in the requested format. text is used for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		// round-trip through JSON so keys follow the json tags
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

func printTurnResult(w io.Writer, res *investigation.TurnResult) {
	fmt.Fprintf(w, "Turn %d on %s\n", res.TurnNumber, res.CaseID)
	if res.StatusTransitioned {
		fmt.Fprintf(w, "Status:   %s -> %s\n", res.PreviousStatus, res.Status)
	} else {
		fmt.Fprintf(w, "Status:   %s\n", res.Status)
	}
	fmt.Fprintf(w, "Outcome:  %s (progress: %t)\n", res.Outcome, res.ProgressMade)
	if res.Strategy != "" {
		fmt.Fprintf(w, "Strategy: %s (%s)\n", res.Strategy, res.StrategyReason)
	}

	printList(w, "Milestones", milestoneStrings(res.MilestonesCompleted))
	printList(w, "Evidence", res.EvidenceAdded)
	printList(w, "Files", res.FilesUploaded)
	printList(w, "New hypotheses", res.HypothesesGenerated)
	printList(w, "Validated", res.HypothesesValidated)
	printList(w, "Solutions", res.SolutionsProposed)
	printList(w, "Test next", res.TestableHypotheses)

	if res.DegradedEntered {
		fmt.Fprintln(w, "Degraded mode entered")
	}
	if res.DegradedExited {
		fmt.Fprintln(w, "Degraded mode exited")
	}
	if res.AlternativeConstraint != nil {
		fmt.Fprintln(w, "Anchoring detected: generate alternative hypotheses outside the dominant category")
	}
	if res.Conclusion != nil {
		printConclusion(w, res.Conclusion)
	}
	if res.Escalation != nil {
		fmt.Fprintf(w, "Escalation suggested: %s\n", res.Escalation.Reason)
		for _, r := range res.Escalation.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	if res.StartInvestigation != nil {
		fmt.Fprintf(w, "Suggest starting a structured investigation (%s)\n",
			strings.Join(res.StartInvestigation.Indicators, ", "))
	}
	if rs := res.Resolution; rs != nil {
		if rs.RootCause != "" {
			fmt.Fprintf(w, "Root cause: %s [%.0f%%]\n", rs.RootCause, rs.Confidence*100)
		}
		fmt.Fprintf(w, "Solution:   %s\n", rs.SolutionSummary)
		if rs.PostMortemOffer != "" {
			fmt.Fprintf(w, "\n%s\n", rs.PostMortemOffer)
		}
	}
	if res.AgentResponse != "" {
		fmt.Fprintf(w, "\n%s\n", res.AgentResponse)
	}
}

func printConclusion(w io.Writer, wc *investigation.WorkingConclusion) {
	fmt.Fprintf(w, "Conclusion: %s [%s, %.0f%%]\n", wc.Statement, wc.Level, wc.Confidence*100)
	for _, c := range wc.Caveats {
		fmt.Fprintf(w, "  caveat: %s\n", c)
	}
	for _, a := range wc.Alternatives {
		fmt.Fprintf(w, "  alternative: %s\n", a)
	}
	if len(wc.NextEvidenceNeeded) > 0 {
		fmt.Fprintf(w, "  next evidence: %s\n", strings.Join(wc.NextEvidenceNeeded, "; "))
	}
}

func printCase(w io.Writer, c *models.Case) {
	fmt.Fprintf(w, "Case:     %s\n", c.ID)
	fmt.Fprintf(w, "Title:    %s\n", c.Title)
	fmt.Fprintf(w, "User:     %s\n", c.UserID)
	fmt.Fprintf(w, "Status:   %s (turn %d)\n", c.Status, c.CurrentTurn)
	if c.Description != "" {
		fmt.Fprintf(w, "Problem:  %s\n", c.Description)
	}
	if c.Status == models.StatusInvestigating {
		fmt.Fprintf(w, "Stage:    %s\n", c.Progress.CurrentStage())
		fmt.Fprintf(w, "Strategy: %s\n", investigation.StrategySummary(c.Strategy))
	}
	printList(w, "Milestones", milestoneStrings(c.Progress.CompletedMilestones()))
	if c.DegradedMode != nil {
		fmt.Fprintf(w, "Degraded: %s since turn %d (%s)\n",
			c.DegradedMode.ModeType, c.DegradedMode.EnteredAtTurn, c.DegradedMode.Reason)
	}

	if len(c.Hypotheses) > 0 {
		fmt.Fprintln(w, "Hypotheses:")
		for _, h := range c.Hypotheses {
			fmt.Fprintf(w, "  %s  %-10s %3.0f%%  %s\n", h.ID, h.Status, h.Likelihood*100, h.Statement)
		}
	}
	fmt.Fprintf(w, "Evidence: %d item(s), files: %d\n", len(c.Evidence), len(c.UploadedFiles))
	if len(c.Solutions) > 0 {
		fmt.Fprintln(w, "Solutions:")
		for _, s := range c.Solutions {
			fmt.Fprintf(w, "  %s  %s\n", s.ID, s.Title)
		}
	}
	if c.Status == models.StatusInvestigating {
		printConclusion(w, investigation.GenerateWorkingConclusion(c, c.CurrentTurn))
	}
	if c.ClosureReason != "" {
		fmt.Fprintf(w, "Closed:   %s\n", c.ClosureReason)
	}
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", label, strings.Join(items, ", "))
}

func milestoneStrings(ms []models.Milestone) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, string(m))
	}
	return out
}
