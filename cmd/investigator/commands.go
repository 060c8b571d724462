package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-investigator/internal/db"
	"github.com/kubilitics/kubilitics-investigator/internal/memory/hierarchical"
	"github.com/kubilitics/kubilitics-investigator/internal/models"
	"github.com/kubilitics/kubilitics-investigator/internal/reasoning/investigation"
)

// withApp builds the component graph, runs fn and tears everything down.
func withApp(ctx context.Context, flags *rootFlags, fn func(*app) error) (err error) {
	a, err := newApp(ctx, flags.configPath)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}

// ─── open ────────────────────────────────────────────────────────────────────

func newOpenCmd(flags *rootFlags) *cobra.Command {
	var userID, title string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new case in consulting status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				c, err := a.service.OpenCase(cmd.Context(), userID, title)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), flags.output, c, func(w io.Writer) {
					fmt.Fprintln(w, c.ID)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "Owner of the case (required)")
	f.StringVar(&title, "title", "", "Short case title")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// ─── turn ────────────────────────────────────────────────────────────────────

func newTurnCmd(flags *rootFlags) *cobra.Command {
	var (
		message   string
		factsPath string
		attach    []string
	)
	cmd := &cobra.Command{
		Use:   "turn <case-id>",
		Short: "Submit one conversational turn",
		Long: "Submit one conversational turn. Without --facts the user message is\n" +
			"interpreted by keyword matching; with --facts the YAML file supplies\n" +
			"the structured facts for the turn.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := investigation.TurnInput{UserMessage: message}
			if factsPath != "" {
				facts, err := loadFacts(factsPath)
				if err != nil {
					return err
				}
				in.Facts = facts
			}
			for _, path := range attach {
				att, err := attachmentFromFile(path)
				if err != nil {
					return err
				}
				in.Attachments = append(in.Attachments, att)
			}

			return withApp(cmd.Context(), flags, func(a *app) error {
				res, err := a.service.SubmitTurn(cmd.Context(), args[0], in)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), flags.output, res, func(w io.Writer) {
					printTurnResult(w, res)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&message, "message", "m", "", "User message for this turn")
	f.StringVar(&factsPath, "facts", "", "YAML file with structured turn facts")
	f.StringArrayVar(&attach, "attach", nil, "File to attach (repeatable)")
	return cmd
}

func loadFacts(path string) (*investigation.TurnFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	var facts investigation.TurnFacts
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("parse facts %s: %w", path, err)
	}
	return &facts, nil
}

func attachmentFromFile(path string) (investigation.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return investigation.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	if info.IsDir() {
		return investigation.Attachment{}, fmt.Errorf("attach %s: is a directory", path)
	}
	return investigation.Attachment{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		DataType: strings.TrimPrefix(filepath.Ext(path), "."),
	}, nil
}

// ─── show ────────────────────────────────────────────────────────────────────

func newShowCmd(flags *rootFlags) *cobra.Command {
	var turns bool
	cmd := &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show case state, hypotheses and working conclusion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				c, err := a.service.GetCase(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), flags.output, c, func(w io.Writer) {
					printCase(w, c)
					if turns {
						printTurns(w, c.TurnHistory)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&turns, "turns", false, "Include the turn history")
	return cmd
}

func printTurns(w io.Writer, turns []models.TurnProgress) {
	if len(turns) == 0 {
		return
	}
	fmt.Fprintln(w, "Turns:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range turns {
		progress := "-"
		if t.ProgressMade {
			progress = "progress"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", t.TurnNumber, t.Status, t.Outcome, progress, t.UserMessageSummary)
	}
	_ = tw.Flush()
}

// ─── list ────────────────────────────────────────────────────────────────────

func newListCmd(flags *rootFlags) *cobra.Command {
	var (
		filter db.CaseFilter
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Status = models.CaseStatus(strings.ToLower(status))
			if filter.Status != "" && !filter.Status.IsValid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return withApp(cmd.Context(), flags, func(a *app) error {
				cases, err := a.service.ListCases(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), flags.output, cases, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tSTATUS\tTURN\tDEGRADED\tUPDATED\tTITLE")
					for _, s := range cases {
						degraded := string(s.DegradedMode)
						if degraded == "" {
							degraded = "-"
						}
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
							s.ID, s.Status, s.CurrentTurn, degraded, s.UpdatedAt.Format("2006-01-02 15:04"), s.Title)
					}
					_ = tw.Flush()
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.UserID, "user", "", "Only cases owned by this user")
	f.StringVar(&status, "status", "", "Only cases in this status")
	f.IntVar(&filter.Limit, "limit", 0, "Maximum number of cases (default 50)")
	f.IntVar(&filter.Offset, "offset", 0, "Number of cases to skip")
	return cmd
}

// ─── close ───────────────────────────────────────────────────────────────────

func newCloseCmd(flags *rootFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "close <case-id>",
		Short: "Close a case without resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				c, err := a.service.CloseCase(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), flags.output, c, func(w io.Writer) {
					fmt.Fprintf(w, "%s closed: %s\n", c.ID, c.ClosureReason)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Closure reason")
	return cmd
}

// ─── memory ──────────────────────────────────────────────────────────────────

type memoryView struct {
	Stats   hierarchical.Stats `json:"stats"`
	Context string             `json:"context"`
}

func newMemoryCmd(flags *rootFlags) *cobra.Command {
	var includeCold bool
	cmd := &cobra.Command{
		Use:   "memory <case-id>",
		Short: "Show the hierarchical memory of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app) error {
				c, err := a.service.GetCase(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				mem := c.Memory
				if mem == nil {
					mem = models.NewHierarchicalMemory()
				}
				view := memoryView{
					Stats:   a.memory.Stats(mem),
					Context: a.memory.ContextString(mem, includeCold),
				}
				return render(cmd.OutOrStdout(), flags.output, view, func(w io.Writer) {
					s := view.Stats
					fmt.Fprintf(w, "Hot: %d  Warm: %d  Cold: %d  Insights: %d\n",
						s.HotIterations, s.WarmSnapshots, s.ColdSnapshots, s.PersistentInsights)
					fmt.Fprintf(w, "Tokens: ~%d (%s of budget), last compression at turn %d\n",
						s.EstimatedTokens, s.BudgetUtilization, s.LastCompressionTurn)
					if view.Context != "" {
						fmt.Fprintf(w, "\n%s\n", view.Context)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&includeCold, "cold", false, "Include cold-tier facts in the rendered context")
	return cmd
}
