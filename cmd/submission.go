package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/output"
	"github.com/joescharf/prscore/internal/score"
	"github.com/joescharf/prscore/internal/scoring"
)

var (
	submissionUser       string
	submissionAssignment string
)

var submissionCmd = &cobra.Command{
	Use:     "submission",
	Aliases: []string{"submissions", "sub"},
	Short:   "Manage pull request submissions",
}

var submissionAddCmd = &cobra.Command{
	Use:   "add <assignment-id> <pr-url>",
	Short: "Submit a pull request for an assignment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return submissionAddRun(cmd.Context(), svc, args[0], args[1])
	},
}

var submissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions ranked by composite score",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return submissionListRun(cmd.Context(), svc, submissionAssignment)
	},
}

var submissionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a submission with its stored evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return submissionShowRun(cmd.Context(), svc, args[0])
	},
}

var submissionStatusCmd = &cobra.Command{
	Use:   "status <id> <submitted|reviewing|approved|rejected>",
	Short: "Set the review status of a submission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return submissionStatusRun(cmd.Context(), svc, args[0], models.SubmissionStatus(args[1]))
	},
}

func init() {
	submissionAddCmd.Flags().StringVarP(&submissionUser, "user", "u", "", "Submitting user")
	submissionListCmd.Flags().StringVarP(&submissionAssignment, "assignment", "a", "", "Only list submissions for this assignment")
	submissionListCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	submissionShowCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")

	submissionCmd.AddCommand(submissionAddCmd)
	submissionCmd.AddCommand(submissionListCmd)
	submissionCmd.AddCommand(submissionShowCmd)
	submissionCmd.AddCommand(submissionStatusCmd)
	rootCmd.AddCommand(submissionCmd)
}

func submissionAddRun(ctx context.Context, svc *scoring.Service, assignmentID, prURL string) error {
	if dryRun {
		ui.DryRunMsg("Would submit %s for assignment %s", prURL, assignmentID)
		return nil
	}

	sub, err := svc.Submit(ctx, assignmentID, submissionUser, prURL)
	if err != nil {
		return err
	}
	ui.Success("Submitted %s (%s)", output.Cyan(sub.PRURL), sub.ID)
	ui.Info("Score it with: prscore score %s", sub.PRURL)
	return nil
}

func submissionListRun(ctx context.Context, svc *scoring.Service, assignmentID string) error {
	if assignmentID != "" {
		if _, err := svc.GetAssignment(ctx, assignmentID); err != nil {
			return err
		}
	}

	ranked, err := svc.RankSubmissions(ctx, assignmentID)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(ranked)
	}
	if len(ranked) == 0 {
		ui.Info("No submissions")
		return nil
	}

	table := ui.Table([]string{"#", "ID", "USER", "PR", "STATUS", "CI", "AI", "SCORE"})
	for i, r := range ranked {
		_ = table.Append([]string{
			strconv.Itoa(i + 1),
			r.ID,
			r.UserID,
			r.PRURL,
			output.StatusColor(string(r.Status)),
			optInt(r.CIScore),
			optFloat(r.AIScore),
			optScore(r.Score),
		})
	}
	return table.Render()
}

func submissionShowRun(ctx context.Context, svc *scoring.Service, id string) error {
	sub, err := svc.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(sub)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(sub.PRURL), output.StatusColor(string(sub.Status)))
	fmt.Fprintf(ui.Out, "  ID:          %s\n", sub.ID)
	fmt.Fprintf(ui.Out, "  Assignment:  %s\n", sub.AssignmentID)
	if sub.UserID != "" {
		fmt.Fprintf(ui.Out, "  User:        %s\n", sub.UserID)
	}
	fmt.Fprintf(ui.Out, "  Submitted:   %s\n", sub.SubmittedAt.Local().Format("2006-01-02 15:04"))

	if sub.CIScore != nil {
		ci := fmt.Sprintf("%d%%", *sub.CIScore)
		if sub.CIPassed != nil && sub.CITotal != nil {
			ci = fmt.Sprintf("%d/%d (%s)", *sub.CIPassed, *sub.CITotal, ci)
		}
		if sub.CIState != "" {
			ci += " " + output.CIStateColor(sub.CIState)
		}
		fmt.Fprintf(ui.Out, "  CI:          %s\n", ci)
	}
	if sub.AIScore != nil {
		fmt.Fprintf(ui.Out, "  AI:          %s\n", formatScore(*sub.AIScore))
	}
	if b, ok := score.ForSubmission(sub); ok {
		fmt.Fprintf(ui.Out, "  Score:       %s\n", output.ScoreColor(b.Total))
	}

	if d := sub.AIEvaluationDetails; d != nil {
		fmt.Fprintln(ui.Out)
		if err := renderCategories(d.Scores, d.Scores.Sum()); err != nil {
			return err
		}
		renderFeedback(d.Feedback)
	}
	return nil
}

func submissionStatusRun(ctx context.Context, svc *scoring.Service, id string, status models.SubmissionStatus) error {
	if dryRun {
		ui.DryRunMsg("Would set submission %s to %s", id, status)
		return nil
	}
	if err := svc.SetStatus(ctx, id, status); err != nil {
		return err
	}
	ui.Success("Submission %s is now %s", id, output.StatusColor(string(status)))
	return nil
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatScore(*v)
}

func optScore(v *int) string {
	if v == nil {
		return "-"
	}
	return output.ScoreColor(*v)
}
