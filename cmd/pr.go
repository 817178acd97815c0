package cmd

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/output"
	"github.com/joescharf/prscore/internal/scoring"
)

var checkCmd = &cobra.Command{
	Use:   "check <pr-url>",
	Short: "Show CI check results for a pull request",
	Long: `Fetch the check runs on the pull request's head commit and report
how many passed and the aggregate state. A matching submission is
updated with the CI score.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return checkRun(cmd.Context(), svc, args[0])
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <pr-url>",
	Short: "Run an AI code review of a pull request",
	Long: `Send the pull request's changed files to the configured language
model and score them against the rubric: readability 30,
maintainability 25, robustness 25, performance 10, security 10.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return evaluateRun(cmd.Context(), svc, args[0])
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <pr-url>",
	Short: "Check and evaluate a pull request and combine the results",
	Long: `Run the CI check and the AI review concurrently and combine them
into a composite score: 60% CI pass rate, 40% AI score.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return scoreRun(cmd.Context(), svc, args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{checkCmd, evaluateCmd, scoreCmd} {
		c.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
		rootCmd.AddCommand(c)
	}
}

func checkRun(ctx context.Context, svc *scoring.Service, prURL string) error {
	res, err := svc.Check(ctx, prURL)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(res)
	}

	ui.Info("%s", output.Cyan(res.PRURL))
	table := ui.Table([]string{"PR", "PASSED", "TOTAL", "STATE"})
	_ = table.Append([]string{
		fmt.Sprintf("#%d", res.PRNumber),
		strconv.Itoa(res.CIPassed),
		strconv.Itoa(res.CITotal),
		output.CIStateColor(string(res.CIState)),
	})
	return table.Render()
}

func evaluateRun(ctx context.Context, svc *scoring.Service, prURL string) error {
	res, err := svc.Evaluate(ctx, prURL)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(res)
	}

	ui.Info("%s", output.Cyan(res.PRURL))
	ui.VerboseLog("%d files analyzed, %d lines changed", res.FilesAnalyzed, res.LinesChanged)
	if err := renderCategories(res.Scores, res.OverallScore); err != nil {
		return err
	}
	renderFeedback(res.Feedback)
	return nil
}

func scoreRun(ctx context.Context, svc *scoring.Service, prURL string) error {
	res, err := svc.Score(ctx, prURL)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(res)
	}

	ui.Info("%s", output.Cyan(res.PRURL))
	table := ui.Table([]string{"PR", "CI", "STATE", "AI", "SCORE"})
	_ = table.Append([]string{
		fmt.Sprintf("#%d", res.PRNumber),
		fmt.Sprintf("%d/%d (%d%%)", res.CIPassed, res.CITotal, res.CIPercent),
		output.CIStateColor(string(res.CIState)),
		formatScore(res.AIScore),
		output.ScoreColor(res.Total),
	})
	if err := table.Render(); err != nil {
		return err
	}

	if verbose && res.Evaluation != nil {
		fmt.Fprintln(ui.Out)
		if err := renderCategories(res.Evaluation.Scores, res.Evaluation.OverallScore); err != nil {
			return err
		}
		renderFeedback(res.Evaluation.Feedback)
	}
	return nil
}

// rubricRows pairs each category score with its ceiling, in display order.
func rubricRows(s models.CategoryScores) [][2]string {
	return [][2]string{
		{"readability", formatScore(s.Readability) + "/30"},
		{"maintainability", formatScore(s.Maintainability) + "/25"},
		{"robustness", formatScore(s.Robustness) + "/25"},
		{"performance", formatScore(s.Performance) + "/10"},
		{"security", formatScore(s.Security) + "/10"},
	}
}

func renderCategories(s models.CategoryScores, overall float64) error {
	table := ui.Table([]string{"CATEGORY", "SCORE"})
	for _, row := range rubricRows(s) {
		_ = table.Append([]string{row[0], row[1]})
	}
	_ = table.Append([]string{"overall", output.ScoreColor(int(math.Round(overall))) + "/100"})
	return table.Render()
}

func renderFeedback(f models.Feedback) {
	sections := []struct {
		title string
		items []string
		color func(string) string
	}{
		{"Strengths", f.Strengths, output.Green},
		{"Improvements", f.Improvements, output.Yellow},
		{"Critical issues", f.CriticalIssues, output.Red},
	}
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, s.color(s.title))
		for _, item := range s.items {
			fmt.Fprintf(ui.Out, "  - %s\n", item)
		}
	}
}

// formatScore prints a score without trailing zeros.
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
