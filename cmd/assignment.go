package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/output"
	"github.com/joescharf/prscore/internal/scoring"
)

var (
	assignmentDescription string
	assignmentRepo        string
)

var assignmentCmd = &cobra.Command{
	Use:     "assignment",
	Aliases: []string{"assignments", "a"},
	Short:   "Manage assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return assignmentListRun(cmd.Context(), svc)
	},
}

var assignmentAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create an assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return assignmentAddRun(cmd.Context(), svc, args[0])
	},
}

var assignmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return assignmentListRun(cmd.Context(), svc)
	},
}

func init() {
	assignmentAddCmd.Flags().StringVarP(&assignmentDescription, "description", "d", "", "Assignment description")
	assignmentAddCmd.Flags().StringVar(&assignmentRepo, "repo", "", "GitHub repository students fork")
	assignmentListCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")

	assignmentCmd.AddCommand(assignmentAddCmd)
	assignmentCmd.AddCommand(assignmentListCmd)
	rootCmd.AddCommand(assignmentCmd)
}

func assignmentAddRun(ctx context.Context, svc *scoring.Service, title string) error {
	a := &models.Assignment{
		Title:         title,
		Description:   assignmentDescription,
		GitHubRepoURL: assignmentRepo,
	}

	if dryRun {
		ui.DryRunMsg("Would create assignment %q", title)
		return nil
	}

	if err := svc.CreateAssignment(ctx, a); err != nil {
		return err
	}
	ui.Success("Created assignment %s (%s)", output.Cyan(a.Title), a.ID)
	return nil
}

func assignmentListRun(ctx context.Context, svc *scoring.Service) error {
	list, err := svc.ListAssignments(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		if list == nil {
			list = []*models.Assignment{}
		}
		return ui.JSON(list)
	}
	if len(list) == 0 {
		ui.Info("No assignments yet. Create one with: prscore assignment add <title>")
		return nil
	}

	table := ui.Table([]string{"ID", "TITLE", "REPO", "CREATED"})
	for _, a := range list {
		_ = table.Append([]string{
			a.ID,
			output.Cyan(a.Title),
			a.GitHubRepoURL,
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}
	ui.VerboseLog("%d assignments", len(list))
	return nil
}
