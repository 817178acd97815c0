package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/prscore/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client check, evaluate and score pull requests and
list ranked submissions. Configure in Claude Code with:

  {
    "mcpServers": {
      "prscore": { "command": "prscore", "args": ["mcp"] }
    }
  }

Available tools: prscore_check_pr, prscore_evaluate_pr,
prscore_score_pr, prscore_list_submissions

Logs go to stderr; stdout carries the protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, svc, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		return mcp.NewServer(svc, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
