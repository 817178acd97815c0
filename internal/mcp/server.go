package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/prscore/internal/apperr"
	"github.com/joescharf/prscore/internal/scoring"
)

// Server exposes the scoring pipeline as MCP tools.
type Server struct {
	svc     *scoring.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *scoring.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("prscore", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.checkPRTool())
	srv.AddTool(s.evaluatePRTool())
	srv.AddTool(s.scorePRTool())
	srv.AddTool(s.listSubmissionsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// toolError renders err for the model. Classified errors show only their
// caller-facing message.
func toolError(err error) *mcp.CallToolResult {
	if e, ok := apperr.As(err); ok {
		return mcp.NewToolResultError(e.Message)
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

func prURLOption() mcp.ToolOption {
	return mcp.WithString("pr_url", mcp.Required(), mcp.Description("GitHub pull request URL, e.g. https://github.com/owner/repo/pull/123"))
}

// prscore_check_pr
func (s *Server) checkPRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prscore_check_pr",
		mcp.WithDescription("Check CI status of a pull request's head commit. Returns passed and total check-run counts and the aggregate state (success, failure or pending)."),
		prURLOption(),
	)
	return tool, s.handleCheckPR
}

func (s *Server) handleCheckPR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prURL, err := request.RequireString("pr_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: pr_url"), nil
	}
	res, err := s.svc.Check(ctx, prURL)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

// prscore_evaluate_pr
func (s *Server) evaluatePRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prscore_evaluate_pr",
		mcp.WithDescription("Evaluate the code changes of a pull request against a five-category rubric (readability 30, maintainability 25, robustness 25, performance 10, security 10). Returns category scores, their sum and feedback."),
		prURLOption(),
	)
	return tool, s.handleEvaluatePR
}

func (s *Server) handleEvaluatePR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prURL, err := request.RequireString("pr_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: pr_url"), nil
	}
	res, err := s.svc.Evaluate(ctx, prURL)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

// prscore_score_pr
func (s *Server) scorePRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prscore_score_pr",
		mcp.WithDescription("Run the CI check and the code evaluation for a pull request and combine them into a composite score (60% CI, 40% AI). Results are saved on the matching submission."),
		prURLOption(),
	)
	return tool, s.handleScorePR
}

func (s *Server) handleScorePR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prURL, err := request.RequireString("pr_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: pr_url"), nil
	}
	res, err := s.svc.Score(ctx, prURL)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

// prscore_list_submissions
func (s *Server) listSubmissionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("prscore_list_submissions",
		mcp.WithDescription("List submissions ranked by composite score, highest first. Unscored submissions come last."),
		mcp.WithString("assignment_id", mcp.Description("Only list submissions for this assignment")),
	)
	return tool, s.handleListSubmissions
}

func (s *Server) handleListSubmissions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assignmentID := request.GetString("assignment_id", "")
	if assignmentID != "" {
		if _, err := s.svc.GetAssignment(ctx, assignmentID); err != nil {
			return toolError(err), nil
		}
	}

	ranked, err := s.svc.RankSubmissions(ctx, assignmentID)
	if err != nil {
		return toolError(err), nil
	}

	type submissionOut struct {
		ID           string   `json:"id"`
		AssignmentID string   `json:"assignment_id"`
		UserID       string   `json:"user_id"`
		PRURL        string   `json:"pr_url"`
		Status       string   `json:"status"`
		CIScore      *int     `json:"ci_score,omitempty"`
		AIScore      *float64 `json:"ai_score,omitempty"`
		Score        *int     `json:"score,omitempty"`
	}

	out := make([]submissionOut, len(ranked))
	for i, r := range ranked {
		out[i] = submissionOut{
			ID:           r.ID,
			AssignmentID: r.AssignmentID,
			UserID:       r.UserID,
			PRURL:        r.PRURL,
			Status:       string(r.Status),
			CIScore:      r.CIScore,
			AIScore:      r.AIScore,
			Score:        r.Score,
		}
	}
	return jsonResult(out), nil
}
