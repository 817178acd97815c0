package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prscore/internal/github"
	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/scoring"
	"github.com/joescharf/prscore/internal/store"
)

const testPRURL = "https://github.com/acme/widgets/pull/42"

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockStore implements store.Store for testing.
type mockStore struct {
	mu          sync.Mutex
	assignments []*models.Assignment
	submissions []*models.Submission

	// Track calls for verification.
	updates []*models.SubmissionScoreUpdate

	// Optional error injection.
	findErr error
	listErr error
}

func (m *mockStore) CreateAssignment(_ context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = fmt.Sprintf("asg-%d", len(m.assignments)+1)
	}
	m.assignments = append(m.assignments, a)
	return nil
}
func (m *mockStore) GetAssignment(_ context.Context, id string) (*models.Assignment, error) {
	for _, a := range m.assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("assignment %s: %w", id, store.ErrNotFound)
}
func (m *mockStore) ListAssignments(_ context.Context) ([]*models.Assignment, error) {
	return m.assignments, nil
}

func (m *mockStore) CreateSubmission(_ context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = fmt.Sprintf("sub-%d", len(m.submissions)+1)
	}
	sub.SubmittedAt = time.Now()
	m.submissions = append(m.submissions, sub)
	return nil
}
func (m *mockStore) GetSubmission(_ context.Context, id string) (*models.Submission, error) {
	for _, s := range m.submissions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("submission %s: %w", id, store.ErrNotFound)
}
func (m *mockStore) ListSubmissions(_ context.Context, assignmentID string) ([]*models.Submission, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Submission
	for _, s := range m.submissions {
		if assignmentID == "" || s.AssignmentID == assignmentID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (m *mockStore) FindSubmissionByPRURL(_ context.Context, prURL string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, s := range m.submissions {
		if s.PRURL == prURL {
			return s, nil
		}
	}
	return nil, store.ErrNotFound
}
func (m *mockStore) UpdateSubmissionScores(_ context.Context, u *models.SubmissionScoreUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	for _, s := range m.submissions {
		if s.ID != u.SubmissionID {
			continue
		}
		if u.CIScore != nil {
			s.CIScore = u.CIScore
		}
		if u.AIScore != nil {
			s.AIScore = u.AIScore
		}
		return nil
	}
	return store.ErrNotFound
}
func (m *mockStore) UpdateSubmissionStatus(_ context.Context, _ string, _ models.SubmissionStatus) error {
	return nil
}
func (m *mockStore) Migrate(_ context.Context) error { return nil }
func (m *mockStore) Close() error                    { return nil }

// mockGitHub implements github.API for testing.
type mockGitHub struct {
	runs  []github.CheckRun
	files []github.File
	err   error
}

func (m *mockGitHub) PullRequestHead(_ context.Context, _ github.Ref) (string, error) {
	return "abc123", m.err
}
func (m *mockGitHub) ListCheckRuns(_ context.Context, _ github.Ref, _ string) (int, []github.CheckRun, error) {
	return len(m.runs), m.runs, nil
}
func (m *mockGitHub) ListFiles(_ context.Context, _ github.Ref) ([]github.File, error) {
	return m.files, m.err
}

// mockEvaluator implements scoring.CodeEvaluator for testing.
type mockEvaluator struct{}

func (mockEvaluator) Evaluate(_ context.Context, _ []github.DiffRecord) (*models.Evaluation, error) {
	return &models.Evaluation{
		OverallScore: 70,
		Scores:       models.CategoryScores{Readability: 20, Maintainability: 20, Robustness: 15, Performance: 8, Security: 7},
		Feedback:     models.Feedback{Strengths: []string{"tidy"}, Improvements: []string{}, CriticalIssues: []string{}},
	}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *mockStore, *mockGitHub) {
	t.Helper()

	ms := &mockStore{}
	gh := &mockGitHub{
		runs: []github.CheckRun{
			{Status: "completed", Conclusion: "success"},
			{Status: "completed", Conclusion: "success"},
			{Status: "completed", Conclusion: "success"},
			{Status: "completed", Conclusion: "success"},
			{Status: "completed", Conclusion: "failure"},
		},
		files: []github.File{{Filename: "a.go", Additions: 2, Deletions: 1, Patch: "@@ +a"}},
	}

	svc := scoring.NewService(gh, mockEvaluator{}, ms)
	srv := NewServer(svc, "test")
	require.NotNil(t, srv)

	return srv, ms, gh
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// seedSubmission adds an assignment and a submission for prURL.
func seedSubmission(t *testing.T, ms *mockStore, prURL string) *models.Submission {
	t.Helper()
	a := &models.Assignment{ID: "asg-1", Title: "Widgets"}
	ms.assignments = append(ms.assignments, a)
	sub := &models.Submission{ID: fmt.Sprintf("sub-%d", len(ms.submissions)+1), AssignmentID: a.ID, PRURL: prURL, Status: models.SubmissionStatusSubmitted}
	ms.submissions = append(ms.submissions, sub)
	return sub
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: prscore_check_pr
// ---------------------------------------------------------------------------

func TestHandleCheckPR(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	sub := seedSubmission(t, ms, testPRURL)

	result, err := srv.handleCheckPR(context.Background(), callToolReq("prscore_check_pr", map[string]any{"pr_url": testPRURL}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out scoring.CheckResult
	resultJSON(t, result, &out)
	assert.Equal(t, 42, out.PRNumber)
	assert.Equal(t, 4, out.CIPassed)
	assert.Equal(t, 5, out.CITotal)
	assert.Equal(t, github.CIStateFailure, out.CIState)

	require.Len(t, ms.updates, 1)
	assert.Equal(t, sub.ID, ms.updates[0].SubmissionID)
	assert.Equal(t, 80, *ms.updates[0].CIScore)
	assert.Nil(t, ms.updates[0].AIScore)
}

func TestHandleCheckPR_MissingArg(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleCheckPR(context.Background(), callToolReq("prscore_check_pr", nil))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "pr_url")
}

func TestHandleCheckPR_InvalidURL(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleCheckPR(context.Background(), callToolReq("prscore_check_pr", map[string]any{"pr_url": "https://example.com/x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Invalid PR URL format", resultText(t, result))
}

func TestHandleCheckPR_UpstreamError(t *testing.T) {
	srv, _, gh := newTestServer(t)
	gh.err = fmt.Errorf("rate limited")

	result, err := srv.handleCheckPR(context.Background(), callToolReq("prscore_check_pr", map[string]any{"pr_url": testPRURL}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Failed to check PR", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: prscore_evaluate_pr
// ---------------------------------------------------------------------------

func TestHandleEvaluatePR(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleEvaluatePR(context.Background(), callToolReq("prscore_evaluate_pr", map[string]any{"pr_url": testPRURL}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out scoring.EvaluateResult
	resultJSON(t, result, &out)
	assert.Equal(t, 70.0, out.OverallScore)
	assert.Equal(t, 1, out.FilesAnalyzed)
	assert.Equal(t, 3, out.LinesChanged)
}

func TestHandleEvaluatePR_NoChanges(t *testing.T) {
	srv, _, gh := newTestServer(t)
	gh.files = nil

	result, err := srv.handleEvaluatePR(context.Background(), callToolReq("prscore_evaluate_pr", map[string]any{"pr_url": testPRURL}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "No code changes found in this PR", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: prscore_score_pr
// ---------------------------------------------------------------------------

func TestHandleScorePR(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	seedSubmission(t, ms, testPRURL)

	result, err := srv.handleScorePR(context.Background(), callToolReq("prscore_score_pr", map[string]any{"pr_url": testPRURL}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, 80.0, out["ciScore"])
	assert.Equal(t, 70.0, out["aiScore"])
	assert.Equal(t, 76.0, out["score"])
	assert.Len(t, ms.updates, 2)
}

// ---------------------------------------------------------------------------
// Tests: prscore_list_submissions
// ---------------------------------------------------------------------------

func TestHandleListSubmissions_Ranked(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	low := seedSubmission(t, ms, "https://github.com/acme/widgets/pull/1")
	high := seedSubmission(t, ms, "https://github.com/acme/widgets/pull/2")
	unscored := seedSubmission(t, ms, "https://github.com/acme/widgets/pull/3")
	ci := func(v int) *int { return &v }
	low.CIScore = ci(20)
	high.CIScore = ci(90)

	result, err := srv.handleListSubmissions(context.Background(), callToolReq("prscore_list_submissions", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 3)
	assert.Equal(t, high.ID, out[0]["id"])
	assert.Equal(t, low.ID, out[1]["id"])
	assert.Equal(t, unscored.ID, out[2]["id"])
	_, hasScore := out[2]["score"]
	assert.False(t, hasScore)
}

func TestHandleListSubmissions_UnknownAssignment(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleListSubmissions(context.Background(), callToolReq("prscore_list_submissions", map[string]any{"assignment_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Assignment not found", resultText(t, result))
}

func TestHandleListSubmissions_StoreError(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	ms.listErr = fmt.Errorf("db connection failed")

	result, err := srv.handleListSubmissions(context.Background(), callToolReq("prscore_list_submissions", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Failed to list submissions", resultText(t, result))
}
