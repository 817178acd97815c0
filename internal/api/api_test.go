package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/prscore/internal/apperr"
	"github.com/joescharf/prscore/internal/github"
	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/scoring"
	"github.com/joescharf/prscore/internal/store"
)

const testPRURL = "https://github.com/acme/widgets/pull/42"

// fakeAPI implements github.API for testing.
type fakeAPI struct {
	runs    []github.CheckRun
	files   []github.File
	headErr error
}

func (f *fakeAPI) PullRequestHead(context.Context, github.Ref) (string, error) {
	return "abc123", f.headErr
}

func (f *fakeAPI) ListCheckRuns(context.Context, github.Ref, string) (int, []github.CheckRun, error) {
	return len(f.runs), f.runs, nil
}

func (f *fakeAPI) ListFiles(context.Context, github.Ref) ([]github.File, error) {
	return f.files, nil
}

// fakeEvaluator implements scoring.CodeEvaluator for testing.
type fakeEvaluator struct {
	err error
}

func (f *fakeEvaluator) Evaluate(context.Context, []github.DiffRecord) (*models.Evaluation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Evaluation{
		OverallScore: 70,
		Scores:       models.CategoryScores{Readability: 20, Maintainability: 20, Robustness: 15, Performance: 8, Security: 7},
		Feedback:     models.Feedback{Strengths: []string{"tidy"}, Improvements: []string{}, CriticalIssues: []string{}},
	}, nil
}

func newFakeAPI() *fakeAPI {
	var runs []github.CheckRun
	for i := 0; i < 10; i++ {
		c := "success"
		if i >= 8 {
			c = "failure"
		}
		runs = append(runs, github.CheckRun{Status: "completed", Conclusion: c})
	}
	return &fakeAPI{
		runs: runs,
		files: []github.File{
			{Filename: "a.go", Additions: 3, Deletions: 1, Patch: "@@ +a"},
			{Filename: "b.png", Additions: 5, Deletions: 2},
		},
	}
}

func setupTestServer(t *testing.T, api *fakeAPI, eval *fakeEvaluator) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	svc := scoring.NewService(api, eval, s)
	srv := NewServer(svc, "http://localhost:3000", nil)
	return srv, s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	srv, _ := setupTestServer(t, newFakeAPI(), &fakeEvaluator{})
	w := do(t, srv.Router(), "GET", "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestCheckPR(t *testing.T) {
	srv, _ := setupTestServer(t, newFakeAPI(), &fakeEvaluator{})
	w := do(t, srv.Router(), "POST", "/api/pr/check", `{"prUrl":"`+testPRURL+`"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, testPRURL, res["prUrl"])
	assert.Equal(t, 42.0, res["prNumber"])
	assert.Equal(t, 8.0, res["ciPassed"])
	assert.Equal(t, 10.0, res["ciTotal"])
	assert.Equal(t, "failure", res["ciState"])
}

func TestCheckPR_Errors(t *testing.T) {
	upstream := newFakeAPI()
	upstream.headErr = errors.New("401 Bad credentials")

	tests := []struct {
		name   string
		api    *fakeAPI
		body   string
		status int
		msg    string
	}{
		{"missing prUrl", newFakeAPI(), `{}`, http.StatusBadRequest, "prUrl is required"},
		{"malformed url", newFakeAPI(), `{"prUrl":"https://github.com/acme"}`, http.StatusBadRequest, "Invalid PR URL format"},
		{"invalid json", newFakeAPI(), `{`, http.StatusBadRequest, "Invalid JSON body"},
		{"upstream failure", upstream, `{"prUrl":"` + testPRURL + `"}`, http.StatusBadGateway, "Failed to check PR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := setupTestServer(t, tt.api, &fakeEvaluator{})
			w := do(t, srv.Router(), "POST", "/api/pr/check", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.msg, errorBody(t, w))
		})
	}
}

func TestEvaluatePR(t *testing.T) {
	srv, _ := setupTestServer(t, newFakeAPI(), &fakeEvaluator{})
	w := do(t, srv.Router(), "POST", "/api/pr/evaluate", `{"prUrl":"`+testPRURL+`"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var res scoring.EvaluateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 70.0, res.OverallScore)
	assert.Equal(t, 1, res.FilesAnalyzed)
	assert.Equal(t, 11, res.LinesChanged)
	assert.Equal(t, []string{}, res.Feedback.Improvements)
}

func TestEvaluatePR_NoChanges(t *testing.T) {
	api := newFakeAPI()
	api.files = nil
	srv, _ := setupTestServer(t, api, &fakeEvaluator{})
	w := do(t, srv.Router(), "POST", "/api/pr/evaluate", `{"prUrl":"`+testPRURL+`"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No code changes found in this PR", errorBody(t, w))
}

func TestEvaluatePR_ParseErrorHidesRawResponse(t *testing.T) {
	eval := &fakeEvaluator{err: apperr.EvaluationParse(errors.New("no JSON object"), "secret model rambling")}
	srv, _ := setupTestServer(t, newFakeAPI(), eval)
	w := do(t, srv.Router(), "POST", "/api/pr/evaluate", `{"prUrl":"`+testPRURL+`"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to parse evaluation", errorBody(t, w))
	assert.NotContains(t, w.Body.String(), "secret model rambling")
}

func TestScorePR(t *testing.T) {
	srv, _ := setupTestServer(t, newFakeAPI(), &fakeEvaluator{})
	w := do(t, srv.Router(), "POST", "/api/pr/score", `{"prUrl":"`+testPRURL+`"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 42.0, res["prNumber"])
	assert.Equal(t, 80.0, res["ciScore"])
	assert.Equal(t, 70.0, res["aiScore"])
	assert.Equal(t, 76.0, res["score"])
}

func TestAssignmentsAndSubmissions_API(t *testing.T) {
	srv, _ := setupTestServer(t, newFakeAPI(), &fakeEvaluator{})
	router := srv.Router()

	// Empty list is [] not null
	w := do(t, router, "GET", "/api/assignments", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	// Create assignment
	w = do(t, router, "POST", "/api/assignments", `{"title":"Widgets","description":"Build widgets"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var a models.Assignment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.NotEmpty(t, a.ID)

	w = do(t, router, "GET", "/api/assignments/"+a.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Submit a PR
	w = do(t, router, "POST", "/api/assignments/"+a.ID+"/submissions", `{"user_id":"u1","pr_url":"`+testPRURL+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var sub models.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, models.SubmissionStatusSubmitted, sub.Status)

	// Duplicate
	w = do(t, router, "POST", "/api/assignments/"+a.ID+"/submissions", `{"user_id":"u2","pr_url":"`+testPRURL+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Score it, then list ranked
	w = do(t, router, "POST", "/api/pr/score", `{"prUrl":"`+testPRURL+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "GET", "/api/assignments/"+a.ID+"/submissions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ranked []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ranked))
	require.Len(t, ranked, 1)
	assert.Equal(t, 76.0, ranked[0]["score"])
	assert.Equal(t, 80.0, ranked[0]["ci_score"])
	assert.Equal(t, sub.ID, ranked[0]["id"])

	// Status update
	w = do(t, router, "PUT", "/api/submissions/"+sub.ID+"/status", `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, models.SubmissionStatusApproved, updated.Status)

	w = do(t, router, "PUT", "/api/submissions/"+sub.ID+"/status", `{"status":"graded"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "GET", "/api/submissions/"+sub.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotFound_API(t *testing.T) {
	srv, _ := setupTestServer(t, newFakeAPI(), &fakeEvaluator{})
	router := srv.Router()

	for _, path := range []string{
		"/api/assignments/nonexistent",
		"/api/assignments/nonexistent/submissions",
		"/api/submissions/nonexistent",
	} {
		w := do(t, router, "GET", path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t, newFakeAPI(), &fakeEvaluator{})
	router := srv.Router()

	req := httptest.NewRequest("OPTIONS", "/api/pr/check", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/api/pr/check", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
