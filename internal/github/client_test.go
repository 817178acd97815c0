package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Options{Token: token, BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestClient_PullRequestHead(t *testing.T) {
	mux := http.NewServeMux()
	var gotAuth string
	mux.HandleFunc("/repos/octo/hello/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"number":42,"head":{"sha":"deadbeef"}}`)
	})
	c := newTestClient(t, mux, "tok")

	sha, err := c.PullRequestHead(context.Background(), Ref{"octo", "hello", 42})
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestClient_PullRequestHead_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	c := newTestClient(t, mux, "")

	_, err := c.PullRequestHead(context.Background(), Ref{"octo", "hello", 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_ListCheckRuns_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/repos/o/r/commits/abc/check-runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"total_count":3,"check_runs":[{"name":"lint","status":"in_progress"}]}`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/commits/abc/check-runs?page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `{"total_count":3,"check_runs":[
			{"name":"build","status":"completed","conclusion":"success"},
			{"name":"test","status":"completed","conclusion":"failure"}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	c, err := NewClient(context.Background(), Options{BaseURL: srv.URL})
	require.NoError(t, err)

	total, runs, err := c.ListCheckRuns(context.Background(), Ref{"o", "r", 1}, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 3)
	assert.Equal(t, CheckRun{Name: "build", Status: "completed", Conclusion: "success"}, runs[0])
	assert.Equal(t, CheckRun{Name: "lint", Status: "in_progress"}, runs[2])
}

func TestClient_ListFiles_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/repos/o/r/pulls/5/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"filename":"img.png","additions":0,"deletions":0}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/pulls/5/files?page=2&per_page=100>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"filename":"main.go","additions":3,"deletions":1,"patch":"@@ -1 +1 @@"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	c, err := NewClient(context.Background(), Options{BaseURL: srv.URL})
	require.NoError(t, err)

	files, err := c.ListFiles(context.Background(), Ref{"o", "r", 5})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, File{Filename: "main.go", Additions: 3, Deletions: 1, Patch: "@@ -1 +1 @@"}, files[0])
	assert.Equal(t, "", files[1].Patch)
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(context.Background(), Options{BaseURL: "://bad"})
	assert.Error(t, err)
}
