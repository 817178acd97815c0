package github

import (
	"context"

	"github.com/joescharf/prscore/internal/apperr"
)

// CIState is the aggregate state of a commit's check runs.
type CIState string

const (
	CIStateSuccess CIState = "success"
	CIStateFailure CIState = "failure"
	CIStatePending CIState = "pending"
)

// CheckOutcome summarises the check runs on a pull request's head commit.
type CheckOutcome struct {
	Passed int     `json:"passed"`
	Total  int     `json:"total"`
	State  CIState `json:"state"`
}

// ReduceCheckRuns folds check runs into a CheckOutcome. total is the count
// reported by the API; it is raised to len(runs) if the API under-reports so
// that Passed never exceeds Total.
//
// Any run not yet completed makes the state pending. With no runs at all the
// outcome is {0, 0, success}.
func ReduceCheckRuns(total int, runs []CheckRun) CheckOutcome {
	if total < len(runs) {
		total = len(runs)
	}

	passed := 0
	allCompleted := true
	for _, r := range runs {
		if r.Conclusion == "success" {
			passed++
		}
		if r.Status != "completed" {
			allCompleted = false
		}
	}

	out := CheckOutcome{Passed: passed, Total: total}
	switch {
	case !allCompleted:
		out.State = CIStatePending
	case passed == total:
		out.State = CIStateSuccess
	default:
		out.State = CIStateFailure
	}
	return out
}

// FetchCIStatus resolves the head commit of ref and reduces its check runs.
// Every hosting API failure, including a missing pull request, is reported
// as an upstream error.
func FetchCIStatus(ctx context.Context, api API, ref Ref) (CheckOutcome, error) {
	sha, err := api.PullRequestHead(ctx, ref)
	if err != nil {
		return CheckOutcome{}, apperr.Upstream("Failed to check PR", err)
	}

	total, runs, err := api.ListCheckRuns(ctx, ref, sha)
	if err != nil {
		return CheckOutcome{}, apperr.Upstream("Failed to check PR", err)
	}

	return ReduceCheckRuns(total, runs), nil
}
