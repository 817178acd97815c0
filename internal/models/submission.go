package models

import "time"

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusReviewing SubmissionStatus = "reviewing"
	SubmissionStatusApproved  SubmissionStatus = "approved"
	SubmissionStatusRejected  SubmissionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusSubmitted, SubmissionStatusReviewing, SubmissionStatusApproved, SubmissionStatusRejected:
		return true
	}
	return false
}

// Assignment is a coding exercise students submit pull requests against.
type Assignment struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	GitHubRepoURL string    `json:"github_repo_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Submission is a student's pull request for an assignment. Score fields
// are nil until the corresponding pipeline stage has run.
type Submission struct {
	ID                  string               `json:"id"`
	AssignmentID        string               `json:"assignment_id"`
	UserID              string               `json:"user_id"`
	PRURL               string               `json:"pr_url"`
	Status              SubmissionStatus     `json:"status"`
	CIScore             *int                 `json:"ci_score,omitempty"`
	CIPassed            *int                 `json:"ci_passed,omitempty"`
	CITotal             *int                 `json:"ci_total,omitempty"`
	CIState             string               `json:"ci_state,omitempty"`
	AIScore             *float64             `json:"ai_score,omitempty"`
	AIEvaluationDetails *AIEvaluationDetails `json:"ai_evaluation_details,omitempty"`
	SubmittedAt         time.Time            `json:"submitted_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// SubmissionScoreUpdate is a partial patch of a submission's scores. Nil
// fields are left untouched.
type SubmissionScoreUpdate struct {
	SubmissionID        string
	CIScore             *int
	CIPassed            *int
	CITotal             *int
	CIState             *string
	AIScore             *float64
	AIEvaluationDetails *AIEvaluationDetails
}

// IsEmpty reports whether the update carries no fields.
func (u *SubmissionScoreUpdate) IsEmpty() bool {
	return u.CIScore == nil && u.CIPassed == nil && u.CITotal == nil && u.CIState == nil &&
		u.AIScore == nil && u.AIEvaluationDetails == nil
}
