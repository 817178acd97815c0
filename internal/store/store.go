package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/prscore/internal/models"
)

var (
	// ErrNotFound is returned when no row matches a lookup.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("already exists")
)

// Store defines the persistence interface for assignments and submissions.
type Store interface {
	// Assignments
	CreateAssignment(ctx context.Context, a *models.Assignment) error
	GetAssignment(ctx context.Context, id string) (*models.Assignment, error)
	ListAssignments(ctx context.Context) ([]*models.Assignment, error)

	// Submissions
	CreateSubmission(ctx context.Context, sub *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, assignmentID string) ([]*models.Submission, error)
	FindSubmissionByPRURL(ctx context.Context, prURL string) (*models.Submission, error)
	UpdateSubmissionScores(ctx context.Context, u *models.SubmissionScoreUpdate) error
	UpdateSubmissionStatus(ctx context.Context, id string, status models.SubmissionStatus) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const submissionColumns = `id, assignment_id, user_id, pr_url, status, ci_score, ci_passed, ci_total, ci_state, ai_score, ai_evaluation_details, submitted_at, updated_at`

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	sub := &models.Submission{}
	var (
		status                     string
		ciScore, ciPassed, ciTotal sql.NullInt64
		aiScore                    sql.NullFloat64
		details                    sql.NullString
	)
	if err := row.Scan(&sub.ID, &sub.AssignmentID, &sub.UserID, &sub.PRURL, &status,
		&ciScore, &ciPassed, &ciTotal, &sub.CIState, &aiScore, &details,
		&sub.SubmittedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}

	sub.Status = models.SubmissionStatus(status)
	sub.CIScore = nullInt(ciScore)
	sub.CIPassed = nullInt(ciPassed)
	sub.CITotal = nullInt(ciTotal)
	if aiScore.Valid {
		v := aiScore.Float64
		sub.AIScore = &v
	}
	if details.Valid && details.String != "" {
		var d models.AIEvaluationDetails
		if err := json.Unmarshal([]byte(details.String), &d); err != nil {
			return nil, fmt.Errorf("decode ai_evaluation_details: %w", err)
		}
		sub.AIEvaluationDetails = &d
	}
	return sub, nil
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

type columnValue struct {
	column string
	value  any
}

// scoreColumns lists only the fields present in u, in a stable order.
func scoreColumns(u *models.SubmissionScoreUpdate) ([]columnValue, error) {
	var cols []columnValue
	if u.CIScore != nil {
		cols = append(cols, columnValue{"ci_score", *u.CIScore})
	}
	if u.CIPassed != nil {
		cols = append(cols, columnValue{"ci_passed", *u.CIPassed})
	}
	if u.CITotal != nil {
		cols = append(cols, columnValue{"ci_total", *u.CITotal})
	}
	if u.CIState != nil {
		cols = append(cols, columnValue{"ci_state", *u.CIState})
	}
	if u.AIScore != nil {
		cols = append(cols, columnValue{"ai_score", *u.AIScore})
	}
	if u.AIEvaluationDetails != nil {
		data, err := json.Marshal(u.AIEvaluationDetails)
		if err != nil {
			return nil, fmt.Errorf("encode ai_evaluation_details: %w", err)
		}
		cols = append(cols, columnValue{"ai_evaluation_details", string(data)})
	}
	return cols, nil
}

// buildScoreUpdate renders the UPDATE statement for u. placeholder maps a
// 1-based argument index to the dialect's bind syntax.
func buildScoreUpdate(u *models.SubmissionScoreUpdate, updatedAt any, placeholder func(int) string) (string, []any, error) {
	cols, err := scoreColumns(u)
	if err != nil {
		return "", nil, err
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		args = append(args, c.value)
		sets = append(sets, c.column+" = "+placeholder(len(args)))
	}
	args = append(args, updatedAt)
	sets = append(sets, "updated_at = "+placeholder(len(args)))
	args = append(args, u.SubmissionID)

	query := "UPDATE submissions SET " + strings.Join(sets, ", ") + " WHERE id = " + placeholder(len(args))
	return query, args, nil
}
