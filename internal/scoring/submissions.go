package scoring

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/joescharf/prscore/internal/apperr"
	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/score"
	"github.com/joescharf/prscore/internal/store"
)

// RankedSubmission is a submission with its composite score. Score is nil
// until at least one pipeline stage has run.
type RankedSubmission struct {
	*models.Submission
	Score *int `json:"score"`
}

// CreateAssignment validates and stores a new assignment.
func (s *Service) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return apperr.BadRequest("title is required")
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		return apperr.Persistence("Failed to create assignment", err)
	}
	return nil
}

// GetAssignment returns the assignment with id.
func (s *Service) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Assignment not found")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to get assignment", err)
	}
	return a, nil
}

// ListAssignments returns all assignments, newest first.
func (s *Service) ListAssignments(ctx context.Context) ([]*models.Assignment, error) {
	list, err := s.store.ListAssignments(ctx)
	if err != nil {
		return nil, apperr.Persistence("Failed to list assignments", err)
	}
	return list, nil
}

// Submit records a pull request against an assignment. The URL must
// resolve to a pull request and may only be submitted once.
func (s *Service) Submit(ctx context.Context, assignmentID, userID, prURL string) (*models.Submission, error) {
	if _, err := resolve(prURL); err != nil {
		return nil, err
	}
	if _, err := s.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}

	sub := &models.Submission{
		AssignmentID: assignmentID,
		UserID:       userID,
		PRURL:        strings.TrimSpace(prURL),
		Status:       models.SubmissionStatusSubmitted,
	}
	err := s.store.CreateSubmission(ctx, sub)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Conflict("This PR has already been submitted")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to create submission", err)
	}
	return sub, nil
}

// GetSubmission returns the submission with id.
func (s *Service) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Submission not found")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to get submission", err)
	}
	return sub, nil
}

// SetStatus moves a submission to a new review status.
func (s *Service) SetStatus(ctx context.Context, id string, status models.SubmissionStatus) error {
	if !status.Valid() {
		return apperr.BadRequest("Invalid status")
	}
	err := s.store.UpdateSubmissionStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Submission not found")
	}
	if err != nil {
		return apperr.Persistence("Failed to update submission status", err)
	}
	return nil
}

// RankSubmissions lists the submissions of an assignment (all submissions
// when assignmentID is empty) ordered by composite score, highest first.
// Unscored submissions follow in submission order.
func (s *Service) RankSubmissions(ctx context.Context, assignmentID string) ([]RankedSubmission, error) {
	subs, err := s.store.ListSubmissions(ctx, assignmentID)
	if err != nil {
		return nil, apperr.Persistence("Failed to list submissions", err)
	}
	return Rank(subs), nil
}

// Rank orders subs by composite score, highest first. Ties and unscored
// submissions keep their input order.
func Rank(subs []*models.Submission) []RankedSubmission {
	out := make([]RankedSubmission, 0, len(subs))
	for _, sub := range subs {
		r := RankedSubmission{Submission: sub}
		if b, ok := score.ForSubmission(sub); ok {
			total := b.Total
			r.Score = &total
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out
}
