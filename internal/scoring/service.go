// Package scoring runs the pull request scoring pipeline: CI status, AI
// evaluation and the composite score, persisted onto matching submissions.
package scoring

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/prscore/internal/apperr"
	"github.com/joescharf/prscore/internal/github"
	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/score"
	"github.com/joescharf/prscore/internal/store"
)

// CodeEvaluator scores a set of diffs. *evaluate.Evaluator implements it.
type CodeEvaluator interface {
	Evaluate(ctx context.Context, diffs []github.DiffRecord) (*models.Evaluation, error)
}

// CheckResult is the response of a CI status check.
type CheckResult struct {
	PRURL    string         `json:"prUrl"`
	PRNumber int            `json:"prNumber"`
	CIPassed int            `json:"ciPassed"`
	CITotal  int            `json:"ciTotal"`
	CIState  github.CIState `json:"ciState"`
}

// EvaluateResult is the response of an AI code evaluation.
type EvaluateResult struct {
	PRURL         string                `json:"prUrl"`
	PRNumber      int                   `json:"prNumber"`
	OverallScore  float64               `json:"overallScore"`
	Scores        models.CategoryScores `json:"scores"`
	Feedback      models.Feedback       `json:"feedback"`
	FilesAnalyzed int                   `json:"filesAnalyzed"`
	LinesChanged  int                   `json:"linesChanged"`
}

// ScoreResult is the response of a combined check and evaluation.
type ScoreResult struct {
	PRURL    string         `json:"prUrl"`
	PRNumber int            `json:"prNumber"`
	CIPassed int            `json:"ciPassed"`
	CITotal  int            `json:"ciTotal"`
	CIState  github.CIState `json:"ciState"`
	score.Breakdown
	Evaluation *EvaluateResult `json:"evaluation"`
}

// Service wires the hosting API, the evaluator and the submission store.
type Service struct {
	api   github.API
	eval  CodeEvaluator
	store store.Store
	log   *slog.Logger

	githubTimeout time.Duration
	llmTimeout    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithTimeouts bounds each hosting API stage and each evaluation. Zero
// leaves a stage unbounded.
func WithTimeouts(githubTimeout, llmTimeout time.Duration) Option {
	return func(s *Service) {
		s.githubTimeout = githubTimeout
		s.llmTimeout = llmTimeout
	}
}

// NewService creates a Service.
func NewService(api github.API, eval CodeEvaluator, st store.Store, opts ...Option) *Service {
	s := &Service{api: api, eval: eval, store: st, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func resolve(prURL string) (github.Ref, error) {
	if strings.TrimSpace(prURL) == "" {
		return github.Ref{}, apperr.BadRequest("prUrl is required")
	}
	return github.ParseRef(prURL)
}

// Check fetches the CI outcome of prURL and records it on the matching
// submission, if one exists.
func (s *Service) Check(ctx context.Context, prURL string) (*CheckResult, error) {
	ref, err := resolve(prURL)
	if err != nil {
		return nil, err
	}

	outcome, err := s.fetchCI(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyScores(ctx, prURL, &outcome, nil); err != nil {
		return nil, err
	}

	return &CheckResult{
		PRURL:    prURL,
		PRNumber: ref.Number,
		CIPassed: outcome.Passed,
		CITotal:  outcome.Total,
		CIState:  outcome.State,
	}, nil
}

// Evaluate collects the diff of prURL, has it scored and records the
// evaluation on the matching submission, if one exists. A pull request
// without patch-bearing files is a NoChanges error.
func (s *Service) Evaluate(ctx context.Context, prURL string) (*EvaluateResult, error) {
	ref, err := resolve(prURL)
	if err != nil {
		return nil, err
	}

	res, ev, err := s.evaluate(ctx, prURL, ref)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyScores(ctx, prURL, nil, ev); err != nil {
		return nil, err
	}
	return res, nil
}

// Score runs the CI check and the evaluation concurrently and combines
// them. Each stage persists its own result as soon as it succeeds, so a
// failed evaluation never discards a recorded CI outcome.
func (s *Service) Score(ctx context.Context, prURL string) (*ScoreResult, error) {
	ref, err := resolve(prURL)
	if err != nil {
		return nil, err
	}

	var (
		g       errgroup.Group
		outcome github.CheckOutcome
		evalRes *EvaluateResult
	)
	g.Go(func() error {
		o, err := s.fetchCI(ctx, ref)
		if err != nil {
			return err
		}
		outcome = o
		return s.ApplyScores(ctx, prURL, &o, nil)
	})
	g.Go(func() error {
		res, ev, err := s.evaluate(ctx, prURL, ref)
		if err != nil {
			return err
		}
		evalRes = res
		return s.ApplyScores(ctx, prURL, nil, ev)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := score.Compute(outcome.Passed, outcome.Total, evalRes.OverallScore)
	s.log.Info("scored pull request",
		slog.String("pr", ref.String()),
		slog.Int("ci_score", b.CIPercent),
		slog.Float64("ai_score", b.AIScore),
		slog.Int("score", b.Total),
	)

	return &ScoreResult{
		PRURL:      prURL,
		PRNumber:   ref.Number,
		CIPassed:   outcome.Passed,
		CITotal:    outcome.Total,
		CIState:    outcome.State,
		Breakdown:  b,
		Evaluation: evalRes,
	}, nil
}

func (s *Service) fetchCI(ctx context.Context, ref github.Ref) (github.CheckOutcome, error) {
	ctx, cancel := withTimeout(ctx, s.githubTimeout)
	defer cancel()

	outcome, err := github.FetchCIStatus(ctx, s.api, ref)
	if err != nil {
		return github.CheckOutcome{}, err
	}
	s.log.Debug("fetched ci status",
		slog.String("pr", ref.String()),
		slog.Int("passed", outcome.Passed),
		slog.Int("total", outcome.Total),
		slog.String("state", string(outcome.State)),
	)
	return outcome, nil
}

func (s *Service) evaluate(ctx context.Context, prURL string, ref github.Ref) (*EvaluateResult, *models.Evaluation, error) {
	diffCtx, cancel := withTimeout(ctx, s.githubTimeout)
	summary, err := github.CollectDiff(diffCtx, s.api, ref)
	cancel()
	if err != nil {
		return nil, nil, err
	}
	if len(summary.Diffs) == 0 {
		return nil, nil, apperr.NoChanges()
	}

	evalCtx, cancel := withTimeout(ctx, s.llmTimeout)
	defer cancel()
	ev, err := s.eval.Evaluate(evalCtx, summary.Diffs)
	if err != nil {
		return nil, nil, err
	}

	s.log.Debug("evaluated pull request",
		slog.String("pr", ref.String()),
		slog.Int("files", summary.FilesAnalyzed),
		slog.Int("lines", summary.LinesChanged),
		slog.Float64("overall", ev.OverallScore),
	)

	return &EvaluateResult{
		PRURL:         prURL,
		PRNumber:      ref.Number,
		OverallScore:  ev.OverallScore,
		Scores:        ev.Scores,
		Feedback:      ev.Feedback,
		FilesAnalyzed: summary.FilesAnalyzed,
		LinesChanged:  summary.LinesChanged,
	}, ev, nil
}

// FindSubmission returns the submission recorded for prURL, or nil when
// there is none. Any other store failure is a PersistenceError.
func (s *Service) FindSubmission(ctx context.Context, prURL string) (*models.Submission, error) {
	sub, err := s.store.FindSubmissionByPRURL(ctx, prURL)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to find submission", err)
	}
	return sub, nil
}

// ApplyScores writes the supplied results onto the submission for prURL.
// Absent results leave their columns untouched; a missing submission is
// not an error.
func (s *Service) ApplyScores(ctx context.Context, prURL string, ci *github.CheckOutcome, ev *models.Evaluation) error {
	sub, err := s.FindSubmission(ctx, prURL)
	if err != nil {
		return err
	}
	if sub == nil {
		s.log.Debug("no submission for pull request", slog.String("pr_url", prURL))
		return nil
	}

	u := &models.SubmissionScoreUpdate{SubmissionID: sub.ID}
	if ci != nil {
		pct := score.CIPercent(ci.Passed, ci.Total)
		passed, total, state := ci.Passed, ci.Total, string(ci.State)
		u.CIScore = &pct
		u.CIPassed = &passed
		u.CITotal = &total
		u.CIState = &state
	}
	if ev != nil {
		overall := ev.OverallScore
		u.AIScore = &overall
		u.AIEvaluationDetails = ev.Details()
	}

	if err := s.store.UpdateSubmissionScores(ctx, u); err != nil {
		return apperr.Persistence("Failed to update submission scores", err)
	}
	s.log.Info("updated submission scores",
		slog.String("submission", sub.ID),
		slog.Bool("ci", ci != nil),
		slog.Bool("ai", ev != nil),
	)
	return nil
}
