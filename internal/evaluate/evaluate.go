// Package evaluate scores pull request diffs with a generative-text model
// against a fixed five-category rubric.
package evaluate

import (
	"context"
	"log/slog"

	"github.com/joescharf/prscore/internal/apperr"
	"github.com/joescharf/prscore/internal/github"
	"github.com/joescharf/prscore/internal/llm"
	"github.com/joescharf/prscore/internal/models"
)

// Evaluator sends diffs to a Generator and parses the rubric reply.
type Evaluator struct {
	gen    llm.Generator
	log    *slog.Logger
	strict bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// WithStrictRanges rejects category scores outside their ceilings.
func WithStrictRanges(strict bool) Option {
	return func(e *Evaluator) { e.strict = strict }
}

// NewEvaluator creates an Evaluator backed by gen.
func NewEvaluator(gen llm.Generator, opts ...Option) *Evaluator {
	e := &Evaluator{gen: gen, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate scores diffs. Generator failures are EVALUATION_SERVICE_ERROR;
// unusable replies are EVALUATION_PARSE_ERROR and the raw reply is logged.
func (e *Evaluator) Evaluate(ctx context.Context, diffs []github.DiffRecord) (*models.Evaluation, error) {
	prompt := BuildPrompt(diffs)

	e.log.Debug("requesting code evaluation",
		slog.String("model", e.gen.Model()),
		slog.Int("files", len(diffs)),
		slog.Int("prompt_bytes", len(prompt)),
	)

	text, err := e.gen.GenerateText(ctx, prompt)
	if err != nil {
		return nil, apperr.EvaluationService(err)
	}

	ev, err := ParseEvaluation(text, e.strict)
	if err != nil {
		e.log.Error("failed to parse evaluation",
			slog.Any("err", err),
			slog.String("response", text),
		)
		return nil, err
	}
	return ev, nil
}
