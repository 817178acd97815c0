package models

// CategoryScores holds the five rubric scores. Ceilings are 30/25/25/10/10,
// but values come from a language model and are stored as returned.
type CategoryScores struct {
	Readability     float64 `json:"readability"`
	Maintainability float64 `json:"maintainability"`
	Robustness      float64 `json:"robustness"`
	Performance     float64 `json:"performance"`
	Security        float64 `json:"security"`
}

// Sum returns the total of all five categories.
func (c CategoryScores) Sum() float64 {
	return c.Readability + c.Maintainability + c.Robustness + c.Performance + c.Security
}

// Feedback is the categorized review commentary.
type Feedback struct {
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	CriticalIssues []string `json:"criticalIssues"`
}

// Evaluation is the code evaluator's result. OverallScore is always
// Scores.Sum().
type Evaluation struct {
	OverallScore float64        `json:"overallScore"`
	Scores       CategoryScores `json:"scores"`
	Feedback     Feedback       `json:"feedback"`
}

// Details returns the part of the evaluation stored on a submission.
func (e *Evaluation) Details() *AIEvaluationDetails {
	return &AIEvaluationDetails{Scores: e.Scores, Feedback: e.Feedback}
}

// AIEvaluationDetails is persisted alongside a submission's AI score.
type AIEvaluationDetails struct {
	Scores   CategoryScores `json:"scores"`
	Feedback Feedback       `json:"feedback"`
}
