// Package score combines CI and AI results into the composite score used to
// rank submissions.
package score

import (
	"math"

	"github.com/joescharf/prscore/internal/models"
)

// Composite weights, in tenths: 60% CI, 40% AI.
const (
	ciWeight = 6
	aiWeight = 4
)

// Breakdown is a composite score with its inputs.
type Breakdown struct {
	CIPercent int     `json:"ciScore"`
	AIScore   float64 `json:"aiScore"`
	Total     int     `json:"score"`
}

// CIPercent scales passed/total to 0-100, rounding half away from zero.
// A commit with no checks scores 0.
func CIPercent(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(passed*100) / float64(total)))
}

// Composite returns round(ciPercent*0.6 + aiScore*0.4). The sum is formed
// in tenths so that exact half points round away from zero.
func Composite(ciPercent int, aiScore float64) int {
	return int(math.Round((float64(ciWeight*ciPercent) + aiWeight*aiScore) / 10))
}

// Compute builds a Breakdown from raw CI counts and an AI score.
func Compute(passed, total int, aiScore float64) Breakdown {
	ci := CIPercent(passed, total)
	return Breakdown{CIPercent: ci, AIScore: aiScore, Total: Composite(ci, aiScore)}
}

// ForSubmission computes the composite of a stored submission. Stages that
// have not run count as zero; ok is false when neither has.
func ForSubmission(s *models.Submission) (b Breakdown, ok bool) {
	if s.CIScore == nil && s.AIScore == nil {
		return Breakdown{}, false
	}
	if s.CIScore != nil {
		b.CIPercent = *s.CIScore
	}
	if s.AIScore != nil {
		b.AIScore = *s.AIScore
	}
	b.Total = Composite(b.CIPercent, b.AIScore)
	return b, true
}
