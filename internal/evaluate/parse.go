package evaluate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/joescharf/prscore/internal/apperr"
	"github.com/joescharf/prscore/internal/models"
)

var (
	jsonFence = regexp.MustCompile("```json\\s*")
	bareFence = regexp.MustCompile("```\\s*")

	// Greedy: spans from the first '{' to the last '}'.
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

type rawScores struct {
	Readability     *float64 `json:"readability"`
	Maintainability *float64 `json:"maintainability"`
	Robustness      *float64 `json:"robustness"`
	Performance     *float64 `json:"performance"`
	Security        *float64 `json:"security"`
}

type rawEvaluation struct {
	Scores   *rawScores `json:"scores"`
	Feedback *struct {
		Strengths      []string `json:"strengths"`
		Improvements   []string `json:"improvements"`
		CriticalIssues []string `json:"criticalIssues"`
	} `json:"feedback"`
}

// ExtractJSON strips code fences from a model response and returns the
// greedy brace-delimited object it contains.
func ExtractJSON(response string) (string, bool) {
	text := strings.TrimSpace(response)
	text = jsonFence.ReplaceAllString(text, "")
	text = bareFence.ReplaceAllString(text, "")

	m := jsonObject.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// ParseEvaluation reduces a model response to an Evaluation. OverallScore
// is the sum of the parsed category scores; any overallScore the model
// volunteers is ignored. Missing feedback lists become empty.
//
// With strict set, a category outside [0, ceiling] is rejected. Otherwise
// out-of-range values are summed as-is.
func ParseEvaluation(response string, strict bool) (*models.Evaluation, error) {
	text, ok := ExtractJSON(response)
	if !ok {
		return nil, apperr.EvaluationParse(errors.New("no JSON object in response"), response)
	}

	var raw rawEvaluation
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, apperr.EvaluationParse(err, response)
	}

	scores, err := raw.Scores.resolve()
	if err != nil {
		return nil, apperr.EvaluationParse(err, response)
	}
	if strict {
		if err := checkRanges(scores); err != nil {
			return nil, apperr.EvaluationParse(err, response)
		}
	}

	ev := &models.Evaluation{
		OverallScore: scores.Sum(),
		Scores:       scores,
		Feedback: models.Feedback{
			Strengths:      []string{},
			Improvements:   []string{},
			CriticalIssues: []string{},
		},
	}
	if fb := raw.Feedback; fb != nil {
		if fb.Strengths != nil {
			ev.Feedback.Strengths = fb.Strengths
		}
		if fb.Improvements != nil {
			ev.Feedback.Improvements = fb.Improvements
		}
		if fb.CriticalIssues != nil {
			ev.Feedback.CriticalIssues = fb.CriticalIssues
		}
	}
	return ev, nil
}

func (r *rawScores) resolve() (models.CategoryScores, error) {
	if r == nil {
		return models.CategoryScores{}, errors.New("missing scores object")
	}

	fields := []struct {
		name string
		v    *float64
	}{
		{"readability", r.Readability},
		{"maintainability", r.Maintainability},
		{"robustness", r.Robustness},
		{"performance", r.Performance},
		{"security", r.Security},
	}
	for _, f := range fields {
		if f.v == nil {
			return models.CategoryScores{}, fmt.Errorf("missing score: %s", f.name)
		}
	}

	return models.CategoryScores{
		Readability:     *r.Readability,
		Maintainability: *r.Maintainability,
		Robustness:      *r.Robustness,
		Performance:     *r.Performance,
		Security:        *r.Security,
	}, nil
}

func checkRanges(s models.CategoryScores) error {
	limits := []struct {
		name string
		v    float64
		max  float64
	}{
		{"readability", s.Readability, MaxReadability},
		{"maintainability", s.Maintainability, MaxMaintainability},
		{"robustness", s.Robustness, MaxRobustness},
		{"performance", s.Performance, MaxPerformance},
		{"security", s.Security, MaxSecurity},
	}
	for _, l := range limits {
		if l.v < 0 || l.v > l.max {
			return fmt.Errorf("%s score %v outside 0-%v", l.name, l.v, l.max)
		}
	}
	return nil
}
