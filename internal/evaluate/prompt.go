package evaluate

import (
	"fmt"
	"strings"

	"github.com/joescharf/prscore/internal/github"
)

// Category ceilings of the rubric.
const (
	MaxReadability     = 30
	MaxMaintainability = 25
	MaxRobustness      = 25
	MaxPerformance     = 10
	MaxSecurity        = 10
)

// BuildPrompt renders every diff record followed by the five-category
// rubric and the JSON-only response contract.
func BuildPrompt(diffs []github.DiffRecord) string {
	var b strings.Builder

	b.WriteString("You are an expert code reviewer. Evaluate the code changes in the following pull request.\n\n")

	b.WriteString("# Code changes\n")
	for _, d := range diffs {
		b.WriteString("\n")
		fmt.Fprintf(&b, "### File: %s\n", d.Filename)
		fmt.Fprintf(&b, "Additions: %d | Deletions: %d\n\n", d.Additions, d.Deletions)
		b.WriteString("```diff\n")
		b.WriteString(d.Patch)
		b.WriteString("\n```\n")
	}
	b.WriteString("\n")

	b.WriteString("# Evaluation criteria\n")
	b.WriteString("Score the changes on the following five aspects:\n\n")

	fmt.Fprintf(&b, "1. **Readability (0-%d points)**\n", MaxReadability)
	b.WriteString("   - Clear variable and function names\n")
	b.WriteString("   - Appropriate comments\n")
	b.WriteString("   - Code structure that is easy to follow\n")
	b.WriteString("   - Consistent style\n\n")

	fmt.Fprintf(&b, "2. **Maintainability (0-%d points)**\n", MaxMaintainability)
	b.WriteString("   - Duplication (DRY)\n")
	b.WriteString("   - Reasonable function length and complexity\n")
	b.WriteString("   - Modularity and separation of responsibilities\n")
	b.WriteString("   - Extensibility\n\n")

	fmt.Fprintf(&b, "3. **Robustness (0-%d points)**\n", MaxRobustness)
	b.WriteString("   - Error handling\n")
	b.WriteString("   - Type safety\n")
	b.WriteString("   - Edge case handling\n")
	b.WriteString("   - Input validation\n\n")

	fmt.Fprintf(&b, "4. **Performance (0-%d points)**\n", MaxPerformance)
	b.WriteString("   - Algorithmic efficiency\n")
	b.WriteString("   - Unnecessary work\n")
	b.WriteString("   - Resource usage\n\n")

	fmt.Fprintf(&b, "5. **Security (0-%d points)**\n", MaxSecurity)
	b.WriteString("   - Vulnerabilities\n")
	b.WriteString("   - Input validation\n")
	b.WriteString("   - Handling of secrets and sensitive data\n\n")

	b.WriteString("# Important instructions\n")
	b.WriteString("- Be strict. Do not award full marks unless the code is flawless, and point out concrete problems.\n")
	b.WriteString("- Respond ONLY with a JSON object in exactly the format below.\n")
	b.WriteString("- Do not include any text outside the JSON, including explanations or markdown code fences.\n\n")

	b.WriteString(`{
  "scores": {
    "readability": <number 0-30>,
    "maintainability": <number 0-25>,
    "robustness": <number 0-25>,
    "performance": <number 0-10>,
    "security": <number 0-10>
  },
  "feedback": {
    "strengths": ["strength 1", "strength 2"],
    "improvements": ["improvement 1", "improvement 2"],
    "criticalIssues": ["critical issue 1", "critical issue 2"]
  }
}`)

	return b.String()
}
