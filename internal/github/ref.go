package github

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/joescharf/prscore/internal/apperr"
)

// prURLPattern matches github.com/<owner>/<repo>/pull/<number> anywhere in
// the input, so trailing paths like /files or query strings are tolerated.
var prURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)`)

// Ref identifies a pull request on GitHub.
type Ref struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// ParseRef extracts owner, repo and number from a pull request URL such as
// https://github.com/owner/repo/pull/123.
func ParseRef(prURL string) (Ref, error) {
	m := prURLPattern.FindStringSubmatch(prURL)
	if m == nil || m[1] == "" || m[2] == "" || m[3] == "" {
		return Ref{}, apperr.InvalidReference("Invalid PR URL format")
	}

	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return Ref{}, apperr.InvalidReference("Invalid PR URL format")
	}

	return Ref{Owner: m[1], Repo: m[2], Number: n}, nil
}
