package github

import (
	"context"

	"github.com/joescharf/prscore/internal/apperr"
)

// DiffRecord is one patch-bearing file handed to the code evaluator.
type DiffRecord struct {
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// DiffSummary is the reduced file listing of a pull request.
//
// FilesAnalyzed counts only the files in Diffs, while LinesChanged sums
// additions and deletions over every file, including those without a patch.
type DiffSummary struct {
	Diffs         []DiffRecord `json:"diffs"`
	FilesAnalyzed int          `json:"filesAnalyzed"`
	LinesChanged  int          `json:"linesChanged"`
}

// ReduceFiles filters files to those with a textual patch and totals the
// changed lines across all of them.
func ReduceFiles(files []File) *DiffSummary {
	s := &DiffSummary{Diffs: make([]DiffRecord, 0, len(files))}
	for _, f := range files {
		s.LinesChanged += f.Additions + f.Deletions
		if f.Patch == "" {
			continue
		}
		s.Diffs = append(s.Diffs, DiffRecord(f))
	}
	s.FilesAnalyzed = len(s.Diffs)
	return s
}

// CollectDiff fetches every changed file of ref. An empty Diffs slice is a
// valid result; deciding whether that is an error is up to the caller.
func CollectDiff(ctx context.Context, api API, ref Ref) (*DiffSummary, error) {
	files, err := api.ListFiles(ctx, ref)
	if err != nil {
		return nil, apperr.Upstream("Failed to get PR diff", err)
	}
	return ReduceFiles(files), nil
}
