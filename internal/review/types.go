// Package review defines the domain types shared across the PR review
// service: references to reviewable changes, analysis findings, and the
// assembled review result.
package review

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Finding represents a single issue the analysis model reported for a diff.
type Finding struct {
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Line       int      `json:"line,omitempty"`
}

// Comment is one per-file, per-line entry in the assembled review.
type Comment struct {
	Filename   string `json:"filename"`
	LineNumber int    `json:"line_number"`
	Comment    string `json:"comment"`
}

// Result is the final output of a completed review job.
type Result struct {
	Title      string    `json:"title"`
	ReviewText string    `json:"review_text"`
	Summary    string    `json:"summary"`
	Comments   []Comment `json:"comments"`
	Posted     bool      `json:"posted"`
	Warning    string    `json:"warning,omitempty"`
}

// Ref identifies a reviewable change on a code host: either a pull request
// or a single commit.
type Ref struct {
	Host      string
	Owner     string
	Repo      string
	Number    int    // pull request number; zero for commits
	CommitSHA string // commit SHA; empty for pull requests
}

// IsCommit reports whether the reference points at a single commit.
func (r Ref) IsCommit() bool {
	return r.CommitSHA != ""
}

// String renders the reference in the canonical host/owner/repo/... form.
// The credential token never appears in a Ref, so this is safe to log.
func (r Ref) String() string {
	if r.IsCommit() {
		return fmt.Sprintf("%s/%s/%s/commit/%s", r.Host, r.Owner, r.Repo, r.CommitSHA)
	}
	return fmt.Sprintf("%s/%s/%s/pull/%d", r.Host, r.Owner, r.Repo, r.Number)
}

var (
	pullRefRe   = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)/([\w.-]+)/pull/(\d+)$`)
	commitRefRe = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)/([\w.-]+)/commit/([0-9a-fA-F]{7,40})$`)
)

// ParseRef parses a pull request or commit reference. Accepted forms:
//
//	github.com/owner/repo/pull/42
//	https://github.com/owner/repo/pull/42
//	github.com/owner/repo/commit/<sha>
func ParseRef(s string) (Ref, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimSuffix(trimmed, "/")

	if m := pullRefRe.FindStringSubmatch(trimmed); m != nil {
		number, err := strconv.Atoi(m[4])
		if err != nil || number <= 0 {
			return Ref{}, fmt.Errorf("invalid pull request number in reference %q", s)
		}
		return Ref{Host: m[1], Owner: m[2], Repo: m[3], Number: number}, nil
	}
	if m := commitRefRe.FindStringSubmatch(trimmed); m != nil {
		return Ref{Host: m[1], Owner: m[2], Repo: m[3], CommitSHA: m[4]}, nil
	}
	return Ref{}, fmt.Errorf("invalid reference %q: must be host/owner/repo/pull/<number> or host/owner/repo/commit/<sha>", s)
}
