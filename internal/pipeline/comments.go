package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/pr-reviewer/internal/gateway"
	"github.com/jonathan/pr-reviewer/internal/review"
)

const defaultTemplate = "Focus on correctness, security, and maintainability. " +
	"Prefer concrete suggestions over style nits."

// GenerateComments converts findings into line comments. Findings without a
// filename and positive line number describe the change as a whole and stay
// out of the inline set; they surface in the review body instead. Output
// order is deterministic for identical input.
func GenerateComments(findings []review.Finding) []review.Comment {
	comments := make([]review.Comment, 0, len(findings))
	for _, f := range findings {
		if f.Filename == "" || f.Line <= 0 {
			continue
		}
		body := f.Message
		if f.Suggestion != "" {
			body += "\n\nSuggestion: " + f.Suggestion
		}
		comments = append(comments, review.Comment{
			Filename:   f.Filename,
			LineNumber: f.Line,
			Comment:    fmt.Sprintf("**[%s] %s**\n\n%s", f.Severity, f.Title, body),
		})
	}
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].Filename != comments[j].Filename {
			return comments[i].Filename < comments[j].Filename
		}
		return comments[i].LineNumber < comments[j].LineNumber
	})
	return comments
}

// PrepareReview assembles the final review from the metadata and analysis
// output. The template steers emphasis in the review preamble; empty means
// the default guidance.
func PrepareReview(meta *gateway.Metadata, findings []review.Finding, comments []review.Comment, template string) *review.Result {
	if template == "" {
		template = defaultTemplate
	}

	title := meta.Title
	if title == "" {
		title = "Code review"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Review: %s\n\n", title)
	if meta.Author != "" {
		fmt.Fprintf(&b, "Author: @%s\n\n", meta.Author)
	}
	fmt.Fprintf(&b, "_%s_\n\n", template)

	counts := severityCounts(findings)
	if len(findings) == 0 {
		b.WriteString("No issues found. The change looks good.\n")
	} else {
		b.WriteString("| Severity | Count |\n|---|---|\n")
		for _, sev := range []review.Severity{review.SeverityHigh, review.SeverityMedium, review.SeverityLow} {
			if n := counts[sev]; n > 0 {
				fmt.Fprintf(&b, "| %s | %d |\n", sev, n)
			}
		}
		b.WriteString("\n")
	}

	general := generalFindings(findings)
	if len(general) > 0 {
		b.WriteString("### Overall observations\n\n")
		for _, f := range general {
			fmt.Fprintf(&b, "- **[%s] %s**: %s\n", f.Severity, f.Title, f.Message)
		}
		b.WriteString("\n")
	}

	recs := recommendations(findings)
	if len(recs) > 0 {
		b.WriteString("### Recommendations\n\n")
		for _, r := range recs {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	return &review.Result{
		Title:      title,
		ReviewText: strings.TrimRight(b.String(), "\n") + "\n",
		Summary:    summaryLine(findings, counts),
		Comments:   comments,
	}
}

func severityCounts(findings []review.Finding) map[review.Severity]int {
	counts := make(map[review.Severity]int, 3)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// generalFindings are findings with no usable line anchor, sorted most
// severe first so the body leads with what matters.
func generalFindings(findings []review.Finding) []review.Finding {
	var general []review.Finding
	for _, f := range findings {
		if f.Filename == "" || f.Line <= 0 {
			general = append(general, f)
		}
	}
	sort.SliceStable(general, func(i, j int) bool {
		ri, rj := review.SeverityRank(general[i].Severity), review.SeverityRank(general[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return general[i].Title < general[j].Title
	})
	return general
}

// recommendations collects the distinct suggestions from high and medium
// severity findings, preserving first-seen order.
func recommendations(findings []review.Finding) []string {
	seen := make(map[string]bool)
	var recs []string
	for _, f := range findings {
		if f.Suggestion == "" || review.SeverityRank(f.Severity) < review.SeverityRank(review.SeverityMedium) {
			continue
		}
		if seen[f.Suggestion] {
			continue
		}
		seen[f.Suggestion] = true
		recs = append(recs, f.Suggestion)
	}
	return recs
}

func summaryLine(findings []review.Finding, counts map[review.Severity]int) string {
	if len(findings) == 0 {
		return "No issues found."
	}
	parts := make([]string, 0, 3)
	for _, sev := range []review.Severity{review.SeverityHigh, review.SeverityMedium, review.SeverityLow} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return fmt.Sprintf("%d finding(s): %s.", len(findings), strings.Join(parts, ", "))
}
