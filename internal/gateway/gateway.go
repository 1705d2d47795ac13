// Package gateway contains the typed clients for the external systems the
// pipeline talks to: the code host and the analysis model. Every call is
// synchronous from the pipeline's perspective and fails with an *Error that
// classifies the failure as transient or permanent.
package gateway

import (
	"context"

	"github.com/jonathan/pr-reviewer/internal/review"
)

// Metadata describes the change under review as reported by the code host.
type Metadata struct {
	Title       string
	Description string
	Author      string
}

// ChangedFiles holds the changed-file list and the full unified diff text.
type ChangedFiles struct {
	Files []string
	Diff  string
}

// ReviewPost is an assembled review to post back to the code host.
type ReviewPost struct {
	Body     string
	Comments []review.Comment
}

// CodeHost fetches pull request or commit data and optionally posts reviews.
// The credential token is forwarded opaquely on every call; implementations
// must never inspect or log it.
type CodeHost interface {
	FetchMetadata(ctx context.Context, ref review.Ref, token string) (*Metadata, error)
	FetchFiles(ctx context.Context, ref review.Ref, token string) (*ChangedFiles, error)
	PostReview(ctx context.Context, ref review.Ref, token string, post ReviewPost) error
}

// Analysis submits diff text to the analysis model and returns structured
// findings. An empty finding list is a valid result.
type Analysis interface {
	Analyze(ctx context.Context, diff string, files []string) ([]review.Finding, error)
}
