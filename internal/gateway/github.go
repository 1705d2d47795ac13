package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/pr-reviewer/internal/review"
)

const defaultGitHubAPIURL = "https://api.github.com"

const (
	acceptJSON = "application/vnd.github.v3+json"
	acceptDiff = "application/vnd.github.v3.diff"
)

// GitHub is a CodeHost backed by the GitHub REST API.
type GitHub struct {
	apiURL  string
	httpCli *http.Client
}

// NewGitHub creates a GitHub client. An empty apiURL selects the public API.
func NewGitHub(apiURL string) *GitHub {
	if apiURL == "" {
		apiURL = defaultGitHubAPIURL
	}
	return &GitHub{
		apiURL:  strings.TrimRight(apiURL, "/"),
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *GitHub) changeURL(ref review.Ref) string {
	if ref.IsCommit() {
		return fmt.Sprintf("%s/repos/%s/%s/commits/%s", g.apiURL, ref.Owner, ref.Repo, ref.CommitSHA)
	}
	return fmt.Sprintf("%s/repos/%s/%s/pulls/%d", g.apiURL, ref.Owner, ref.Repo, ref.Number)
}

// do performs one authenticated request and classifies the response status.
// The token goes into the Authorization header and nowhere else.
func (g *GitHub) do(ctx context.Context, method, url, token, accept string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, Permanent(ReasonNetwork, "creating request", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpCli.Do(req)
	if err != nil {
		return nil, Transient(ReasonNetwork, "code host request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(ReasonNetwork, "reading response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classifyGitHubStatus(resp.StatusCode, body)
}

func classifyGitHubStatus(status int, body []byte) *Error {
	msg := fmt.Sprintf("GitHub API error (status %d): %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusNotFound:
		return Permanent(ReasonPRNotFound, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Permanent(ReasonAuth, msg, nil)
	case status == http.StatusTooManyRequests:
		return Transient(ReasonRateLimited, msg, nil)
	case status >= 500:
		return Transient(ReasonUnavailable, msg, nil)
	default:
		return Permanent(ReasonNetwork, msg, nil)
	}
}

type prMetadata struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
}

type commitMetadata struct {
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commit"`
	Files []struct {
		Filename string `json:"filename"`
	} `json:"files"`
}

// FetchMetadata obtains the title and description of a pull request or commit.
func (g *GitHub) FetchMetadata(ctx context.Context, ref review.Ref, token string) (*Metadata, error) {
	body, err := g.do(ctx, http.MethodGet, g.changeURL(ref), token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}

	if ref.IsCommit() {
		var meta commitMetadata
		if err := json.Unmarshal(body, &meta); err != nil {
			return nil, Permanent(ReasonNetwork, "parsing commit metadata", err)
		}
		title, description, _ := strings.Cut(meta.Commit.Message, "\n")
		return &Metadata{
			Title:       title,
			Description: strings.TrimSpace(description),
			Author:      meta.Commit.Author.Name,
		}, nil
	}

	var meta prMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, Permanent(ReasonNetwork, "parsing pull request metadata", err)
	}
	return &Metadata{Title: meta.Title, Description: meta.Body, Author: meta.User.Login}, nil
}

type prFile struct {
	Filename string `json:"filename"`
}

// FetchFiles obtains the changed-file list and the full diff text.
func (g *GitHub) FetchFiles(ctx context.Context, ref review.Ref, token string) (*ChangedFiles, error) {
	files, err := g.fetchFileList(ctx, ref, token)
	if err != nil {
		return nil, err
	}

	diff, err := g.do(ctx, http.MethodGet, g.changeURL(ref), token, acceptDiff, nil)
	if err != nil {
		return nil, err
	}

	return &ChangedFiles{Files: files, Diff: string(diff)}, nil
}

func (g *GitHub) fetchFileList(ctx context.Context, ref review.Ref, token string) ([]string, error) {
	if ref.IsCommit() {
		body, err := g.do(ctx, http.MethodGet, g.changeURL(ref), token, acceptJSON, nil)
		if err != nil {
			return nil, err
		}
		var meta commitMetadata
		if err := json.Unmarshal(body, &meta); err != nil {
			return nil, Permanent(ReasonNetwork, "parsing commit files", err)
		}
		names := make([]string, len(meta.Files))
		for i, f := range meta.Files {
			names[i] = f.Filename
		}
		return names, nil
	}

	url := fmt.Sprintf("%s/files", g.changeURL(ref))
	body, err := g.do(ctx, http.MethodGet, url, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var files []prFile
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, Permanent(ReasonNetwork, "parsing pull request files", err)
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	return names, nil
}

type githubReviewComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Body string `json:"body"`
}

type githubReviewRequest struct {
	Body     string                `json:"body"`
	Event    string                `json:"event"`
	Comments []githubReviewComment `json:"comments"`
}

// PostReview posts an assembled review with inline comments back to the pull
// request. Posting to a commit reference is not supported by the API.
func (g *GitHub) PostReview(ctx context.Context, ref review.Ref, token string, post ReviewPost) error {
	if ref.IsCommit() {
		return Permanent(ReasonPRNotFound, "reviews can only be posted to pull requests", nil)
	}

	reviewReq := githubReviewRequest{
		Body:     post.Body,
		Event:    "COMMENT",
		Comments: make([]githubReviewComment, len(post.Comments)),
	}
	for i, c := range post.Comments {
		reviewReq.Comments[i] = githubReviewComment{Path: c.Filename, Line: c.LineNumber, Body: c.Comment}
	}

	payload, err := json.Marshal(reviewReq)
	if err != nil {
		return Permanent(ReasonNetwork, "marshaling review", err)
	}

	url := fmt.Sprintf("%s/reviews", g.changeURL(ref))
	_, err = g.do(ctx, http.MethodPost, url, token, acceptJSON, payload)
	return err
}
