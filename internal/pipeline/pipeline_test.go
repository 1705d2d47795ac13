package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/pr-reviewer/internal/gateway"
	"github.com/jonathan/pr-reviewer/internal/review"
	"github.com/jonathan/pr-reviewer/internal/store"
)

type fakeHost struct {
	mu       sync.Mutex
	calls    []string
	metaErrs []error
	fileErrs []error
	postErrs []error
	diff     string
	files    []string
	posted   []gateway.ReviewPost
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (h *fakeHost) FetchMetadata(_ context.Context, _ review.Ref, _ string) (*gateway.Metadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "metadata")
	if err := popErr(&h.metaErrs); err != nil {
		return nil, err
	}
	return &gateway.Metadata{Title: "Fix connection leak", Author: "alice"}, nil
}

func (h *fakeHost) FetchFiles(_ context.Context, _ review.Ref, _ string) (*gateway.ChangedFiles, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "files")
	if err := popErr(&h.fileErrs); err != nil {
		return nil, err
	}
	return &gateway.ChangedFiles{Files: h.files, Diff: h.diff}, nil
}

func (h *fakeHost) PostReview(_ context.Context, _ review.Ref, _ string, post gateway.ReviewPost) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "post")
	if err := popErr(&h.postErrs); err != nil {
		return err
	}
	h.posted = append(h.posted, post)
	return nil
}

func (h *fakeHost) callCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeAnalysis struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	findings []review.Finding
}

func (a *fakeAnalysis) Analyze(_ context.Context, _ string, _ []string) ([]review.Finding, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if err := popErr(&a.errs); err != nil {
		return nil, err
	}
	return a.findings, nil
}

func testOpts() Options {
	return Options{MaxAttempts: 3, RetryBase: time.Millisecond}
}

func newHost() *fakeHost {
	return &fakeHost{
		diff:  "diff --git a/db.go b/db.go\n--- a/db.go\n+++ b/db.go\n@@ -1 +1 @@\n-old\n+new\n",
		files: []string{"db.go"},
	}
}

func createJob(t *testing.T, st store.Store, input store.Input) string {
	t.Helper()
	id, err := st.Create(context.Background(), input)
	require.NoError(t, err)
	return id
}

func TestRunSuccessWithoutPosting(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	analysis := &fakeAnalysis{findings: []review.Finding{
		{Severity: review.SeverityHigh, Title: "Unclosed rows", Message: "rows is never closed", Filename: "db.go", Line: 4},
	}}
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12", Token: "tok"})

	New(st, host, analysis, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, job.Status)
	assert.Equal(t, StepPrepareReview, job.CurrentStep)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.Result)
	assert.Equal(t, "Fix connection leak", job.Result.Title)
	assert.Len(t, job.Result.Comments, 1)
	assert.False(t, job.Result.Posted)
	assert.Zero(t, host.callCount("post"), "post_review must not run when posting is off")
}

func TestRunRetriesTransientFailures(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	host.metaErrs = []error{
		gateway.Transient(gateway.ReasonUnavailable, "bad gateway", nil),
		gateway.Transient(gateway.ReasonRateLimited, "slow down", nil),
	}
	analysis := &fakeAnalysis{}
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12", Token: "tok"})

	New(st, host, analysis, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, job.Status)
	assert.Equal(t, 3, host.callCount("metadata"))
}

func TestRunPermanentFailureShortCircuits(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	host.metaErrs = []error{gateway.Permanent(gateway.ReasonPRNotFound, "no such pull request", nil)}
	analysis := &fakeAnalysis{}
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/404", Token: "tok"})

	New(st, host, analysis, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, job.Status)
	assert.Equal(t, gateway.ReasonPRNotFound, job.ErrorKind)
	assert.NotEmpty(t, job.Error)
	assert.Nil(t, job.Result)
	assert.Equal(t, 1, host.callCount("metadata"), "permanent failures are not retried")
	assert.Zero(t, analysis.calls)
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	host.fileErrs = []error{
		gateway.Transient(gateway.ReasonUnavailable, "502", nil),
		gateway.Transient(gateway.ReasonUnavailable, "502", nil),
		gateway.Transient(gateway.ReasonUnavailable, "502", nil),
	}
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12", Token: "tok"})

	New(st, host, &fakeAnalysis{}, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, job.Status)
	assert.Equal(t, gateway.ReasonUnavailable, job.ErrorKind)
	assert.Equal(t, 3, host.callCount("files"))
	assert.Equal(t, StepFetchMetadata, job.CurrentStep, "last completed step survives the failure")
}

func TestRunEmptyDiffFailsPermanently(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	host.diff = "  \n"
	analysis := &fakeAnalysis{}
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12", Token: "tok"})

	New(st, host, analysis, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, job.Status)
	assert.Equal(t, KindEmptyDiff, job.ErrorKind)
	assert.Zero(t, analysis.calls)
}

func TestRunPostsReviewWhenRequested(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	analysis := &fakeAnalysis{findings: []review.Finding{
		{Severity: review.SeverityMedium, Title: "Magic number", Message: "name the constant", Filename: "db.go", Line: 2},
	}}
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12", Token: "tok", PostToHost: true})

	New(st, host, analysis, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, job.Status)
	assert.Equal(t, StepPostReview, job.CurrentStep)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Posted)
	assert.Empty(t, job.Result.Warning)
	require.Len(t, host.posted, 1)
	assert.Equal(t, job.Result.ReviewText, host.posted[0].Body)
	assert.Len(t, host.posted[0].Comments, 1)
}

func TestRunPostFailureDowngradesToWarning(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	host.postErrs = []error{gateway.Permanent(gateway.ReasonAuth, "token lacks write scope", nil)}
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12", Token: "tok", PostToHost: true})

	New(st, host, &fakeAnalysis{}, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, job.Status, "a finished analysis is not reverted by a post failure")
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Posted)
	assert.Contains(t, job.Result.Warning, "post_review failed")
	assert.Empty(t, job.Error)
}

func TestRunInvalidReference(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	id := createJob(t, st, store.Input{Reference: "not a reference"})

	New(st, host, &fakeAnalysis{}, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, job.Status)
	assert.Equal(t, KindPipelineError, job.ErrorKind)
	assert.Empty(t, host.calls)
}

func TestRunSkipsNonQueuedJob(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12"})
	running := store.StatusRunning
	require.NoError(t, st.Update(context.Background(), id, store.Patch{Status: &running}))

	New(st, host, &fakeAnalysis{}, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, job.Status, "a second run must not touch an in-flight job")
	assert.Empty(t, host.calls)
}

func TestRunHonorsCancelRequest(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12"})
	cancelled := true
	require.NoError(t, st.Update(context.Background(), id, store.Patch{CancelRequested: &cancelled}))

	New(st, host, &fakeAnalysis{}, testOpts()).Run(context.Background(), id)

	job, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, job.Status)
	assert.Equal(t, KindCancelled, job.ErrorKind)
	assert.Empty(t, host.calls)
}

func TestRunStepOrder(t *testing.T) {
	st := store.NewMemory()
	host := newHost()
	id := createJob(t, st, store.Input{Reference: "github.com/acme/api/pull/12", PostToHost: true})

	New(st, host, &fakeAnalysis{}, testOpts()).Run(context.Background(), id)

	assert.Equal(t, []string{"metadata", "files", "post"}, host.calls)
}
