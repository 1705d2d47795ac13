// Package pipeline executes the ordered review steps for one job: fetch the
// change from the code host, analyze it, derive comments, assemble the review
// and optionally post it back. The engine owns no job state of its own; every
// mutation is a read-modify-write against the job store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonathan/pr-reviewer/internal/gateway"
	"github.com/jonathan/pr-reviewer/internal/review"
	"github.com/jonathan/pr-reviewer/internal/store"
)

// Pipeline step names, in execution order.
const (
	StepFetchMetadata    = "fetch_metadata"
	StepFetchFiles       = "fetch_files"
	StepAnalyzeCode      = "analyze_code"
	StepGenerateComments = "generate_comments"
	StepPrepareReview    = "prepare_review"
	StepPostReview       = "post_review"
)

// StepOrder lists the step names in the order they execute.
var StepOrder = []string{
	StepFetchMetadata,
	StepFetchFiles,
	StepAnalyzeCode,
	StepGenerateComments,
	StepPrepareReview,
	StepPostReview,
}

// Error kinds written to the job record on failure, beyond the gateway
// reasons.
const (
	KindPipelineError = "PipelineError"
	KindEmptyDiff     = "EmptyDiff"
	KindCancelled     = "Cancelled"
)

// Error is a fatal step-logic failure: an invariant the pipeline relies on
// does not hold. Never retried.
type Error struct {
	Step    string
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline error in %s: %s", e.Step, e.Message)
}

// Options tunes the retry policy for transient gateway failures.
type Options struct {
	MaxAttempts int           // attempts per gateway call, including the first
	RetryBase   time.Duration // first backoff; doubles per attempt
}

// Engine runs the review pipeline for one job at a time.
type Engine struct {
	store    store.Store
	codeHost gateway.CodeHost
	analysis gateway.Analysis
	opts     Options
}

// New creates an engine. Zero option fields get defaults matching the
// upstream retry budget (3 attempts, 2s base backoff).
func New(st store.Store, codeHost gateway.CodeHost, analysis gateway.Analysis, opts Options) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 2 * time.Second
	}
	return &Engine{store: st, codeHost: codeHost, analysis: analysis, opts: opts}
}

// execContext threads data between steps within one run. It exists only for
// the lifetime of this execution; the store sees projections of it, never the
// struct itself.
type execContext struct {
	ref      review.Ref
	token    string
	template string
	post     bool

	metadata *gateway.Metadata
	files    []string
	diff     string
	findings []review.Finding
	comments []review.Comment
	result   *review.Result
	warning  string
	posted   bool
}

type step struct {
	name     string
	optional bool
	run      func(ctx context.Context, ec *execContext) error
}

// Run executes the full pipeline for jobID. It never returns an error: every
// outcome, success or failure, is written to the job store.
func (e *Engine) Run(ctx context.Context, jobID string) {
	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		log.Printf("[pipeline] job %s: %v", jobID, err)
		return
	}
	if job.Status != store.StatusQueued {
		log.Printf("[pipeline] job %s already %s, skipping", jobID, job.Status)
		return
	}

	ref, err := review.ParseRef(job.Input.Reference)
	if err != nil {
		e.fail(jobID, &Error{Step: StepFetchMetadata, Kind: KindPipelineError, Message: err.Error()})
		return
	}

	ec := &execContext{
		ref:      ref,
		token:    job.Input.Token,
		template: job.Input.ReviewTemplate,
		post:     job.Input.PostToHost,
	}

	running := store.StatusRunning
	if err := e.store.Update(ctx, jobID, store.Patch{Status: &running}); err != nil {
		log.Printf("[pipeline] job %s: %v", jobID, err)
		return
	}
	log.Printf("[pipeline] job %s: reviewing %s", jobID, ref)

	steps := []step{
		{name: StepFetchMetadata, run: e.fetchMetadata},
		{name: StepFetchFiles, run: e.fetchFiles},
		{name: StepAnalyzeCode, run: e.analyzeCode},
		{name: StepGenerateComments, run: e.generateComments},
		{name: StepPrepareReview, run: e.prepareReview},
		{name: StepPostReview, optional: true, run: e.postReview},
	}

	for _, st := range steps {
		if st.name == StepPostReview && !ec.post {
			continue
		}
		if cancelled := e.checkCancelled(jobID); cancelled {
			e.failWithKind(jobID, KindCancelled, "job cancelled")
			return
		}

		if err := st.run(ctx, ec); err != nil {
			if st.optional {
				// The analysis already succeeded; record the failure as a
				// warning instead of reverting the job.
				ec.posted = false
				ec.warning = fmt.Sprintf("%s failed: %v", st.name, err)
				log.Printf("[pipeline] job %s: %s", jobID, ec.warning)
				continue
			}
			e.fail(jobID, err)
			return
		}

		// Progress is visible before the next step starts, so a status query
		// mid-run reflects the last completed step, never an in-flight one.
		if err := e.progress(jobID, st.name); err != nil {
			log.Printf("[pipeline] job %s: %v", jobID, err)
			return
		}
	}

	ec.result.Posted = ec.posted
	ec.result.Warning = ec.warning

	succeeded := store.StatusSucceeded
	if err := e.store.Update(context.Background(), jobID, store.Patch{
		Status: &succeeded,
		Result: ec.result,
	}); err != nil {
		log.Printf("[pipeline] job %s: %v", jobID, err)
		return
	}
	log.Printf("[pipeline] job %s: review complete (%d comments)", jobID, len(ec.result.Comments))
}

func (e *Engine) fetchMetadata(ctx context.Context, ec *execContext) error {
	return e.withRetry(ctx, func(ctx context.Context) error {
		meta, err := e.codeHost.FetchMetadata(ctx, ec.ref, ec.token)
		if err != nil {
			return err
		}
		ec.metadata = meta
		return nil
	})
}

func (e *Engine) fetchFiles(ctx context.Context, ec *execContext) error {
	err := e.withRetry(ctx, func(ctx context.Context) error {
		changed, err := e.codeHost.FetchFiles(ctx, ec.ref, ec.token)
		if err != nil {
			return err
		}
		ec.files = changed.Files
		ec.diff = changed.Diff
		return nil
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(ec.diff) == "" {
		return &Error{Step: StepFetchFiles, Kind: KindEmptyDiff, Message: "diff is empty, nothing to review"}
	}
	return nil
}

func (e *Engine) analyzeCode(ctx context.Context, ec *execContext) error {
	return e.withRetry(ctx, func(ctx context.Context) error {
		findings, err := e.analysis.Analyze(ctx, ec.diff, ec.files)
		if err != nil {
			return err
		}
		ec.findings = findings
		return nil
	})
}

func (e *Engine) generateComments(_ context.Context, ec *execContext) error {
	ec.comments = GenerateComments(ec.findings)
	return nil
}

func (e *Engine) prepareReview(_ context.Context, ec *execContext) error {
	if ec.metadata == nil {
		return &Error{Step: StepPrepareReview, Kind: KindPipelineError, Message: "metadata missing from upstream steps"}
	}
	ec.result = PrepareReview(ec.metadata, ec.findings, ec.comments, ec.template)
	return nil
}

func (e *Engine) postReview(ctx context.Context, ec *execContext) error {
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.codeHost.PostReview(ctx, ec.ref, ec.token, gateway.ReviewPost{
			Body:     ec.result.ReviewText,
			Comments: ec.result.Comments,
		})
	})
	if err != nil {
		return err
	}
	ec.posted = true
	return nil
}

// withRetry retries transient gateway failures with exponential backoff.
// Permanent failures and retry exhaustion return the last error unchanged.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < e.opts.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !gateway.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == e.opts.MaxAttempts-1 {
			break
		}

		backoff := e.opts.RetryBase * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// checkCancelled re-reads the job between steps. In-flight gateway calls run
// to completion; only step boundaries observe the flag.
func (e *Engine) checkCancelled(jobID string) bool {
	job, err := e.store.Get(context.Background(), jobID)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

func (e *Engine) progress(jobID, stepName string) error {
	return e.store.Update(context.Background(), jobID, store.Patch{CurrentStep: &stepName})
}

func (e *Engine) fail(jobID string, cause error) {
	kind := KindPipelineError
	var gerr *gateway.Error
	var perr *Error
	switch {
	case errors.As(cause, &gerr):
		kind = gerr.Reason
	case errors.As(cause, &perr):
		kind = perr.Kind
	}
	e.failWithKind(jobID, kind, cause.Error())
}

func (e *Engine) failWithKind(jobID, kind, message string) {
	failed := store.StatusFailed
	err := e.store.Update(context.Background(), jobID, store.Patch{
		Status:    &failed,
		Error:     &message,
		ErrorKind: &kind,
	})
	if err != nil {
		log.Printf("[pipeline] job %s: recording failure: %v", jobID, err)
		return
	}
	log.Printf("[pipeline] job %s failed (%s): %s", jobID, kind, message)
}
