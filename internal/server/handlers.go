package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/pr-reviewer/internal/review"
	"github.com/jonathan/pr-reviewer/internal/store"
	"github.com/jonathan/pr-reviewer/internal/worker"
)

// SubmitRequest is the body of POST /reviews. The credential token is
// forwarded to the code host as-is and never persisted beyond the job record.
type SubmitRequest struct {
	PRReference     string `json:"pr_reference" validate:"required"`
	CredentialToken string `json:"credential_token"`
	PostToHost      bool   `json:"post_to_host"`
	ReviewTemplate  string `json:"review_template"`
}

// SubmitResponse acknowledges an accepted review job.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// StatusResponse reports job progress. CurrentStep is null until the first
// step completes.
type StatusResponse struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	CurrentStep *string `json:"current_step"`
	Error       string  `json:"error,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
}

// ResultResponse carries the assembled review once the job is terminal.
// Result is null while the job is still pending or running.
type ResultResponse struct {
	JobID     string         `json:"job_id"`
	Status    string         `json:"status"`
	Result    *ResultPayload `json:"result"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
}

// ResultPayload is the wire shape of a finished review.
type ResultPayload struct {
	Title      string           `json:"title"`
	ReviewText string           `json:"review_text"`
	Summary    string           `json:"summary"`
	Comments   []CommentPayload `json:"comments"`
	Posted     bool             `json:"posted"`
	Warning    string           `json:"warning,omitempty"`
}

// CommentPayload is one line-anchored review comment.
type CommentPayload struct {
	Filename   string `json:"filename"`
	LineNumber int    `json:"line_number"`
	Comment    string `json:"comment"`
}

// handleSubmit validates the reference, creates the job record and enqueues
// it for the worker pool.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "pr_reference is required")
		return
	}
	if _, err := review.ParseRef(req.PRReference); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.Create(r.Context(), store.Input{
		Reference:      req.PRReference,
		Token:          req.CredentialToken,
		PostToHost:     req.PostToHost,
		ReviewTemplate: req.ReviewTemplate,
	})
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	if err := s.scheduler.Enqueue(id); err == worker.ErrQueueFull {
		// The record must not linger as QUEUED when nothing will run it.
		failed := store.StatusFailed
		msg := "review queue is full"
		kind := "QueueFull"
		_ = s.store.Update(r.Context(), id, store.Patch{Status: &failed, Error: &msg, ErrorKind: &kind})
		s.errorResponse(w, http.StatusServiceUnavailable, msg)
		return
	} else if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{JobID: id, Status: string(store.StatusQueued)})
}

// handleStatus returns the current state of a job.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	resp := StatusResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	}
	if job.CurrentStep != "" {
		step := job.CurrentStep
		resp.CurrentStep = &step
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleResult returns the assembled review, or the failure details for a
// failed job. Result stays null until the job reaches a terminal state.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	resp := ResultResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	}
	if job.Result != nil {
		payload := &ResultPayload{
			Title:      job.Result.Title,
			ReviewText: job.Result.ReviewText,
			Summary:    job.Result.Summary,
			Comments:   make([]CommentPayload, 0, len(job.Result.Comments)),
			Posted:     job.Result.Posted,
			Warning:    job.Result.Warning,
		}
		for _, c := range job.Result.Comments {
			payload.Comments = append(payload.Comments, CommentPayload{
				Filename:   c.Filename,
				LineNumber: c.LineNumber,
				Comment:    c.Comment,
			})
		}
		resp.Result = payload
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleCancel flags a job for cancellation. The pipeline observes the flag
// at the next step boundary; a queued job fails before its first step.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cancelled := true
	if err := s.store.Update(r.Context(), id, store.Patch{CancelRequested: &cancelled}); err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{JobID: id, Status: string(job.Status)})
}
