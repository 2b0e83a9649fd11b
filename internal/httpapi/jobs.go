package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/steveyegge/graphd/internal/jobqueue"
)

// enqueueJobRequest is the POST /jobs body (spec.md §6).
type enqueueJobRequest struct {
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	Priority       *int            `json:"priority,omitempty"`
	MaxAttempts    *int            `json:"max_attempts,omitempty"`
	ScheduledAt    *string         `json:"scheduled_at,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
}

func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "malformed request body: "+err.Error())
		return
	}
	if req.Kind == "" {
		writeUnprocessable(w, "kind is required")
		return
	}

	scheduledAt, err := parseOptionalTimePtr(req.ScheduledAt)
	if err != nil {
		writeUnprocessable(w, "invalid scheduled_at: "+err.Error())
		return
	}

	job, err := s.jobs.Enqueue(r.Context(), jobqueue.EnqueueRequest{
		Kind:           req.Kind,
		Payload:        req.Payload,
		Priority:       req.Priority,
		MaxAttempts:    req.MaxAttempts,
		ScheduledAt:    scheduledAt,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeUnprocessable(w, "failed to enqueue job: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, job)
}
