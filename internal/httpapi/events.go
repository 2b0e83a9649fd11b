package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/storage/postgres"
)

// appendEventRequest is the POST /events/{category}/{key} body (spec.md §6).
type appendEventRequest struct {
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	ValidFrom       *string         `json:"valid_from,omitempty"`
	ValidTo         *string         `json:"valid_to,omitempty"`
	ExpectedVersion *int32          `json:"expected_version,omitempty"`
	IdempotencyKey  *string         `json:"idempotency_key,omitempty"`
	CorrelationID   *string         `json:"correlation_id,omitempty"`
	CausationID     *string         `json:"causation_id,omitempty"`
}

// handleAppendEvent implements POST /events/{category}/{key}. Status 422
// on any failure, with a message that discriminates the cause, per
// spec.md §6.
func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	key := chi.URLParam(r, "key")

	var req appendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeUnprocessable(w, "malformed request body: "+err.Error())
		return
	}
	if req.EventType == "" {
		writeUnprocessable(w, "event_type is required")
		return
	}

	appendReq := eventlog.AppendRequest{
		Category:        category,
		Key:             key,
		EventType:       req.EventType,
		Payload:         req.Payload,
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKey:  req.IdempotencyKey,
	}

	var err error
	if appendReq.ValidFrom, err = parseOptionalTime(req.ValidFrom); err != nil {
		writeUnprocessable(w, "invalid valid_from: "+err.Error())
		return
	}
	if appendReq.ValidTo, err = parseOptionalTimePtr(req.ValidTo); err != nil {
		writeUnprocessable(w, "invalid valid_to: "+err.Error())
		return
	}
	if appendReq.CorrelationID, err = parseOptionalUUID(req.CorrelationID); err != nil {
		writeUnprocessable(w, "invalid correlation_id: "+err.Error())
		return
	}
	if appendReq.CausationID, err = parseOptionalUUID(req.CausationID); err != nil {
		writeUnprocessable(w, "invalid causation_id: "+err.Error())
		return
	}

	ev, err := s.log.Append(r.Context(), appendReq)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrOptimisticConflict):
			writeUnprocessable(w, "optimistic conflict: expected_version does not match stream tail")
		case errors.Is(err, postgres.ErrInvalidInput):
			writeUnprocessable(w, err.Error())
		default:
			writeUnprocessable(w, "failed to append event: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
