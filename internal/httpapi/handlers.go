package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/pranavsaji/autoapply-pro/internal/config"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// TokenRequest is the body of POST /api/token.
type TokenRequest struct {
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// SubmitResponse acknowledges an admitted plan.
type SubmitResponse struct {
	AttemptID uuid.UUID          `json:"attempt_id"`
	State     types.AttemptState `json:"state"`
}

// DecisionRequest is the body of the approval endpoint.
type DecisionRequest struct {
	Approved bool `json:"approved"`
}

// ListResponse wraps an attempt listing.
type ListResponse struct {
	Attempts []*types.SubmissionAttempt `json:"attempts"`
	Count    int                        `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if s.passwordHash == "" || !config.VerifyPassword(req.Password, s.passwordHash) {
		err := &ErrInvalidCredentials{}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	token, err := s.jwtService.GenerateToken()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	s.jsonResponse(w, http.StatusOK, TokenResponse{Token: token})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var plan types.ApplicationPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id, err := s.service.Submit(r.Context(), plan)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	attempt, err := s.service.Status(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{AttemptID: id, State: attempt.State})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	state := types.AttemptState(r.URL.Query().Get("state"))
	if state == "" {
		state = types.StateAwaitingApproval
	}

	attempts, err := s.service.List(r.Context(), state)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, ListResponse{Attempts: attempts, Count: len(attempts)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid attempt ID format")
		return
	}

	attempt, err := s.service.Status(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, attempt)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid attempt ID format")
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.service.Decide(r.Context(), id, req.Approved); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	attempt, err := s.service.Status(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, attempt)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid attempt ID format")
		return
	}

	if err := s.service.Cancel(r.Context(), id); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleEvents streams attempt lifecycle events over SSE until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if err := sse.WriteEvent("attempt", evt); err != nil {
				return
			}
		}
	}
}
