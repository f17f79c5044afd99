package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dcavalli/fidelgate/internal/uuid"
	"github.com/dcavalli/fidelgate/secure"
)

// SetRecoveryAnswers handles POST /auth/recovery/answers for an
// authenticated subject.
func (a *API) SetRecoveryAnswers(w http.ResponseWriter, r *http.Request) {
	if a.recovery == nil {
		writeError(w, http.StatusServiceUnavailable, "recovery is not enabled")
		return
	}
	req, ok := decodeJSON[SetRecoveryAnswersRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	ident := identityFromContext(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.recovery.SetAnswers(r.Context(), ident.ID, req.Answers); err != nil {
		if errors.Is(err, secure.ErrAnswerCount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartRecovery handles POST /auth/recovery/start.
func (a *API) StartRecovery(w http.ResponseWriter, r *http.Request) {
	if a.recovery == nil {
		writeError(w, http.StatusServiceUnavailable, "recovery is not enabled")
		return
	}
	req, ok := decodeJSON[StartRecoveryRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	if !a.recovery.HasAnswers(r.Context(), req.Identity) {
		writeError(w, http.StatusNotFound, "no recovery answers on file")
		return
	}

	flow := a.recovery.Start(r.Context(), req.Identity)
	flowID := uuid.New()
	a.flows.mu.Lock()
	a.flows.data[flowID] = flow
	a.flows.mu.Unlock()

	writeJSON(w, http.StatusCreated, a.flowResponse(flowID, flow))
}

// SubmitRecoveryAnswer handles POST /auth/recovery/{flowID}/answer.
func (a *API) SubmitRecoveryAnswer(w http.ResponseWriter, r *http.Request) {
	flowID, flow, ok := a.flowFromRequest(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[RecoveryAnswerRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if _, err := flow.SubmitAnswer(r.Context(), req.Answer); err != nil {
		if errors.Is(err, secure.ErrRecoveryState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.flowResponse(flowID, flow))
}

// SetRecoveryPassword handles POST /auth/recovery/{flowID}/password.
func (a *API) SetRecoveryPassword(w http.ResponseWriter, r *http.Request) {
	flowID, flow, ok := a.flowFromRequest(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[RecoveryPasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	if err := flow.SetNewPassword(r.Context(), req.Password); err != nil {
		if errors.Is(err, secure.ErrRecoveryState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		mapError(w, err)
		return
	}

	a.flows.mu.Lock()
	delete(a.flows.data, flowID)
	a.flows.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) flowFromRequest(w http.ResponseWriter, r *http.Request) (string, *secure.RecoveryFlow, bool) {
	if a.recovery == nil {
		writeError(w, http.StatusServiceUnavailable, "recovery is not enabled")
		return "", nil, false
	}
	flowID := chi.URLParam(r, "flowID")
	a.flows.mu.Lock()
	flow, ok := a.flows.data[flowID]
	a.flows.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown recovery flow")
		return "", nil, false
	}
	return flowID, flow, true
}

func (a *API) flowResponse(flowID string, flow *secure.RecoveryFlow) RecoveryFlowResponse {
	resp := RecoveryFlowResponse{
		FlowID: flowID,
		State:  flow.State().String(),
	}
	if question, ok := flow.Question(); ok {
		resp.Question = question
	}
	return resp
}
