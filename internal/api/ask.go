package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/auth"
	"github.com/dbanalyst/dbanalyst/internal/database"
	"github.com/dbanalyst/dbanalyst/internal/guard"
	"github.com/dbanalyst/dbanalyst/internal/llm"
	"github.com/dbanalyst/dbanalyst/internal/nl2sql"
	"github.com/dbanalyst/dbanalyst/internal/orchestrator"
)

type textRequest struct {
	Text string `json:"text"`
}

type askResponse struct {
	Route     string   `json:"route"`
	State     string   `json:"state"`
	Trail     []string `json:"trail"`
	Command   string   `json:"command,omitempty"`
	SQL       string   `json:"sql,omitempty"`
	Rows      any      `json:"rows,omitempty"`
	Discovery any      `json:"discovery,omitempty"`
	Answer    string   `json:"answer,omitempty"`
	Reply     string   `json:"reply"`
}

type validateResponse struct {
	Safe     bool   `json:"safe"`
	Category string `json:"category,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		notConfigured(w, r, "ASSISTANT_NOT_CONFIGURED", "assistant")
		return
	}
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}

	var request textRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Text) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TEXT_REQUIRED", "text is required", false, nil)
		return
	}

	reply, err := deps.Assistant.Handle(r.Context(), tenantID, request.Text)
	if err != nil {
		writeAssistantError(w, r, reply.Outcome, err)
		return
	}
	writeJSON(w, http.StatusOK, newAskResponse(reply))
}

func newAskResponse(reply orchestrator.Reply) askResponse {
	out := reply.Outcome
	response := askResponse{
		Route:     string(reply.Route),
		State:     string(out.State),
		Trail:     trailStrings(out.Trail),
		SQL:       out.SQL,
		Discovery: out.Discovery,
		Answer:    out.Answer,
		Reply:     reply.Text,
	}
	if out.Command.Kind != "" {
		response.Command = out.Command.String()
	}
	if out.Executed() {
		response.Rows = out.Rows
	}
	return response
}

func trailStrings(trail []orchestrator.State) []string {
	states := make([]string, 0, len(trail))
	for _, state := range trail {
		states = append(states, string(state))
	}
	return states
}

func writeAssistantError(w http.ResponseWriter, r *http.Request, out orchestrator.Outcome, err error) {
	extra := map[string]any{"state": string(out.State), "trail": trailStrings(out.Trail)}
	var violation *guard.SecurityViolation
	switch {
	case errors.As(err, &violation):
		extra["reason"] = violation.Reason
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "SECURITY_VIOLATION", err.Error(), false, extra)
	case errors.Is(err, nl2sql.ErrDisabled):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "AI_DISABLED", err.Error(), false, extra)
	case database.IsOperational(err):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASE_ERROR", orchestrator.DescribeError(err), true, extra)
	case llm.IsTransport(err):
		writeError(r.Context(), w, http.StatusBadGateway, "LLM_UNAVAILABLE", orchestrator.DescribeError(err), true, extra)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", orchestrator.DescribeError(err), false, extra)
	}
}

func handleValidate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Validator == nil {
		notConfigured(w, r, "VALIDATOR_NOT_CONFIGURED", "validator")
		return
	}
	if _, ok := authorize(w, r, auth.RoleQueryReader); !ok {
		return
	}

	var request textRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid validate request body", false, map[string]any{"details": err.Error()})
		return
	}

	pattern, matched := deps.Validator.CheckCategories(request.Text)
	if !matched {
		writeJSON(w, http.StatusOK, validateResponse{Safe: true})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Safe:     false,
		Category: string(pattern.Category),
		Pattern:  pattern.String(),
	})
}
