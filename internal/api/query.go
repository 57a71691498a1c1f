package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/auth"
	"github.com/dbanalyst/dbanalyst/internal/executor"
	"github.com/dbanalyst/dbanalyst/internal/guard"
)

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	Columns []string        `json:"columns"`
	Rows    executor.Result `json:"rows"`
	Failed  bool            `json:"failed"`
}

// handleQuery runs caller-supplied SQL through the guard. Driver failures are
// reported in-band as the single error record, matching the tool contract.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Queries == nil {
		notConfigured(w, r, "QUERY_NOT_CONFIGURED", "query runner")
		return
	}
	if _, ok := authorize(w, r, auth.RoleQueryReader); !ok {
		return
	}

	var request queryRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	result, err := deps.Queries.ExecuteSQLQuery(r.Context(), request.SQL)
	if err != nil {
		var violation *guard.SecurityViolation
		switch {
		case errors.As(err, &violation):
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "SECURITY_VIOLATION", err.Error(), false, map[string]any{"reason": violation.Reason})
		case errors.Is(err, guard.ErrEmptyQuery):
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(), false, nil)
		}
		return
	}

	columns := result.Columns()
	if result.Failed() {
		columns = []string{executor.ErrorKey}
	}
	if columns == nil {
		columns = []string{}
	}
	writeJSON(w, http.StatusOK, queryResponse{Columns: columns, Rows: result, Failed: result.Failed()})
}
