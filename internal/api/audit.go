package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/auth"
	"github.com/dbanalyst/dbanalyst/internal/store"
)

func handleListAudit(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Audit == nil {
		notConfigured(w, r, "AUDIT_NOT_CONFIGURED", "audit log")
		return
	}
	tenantID, ok := authorize(w, r, auth.RoleAuditor)
	if !ok {
		return
	}

	limit := store.DefaultAuditLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = store.NormalizeLimit(parsed)
	}

	entries, err := deps.Audit.ListAudit(r.Context(), tenantID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "STORE_ERROR", "failed to list audit entries", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "limit": limit, "entries": entries})
}
