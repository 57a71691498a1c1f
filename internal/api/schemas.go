package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/auth"
	"github.com/dbanalyst/dbanalyst/internal/schema"
)

func handleListSchemas(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		notConfigured(w, r, "SCHEMAS_NOT_CONFIGURED", "schema inspector")
		return
	}
	if _, ok := authorize(w, r, auth.RoleQueryReader); !ok {
		return
	}
	schemas, err := deps.Schemas.ListSchemas(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASE_ERROR", "failed to list schemas", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		notConfigured(w, r, "SCHEMAS_NOT_CONFIGURED", "schema inspector")
		return
	}
	if _, ok := authorize(w, r, auth.RoleQueryReader); !ok {
		return
	}
	schemaName := strings.TrimSpace(r.PathValue("schema"))
	tables, err := deps.Schemas.ListTables(r.Context(), schemaName)
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASE_ERROR", "failed to list tables", true, map[string]any{"schema": schemaName, "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schemaName, "tables": tables})
}

func handleDescribeTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		notConfigured(w, r, "SCHEMAS_NOT_CONFIGURED", "schema inspector")
		return
	}
	if _, ok := authorize(w, r, auth.RoleQueryReader); !ok {
		return
	}
	schemaName := strings.TrimSpace(r.PathValue("schema"))
	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}

	descriptor, err := deps.Schemas.FetchSchema(r.Context(), tableName, schemaName)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "Error: Table '"+schemaName+"."+tableName+"' not found.", false, map[string]any{"schema": schemaName, "table": tableName})
			return
		}
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATABASE_ERROR", "failed to describe table", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}
