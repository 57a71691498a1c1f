package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbanalyst/dbanalyst/internal/auth"
	"github.com/dbanalyst/dbanalyst/internal/config"
	"github.com/dbanalyst/dbanalyst/internal/executor"
	"github.com/dbanalyst/dbanalyst/internal/observability"
	"github.com/dbanalyst/dbanalyst/internal/orchestrator"
	"github.com/dbanalyst/dbanalyst/internal/schema"
	"github.com/dbanalyst/dbanalyst/internal/store"
	"github.com/dbanalyst/dbanalyst/internal/validation"
)

const DefaultTenantID = "default"

type ReadinessCheck func(ctx context.Context) error

type Assistant interface {
	Handle(ctx context.Context, tenantID, text string) (orchestrator.Reply, error)
}

type RequestValidator interface {
	CheckCategories(text string, categories ...validation.Category) (validation.Pattern, bool)
}

type SchemaBrowser interface {
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schemaName string) ([]string, error)
	FetchSchema(ctx context.Context, table, schemaName string) (schema.Descriptor, error)
}

type QueryRunner interface {
	ExecuteSQLQuery(ctx context.Context, sql string) (executor.Result, error)
}

type DocumentService interface {
	Ingest(ctx context.Context, tenantID, name, contentType string, body []byte) (store.Document, error)
	Documents(ctx context.Context, tenantID string) ([]store.Document, error)
	Answer(ctx context.Context, tenantID, question string) (string, error)
	Context(ctx context.Context, tenantID, question string) (string, error)
}

type AuditLog interface {
	ListAudit(ctx context.Context, tenantID string, limit int) ([]store.AuditEntry, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
	Validator         RequestValidator
	Schemas           SchemaBrowser
	Queries           QueryRunner
	Documents         DocumentService
	Audit             AuditLog
	MaxUploadBytes    int64
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]func(Dependencies, http.ResponseWriter, *http.Request){
		"POST /v1/ask":                            handleAsk,
		"POST /v1/validate":                       handleValidate,
		"GET /v1/schemas":                         handleListSchemas,
		"GET /v1/schemas/{schema}/tables":         handleListTables,
		"GET /v1/schemas/{schema}/tables/{table}": handleDescribeTable,
		"POST /v1/query":                          handleQuery,
		"POST /v1/documents":                      handleUploadDocument,
		"GET /v1/documents":                       handleListDocuments,
		"POST /v1/documents/ask":                  handleAskDocuments,
		"POST /v1/documents/context":              handleDocumentContext,
		"GET /v1/audit":                           handleListAudit,
	}

	protected := http.NewServeMux()
	for pattern, handle := range routes {
		protected.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func CheckDatabase(db pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database is not configured")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
		return nil
	}
}

func CheckAppStore(repo interface{ HealthCheck(context.Context) error }) ReadinessCheck {
	return func(ctx context.Context) error {
		if repo == nil {
			return errors.New("application store is not configured")
		}
		return repo.HealthCheck(ctx)
	}
}

func CheckObjectStore(objects interface{ Ping(context.Context) error }) ReadinessCheck {
	return func(ctx context.Context) error {
		if objects == nil {
			return errors.New("object store is not configured")
		}
		return objects.Ping(ctx)
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// tenantFromRequest prefers the authenticated identity, then X-Tenant-ID, and
// falls back to the default tenant when neither is present.
func tenantFromRequest(r *http.Request) (string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.TenantID) != "" {
			return identity.TenantID, nil
		}
	}
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	if tenantID == "" {
		return DefaultTenantID, nil
	}
	if !tenantIDPattern.MatchString(tenantID) {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return tenantID, nil
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

// authorize resolves the tenant and checks role, writing the error response
// when either fails.
func authorize(w http.ResponseWriter, r *http.Request, role string) (string, bool) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TENANT", err.Error(), false, nil)
		return "", false
	}
	if err := requireRole(r, role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return "", false
	}
	return tenantID, true
}

func notConfigured(w http.ResponseWriter, r *http.Request, code, what string) {
	writeError(r.Context(), w, http.StatusNotImplemented, code, what+" is not configured", false, nil)
}
