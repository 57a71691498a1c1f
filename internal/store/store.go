package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

const DefaultAuditLimit = 50

type Repository interface {
	HealthCheck(ctx context.Context) error
	RecordAudit(ctx context.Context, entry AuditEntry) (AuditEntry, error)
	ListAudit(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error)
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, tenantID, documentID string) (Document, error)
	ListDocuments(ctx context.Context, tenantID string) ([]Document, error)
	CountDocuments(ctx context.Context, tenantID string) (int, error)
}

// AuditEntry records one orchestrated request and where it ended.
type AuditEntry struct {
	ID        int64         `json:"id"`
	TraceID   string        `json:"trace_id"`
	TenantID  string        `json:"tenant_id"`
	Request   string        `json:"request"`
	State     string        `json:"state"`
	Command   string        `json:"command,omitempty"`
	SQL       string        `json:"sql,omitempty"`
	RowCount  int           `json:"row_count"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

type Document struct {
	ID          string    `json:"document_id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	ObjectKey   string    `json:"object_key"`
	ChunksKey   string    `json:"chunks_key"`
	SizeBytes   int64     `json:"size_bytes"`
	Chunks      int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultAuditLimit
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
