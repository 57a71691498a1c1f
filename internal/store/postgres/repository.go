package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbanalyst/dbanalyst/internal/store"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping application db: %w", err)
	}
	return nil
}

func (r *Repository) RecordAudit(ctx context.Context, entry store.AuditEntry) (store.AuditEntry, error) {
	query := `
INSERT INTO query_audit (trace_id, tenant_id, request_text, final_state, command, sql_text, row_count, error_message, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING audit_id, created_at`
	if err := r.db.QueryRowContext(ctx, query,
		entry.TraceID,
		entry.TenantID,
		entry.Request,
		entry.State,
		entry.Command,
		entry.SQL,
		entry.RowCount,
		entry.Error,
		entry.Duration.Milliseconds(),
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return store.AuditEntry{}, fmt.Errorf("record audit entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) ListAudit(ctx context.Context, tenantID string, limit int) ([]store.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT audit_id, trace_id, tenant_id, request_text, final_state, command, sql_text, row_count, error_message, duration_ms, created_at
FROM query_audit
WHERE ($1 = '' OR tenant_id = $1)
ORDER BY created_at DESC, audit_id DESC
LIMIT $2`, tenantID, store.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]store.AuditEntry, 0)
	for rows.Next() {
		var entry store.AuditEntry
		var durationMS int64
		if err := rows.Scan(
			&entry.ID,
			&entry.TraceID,
			&entry.TenantID,
			&entry.Request,
			&entry.State,
			&entry.Command,
			&entry.SQL,
			&entry.RowCount,
			&entry.Error,
			&durationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}

func (r *Repository) CreateDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	query := `
INSERT INTO document (document_id, tenant_id, name, content_type, object_key, chunks_key, size_bytes, chunk_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.Name,
		doc.ContentType,
		doc.ObjectKey,
		doc.ChunksKey,
		doc.SizeBytes,
		doc.Chunks,
	).Scan(&doc.CreatedAt); err != nil {
		return store.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

func (r *Repository) GetDocument(ctx context.Context, tenantID, documentID string) (store.Document, error) {
	query := `
SELECT document_id, tenant_id, name, content_type, object_key, chunks_key, size_bytes, chunk_count, created_at
FROM document
WHERE tenant_id = $1 AND document_id = $2`

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, tenantID, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (r *Repository) ListDocuments(ctx context.Context, tenantID string) ([]store.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, tenant_id, name, content_type, object_key, chunks_key, size_bytes, chunk_count, created_at
FROM document
WHERE tenant_id = $1
ORDER BY created_at ASC, document_id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]store.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}

func (r *Repository) CountDocuments(ctx context.Context, tenantID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document WHERE tenant_id = $1`, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (store.Document, error) {
	var doc store.Document
	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.Name,
		&doc.ContentType,
		&doc.ObjectKey,
		&doc.ChunksKey,
		&doc.SizeBytes,
		&doc.Chunks,
		&doc.CreatedAt,
	)
	return doc, err
}

var _ store.Repository = (*Repository)(nil)
