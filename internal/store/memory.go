package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the Repository used when no application database is configured.
// Contents are lost on restart.
type Memory struct {
	mu        sync.RWMutex
	nextID    int64
	audit     []AuditEntry
	documents map[string]Document
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{documents: map[string]Document{}, now: time.Now}
}

func (m *Memory) HealthCheck(context.Context) error {
	return nil
}

func (m *Memory) RecordAudit(_ context.Context, entry AuditEntry) (AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now().UTC()
	}
	m.audit = append(m.audit, entry)
	return entry, nil
}

func (m *Memory) ListAudit(_ context.Context, tenantID string, limit int) ([]AuditEntry, error) {
	limit = NormalizeLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]AuditEntry, 0, limit)
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if tenantID != "" && m.audit[i].TenantID != tenantID {
			continue
		}
		entries = append(entries, m.audit[i])
	}
	return entries, nil
}

func (m *Memory) CreateDocument(_ context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = m.now().UTC()
	}
	m.documents[documentKey(doc.TenantID, doc.ID)] = doc
	return doc, nil
}

func (m *Memory) GetDocument(_ context.Context, tenantID, documentID string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[documentKey(tenantID, documentID)]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *Memory) ListDocuments(_ context.Context, tenantID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0)
	for _, doc := range m.documents {
		if doc.TenantID == tenantID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

func (m *Memory) CountDocuments(ctx context.Context, tenantID string) (int, error) {
	docs, err := m.ListDocuments(ctx, tenantID)
	return len(docs), err
}

func documentKey(tenantID, documentID string) string {
	return tenantID + "\x00" + documentID
}
