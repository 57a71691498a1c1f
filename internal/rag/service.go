package rag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dbanalyst/dbanalyst/internal/nl2sql"
	"github.com/dbanalyst/dbanalyst/internal/observability"
	"github.com/dbanalyst/dbanalyst/internal/storage"
	"github.com/dbanalyst/dbanalyst/internal/store"
)

var (
	ErrUnsupportedDocument = errors.New("unsupported document")
	ErrDocumentTooLarge    = errors.New("document exceeds upload limit")
)

const (
	NoDocumentsContext = "No documents have been processed yet."
	NoDocumentsAnswer  = "Please upload and process documents before asking questions about them."

	DefaultTopK = 4

	chunksContentType = "application/vnd.apache.parquet"
)

type Registry interface {
	CreateDocument(ctx context.Context, doc store.Document) (store.Document, error)
	ListDocuments(ctx context.Context, tenantID string) ([]store.Document, error)
}

type Index interface {
	Search(ctx context.Context, chunkKeys []string, query []float32, k int) ([]string, error)
}

type Dependencies struct {
	Store          storage.ObjectStore
	Registry       Registry
	Embedder       Embedder
	Index          Index
	Answerer       nl2sql.DocumentAnswerer
	Splitter       *Splitter
	TopK           int
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Service struct {
	deps  Dependencies
	newID func() string
	now   func() time.Time
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("document registry is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("chunk index is required")
	}
	if deps.Answerer == nil {
		deps.Answerer = nl2sql.Disabled{}
	}
	if deps.Splitter == nil {
		splitter, err := NewSplitter(1000, 200)
		if err != nil {
			return nil, err
		}
		deps.Splitter = splitter
	}
	if deps.TopK <= 0 {
		deps.TopK = DefaultTopK
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps, newID: uuid.NewString, now: time.Now}, nil
}

// Ingest stores a text document, splits and embeds it, writes the chunk
// parquet file and registers the document for the tenant.
func (s *Service) Ingest(ctx context.Context, tenantID, name, contentType string, body []byte) (store.Document, error) {
	if err := s.checkDocument(contentType, body); err != nil {
		return store.Document{}, err
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	documentID := s.newID()
	objectKey, err := storage.BuildDocumentPath(tenantID, documentID, name)
	if err != nil {
		return store.Document{}, err
	}
	chunksKey, err := storage.BuildChunkPath(tenantID, documentID)
	if err != nil {
		return store.Document{}, err
	}

	contents := s.deps.Splitter.Split(string(body))
	if len(contents) == 0 {
		return store.Document{}, fmt.Errorf("%w: document has no text", ErrUnsupportedDocument)
	}
	vectors, err := s.deps.Embedder.Embed(ctx, contents)
	if err != nil {
		return store.Document{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(contents) {
		return store.Document{}, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(contents))
	}

	rows := make([]Chunk, len(contents))
	for i, content := range contents {
		rows[i] = Chunk{DocumentID: documentID, ChunkIndex: int32(i), Content: content, Embedding: vectors[i]}
	}
	encoded, err := EncodeChunks(rows)
	if err != nil {
		return store.Document{}, err
	}

	if _, err := storage.PutBytes(ctx, s.deps.Store, objectKey, body, contentType); err != nil {
		return store.Document{}, fmt.Errorf("store document: %w", err)
	}
	if _, err := storage.PutBytes(ctx, s.deps.Store, chunksKey, encoded, chunksContentType); err != nil {
		s.discard(ctx, objectKey, chunksKey)
		return store.Document{}, fmt.Errorf("store chunks: %w", err)
	}

	doc, err := s.deps.Registry.CreateDocument(ctx, store.Document{
		ID:          documentID,
		TenantID:    tenantID,
		Name:        storage.SanitizeFileName(name),
		ContentType: contentType,
		ObjectKey:   objectKey,
		ChunksKey:   chunksKey,
		SizeBytes:   int64(len(body)),
		Chunks:      len(rows),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		s.discard(ctx, objectKey, chunksKey)
		return store.Document{}, fmt.Errorf("register document: %w", err)
	}

	observability.ObserveDocumentIngested(len(rows))
	s.deps.Logger.InfoContext(ctx, "document ingested",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("tenant_id", tenantID),
		slog.String("document_id", documentID),
		slog.Int("chunks", len(rows)),
		slog.Int64("size_bytes", doc.SizeBytes),
	)
	return doc, nil
}

// discard removes objects written by a failed ingest so no unregistered
// files stay behind.
func (s *Service) discard(ctx context.Context, keys ...string) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.deps.Store.Delete(cleanupCtx, key); err != nil {
			s.deps.Logger.WarnContext(ctx, "discard ingest object failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}

func (s *Service) checkDocument(contentType string, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: document is empty", ErrUnsupportedDocument)
	}
	if s.deps.MaxUploadBytes > 0 && int64(len(body)) > s.deps.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrDocumentTooLarge, len(body), s.deps.MaxUploadBytes)
	}
	if bytes.HasPrefix(body, []byte("%PDF-")) || strings.HasPrefix(strings.ToLower(contentType), "application/pdf") {
		return fmt.Errorf("%w: pdf documents are not supported", ErrUnsupportedDocument)
	}
	if !utf8.Valid(body) {
		return fmt.Errorf("%w: document is not valid utf-8 text", ErrUnsupportedDocument)
	}
	return nil
}

func (s *Service) Documents(ctx context.Context, tenantID string) ([]store.Document, error) {
	docs, err := s.deps.Registry.ListDocuments(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Context returns the top-k chunks closest to question, joined by newlines.
func (s *Service) Context(ctx context.Context, tenantID, question string) (string, error) {
	docs, err := s.Documents(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return NoDocumentsContext, nil
	}
	return s.search(ctx, docs, question)
}

func (s *Service) Answer(ctx context.Context, tenantID, question string) (string, error) {
	docs, err := s.Documents(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return NoDocumentsAnswer, nil
	}
	retrieved, err := s.search(ctx, docs, question)
	if err != nil {
		return "", err
	}
	return s.deps.Answerer.Answer(ctx, BuildPrompt(retrieved, question))
}

func (s *Service) search(ctx context.Context, docs []store.Document, question string) (string, error) {
	vectors, err := s.deps.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("embed question: got %d vectors", len(vectors))
	}
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, doc.ChunksKey)
	}
	contents, err := s.deps.Index.Search(ctx, keys, vectors[0], s.deps.TopK)
	if err != nil {
		return "", fmt.Errorf("search chunks: %w", err)
	}
	return strings.Join(contents, "\n"), nil
}

func BuildPrompt(retrieved, question string) string {
	return "Context:\n" + retrieved + "\n\nQuestion: " + question
}
