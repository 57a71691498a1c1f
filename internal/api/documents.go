package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/auth"
	"github.com/dbanalyst/dbanalyst/internal/orchestrator"
	"github.com/dbanalyst/dbanalyst/internal/rag"
	"github.com/dbanalyst/dbanalyst/internal/validation"
)

const multipartMemory = 8 << 20

type questionRequest struct {
	Question string `json:"question"`
}

func handleUploadDocument(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Documents == nil {
		notConfigured(w, r, "DOCUMENTS_NOT_CONFIGURED", "document service")
		return
	}
	tenantID, ok := authorize(w, r, auth.RoleDocumentWriter)
	if !ok {
		return
	}
	if deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes+multipartMemory)
	}

	name, contentType, body, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", "document exceeds upload limit", false, map[string]any{"limit_bytes": deps.MaxUploadBytes})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), false, nil)
		return
	}

	doc, err := deps.Documents.Ingest(r.Context(), tenantID, name, contentType, body)
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrDocumentTooLarge):
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", err.Error(), false, map[string]any{"limit_bytes": deps.MaxUploadBytes})
		case errors.Is(err, rag.ErrUnsupportedDocument):
			writeError(r.Context(), w, http.StatusUnsupportedMediaType, "UNSUPPORTED_DOCUMENT", err.Error(), false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "DOCUMENT_INGEST_FAILED", "failed to ingest document", true, map[string]any{"details": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// readUpload accepts either a multipart form with a "file" part or a raw body
// named by the ?name= query parameter.
func readUpload(r *http.Request) (string, string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", "", nil, fmt.Errorf("parse multipart form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", nil, fmt.Errorf("multipart field \"file\" is required: %w", err)
		}
		defer func() { _ = file.Close() }()
		body, err := io.ReadAll(file)
		if err != nil {
			return "", "", nil, fmt.Errorf("read uploaded file: %w", err)
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "application/octet-stream" {
			contentType = ""
		}
		return header.Filename, contentType, body, nil
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		return "", "", nil, fmt.Errorf("name query parameter is required for raw uploads")
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", "", nil, fmt.Errorf("read request body: %w", err)
	}
	return name, mediaType, body, nil
}

func handleListDocuments(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Documents == nil {
		notConfigured(w, r, "DOCUMENTS_NOT_CONFIGURED", "document service")
		return
	}
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	docs, err := deps.Documents.Documents(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "STORE_ERROR", "failed to list documents", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "documents": docs})
}

func handleAskDocuments(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	handleDocumentQuestion(deps, w, r, "answer", deps.documentAnswer)
}

func handleDocumentContext(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	handleDocumentQuestion(deps, w, r, "context", deps.documentContext)
}

func (d Dependencies) documentAnswer(r *http.Request, tenantID, question string) (string, error) {
	return d.Documents.Answer(r.Context(), tenantID, question)
}

func (d Dependencies) documentContext(r *http.Request, tenantID, question string) (string, error) {
	return d.Documents.Context(r.Context(), tenantID, question)
}

func handleDocumentQuestion(deps Dependencies, w http.ResponseWriter, r *http.Request, field string, fn func(*http.Request, string, string) (string, error)) {
	if deps.Documents == nil {
		notConfigured(w, r, "DOCUMENTS_NOT_CONFIGURED", "document service")
		return
	}
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}

	var request questionRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if deps.Validator != nil {
		if pattern, matched := deps.Validator.CheckCategories(request.Question, validation.CategoryPromptInjection); matched {
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "REQUEST_BLOCKED", orchestrator.BlockedMessage, false, map[string]any{"category": string(pattern.Category)})
			return
		}
	}

	value, err := fn(r, tenantID, request.Question)
	if err != nil {
		writeAssistantError(w, r, orchestrator.Outcome{}, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{field: value})
}
