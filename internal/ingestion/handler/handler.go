// Package handler exposes the ingestion orchestrator over HTTP. It decodes
// requests, applies the caller's identity and maps domain errors to status
// codes; all behavior lives in the orchestrator.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/logger"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the file size limit.
const multipartOverhead = 1 << 20

// Service is the orchestrator surface the handlers call.
type Service interface {
	Upload(ctx context.Context, req ingestion.UploadRequest) (*ingestion.Document, error)
	List(ctx context.Context, userID string) ([]ingestion.Document, error)
	Get(ctx context.Context, userID, id string) (*ingestion.Document, error)
	Reprocess(ctx context.Context, userID, id string) (*ingestion.Document, error)
	Delete(ctx context.Context, userID, id string) error
	Query(ctx context.Context, req ingestion.QueryRequest) ([]ingestion.QueryHit, error)
}

type Handler struct {
	svc            Service
	maxUploadBytes int64
}

func New(svc Service, maxUploadBytes int64) *Handler {
	return &Handler{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload accepts a multipart form with a "file" part and an optional
// category_id field. The document is returned in processing; extraction and
// indexing continue in the background.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": map[string]string{"file": "file is required and must not be empty"},
		})
		return
	}
	defer file.Close()

	limit := h.maxUploadBytes
	if limit <= 0 {
		limit = header.Size
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	req := ingestion.UploadRequest{
		Name:       header.Filename,
		MediaType:  detectMediaType(header.Header.Get("Content-Type"), header.Filename, data),
		Data:       data,
		UserID:     UserID(ctx),
		CategoryID: strings.TrimSpace(r.FormValue("category_id")),
	}
	doc, err := h.svc.Upload(ctx, req)
	if err != nil {
		h.fail(w, r, "upload rejected", err)
		return
	}
	log.Info("document accepted",
		"doc_id", doc.ID,
		"user_id", doc.UserID,
		"status", doc.Status,
		"size_bytes", doc.SizeBytes,
	)
	writeJSON(w, http.StatusAccepted, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.List(r.Context(), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "listing documents failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     len(docs),
	})
}

// Get returns the document including its status and error message, which is
// how clients observe the outcome of the background pipeline.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "loading document failed", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Reprocess(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "reprocess rejected", err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "deleting document failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req ingestion.QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	hits, err := h.svc.Query(r.Context(), req)
	if err != nil {
		h.fail(w, r, "query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": hits,
	})
}

// fail maps err to a response. Server-side failures are logged with the
// cause and answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := logger.FromContext(r.Context())
	status := apperrors.HTTPStatusCode(err)

	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}

	var dupErr *apperrors.DuplicateError
	if errors.As(err, &dupErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":                apperrors.ErrDuplicateContent.Error(),
			"existing_document_id": dupErr.ExistingID,
			"existing_owner_id":    dupErr.ExistingOwnerID,
			"existing_name":        dupErr.ExistingName,
		})
		return
	}

	if status >= http.StatusInternalServerError {
		log.Error(msg, "error", err, "status_code", status)
		writeError(w, status, msg)
		return
	}
	log.Info(msg, "error", err, "status_code", status)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeError(w, status, appErr.Message)
		return
	}
	writeError(w, status, err.Error())
}

// detectMediaType trusts the part's declared type, then the file extension,
// then content sniffing.
func detectMediaType(declared, name string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "component", "ingestion-handler", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
