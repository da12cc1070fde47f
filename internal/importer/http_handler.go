package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/quizbank/importer/internal/auth"
	"github.com/quizbank/importer/internal/domain"
	"github.com/quizbank/importer/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes the import pipeline over HTTP.
type Handler struct {
	service *Service
	audit   repository.AuditRepository
	log     *zap.SugaredLogger
}

// NewHandler wires the HTTP surface around the import service.
func NewHandler(service *Service, audit repository.AuditRepository, log *zap.SugaredLogger) *Handler {
	return &Handler{service: service, audit: audit, log: log}
}

// Routes mounts the import endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/import", func(r chi.Router) {
		r.Post("/", h.Import)
		r.Post("/upload", h.ImportUpload)
		r.Get("/history", h.History)
		r.Get("/stats", h.Stats)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/progress", h.Progress)
			r.Post("/cancel", h.Cancel)
			r.Post("/rollback", h.Rollback)
		})
	})
	r.Get("/audit", h.Audit)
}

type importRequest struct {
	FileName string        `json:"file_name,omitempty"`
	Records  []RecordInput `json:"records"`
}

type validationResponse struct {
	BatchID  uuid.UUID                `json:"batch_id"`
	Summary  domain.ValidationSummary `json:"validation_summary"`
	Errors   []RowReport              `json:"errors"`
	Warnings []RowReport              `json:"warnings"`
}

type acceptedResponse struct {
	BatchID    uuid.UUID   `json:"batch_id"`
	Total      int         `json:"total"`
	ValidCount int         `json:"valid_count"`
	Warnings   []RowReport `json:"warnings,omitempty"`
}

// Import accepts a JSON record list, validates it synchronously and, when all
// rows pass, starts asynchronous processing. The caller polls progress to
// observe completion.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}

	source := domain.Source{FileName: req.FileName, FileKind: "json"}
	h.runImport(w, r, actor, source, req.Records)
}

// ImportUpload accepts a multipart CSV or XLSX upload and feeds the parsed
// rows into the same pipeline as the JSON endpoint.
func (h *Handler) ImportUpload(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file required: %v", err))
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file: %v", err))
		return
	}

	records, kind, err := ParseFile(header.Filename, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "file contains no data rows")
		return
	}

	source := domain.Source{FileName: header.Filename, FileKind: kind}
	h.runImport(w, r, actor, source, records)
}

func (h *Handler) runImport(w http.ResponseWriter, r *http.Request, actor domain.Actor, source domain.Source, records []RecordInput) {
	ctx := r.Context()

	batch, err := h.service.InitializeBatch(ctx, actor, source, len(records))
	if err != nil {
		h.log.Errorw("failed to initialize batch", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to initialize import")
		return
	}

	batch, result, err := h.service.Validate(ctx, batch, records)
	if err != nil {
		h.log.Errorw("validation failed", "batch_id", batch.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "validation failed")
		return
	}

	if result.Summary.Invalid > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			BatchID:  batch.ID,
			Summary:  result.Summary,
			Errors:   result.Invalid,
			Warnings: result.Warnings,
		})
		return
	}

	if err := h.service.Process(batch, result.Valid); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		BatchID:    batch.ID,
		Total:      batch.TotalRows,
		ValidCount: result.Summary.Valid,
		Warnings:   result.Warnings,
	})
}

// Progress returns the pollable snapshot for one batch.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}

	progress, err := h.service.Progress(r.Context(), batchID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// Cancel stops a batch that has not reached a terminal state.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}

	batch, err := h.service.Cancel(r.Context(), batchID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": batch.ID,
		"status":   batch.Status,
	})
}

// Rollback deletes every record a completed batch created.
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}

	count, err := h.service.Rollback(r.Context(), batchID, actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rolled_back_count": count})
}

// History lists recent batches for an operator, most recent first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actorID := strings.TrimSpace(r.URL.Query().Get("actor"))
	if actorID == "" {
		actor, err := auth.RequireActor(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		actorID = actor.ID
	}

	limit := queryInt(r, "limit", 20)
	batches, err := h.service.History(r.Context(), actorID, limit)
	if err != nil {
		h.log.Errorw("failed to list import history", "actor", actorID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list import history")
		return
	}

	writeJSON(w, http.StatusOK, batches)
}

// Stats returns aggregate batch activity for the dashboard.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.log.Errorw("failed to aggregate batch stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to aggregate batch stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Audit queries the audit trail by record, actor or batch.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := queryInt(r, "limit", 200)

	var (
		entries []domain.AuditEntry
		err     error
	)
	switch {
	case query.Get("recordId") != "":
		var recordID uuid.UUID
		recordID, err = uuid.Parse(query.Get("recordId"))
		if err == nil {
			entries, err = h.audit.ListByRecord(r.Context(), recordID, limit)
		}
	case query.Get("batchId") != "":
		var batchID uuid.UUID
		batchID, err = uuid.Parse(query.Get("batchId"))
		if err == nil {
			entries, err = h.audit.ListByBatch(r.Context(), batchID, limit)
		}
	case query.Get("actor") != "":
		entries, err = h.audit.ListByActor(r.Context(), query.Get("actor"), limit)
	default:
		writeError(w, http.StatusBadRequest, "one of recordId, batchId or actor is required")
		return
	}
	if err != nil {
		h.log.Errorw("failed to query audit trail", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) batchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "batchID")
	batchID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid batch id: %v", err))
		return uuid.Nil, false
	}
	return batchID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, domain.ErrNotCancellable), errors.Is(err, domain.ErrNotRollbackable),
		errors.Is(err, ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Errorw("import request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
