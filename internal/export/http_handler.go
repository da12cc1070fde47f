package export

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/quizbank/importer/internal/repository"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves question exports as file downloads.
type Handler struct {
	service *Service
	log     *zap.SugaredLogger
}

// NewHandler wires the HTTP surface around the export service.
func NewHandler(service *Service, log *zap.SugaredLogger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes mounts the export endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/export/questions", h.Questions)
}

// Questions streams the matching questions in the requested format. subject
// and topic narrow the listing; format selects csv (default) or xlsx.
func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format, err := ParseFormat(query.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := repository.QuestionFilter{}
	if filter.Subject, err = queryIntPtr(query.Get("subject")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid subject: %v", err))
		return
	}
	if filter.Topic, err = queryIntPtr(query.Get("topic")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid topic: %v", err))
		return
	}

	file, err := h.service.Export(r.Context(), filter, format)
	if err != nil {
		h.log.Errorw("export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func queryIntPtr(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
