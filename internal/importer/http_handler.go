package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/auth"
	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/repository"
)

// Handler exposes the import pipeline over HTTP: file uploads, per-type
// webhooks, template downloads and batch audit logs.
type Handler struct {
	service       *Service
	tables        Tables
	logs          repository.ImportLogRepository
	webhookSource string
}

// HandlerOption customizes the HTTP handler.
type HandlerOption func(*Handler)

// WithWebhookSource sets the source tag attributed to webhook batches
// that carry no source of their own.
func WithWebhookSource(source string) HandlerOption {
	return func(h *Handler) {
		if strings.TrimSpace(source) != "" {
			h.webhookSource = strings.TrimSpace(source)
		}
	}
}

// NewHTTPHandler wraps the import service for HTTP registration.
func NewHTTPHandler(service *Service, tables Tables, logs repository.ImportLogRepository, opts ...HandlerOption) *Handler {
	handler := &Handler{service: service, tables: tables, logs: logs, webhookSource: "webhook"}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// Register mounts the import routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports/upload", h.handleUpload)
	mux.HandleFunc("POST /api/webhooks/{recordType}", h.handleWebhook)
	mux.HandleFunc("GET /api/templates/{recordType}", h.handleTemplate)
	mux.HandleFunc("GET /api/imports/logs", h.handleLogs)
	mux.HandleFunc("GET /api/visits/{id}", h.handleVisit)
}

type uploadResponse struct {
	Success           bool                 `json:"success"`
	TotalRows         int                  `json:"totalRows"`
	SuccessRows       int                  `json:"successRows"`
	ErrorRows         int                  `json:"errorRows"`
	Errors            []domain.ImportError `json:"errors"`
	ImportedRecordIDs []uuid.UUID          `json:"importedRecordIds"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	recordType, err := domain.ParseRecordType(r.FormValue("recordType"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.Import(r.Context(), Request{
		RecordType: recordType,
		FileName:   header.Filename,
		Payload:    payload,
		Source:     strings.TrimSpace(r.FormValue("source")),
		Actor:      auth.ActorIDFromContext(r.Context()),
	})
	if err != nil {
		// Batch-fatal precondition failure: nothing was processed.
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:           result.Success,
		TotalRows:         result.TotalRows,
		SuccessRows:       result.SuccessCount,
		ErrorRows:         result.ErrorCount,
		Errors:            result.Errors,
		ImportedRecordIDs: result.CreatedRecordIDs,
	})
}

type webhookPayload struct {
	Data   []map[string]any `json:"data"`
	Source string           `json:"source"`
}

type webhookResponse struct {
	Success       bool                 `json:"success"`
	Message       string               `json:"message"`
	InsertedCount int                  `json:"insertedCount"`
	TotalRows     int                  `json:"totalRows"`
	SuccessRows   int                  `json:"successRows"`
	ErrorRows     int                  `json:"errorRows"`
	Errors        []domain.ImportError `json:"errors"`
	BatchID       string               `json:"batchId"`
	TableType     string               `json:"tableType"`
	Source        string               `json:"source"`
}

// handleWebhook always answers 200: the calling import tool treats any
// other status as a delivery failure and retries, so internal problems
// are reported in the body instead.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	recordType, err := domain.ParseRecordType(r.PathValue("recordType"))
	if err != nil {
		writeJSON(w, http.StatusOK, webhookResponse{
			Success: false,
			Message: err.Error(),
			Errors:  []domain.ImportError{},
			Source:  h.webhookSource,
		})
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusOK, webhookResponse{
			Success:   false,
			Message:   fmt.Sprintf("invalid payload: %v", err),
			Errors:    []domain.ImportError{},
			TableType: recordType.TableType(),
			Source:    h.webhookSource,
		})
		return
	}

	source := strings.TrimSpace(payload.Source)
	if source == "" {
		source = h.webhookSource
	}

	rows := payload.Data
	if rows == nil {
		rows = []map[string]any{}
	}
	result, err := h.service.Import(r.Context(), Request{
		RecordType: recordType,
		Rows:       rows,
		Source:     source,
		Actor:      auth.ActorIDFromContext(r.Context()),
	})
	if err != nil {
		writeJSON(w, http.StatusOK, webhookResponse{
			Success:   false,
			Message:   err.Error(),
			Errors:    []domain.ImportError{},
			TableType: recordType.TableType(),
			Source:    source,
		})
		return
	}

	message := fmt.Sprintf("imported %d of %d rows", result.SuccessCount, result.TotalRows)
	writeJSON(w, http.StatusOK, webhookResponse{
		Success:       result.Success,
		Message:       message,
		InsertedCount: result.SuccessCount,
		TotalRows:     result.TotalRows,
		SuccessRows:   result.SuccessCount,
		ErrorRows:     result.ErrorCount,
		Errors:        result.Errors,
		BatchID:       result.BatchID,
		TableType:     recordType.TableType(),
		Source:        source,
	})
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	recordType, err := domain.ParseRecordType(r.PathValue("recordType"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	table, ok := h.tables[recordType]
	if !ok {
		http.Error(w, fmt.Sprintf("no template for record type %q", recordType), http.StatusNotFound)
		return
	}

	payload, err := TemplateCSV(table)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", TemplateFileName(recordType)))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) handleVisit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "record ID must be a UUID", http.StatusBadRequest)
		return
	}

	visit, err := h.service.Visit(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("load record: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var recordType *domain.RecordType
	if raw := strings.TrimSpace(query.Get("recordType")); raw != "" {
		parsed, err := domain.ParseRecordType(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		recordType = &parsed
	}

	limit := 50
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	runs, err := h.logs.List(r.Context(), recordType, limit, offset)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusOK, []domain.ImportRun{})
			return
		}
		http.Error(w, fmt.Sprintf("list import logs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
