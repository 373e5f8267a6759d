// Package handler exposes batch ingestion over JSON/HTTP.
package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/report"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"
)

const maxConfirmBytes = 1 << 20

// IngestHandler handles upload, confirmation and batch lookup requests.
// Every route expects a principal in the request context.
type IngestHandler struct {
	svc       *service.IngestService
	exporter  *report.Exporter
	maxUpload int64
	logger    *slog.Logger
}

// NewIngestHandler creates a new ingestion handler
func NewIngestHandler(svc *service.IngestService, exporter *report.Exporter, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		svc:       svc,
		exporter:  exporter,
		maxUpload: DefaultMaxUploadBytes,
		logger:    logger,
	}
}

func (h *IngestHandler) WithMaxUpload(n int64) *IngestHandler {
	if n > 0 {
		h.maxUpload = n
	}
	return h
}

// Register mounts the /api/v1 routes on mux.
func (h *IngestHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/uploads/csv", h.UploadCSV)
	mux.HandleFunc("POST /api/v1/uploads/pdf/preview", h.PreviewPDF)
	mux.HandleFunc("POST /api/v1/uploads/pdf/{previewID}/confirm", h.ConfirmPDF)
	mux.HandleFunc("GET /api/v1/batches/{id}", h.GetBatch)
	mux.HandleFunc("GET /api/v1/batches/{id}/report", h.DownloadReport)
}

func (h *IngestHandler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, auth.ErrUnauthenticated, nil)
	}
	return p, ok
}

// UploadCSV runs a tabular upload as one batch.
// POST /api/v1/uploads/csv?kind=factors|amounts|qualifications[&row_errors=true]
func (h *IngestHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	kind := repository.RecordKind(r.URL.Query().Get("kind"))
	if !kind.Valid() || kind == repository.KindPDFQualifications {
		h.writeError(w, r, fmt.Errorf("%w: %q", service.ErrUnsupportedKind, kind), nil)
		return
	}
	rowErrors, _ := strconv.ParseBool(r.URL.Query().Get("row_errors"))

	file, err := readUpload(w, r, h.maxUpload, tabularRule)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	result, err := h.svc.ProcessCSV(r.Context(), p, service.CSVUpload{
		Kind:             kind,
		SourceName:       file.Name,
		Data:             file.Data,
		IncludeRowErrors: rowErrors,
	})
	if err != nil {
		h.writeError(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PreviewPDF extracts candidates from a PDF without writing anything.
// POST /api/v1/uploads/pdf/preview
func (h *IngestHandler) PreviewPDF(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	file, err := readUpload(w, r, h.maxUpload, pdfRule)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	preview, err := h.svc.ExtractPDF(r.Context(), p, file.Name, file.Data)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ConfirmPDF persists the selected candidates of a preview.
// POST /api/v1/uploads/pdf/{previewID}/confirm
func (h *IngestHandler) ConfirmPDF(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	previewID, err := uuid.Parse(r.PathValue("previewID"))
	if err != nil {
		h.writeError(w, r, service.ErrPreviewNotFound, nil)
		return
	}

	var conf service.Confirmation
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfirmBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&conf); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", ErrBadUpload, err), nil)
		return
	}

	result, err := h.svc.ConfirmPreview(r.Context(), p, previewID, conf)
	if err != nil {
		h.writeError(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBatch returns one batch visible to the caller.
// GET /api/v1/batches/{id}
func (h *IngestHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, service.ErrBatchNotFound, nil)
		return
	}

	batch, err := h.svc.GetBatch(r.Context(), p, id)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// DownloadReport exports the records a batch wrote.
// GET /api/v1/batches/{id}/report?format=csv|xlsx
func (h *IngestHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, service.ErrBatchNotFound, nil)
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	records, err := h.svc.GetBatchRecords(r.Context(), p, id)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, format, records); err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(records.Batch)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
