package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/mapper"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/report"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"
)

type errorResponse struct {
	Error   string               `json:"error"`
	Columns []string             `json:"columns,omitempty"`
	Found   []string             `json:"found,omitempty"`
	Result  *service.BatchResult `json:"result,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrPreviewNotFound), errors.Is(err, service.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUploadInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadUpload),
		errors.Is(err, service.ErrUnsupportedKind),
		errors.Is(err, service.ErrInvalidSelection),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnreadableFile), errors.Is(err, mapper.ErrMissingColumn):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status. result, when non-nil, is the batch that
// was opened before the failure.
func (h *IngestHandler) writeError(w http.ResponseWriter, r *http.Request, err error, result *service.BatchResult) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Result: result}

	var missing *mapper.MissingColumnError
	if errors.As(err, &missing) {
		resp.Columns = missing.Columns
		resp.Found = missing.Found
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		if result == nil {
			resp.Error = "internal error"
		}
	} else {
		h.logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, resp)
}
