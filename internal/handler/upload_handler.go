package handler

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"nach-reprocessing/internal/errors"
	"nach-reprocessing/internal/service"
)

const (
	formFileField = "file"
	// multipart framing on top of the file itself
	formOverhead = 1 << 20
)

type Ingester interface {
	Ingest(ctx context.Context, fileName string, size int64, r io.Reader) (*service.UploadResult, error)
}

type UploadHandler struct {
	ingestionService Ingester
	maxSize          int64
	logger           *slog.Logger
}

func NewUploadHandler(ingestionService Ingester, maxSize int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		ingestionService: ingestionService,
		maxSize:          maxSize,
		logger:           logger,
	}
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+formOverhead)

	file, header, err := r.FormFile(formFileField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			writeError(w, errors.ErrFileTooLarge)
		case stderrors.Is(err, http.ErrMissingFile):
			writeError(w, errors.ErrNoFileUploaded)
		default:
			writeError(w, errors.ErrInvalidFile.WithDetails(err.Error()))
		}
		return
	}
	defer file.Close()

	result, err := h.ingestionService.Ingest(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		h.logger.Warn("Upload rejected", "file_name", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
