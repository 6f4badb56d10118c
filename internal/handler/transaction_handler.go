package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
	"nach-reprocessing/internal/report"
	"nach-reprocessing/internal/service"

	"github.com/gorilla/mux"
)

// TransactionQuerier is the read side used by TransactionHandler.
type TransactionQuerier interface {
	List(ctx context.Context, filter domain.TransactionFilter, page, pageSize int) (*service.TransactionPage, error)
	Get(ctx context.Context, id int64) (*service.TransactionDetail, error)
	Stats(ctx context.Context, filter domain.TransactionFilter) (domain.DashboardStats, error)
	ErrorCodes(ctx context.Context) ([]domain.ErrorConfig, error)
	Export(ctx context.Context, filter domain.TransactionFilter, w io.Writer) (int, error)
}

type TransactionHandler struct {
	transactionService TransactionQuerier
	logger             *slog.Logger
}

func NewTransactionHandler(transactionService TransactionQuerier, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.transactionService.List(r.Context(), filter,
		queryInt(r, "page", 1),
		queryInt(r, "pageSize", service.DefaultPageSize))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid transaction id").WithDetails(vars["id"]))
		return
	}

	detail, err := h.transactionService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *TransactionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.transactionService.Stats(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *TransactionHandler) ErrorCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.transactionService.ErrorCodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codes)
}

// Export renders into memory first so a failure can still be reported as JSON.
func (h *TransactionHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if _, err := h.transactionService.Export(r.Context(), filter, &buf); err != nil {
		writeError(w, err)
		return
	}

	fileName := fmt.Sprintf("nach_transactions_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+fileName)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("Failed to stream export", "error", err)
	}
}
