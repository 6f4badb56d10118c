package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
	"nach-reprocessing/internal/report"
	"nach-reprocessing/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubQuerier struct {
	gotFilter   domain.TransactionFilter
	gotPage     int
	gotPageSize int
	detail      *service.TransactionDetail
	err         error
}

func (s *stubQuerier) List(ctx context.Context, f domain.TransactionFilter, page, pageSize int) (*service.TransactionPage, error) {
	s.gotFilter, s.gotPage, s.gotPageSize = f, page, pageSize
	if s.err != nil {
		return nil, s.err
	}
	return &service.TransactionPage{Items: []domain.Transaction{}, CurrentPage: page, PageSize: pageSize}, nil
}

func (s *stubQuerier) Get(ctx context.Context, id int64) (*service.TransactionDetail, error) {
	if s.detail == nil {
		return nil, errors.ErrTransactionNotFound
	}
	return s.detail, nil
}

func (s *stubQuerier) Stats(ctx context.Context, f domain.TransactionFilter) (domain.DashboardStats, error) {
	s.gotFilter = f
	return domain.DashboardStats{TotalTransactions: 10, SuccessRate: 70}, s.err
}

func (s *stubQuerier) ErrorCodes(ctx context.Context) ([]domain.ErrorConfig, error) {
	return []domain.ErrorConfig{{Code: "E001", Description: "Validation failed"}}, s.err
}

func (s *stubQuerier) Export(ctx context.Context, f domain.TransactionFilter, w io.Writer) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	_, err := w.Write([]byte("PK-fake-workbook"))
	return 1, err
}

type stubIngester struct {
	gotName string
	gotBody string
	err     error
}

func (s *stubIngester) Ingest(ctx context.Context, fileName string, size int64, r io.Reader) (*service.UploadResult, error) {
	body, _ := io.ReadAll(r)
	s.gotName, s.gotBody = fileName, string(body)
	if s.err != nil {
		return nil, s.err
	}
	return &service.UploadResult{FileName: fileName, TransactionCount: 1, SuccessCount: 1}, nil
}

type stubReprocessor struct {
	got service.ReprocessRequest
	err error
}

func (s *stubReprocessor) Reprocess(ctx context.Context, req service.ReprocessRequest) (*service.ReprocessResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.ReprocessResult{SuccessCount: 1, TotalCount: 1}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (map[string]interface{}, *Error) {
	t.Helper()
	var body struct {
		Data  map[string]interface{} `json:"data"`
		Error *Error                 `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data, body.Error
}

func multipartBody(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestTransactionHandler_ListParsesFilters(t *testing.T) {
	q := &stubQuerier{}
	h := NewTransactionHandler(q, discardLogger())

	req := httptest.NewRequest(http.MethodGet,
		"/api/nach/transactions?status=error&dateFrom=2024-06-01&dateTo=2024-06-03&searchTerm=REF&ids=1,2&page=2&pageSize=50", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusError, q.gotFilter.Status)
	assert.Equal(t, "REF", q.gotFilter.SearchTerm)
	assert.Equal(t, []int64{1, 2}, q.gotFilter.IDs)
	require.NotNil(t, q.gotFilter.DateTo)
	assert.Equal(t, 23, q.gotFilter.DateTo.Hour(), "a plain dateTo covers the whole day")
	assert.Equal(t, 2, q.gotPage)
	assert.Equal(t, 50, q.gotPageSize)
}

func TestTransactionHandler_ListRejectsBadFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"unknown status", "status=PENDING", string(errors.InvalidStatus)},
		{"bad date", "dateFrom=yesterday", string(errors.InvalidInput)},
		{"reversed range", "dateFrom=2024-06-03&dateTo=2024-06-01", string(errors.InvalidInput)},
		{"bad ids", "ids=1,x", string(errors.InvalidInput)},
		{"ids without values", "ids=,", string(errors.InvalidInput)},
		{"blank ids", "ids=", string(errors.InvalidInput)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTransactionHandler(&stubQuerier{}, discardLogger())
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest(http.MethodGet, "/api/nach/transactions?"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			_, apiErr := decode(t, rec)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestTransactionHandler_Get(t *testing.T) {
	q := &stubQuerier{detail: &service.TransactionDetail{Transaction: domain.Transaction{ID: 7, TxnRefNo: "REF7"}}}
	h := NewTransactionHandler(q, discardLogger())

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/nach/transactions/7", nil), map[string]string{"id": "7"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data, _ := decode(t, rec)
	assert.Equal(t, "REF7", data["txn_ref_no"])

	q.detail = nil
	rec = httptest.NewRecorder()
	h.Get(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/nach/transactions/abc", nil), map[string]string{"id": "abc"})
	rec = httptest.NewRecorder()
	h.Get(rec, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionHandler_StatsAndErrorCodes(t *testing.T) {
	h := NewTransactionHandler(&stubQuerier{}, discardLogger())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/nach/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data, _ := decode(t, rec)
	assert.Equal(t, float64(70), data["success_rate"])

	rec = httptest.NewRecorder()
	h.ErrorCodes(rec, httptest.NewRequest(http.MethodGet, "/api/nach/error-codes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_code":"E001"`)
}

func TestTransactionHandler_Export(t *testing.T) {
	h := NewTransactionHandler(&stubQuerier{}, discardLogger())

	rec := httptest.NewRecorder()
	h.Export(rec, httptest.NewRequest(http.MethodGet, "/api/nach/transactions/export?status=SUCCESS", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment; filename=nach_transactions_"))
	assert.Equal(t, "PK-fake-workbook", rec.Body.String())
}

func TestTransactionHandler_ExportFailureIsJSON(t *testing.T) {
	h := NewTransactionHandler(&stubQuerier{err: io.ErrUnexpectedEOF}, discardLogger())

	rec := httptest.NewRecorder()
	h.Export(rec, httptest.NewRequest(http.MethodGet, "/api/nach/transactions/export", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestUploadHandler(t *testing.T) {
	ing := &stubIngester{}
	h := NewUploadHandler(ing, 1<<20, discardLogger())

	body, contentType := multipartBody(t, "file", "ACH-DR-BATCH01.txt", "HEADER\nA|B|C|D\n")
	req := httptest.NewRequest(http.MethodPost, "/api/nach/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ACH-DR-BATCH01.txt", ing.gotName)
	assert.Equal(t, "HEADER\nA|B|C|D\n", ing.gotBody)
	data, _ := decode(t, rec)
	assert.Equal(t, float64(1), data["success_count"])
}

func TestUploadHandler_MissingFile(t *testing.T) {
	h := NewUploadHandler(&stubIngester{}, 1<<20, discardLogger())

	body, contentType := multipartBody(t, "other", "x.txt", "data")
	req := httptest.NewRequest(http.MethodPost, "/api/nach/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, apiErr := decode(t, rec)
	require.NotNil(t, apiErr)
	assert.Equal(t, "no file uploaded", apiErr.Message)
}

func TestUploadHandler_TooLarge(t *testing.T) {
	h := NewUploadHandler(&stubIngester{}, 10, discardLogger())

	body, contentType := multipartBody(t, "file", "ACH-DR-BATCH01.txt", strings.Repeat("x", 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/nach/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadHandler_ServiceError(t *testing.T) {
	h := NewUploadHandler(&stubIngester{err: errors.ErrInvalidFile.WithDetails("bad name")}, 1<<20, discardLogger())

	body, contentType := multipartBody(t, "file", "x.txt", "data")
	req := httptest.NewRequest(http.MethodPost, "/api/nach/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, apiErr := decode(t, rec)
	require.NotNil(t, apiErr)
	assert.Equal(t, "bad name", apiErr.Details)
}

func TestReprocessHandler(t *testing.T) {
	rp := &stubReprocessor{}
	h := NewReprocessHandler(rp)

	req := httptest.NewRequest(http.MethodPost, "/api/nach/reprocess",
		strings.NewReader(`{"transactionIds":[1,2,3],"actor":"ops","reason":"retry"}`))
	rec := httptest.NewRecorder()
	h.Reprocess(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2, 3}, rp.got.IDs)
	assert.Equal(t, "ops", rp.got.Actor)
	assert.Equal(t, "retry", rp.got.Reason)
	data, _ := decode(t, rec)
	assert.Equal(t, float64(1), data["success_count"])
	assert.Equal(t, float64(1), data["total_count"])
}

func TestReprocessHandler_Errors(t *testing.T) {
	h := NewReprocessHandler(&stubReprocessor{})
	rec := httptest.NewRecorder()
	h.Reprocess(rec, httptest.NewRequest(http.MethodPost, "/api/nach/reprocess", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = NewReprocessHandler(&stubReprocessor{err: errors.ErrInvalidReprocess.WithDetails("transaction ids list cannot be empty")})
	rec = httptest.NewRecorder()
	h.Reprocess(rec, httptest.NewRequest(http.MethodPost, "/api/nach/reprocess", strings.NewReader(`{"transactionIds":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, apiErr := decode(t, rec)
	require.NotNil(t, apiErr)
	assert.Equal(t, string(errors.InvalidReprocessRequest), apiErr.Code)
}
