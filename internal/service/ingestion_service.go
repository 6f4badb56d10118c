package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nach-reprocessing/internal/config"
	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
	"nach-reprocessing/internal/parser"
	"nach-reprocessing/internal/validation"
)

// UploadResult summarises one ingested file.
type UploadResult struct {
	UploadID         uuid.UUID       `json:"upload_id"`
	FileName         string          `json:"file_name"`
	FileType         domain.FileType `json:"file_type"`
	BatchNo          string          `json:"batch_no"`
	TransactionCount int             `json:"transaction_count"`
	ValidCount       int             `json:"valid_count"`
	SuccessCount     int             `json:"success_count"`
	FailedCount      int             `json:"failed_count"`
	DuplicateCount   int             `json:"duplicate_count"`
	ParseErrorCount  int             `json:"parse_error_count"`
	Truncated        bool            `json:"truncated"`
	HeaderValid      bool            `json:"header_valid"`
}

type IngestionService struct {
	store  domain.Store
	parser *parser.FileParser
	upload config.UploadConfig
	logger *slog.Logger
}

func NewIngestionService(store domain.Store, p *parser.FileParser, cfg config.UploadConfig, logger *slog.Logger) *IngestionService {
	return &IngestionService{
		store:  store,
		parser: p,
		upload: cfg,
		logger: logger,
	}
}

// Ingest validates, parses and stores one uploaded file. Records are inserted
// one by one; a failed insert is counted and does not undo the others.
func (s *IngestionService) Ingest(ctx context.Context, fileName string, size int64, r io.Reader) (*UploadResult, error) {
	s.logger.Info("Processing NACH upload", "file_name", fileName, "file_size", size)

	if err := s.validateUpload(fileName, size); err != nil {
		return nil, err
	}

	upload := &domain.FileUpload{
		ID:         uuid.New(),
		FileName:   fileName,
		FileType:   parser.DeriveFileType(fileName),
		BatchNo:    parser.ExtractBatchNumber(fileName, time.Now()),
		FileSize:   size,
		Status:     domain.UploadStatusProcessing,
		UploadedAt: time.Now(),
	}
	if err := s.store.FileUpload().Create(ctx, upload); err != nil {
		return nil, err
	}

	parsed, err := s.parser.Parse(ctx, r, fileName)
	if err != nil {
		s.failUpload(upload, err)
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.NewAppError(errors.InvalidFile, "failed to read NACH file").WithDetails(err.Error())
	}
	upload.BatchNo = parsed.BatchNo

	result := &UploadResult{
		UploadID:         upload.ID,
		FileName:         parsed.FileName,
		FileType:         parsed.FileType,
		BatchNo:          parsed.BatchNo,
		TransactionCount: parsed.TotalCount,
		ValidCount:       parsed.ValidCount,
		ParseErrorCount:  parsed.ParseErrorCount,
		Truncated:        parsed.Truncated,
		HeaderValid:      parsed.HeaderValid,
	}

	repo := s.store.Transaction()
	for _, txn := range parsed.Persistable() {
		if err := ctx.Err(); err != nil {
			s.fillUpload(upload, result)
			s.failUpload(upload, err)
			return result, err
		}

		err := repo.Insert(ctx, &txn)
		switch {
		case err == nil:
			result.SuccessCount++
		case errors.IsCode(err, errors.DuplicateTransaction):
			result.DuplicateCount++
		default:
			result.FailedCount++
		}
	}

	s.fillUpload(upload, result)
	upload.Status = domain.UploadStatusCompleted
	if err := s.store.FileUpload().Complete(ctx, upload); err != nil {
		s.logger.Error("Failed to finalise upload record", "upload_id", upload.ID, "error", err)
	}

	s.logger.Info("NACH upload processed",
		"upload_id", upload.ID,
		"file_name", fileName,
		"transaction_count", result.TransactionCount,
		"success_count", result.SuccessCount,
		"failed_count", result.FailedCount,
		"duplicate_count", result.DuplicateCount,
		"parse_error_count", result.ParseErrorCount)

	return result, nil
}

func (s *IngestionService) validateUpload(fileName string, size int64) error {
	res := validation.ValidateUpload(fileName, size, s.upload)
	if res.Valid {
		return nil
	}
	s.logger.Warn("Rejected NACH upload", "file_name", fileName, "error", res.Error())
	if size > s.upload.MaxSizeBytes {
		return errors.ErrFileTooLarge.WithDetails(res.Error())
	}
	return errors.ErrInvalidFile.WithDetails(res.Error())
}

func (s *IngestionService) fillUpload(upload *domain.FileUpload, result *UploadResult) {
	upload.TotalCount = result.TransactionCount
	upload.ValidCount = result.ValidCount
	upload.InsertedCount = result.SuccessCount
	upload.FailedCount = result.FailedCount
	upload.DuplicateCount = result.DuplicateCount
	upload.ParseErrorCount = result.ParseErrorCount
	upload.Truncated = result.Truncated
}

// failUpload uses a fresh context so the bookkeeping row is closed even after
// the request context is cancelled.
func (s *IngestionService) failUpload(upload *domain.FileUpload, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	upload.Status = domain.UploadStatusFailed
	upload.ErrorMessage = cause.Error()
	if err := s.store.FileUpload().Complete(ctx, upload); err != nil {
		s.logger.Error("Failed to mark upload as failed", "upload_id", upload.ID, "error", err)
	}
}
