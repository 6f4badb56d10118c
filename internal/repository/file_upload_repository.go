package repository

import (
	"context"
	"log/slog"
	"time"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
)

type fileUploadRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewFileUploadRepository(db SQLExecutor, logger *slog.Logger) domain.FileUploadRepository {
	return &fileUploadRepository{
		db:     db,
		logger: logger,
	}
}

func (r *fileUploadRepository) Create(ctx context.Context, upload *domain.FileUpload) error {
	query := `
		INSERT INTO nach_file_uploads
		(id, file_name, file_type, batch_no, file_size, status, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = time.Now()
	}
	if upload.Status == "" {
		upload.Status = domain.UploadStatusProcessing
	}

	_, err := r.db.ExecContext(ctx, query,
		upload.ID,
		upload.FileName,
		upload.FileType,
		upload.BatchNo,
		upload.FileSize,
		upload.Status,
		upload.UploadedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create file upload record",
			"upload_id", upload.ID,
			"file_name", upload.FileName,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create file upload record").WithDetails(err.Error())
	}

	r.logger.Info("File upload recorded", "upload_id", upload.ID, "file_name", upload.FileName)
	return nil
}

// Complete stores the final counts and status of an upload.
func (r *fileUploadRepository) Complete(ctx context.Context, upload *domain.FileUpload) error {
	query := `
		UPDATE nach_file_uploads
		SET total_count = $1, valid_count = $2, inserted_count = $3, failed_count = $4,
		    duplicate_count = $5, parse_error_count = $6, truncated = $7, status = $8,
		    error_message = $9, completed_at = $10
		WHERE id = $11
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		upload.TotalCount,
		upload.ValidCount,
		upload.InsertedCount,
		upload.FailedCount,
		upload.DuplicateCount,
		upload.ParseErrorCount,
		upload.Truncated,
		upload.Status,
		upload.ErrorMessage,
		now,
		upload.ID,
	)
	if err != nil {
		r.logger.Error("Failed to complete file upload record", "upload_id", upload.ID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to complete file upload record").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}
	if rowsAffected == 0 {
		return errors.NewAppError(errors.InternalError, "file upload record not found").WithDetails(upload.ID.String())
	}

	upload.CompletedAt = &now
	r.logger.Info("File upload completed",
		"upload_id", upload.ID,
		"status", upload.Status,
		"inserted_count", upload.InsertedCount,
		"failed_count", upload.FailedCount)
	return nil
}
