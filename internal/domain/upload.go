package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type UploadStatus string

const (
	UploadStatusProcessing UploadStatus = "PROCESSING"
	UploadStatusCompleted  UploadStatus = "COMPLETED"
	UploadStatusFailed     UploadStatus = "FAILED"
)

// FileUpload is the bookkeeping row written for every accepted upload.
type FileUpload struct {
	ID              uuid.UUID    `json:"upload_id"`
	FileName        string       `json:"file_name"`
	FileType        FileType     `json:"file_type"`
	BatchNo         string       `json:"batch_no"`
	FileSize        int64        `json:"file_size"`
	TotalCount      int          `json:"transaction_count"`
	ValidCount      int          `json:"valid_count"`
	InsertedCount   int          `json:"success_count"`
	FailedCount     int          `json:"failed_count"`
	DuplicateCount  int          `json:"duplicate_count"`
	ParseErrorCount int          `json:"parse_error_count"`
	Truncated       bool         `json:"truncated"`
	Status          UploadStatus `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	UploadedAt      time.Time    `json:"uploaded_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

type FileUploadRepository interface {
	Create(ctx context.Context, upload *FileUpload) error
	Complete(ctx context.Context, upload *FileUpload) error
}

// ReprocessAudit records one reprocessing decision for one transaction.
type ReprocessAudit struct {
	ID             uuid.UUID `json:"id"`
	RequestID      uuid.UUID `json:"request_id"`
	TransactionID  int64     `json:"transaction_id"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	Outcome        string    `json:"outcome"`
	Actor          string    `json:"actor"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

type ReprocessAuditRepository interface {
	Record(ctx context.Context, audit *ReprocessAudit) error
}

// ErrorConfig is one row of the error-code reference table.
type ErrorConfig struct {
	Code          string `json:"error_code"`
	Description   string `json:"error_description"`
	Reprocessable bool   `json:"is_reprocessable"`
	RetryCount    int    `json:"retry_count"`
}

type ErrorConfigRepository interface {
	ListErrorConfigs(ctx context.Context) ([]ErrorConfig, error)
}
