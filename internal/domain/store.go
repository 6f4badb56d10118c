package domain

import "context"

// Store groups the repositories behind one unit of work. WithTransaction hands
// fn a Store bound to a single database transaction; fn's error rolls it back.
type Store interface {
	Transaction() TransactionRepository
	FileUpload() FileUploadRepository
	ReprocessAudit() ReprocessAuditRepository
	ErrorConfig() ErrorConfigRepository
	WithTransaction(ctx context.Context, fn func(Store) error) error
}
