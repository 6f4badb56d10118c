package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
)

type reprocessAuditRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewReprocessAuditRepository(db SQLExecutor, logger *slog.Logger) domain.ReprocessAuditRepository {
	return &reprocessAuditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *reprocessAuditRepository) Record(ctx context.Context, audit *domain.ReprocessAudit) error {
	query := `
		INSERT INTO nach_reprocess_audit
		(id, request_id, transaction_id, previous_status, new_status, outcome, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		audit.ID,
		audit.RequestID,
		audit.TransactionID,
		audit.PreviousStatus,
		audit.NewStatus,
		audit.Outcome,
		audit.Actor,
		audit.Reason,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record reprocess audit",
			"request_id", audit.RequestID,
			"transaction_id", audit.TransactionID,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to record reprocess audit").WithDetails(err.Error())
	}
	return nil
}
