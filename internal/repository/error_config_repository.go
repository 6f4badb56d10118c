package repository

import (
	"context"
	"log/slog"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
)

type errorConfigRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewErrorConfigRepository(db SQLExecutor, logger *slog.Logger) domain.ErrorConfigRepository {
	return &errorConfigRepository{
		db:     db,
		logger: logger,
	}
}

func (r *errorConfigRepository) ListErrorConfigs(ctx context.Context) ([]domain.ErrorConfig, error) {
	query := `
		SELECT error_code, error_description, is_reprocessable, retry_count
		FROM nach_error_config
		ORDER BY error_code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to load error config", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to load error config").WithDetails(err.Error())
	}
	defer rows.Close()

	var out []domain.ErrorConfig
	for rows.Next() {
		var c domain.ErrorConfig
		if err := rows.Scan(&c.Code, &c.Description, &c.Reprocessable, &c.RetryCount); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to read error config").WithDetails(err.Error())
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to load error config").WithDetails(err.Error())
	}
	return out, nil
}
