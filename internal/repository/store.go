package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
)

var _ domain.Store = (*Store)(nil)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

func (s *Store) FileUpload() domain.FileUploadRepository {
	return NewFileUploadRepository(s.executor, s.logger)
}

func (s *Store) ReprocessAudit() domain.ReprocessAuditRepository {
	return NewReprocessAuditRepository(s.executor, s.logger)
}

func (s *Store) ErrorConfig() domain.ErrorConfigRepository {
	return NewErrorConfigRepository(s.executor, s.logger)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	db, ok := s.executor.(DB)
	if !ok {
		return nil
	}
	return db.PingContext(ctx)
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	// Only sql.DB can begin transactions
	db, ok := s.executor.(DB)
	if !ok {
		return errors.ErrCannotBeginTx
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &Store{
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
