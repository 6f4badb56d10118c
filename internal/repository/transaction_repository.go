package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
)

const uniqueViolation = "23505"

const transactionColumns = `id, txn_ref_no, mandate_id, account_no, amount, status, error_code, error_desc,
	file_name, file_type, batch_no, customer_name, sponsor_bank, destination_bank, transaction_date,
	purpose_code, processed_date, created_at, updated_at`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) Insert(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO nach_transactions
		(txn_ref_no, mandate_id, account_no, amount, status, error_code, error_desc,
		 file_name, file_type, batch_no, customer_name, sponsor_bank, destination_bank,
		 transaction_date, purpose_code, processed_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	if tx.Status == domain.StatusParseError {
		return errors.NewAppError(errors.InvalidStatus, "parse error placeholders are never stored").
			WithDetails(tx.TxnRefNo)
	}

	now := time.Now()
	processed := tx.ProcessedDate
	if processed.IsZero() {
		processed = now
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		tx.TxnRefNo,
		tx.MandateID,
		tx.AccountNo,
		tx.Amount.String(),
		tx.Status,
		nullString(tx.ErrorCode),
		nullString(tx.ErrorDesc),
		tx.FileName,
		tx.FileType,
		tx.BatchNo,
		tx.CustomerName,
		tx.SponsorBank,
		tx.DestinationBank,
		nullTime(tx.TransactionDate),
		tx.PurposeCode,
		processed,
		now,
		now,
	).Scan(&id)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			r.logger.Warn("Duplicate transaction reference", "txn_ref_no", tx.TxnRefNo)
			return errors.ErrDuplicateTransaction.WithDetails(tx.TxnRefNo)
		}
		r.logger.Error("Failed to insert transaction",
			"txn_ref_no", tx.TxnRefNo,
			"file_name", tx.FileName,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to insert transaction").WithDetails(err.Error())
	}

	tx.ID = id
	tx.ProcessedDate = processed
	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.logger.Debug("Transaction inserted", "transaction_id", id, "txn_ref_no", tx.TxnRefNo)
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM nach_transactions WHERE id = $1`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTransactionNotFound
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}
	return txn, nil
}

func (r *transactionRepository) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM nach_transactions WHERE txn_ref_no = $1`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTransactionNotFound
		}
		r.logger.Error("Failed to get transaction by reference", "txn_ref_no", ref, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}
	return txn, nil
}

// GetByIDs returns the rows that exist; unknown ids are simply absent.
func (r *transactionRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.List(ctx, domain.TransactionFilter{IDs: ids})
}

func (r *transactionRepository) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{})
}

func (r *transactionRepository) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{Status: status})
}

// ListByDateRange filters on processed_date, both bounds inclusive.
func (r *transactionRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{DateFrom: &from, DateTo: &to})
}

// Search matches term as a case-insensitive substring of the reference,
// mandate id or account number.
func (r *transactionRepository) Search(ctx context.Context, term string) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{SearchTerm: term})
}

func (r *transactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + transactionColumns + ` FROM nach_transactions` + where + ` ORDER BY processed_date DESC, id DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, errors.NewAppError(errors.InternalError, "failed to read transaction").WithDetails(err.Error())
		}
		out = append(out, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	return out, nil
}

func (r *transactionRepository) Count(ctx context.Context, filter domain.TransactionFilter) (int64, error) {
	where, args := buildWhere(filter)
	query := `SELECT COUNT(*) FROM nach_transactions` + where

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		r.logger.Error("Failed to count transactions", "error", err)
		return 0, errors.NewAppError(errors.InternalError, "failed to count transactions").WithDetails(err.Error())
	}
	return n, nil
}

// UpdateStatus writes status and error fields together. A move to REPROCESSED
// only applies while the stored status is still reprocessable; losing that
// race returns domain.ErrInvalidTransition.
func (r *transactionRepository) UpdateStatus(ctx context.Context, id int64, status domain.Status, errorCode, errorDesc *string, updatedAt time.Time) error {
	if !status.IsValid() || status == domain.StatusParseError {
		return errors.ErrInvalidStatus.WithDetails(string(status))
	}

	query := `
		UPDATE nach_transactions
		SET status = $1, error_code = $2, error_desc = $3, updated_at = $4
		WHERE id = $5
	`
	args := []interface{}{status, nullString(errorCode), nullString(errorDesc), updatedAt, id}
	if status == domain.StatusReprocessed {
		query += ` AND status = ANY($6)`
		args = append(args, pq.Array(statusStrings(domain.ReprocessableStatuses)))
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update transaction status",
			"transaction_id", id, "status", status, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update transaction status").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}
	if rowsAffected == 0 {
		if status == domain.StatusReprocessed {
			r.logger.Warn("Transaction no longer reprocessable", "transaction_id", id)
			return domain.ErrInvalidTransition
		}
		return errors.ErrTransactionNotFound
	}

	r.logger.Info("Transaction status updated", "transaction_id", id, "status", status)
	return nil
}

func buildWhere(f domain.TransactionFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.IDs) > 0 {
		add("id = ANY($%d)", pq.Array(f.IDs))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DateFrom != nil {
		add("processed_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("processed_date <= $%d", *f.DateTo)
	}
	if f.Reference != "" {
		add("txn_ref_no = $%d", f.Reference)
	}
	if f.FileName != "" {
		add("file_name = $%d", f.FileName)
	}
	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(txn_ref_no ILIKE $%d OR mandate_id ILIKE $%d OR account_no ILIKE $%d)", n, n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		txn       domain.Transaction
		amountStr string
		errCode   sql.NullString
		errDesc   sql.NullString
		custName  sql.NullString
		sponsor   sql.NullString
		destBank  sql.NullString
		txnDate   sql.NullTime
		purpose   sql.NullString
		batchNo   sql.NullString
		fileType  sql.NullString
	)

	err := row.Scan(
		&txn.ID,
		&txn.TxnRefNo,
		&txn.MandateID,
		&txn.AccountNo,
		&amountStr,
		&txn.Status,
		&errCode,
		&errDesc,
		&txn.FileName,
		&fileType,
		&batchNo,
		&custName,
		&sponsor,
		&destBank,
		&txnDate,
		&purpose,
		&txn.ProcessedDate,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amountStr, err)
	}
	txn.Amount = amount

	if errCode.Valid {
		txn.ErrorCode = &errCode.String
	}
	if errDesc.Valid {
		txn.ErrorDesc = &errDesc.String
	}
	if txnDate.Valid {
		d := txnDate.Time
		txn.TransactionDate = &d
	}
	txn.FileType = domain.FileType(fileType.String)
	txn.BatchNo = batchNo.String
	txn.CustomerName = custName.String
	txn.SponsorBank = sponsor.String
	txn.DestinationBank = destBank.String
	txn.PurposeCode = purpose.String

	return &txn, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
