package service

import (
	"context"
	"io"
	"log/slog"
	"math"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/report"
	"nach-reprocessing/internal/stats"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ErrorCatalog resolves error codes to their reference entry.
type ErrorCatalog interface {
	List(ctx context.Context) ([]domain.ErrorConfig, error)
	Lookup(ctx context.Context, code string) (*domain.ErrorConfig, error)
}

type TransactionPage struct {
	Items       []domain.Transaction `json:"items"`
	TotalRows   int64                `json:"total_rows"`
	TotalPages  int                  `json:"total_pages"`
	CurrentPage int                  `json:"current_page"`
	PageSize    int                  `json:"page_size"`
}

// TransactionDetail is one transaction plus its error-code reference entry, if any.
type TransactionDetail struct {
	domain.Transaction
	ErrorInfo *domain.ErrorConfig `json:"error_info,omitempty"`
}

type TransactionService struct {
	store   domain.Store
	catalog ErrorCatalog
	logger  *slog.Logger
}

func NewTransactionService(store domain.Store, catalog ErrorCatalog, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// NormalizePage clamps page to >= 1 and pageSize to (0, MaxPageSize].
func NormalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	case pageSize <= 0:
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

func (s *TransactionService) List(ctx context.Context, filter domain.TransactionFilter, page, pageSize int) (*TransactionPage, error) {
	page, pageSize = NormalizePage(page, pageSize)

	repo := s.store.Transaction()
	total, err := repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	items, err := repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Transaction{}
	}

	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}

	return &TransactionPage{
		Items:       items,
		TotalRows:   total,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (*TransactionDetail, error) {
	txn, err := s.store.Transaction().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &TransactionDetail{Transaction: *txn}
	if txn.ErrorCode != nil && s.catalog != nil {
		info, err := s.catalog.Lookup(ctx, *txn.ErrorCode)
		if err != nil {
			s.logger.Warn("Failed to resolve error code", "error_code", *txn.ErrorCode, "error", err)
		}
		detail.ErrorInfo = info
	}
	return detail, nil
}

// Stats aggregates every transaction matching filter; paging fields are ignored.
func (s *TransactionService) Stats(ctx context.Context, filter domain.TransactionFilter) (domain.DashboardStats, error) {
	filter.Limit, filter.Offset = 0, 0
	txns, err := s.store.Transaction().List(ctx, filter)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	return stats.Compute(txns), nil
}

func (s *TransactionService) ErrorCodes(ctx context.Context) ([]domain.ErrorConfig, error) {
	if s.catalog == nil {
		return s.store.ErrorConfig().ListErrorConfigs(ctx)
	}
	return s.catalog.List(ctx)
}

// Export writes an XLSX workbook of the matching transactions and their summary to w.
func (s *TransactionService) Export(ctx context.Context, filter domain.TransactionFilter, w io.Writer) (int, error) {
	filter.Limit, filter.Offset = 0, 0
	txns, err := s.store.Transaction().List(ctx, filter)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Exporting transactions", "count", len(txns))
	if err := report.WriteWorkbook(w, txns, stats.Compute(txns)); err != nil {
		s.logger.Error("Failed to write export workbook", "error", err)
		return 0, err
	}
	return len(txns), nil
}
