package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
)

// memStore is an in-memory domain.Store. WithTransaction runs fn against the
// same store; tests that need rollback use the postgres-backed suite instead.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	txns     map[int64]*domain.Transaction
	uploads  map[string]*domain.FileUpload
	audits   []domain.ReprocessAudit
	configs  []domain.ErrorConfig
	auditErr error
	listErr  error
	updates  int
}

func newMemStore() *memStore {
	return &memStore{
		txns:    make(map[int64]*domain.Transaction),
		uploads: make(map[string]*domain.FileUpload),
		configs: []domain.ErrorConfig{
			{Code: "E001", Description: "Validation failed", Reprocessable: true, RetryCount: 3},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (m *memStore) Transaction() domain.TransactionRepository { return memTxnRepo{m} }
func (m *memStore) FileUpload() domain.FileUploadRepository { return memUploadRepo{m} }
func (m *memStore) ReprocessAudit() domain.ReprocessAuditRepository { return memAuditRepo{m} }
func (m *memStore) ErrorConfig() domain.ErrorConfigRepository { return memConfigRepo{m} }
func (m *memStore) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	return fn(m)
}

// seed stores t and returns its id.
func (m *memStore) seed(t domain.Transaction) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.txns[t.ID] = &t
	return t.ID
}

func (m *memStore) status(id int64) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txns[id].Status
}

func (m *memStore) auditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.audits)
}

type memTxnRepo struct{ m *memStore }

func (r memTxnRepo) Insert(ctx context.Context, t *domain.Transaction) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if t.Status == domain.StatusParseError {
		return errors.ErrInvalidStatus
	}
	for _, existing := range r.m.txns {
		if existing.TxnRefNo == t.TxnRefNo {
			return errors.ErrDuplicateTransaction.WithDetails(t.TxnRefNo)
		}
	}
	r.m.nextID++
	t.ID = r.m.nextID
	cp := *t
	r.m.txns[t.ID] = &cp
	return nil
}

func (r memTxnRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.txns[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTxnRepo) GetByIDs(ctx context.Context, ids []int64) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{IDs: ids})
}

func (r memTxnRepo) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	items, err := r.List(ctx, domain.TransactionFilter{Reference: ref})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.ErrTransactionNotFound
	}
	return &items[0], nil
}

func (r memTxnRepo) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{})
}

func (r memTxnRepo) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{Status: status})
}

func (r memTxnRepo) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{DateFrom: &from, DateTo: &to})
}

func (r memTxnRepo) Search(ctx context.Context, term string) ([]domain.Transaction, error) {
	return r.List(ctx, domain.TransactionFilter{SearchTerm: term})
}

func (r memTxnRepo) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.listErr != nil {
		return nil, r.m.listErr
	}

	var out []domain.Transaction
	for _, t := range r.m.txns {
		if matches(*t, f) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memTxnRepo) Count(ctx context.Context, f domain.TransactionFilter) (int64, error) {
	f.Limit, f.Offset = 0, 0
	items, err := r.List(ctx, f)
	return int64(len(items)), err
}

func (r memTxnRepo) UpdateStatus(ctx context.Context, id int64, status domain.Status, code, desc *string, updatedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.txns[id]
	if !ok {
		return errors.ErrTransactionNotFound
	}
	if status == domain.StatusReprocessed && !t.Status.IsReprocessable() {
		return domain.ErrInvalidTransition
	}
	r.m.updates++
	t.Status = status
	t.ErrorCode, t.ErrorDesc = code, desc
	t.UpdatedAt = updatedAt
	return nil
}

func matches(t domain.Transaction, f domain.TransactionFilter) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == t.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Reference != "" && t.TxnRefNo != f.Reference {
		return false
	}
	if f.FileName != "" && t.FileName != f.FileName {
		return false
	}
	if f.DateFrom != nil && t.ProcessedDate.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && t.ProcessedDate.After(*f.DateTo) {
		return false
	}
	if f.SearchTerm != "" {
		term := strings.ToLower(f.SearchTerm)
		if !strings.Contains(strings.ToLower(t.TxnRefNo), term) &&
			!strings.Contains(strings.ToLower(t.MandateID), term) &&
			!strings.Contains(strings.ToLower(t.AccountNo), term) {
			return false
		}
	}
	return true
}

type memUploadRepo struct{ m *memStore }

func (r memUploadRepo) Create(ctx context.Context, u *domain.FileUpload) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *u
	r.m.uploads[u.ID.String()] = &cp
	return nil
}

func (r memUploadRepo) Complete(ctx context.Context, u *domain.FileUpload) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *u
	now := time.Now()
	cp.CompletedAt = &now
	r.m.uploads[u.ID.String()] = &cp
	return nil
}

type memAuditRepo struct{ m *memStore }

func (r memAuditRepo) Record(ctx context.Context, a *domain.ReprocessAudit) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.auditErr != nil {
		return r.m.auditErr
	}
	r.m.audits = append(r.m.audits, *a)
	return nil
}

type memConfigRepo struct{ m *memStore }

func (r memConfigRepo) ListErrorConfigs(ctx context.Context) ([]domain.ErrorConfig, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]domain.ErrorConfig(nil), r.m.configs...), nil
}
