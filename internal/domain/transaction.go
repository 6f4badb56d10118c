package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ErrorCodeValidationFailed = "E001"
	ErrorDescValidationFailed = "Validation failed"

	// MinAccountLength is the shortest account number the acceptance rules allow.
	MinAccountLength = 10
)

type Transaction struct {
	ID              int64           `json:"id"`
	TxnRefNo        string          `json:"txn_ref_no"`
	MandateID       string          `json:"mandate_id"`
	AccountNo       string          `json:"account_no"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status          `json:"status"`
	ErrorCode       *string         `json:"error_code,omitempty"`
	ErrorDesc       *string         `json:"error_desc,omitempty"`
	FileName        string          `json:"file_name"`
	FileType        FileType        `json:"file_type"`
	BatchNo         string          `json:"batch_no"`
	CustomerName    string          `json:"customer_name,omitempty"`
	SponsorBank     string          `json:"sponsor_bank,omitempty"`
	DestinationBank string          `json:"destination_bank,omitempty"`
	TransactionDate *time.Time      `json:"transaction_date,omitempty"`
	PurposeCode     string          `json:"purpose_code,omitempty"`
	ProcessedDate   time.Time       `json:"processed_date"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SetError records an error code and description together.
func (t *Transaction) SetError(code, desc string) {
	t.ErrorCode = &code
	t.ErrorDesc = &desc
}

func (t *Transaction) ClearError() {
	t.ErrorCode = nil
	t.ErrorDesc = nil
}

func (t *Transaction) HasError() bool {
	return t.ErrorCode != nil || t.ErrorDesc != nil
}

// SetStatus changes the status and refreshes UpdatedAt.
func (t *Transaction) SetStatus(status Status, now time.Time) {
	t.Status = status
	t.UpdatedAt = now
}

// MarkReprocessed moves a reprocessable transaction to REPROCESSED and clears its error fields.
func (t *Transaction) MarkReprocessed(now time.Time) error {
	if !CanTransition(t.Status, StatusReprocessed) {
		return ErrInvalidTransition
	}
	t.SetStatus(StatusReprocessed, now)
	t.ClearError()
	return nil
}

// PassesReprocessCheck re-runs the acceptance rule used on reprocessing:
// positive amount and an account number of at least MinAccountLength characters.
func (t *Transaction) PassesReprocessCheck() bool {
	return t.Amount.IsPositive() && len(t.AccountNo) >= MinAccountLength
}

// TransactionFilter narrows store queries. Zero values mean "no constraint".
type TransactionFilter struct {
	IDs        []int64
	Status     Status
	DateFrom   *time.Time
	DateTo     *time.Time
	Reference  string
	SearchTerm string
	FileName   string
	Limit      int
	Offset     int
}

type TransactionRepository interface {
	Insert(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id int64) (*Transaction, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Transaction, error)
	GetByReference(ctx context.Context, ref string) (*Transaction, error)
	ListAll(ctx context.Context) ([]Transaction, error)
	ListByStatus(ctx context.Context, status Status) ([]Transaction, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]Transaction, error)
	Search(ctx context.Context, term string) ([]Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	Count(ctx context.Context, filter TransactionFilter) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status Status, errorCode, errorDesc *string, updatedAt time.Time) error
}
