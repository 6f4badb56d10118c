// Package parser turns pipe-delimited NACH files into transactions.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nach-reprocessing/internal/domain"
)

const FieldSeparator = "|"

// positional field indexes
const (
	fieldTxnRefNo = iota
	fieldMandateID
	fieldAccountNo
	fieldAmount
	fieldCustomerName
	fieldSponsorBank
	fieldDestinationBank
	fieldTransactionDate
	fieldPurposeCode
)

const (
	requiredFields = fieldAmount + 1

	// amounts are stored as NUMERIC(20, 2)
	amountScale         = 2
	amountIntegerDigits = 18

	placeholderPrefix     = "ERR_"
	parseErrorDescription = "Line parsing failed: "
)

var (
	ErrTooFewFields  = errors.New("too few fields")
	ErrInvalidAmount = errors.New("invalid amount")

	amountLimit = decimal.New(1, amountIntegerDigits)
)

var transactionDateLayouts = []string{
	"2006-01-02",
	"02012006",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Record is one decoded data line. Fields past the amount are optional and are
// left at their zero value when absent.
type Record struct {
	TxnRefNo        string
	MandateID       string
	AccountNo       string
	Amount          decimal.Decimal
	CustomerName    string
	SponsorBank     string
	DestinationBank string
	TransactionDate *time.Time
	PurposeCode     string

	// Warnings lists optional fields that were present but could not be decoded.
	Warnings []string
}

// DecodeRecord splits a line on "|" and maps the fields by position. Only a
// missing required field or an amount the store cannot hold exactly is an error.
func DecodeRecord(line string) (Record, error) {
	fields := strings.Split(line, FieldSeparator)
	if len(fields) < requiredFields {
		return Record{}, fmt.Errorf("%w: expected at least %d, found %d", ErrTooFewFields, requiredFields, len(fields))
	}

	amountRaw := strings.TrimSpace(fields[fieldAmount])
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amountRaw)
	}
	if !amount.Round(amountScale).Equal(amount) {
		return Record{}, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, amountRaw, amountScale)
	}
	if amount.Abs().GreaterThanOrEqual(amountLimit) {
		return Record{}, fmt.Errorf("%w: %q has more than %d integer digits", ErrInvalidAmount, amountRaw, amountIntegerDigits)
	}

	rec := Record{
		TxnRefNo:  strings.TrimSpace(fields[fieldTxnRefNo]),
		MandateID: strings.TrimSpace(fields[fieldMandateID]),
		AccountNo: strings.TrimSpace(fields[fieldAccountNo]),
		Amount:    amount,
	}

	rec.CustomerName = optionalField(fields, fieldCustomerName)
	rec.SponsorBank = optionalField(fields, fieldSponsorBank)
	rec.DestinationBank = optionalField(fields, fieldDestinationBank)
	rec.PurposeCode = optionalField(fields, fieldPurposeCode)

	if raw := optionalField(fields, fieldTransactionDate); raw != "" {
		if d, ok := parseTransactionDate(raw); ok {
			rec.TransactionDate = &d
		} else {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("unrecognised transaction date %q", raw))
		}
	}

	return rec, nil
}

func optionalField(fields []string, idx int) string {
	if idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func parseTransactionDate(raw string) (time.Time, bool) {
	for _, layout := range transactionDateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Accepts is the minimal acceptance rule applied at ingestion: positive
// amount, account number of at least ten characters and a mandate id.
func (r Record) Accepts() bool {
	return r.Amount.IsPositive() && len(r.AccountNo) >= domain.MinAccountLength && r.MandateID != ""
}

// ToTransaction builds the transaction for this record and assigns its initial status.
func (r Record) ToTransaction(meta FileMeta) domain.Transaction {
	txn := domain.Transaction{
		TxnRefNo:        r.TxnRefNo,
		MandateID:       r.MandateID,
		AccountNo:       r.AccountNo,
		Amount:          r.Amount,
		CustomerName:    r.CustomerName,
		SponsorBank:     r.SponsorBank,
		DestinationBank: r.DestinationBank,
		TransactionDate: r.TransactionDate,
		PurposeCode:     r.PurposeCode,
	}
	applyMeta(&txn, meta)

	if r.Accepts() {
		txn.Status = domain.StatusSuccess
	} else {
		txn.Status = domain.StatusError
		txn.SetError(domain.ErrorCodeValidationFailed, domain.ErrorDescValidationFailed)
	}
	return txn
}

// ParseLine decodes one data line. A structural failure yields a PARSE_ERROR
// placeholder with a fresh ERR_ reference instead of an error.
func ParseLine(line string, meta FileMeta) domain.Transaction {
	rec, err := DecodeRecord(line)
	if err != nil {
		return ParseErrorPlaceholder(err, meta)
	}
	return rec.ToTransaction(meta)
}

// ParseErrorPlaceholder keeps the position of an undecodable line in the output.
func ParseErrorPlaceholder(cause error, meta FileMeta) domain.Transaction {
	txn := domain.Transaction{
		TxnRefNo: placeholderPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Status:   domain.StatusParseError,
	}
	desc := parseErrorDescription + cause.Error()
	txn.ErrorDesc = &desc
	applyMeta(&txn, meta)
	return txn
}

func applyMeta(txn *domain.Transaction, meta FileMeta) {
	txn.FileName = meta.FileName
	txn.FileType = meta.FileType
	txn.BatchNo = meta.BatchNo
	txn.ProcessedDate = meta.ProcessedAt
	txn.CreatedAt = meta.ProcessedAt
	txn.UpdatedAt = meta.ProcessedAt
}
