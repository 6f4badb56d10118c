// Package validation holds the field format rules for NACH records and the
// composite checks built on them. Every predicate is total: malformed or empty
// input yields false, never a panic.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"nach-reprocessing/internal/config"
	"nach-reprocessing/internal/domain"
)

const (
	MinFieldsCount = 4
	// MaxReprocessBatch is the default cap on ids per reprocess call.
	MaxReprocessBatch = 1000
)

var (
	MinAmount = decimal.NewFromInt(1)
	MaxAmount = decimal.NewFromInt(1_000_000)
)

var (
	txnRefPattern       = regexp.MustCompile(`^[A-Z0-9]{10,50}$`)
	mandateIDPattern    = regexp.MustCompile(`^[A-Z0-9]{15,50}$`)
	accountNoPattern    = regexp.MustCompile(`^[0-9]{10,20}$`)
	amountPattern       = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
	batchNoPattern      = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)
	errorCodePattern    = regexp.MustCompile(`^E[0-9]{3}$`)
	nachFileNamePattern = regexp.MustCompile(`^(ACH-DR-|ACH-CR-)[A-Z0-9-]+\.txt$`)
	customerNamePattern = regexp.MustCompile(`^[a-zA-Z\s.'-]+$`)
)

// Result is the outcome of a composite check. Errors keep the order in which
// the rules were evaluated.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func newResult(errs []string) Result {
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Error joins all messages with "; ".
func (r Result) Error() string {
	return strings.Join(r.Errors, "; ")
}

func (r Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

func IsValidTxnRefNo(s string) bool {
	return txnRefPattern.MatchString(strings.TrimSpace(s))
}

func IsValidMandateID(s string) bool {
	return mandateIDPattern.MatchString(strings.TrimSpace(s))
}

func IsValidAccountNumber(s string) bool {
	return accountNoPattern.MatchString(strings.TrimSpace(s))
}

// IsValidAmountString checks the textual form (digits, optional one or two
// decimals) and the numeric range.
func IsValidAmountString(s string) bool {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return IsValidAmount(d)
}

// IsValidAmount checks the range [1, 1_000_000] and a scale of at most two decimals.
func IsValidAmount(d decimal.Decimal) bool {
	if d.LessThan(MinAmount) || d.GreaterThan(MaxAmount) {
		return false
	}
	return d.Round(2).Equal(d)
}

func IsValidBatchNo(s string) bool {
	return batchNoPattern.MatchString(strings.TrimSpace(s))
}

// IsValidErrorCode accepts the empty string, meaning "no error".
func IsValidErrorCode(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || errorCodePattern.MatchString(s)
}

// IsValidNachFileName is case-sensitive and requires the .txt extension.
func IsValidNachFileName(s string) bool {
	return nachFileNamePattern.MatchString(s)
}

func IsValidFileType(s string) bool {
	return domain.FileType(strings.TrimSpace(s)).IsValid()
}

func IsValidStatus(s string) bool {
	return domain.Status(strings.TrimSpace(s)).IsValid()
}

func IsValidCustomerName(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 2 && len(s) <= 100 && customerNamePattern.MatchString(s)
}

// ValidateTransaction runs every field rule against a decoded record.
func ValidateTransaction(t *domain.Transaction) Result {
	if t == nil {
		return newResult([]string{"transaction cannot be nil"})
	}

	var errs []string
	if !IsValidTxnRefNo(t.TxnRefNo) {
		errs = append(errs, fmt.Sprintf("invalid transaction reference number: %q", t.TxnRefNo))
	}
	if !IsValidMandateID(t.MandateID) {
		errs = append(errs, fmt.Sprintf("invalid mandate id: %q", t.MandateID))
	}
	if !IsValidAccountNumber(t.AccountNo) {
		errs = append(errs, fmt.Sprintf("invalid account number: %q", t.AccountNo))
	}
	if !IsValidAmount(t.Amount) {
		errs = append(errs, fmt.Sprintf("invalid amount %s: must be between %s and %s with at most 2 decimals",
			t.Amount.String(), MinAmount.String(), MaxAmount.String()))
	}
	if !t.FileType.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid file type: %q", t.FileType))
	}
	if !t.Status.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid status: %q", t.Status))
	}
	if strings.TrimSpace(t.FileName) == "" {
		errs = append(errs, "file name cannot be empty")
	} else if !IsValidNachFileName(t.FileName) {
		errs = append(errs, fmt.Sprintf("invalid NACH file name format: %q", t.FileName))
	}
	if t.BatchNo != "" && !IsValidBatchNo(t.BatchNo) {
		errs = append(errs, fmt.Sprintf("invalid batch number format: %q", t.BatchNo))
	}
	if t.ErrorCode != nil && !IsValidErrorCode(*t.ErrorCode) {
		errs = append(errs, fmt.Sprintf("invalid error code format: %q", *t.ErrorCode))
	}
	return newResult(errs)
}

// ValidateParsedLine applies the field rules to the raw pipe-separated fields
// of one data line. lineNumber is only used in messages.
func ValidateParsedLine(fields []string, lineNumber int) Result {
	if len(fields) < MinFieldsCount {
		return newResult([]string{fmt.Sprintf("line %d: insufficient fields, expected at least %d, found %d",
			lineNumber, MinFieldsCount, len(fields))})
	}

	var errs []string
	if !IsValidTxnRefNo(fields[0]) {
		errs = append(errs, fmt.Sprintf("line %d: invalid transaction reference number", lineNumber))
	}
	if !IsValidMandateID(fields[1]) {
		errs = append(errs, fmt.Sprintf("line %d: invalid mandate id", lineNumber))
	}
	if !IsValidAccountNumber(fields[2]) {
		errs = append(errs, fmt.Sprintf("line %d: invalid account number", lineNumber))
	}
	if !IsValidAmountString(fields[3]) {
		errs = append(errs, fmt.Sprintf("line %d: invalid amount", lineNumber))
	}
	if len(fields) > 4 && strings.TrimSpace(fields[4]) != "" && !IsValidCustomerName(fields[4]) {
		errs = append(errs, fmt.Sprintf("line %d: invalid customer name", lineNumber))
	}
	return newResult(errs)
}

// ValidateHeader checks that the first line looks like a NACH column header.
func ValidateHeader(fields []string) Result {
	if len(fields) < MinFieldsCount {
		return newResult([]string{fmt.Sprintf("invalid header: expected at least %d fields, found %d",
			MinFieldsCount, len(fields))})
	}
	for _, f := range fields {
		upper := strings.ToUpper(strings.TrimSpace(f))
		if strings.Contains(upper, "TXN") || strings.Contains(upper, "MANDATE") ||
			strings.Contains(upper, "ACCOUNT") || strings.Contains(upper, "AMOUNT") {
			return newResult(nil)
		}
	}
	return newResult([]string{"header does not contain expected field names (TXN, MANDATE, ACCOUNT, AMOUNT)"})
}

// ValidateReprocessRequest rejects empty, oversized or malformed id lists.
// A non-positive maxBatch falls back to MaxReprocessBatch.
func ValidateReprocessRequest(ids []int64, maxBatch int) Result {
	if maxBatch <= 0 {
		maxBatch = MaxReprocessBatch
	}
	if len(ids) == 0 {
		return newResult([]string{"transaction ids list cannot be empty"})
	}

	var errs []string
	if len(ids) > maxBatch {
		errs = append(errs, fmt.Sprintf("cannot reprocess more than %d transactions at once", maxBatch))
	}
	for _, id := range ids {
		if id <= 0 {
			errs = append(errs, fmt.Sprintf("invalid transaction id: %d", id))
		}
	}
	return newResult(errs)
}

// ValidateUpload checks an incoming file against the configured limits and the
// NACH naming convention.
func ValidateUpload(fileName string, size int64, cfg config.UploadConfig) Result {
	var errs []string
	if strings.TrimSpace(fileName) == "" {
		return newResult([]string{"file name cannot be empty"})
	}
	if !cfg.IsExtensionAllowed(filepath.Ext(fileName)) {
		errs = append(errs, fmt.Sprintf("file extension not allowed, accepted: %s",
			strings.Join(cfg.AllowedExtensions, ", ")))
	}
	if size <= 0 {
		errs = append(errs, "file is empty")
	} else if size > cfg.MaxSizeBytes {
		errs = append(errs, fmt.Sprintf("file size %d exceeds maximum of %d bytes", size, cfg.MaxSizeBytes))
	}
	if !IsValidNachFileName(fileName) {
		errs = append(errs, fmt.Sprintf("invalid NACH file name format: %q", fileName))
	}
	return newResult(errs)
}
