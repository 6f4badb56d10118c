package domain

import "github.com/shopspring/decimal"

// DashboardStats is a point-in-time summary of a transaction set.
// PARSE_ERROR records are counted separately and stay out of the total and both rates.
type DashboardStats struct {
	TotalTransactions int64           `json:"total_transactions"`
	SuccessCount      int64           `json:"success_count"`
	ErrorCount        int64           `json:"error_count"`
	StuckCount        int64           `json:"stuck_count"`
	FailedCount       int64           `json:"failed_count"`
	ReprocessedCount  int64           `json:"reprocessed_count"`
	ParseErrorCount   int64           `json:"parse_error_count"`
	SuccessAmount     decimal.Decimal `json:"success_amount"`
	ErrorAmount       decimal.Decimal `json:"error_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	SuccessRate       float64         `json:"success_rate"`
	ErrorRate         float64         `json:"error_rate"`
}

// ReprocessableCount is the number of records the reprocessor could pick up.
func (s DashboardStats) ReprocessableCount() int64 {
	return s.ErrorCount + s.StuckCount + s.FailedCount
}
