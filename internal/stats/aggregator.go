// Package stats reduces transaction sets into dashboard summaries.
package stats

import (
	"github.com/shopspring/decimal"

	"nach-reprocessing/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Compute walks txns once. STUCK and FAILED amounts join the error amount,
// REPROCESSED joins the success amount. PARSE_ERROR records only increment
// their own counter.
func Compute(txns []domain.Transaction) domain.DashboardStats {
	s := domain.DashboardStats{
		SuccessAmount: decimal.Zero,
		ErrorAmount:   decimal.Zero,
		TotalAmount:   decimal.Zero,
	}

	for _, t := range txns {
		switch t.Status {
		case domain.StatusSuccess:
			s.SuccessCount++
			s.SuccessAmount = s.SuccessAmount.Add(t.Amount)
		case domain.StatusReprocessed:
			s.ReprocessedCount++
			s.SuccessAmount = s.SuccessAmount.Add(t.Amount)
		case domain.StatusError:
			s.ErrorCount++
			s.ErrorAmount = s.ErrorAmount.Add(t.Amount)
		case domain.StatusStuck:
			s.StuckCount++
			s.ErrorAmount = s.ErrorAmount.Add(t.Amount)
		case domain.StatusFailed:
			s.FailedCount++
			s.ErrorAmount = s.ErrorAmount.Add(t.Amount)
		case domain.StatusParseError:
			s.ParseErrorCount++
		}
	}

	s.TotalTransactions = s.SuccessCount + s.ErrorCount + s.StuckCount + s.FailedCount + s.ReprocessedCount
	s.TotalAmount = s.SuccessAmount.Add(s.ErrorAmount)
	s.SuccessRate = rate(s.SuccessCount+s.ReprocessedCount, s.TotalTransactions)
	s.ErrorRate = rate(s.ReprocessableCount(), s.TotalTransactions)
	return s
}

func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	r := decimal.NewFromInt(part).Mul(hundred).DivRound(decimal.NewFromInt(total), 2)
	f, _ := r.Float64()
	return f
}
