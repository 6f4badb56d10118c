package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"nach-reprocessing/internal/domain"
)

const (
	TransactionsSheet = "Transactions"
	SummarySheet      = "Summary"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateLayout  = "02.01.2006"
	stampLayout = "02.01.2006 15:04:05"
)

var transactionHeaders = []string{
	"ID", "Reference", "Mandate ID", "Account No", "Amount", "Status",
	"Error Code", "Error Description", "File Name", "File Type", "Batch No",
	"Customer Name", "Transaction Date", "Processed Date",
}

// WriteWorkbook renders txns and their summary as an XLSX workbook into w.
func WriteWorkbook(w io.Writer, txns []domain.Transaction, s domain.DashboardStats) error {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1".
	if err := f.SetSheetName(f.GetSheetName(0), TransactionsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeTransactions(f, txns); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(f, s); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTransactions(f *excelize.File, txns []domain.Transaction) error {
	for i, header := range transactionHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(TransactionsSheet, cell, header); err != nil {
			return err
		}
	}

	for i, t := range txns {
		row := i + 2
		values := []interface{}{
			t.ID,
			t.TxnRefNo,
			t.MandateID,
			t.AccountNo,
			t.Amount.StringFixed(2),
			string(t.Status),
			deref(t.ErrorCode),
			deref(t.ErrorDesc),
			t.FileName,
			string(t.FileType),
			t.BatchNo,
			t.CustomerName,
			"",
			"",
		}
		if t.TransactionDate != nil {
			values[12] = t.TransactionDate.Format(dateLayout)
		}
		if !t.ProcessedDate.IsZero() {
			values[13] = t.ProcessedDate.Format(stampLayout)
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(TransactionsSheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSummary(f *excelize.File, s domain.DashboardStats) error {
	rows := [][2]interface{}{
		{"Metric", "Value"},
		{"Total Transactions", s.TotalTransactions},
		{"Success", s.SuccessCount},
		{"Error", s.ErrorCount},
		{"Stuck", s.StuckCount},
		{"Failed", s.FailedCount},
		{"Reprocessed", s.ReprocessedCount},
		{"Parse Errors", s.ParseErrorCount},
		{"Success Amount", s.SuccessAmount.StringFixed(2)},
		{"Error Amount", s.ErrorAmount.StringFixed(2)},
		{"Total Amount", s.TotalAmount.StringFixed(2)},
		{"Success Rate (%)", s.SuccessRate},
		{"Error Rate (%)", s.ErrorRate},
	}
	for i, r := range rows {
		row := i + 1
		if err := f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", row), r[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", row), r[1]); err != nil {
			return err
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
