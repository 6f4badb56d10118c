package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/parser"
	"nach-reprocessing/internal/validation"
)

type parseReport struct {
	FileName        string          `json:"file_name"`
	FileType        domain.FileType `json:"file_type"`
	BatchNo         string          `json:"batch_no"`
	HeaderValid     bool            `json:"header_valid"`
	HeaderErrors    []string        `json:"header_errors,omitempty"`
	TotalCount      int             `json:"total_count"`
	ValidCount      int             `json:"valid_count"`
	ParseErrorCount int             `json:"parse_error_count"`
	Truncated       bool            `json:"truncated"`
	UploadErrors    []string        `json:"upload_errors,omitempty"`
	Lines           []parsedLine    `json:"lines"`
}

type parsedLine struct {
	LineNumber int           `json:"line_number"`
	TxnRefNo   string        `json:"txn_ref_no"`
	Status     domain.Status `json:"status"`
	ErrorDesc  string        `json:"error_desc,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Findings   []string      `json:"findings,omitempty"`
}

func (a *app) newParseCommand() *cobra.Command {
	var (
		strict bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Decode a NACH file without storing it",
		Long: `parse runs the same decoder the upload endpoint uses and prints the status
every data line would be stored with. --validate additionally applies the full
field rules and the upload checks and lists every finding per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.parseFile(cmd, args[0], strict)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			return printParseReport(cmd.OutOrStdout(), rep)
		},
	}

	cmd.Flags().BoolVar(&strict, "validate", false, "Apply the full field validator to every line")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func (a *app) parseFile(cmd *cobra.Command, path string, strict bool) (*parseReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	fileName := filepath.Base(path)
	res, err := parser.NewFileParser(a.cfg.Upload, a.logger).Parse(cmd.Context(), f, fileName)
	if err != nil {
		return nil, err
	}

	rep := &parseReport{
		FileName:        res.FileName,
		FileType:        res.FileType,
		BatchNo:         res.BatchNo,
		HeaderValid:     res.HeaderValid,
		HeaderErrors:    res.HeaderErrors,
		TotalCount:      res.TotalCount,
		ValidCount:      res.ValidCount,
		ParseErrorCount: res.ParseErrorCount,
		Truncated:       res.Truncated,
		Lines:           make([]parsedLine, 0, len(res.Transactions)),
	}
	if strict {
		if up := validation.ValidateUpload(fileName, info.Size(), a.cfg.Upload); !up.Valid {
			rep.UploadErrors = up.Errors
		}
	}

	for i, txn := range res.Transactions {
		entry := res.Entries[i]
		line := parsedLine{
			LineNumber: entry.LineNumber,
			TxnRefNo:   txn.TxnRefNo,
			Status:     txn.Status,
			Warnings:   entry.Warnings,
		}
		if txn.ErrorDesc != nil {
			line.ErrorDesc = *txn.ErrorDesc
		}
		if strict {
			fields := strings.Split(entry.Raw, parser.FieldSeparator)
			if v := validation.ValidateParsedLine(fields, entry.LineNumber); !v.Valid {
				line.Findings = v.Errors
			}
		}
		rep.Lines = append(rep.Lines, line)
	}
	return rep, nil
}

func printParseReport(w io.Writer, rep *parseReport) error {
	fmt.Fprintf(w, "File:        %s\n", rep.FileName)
	fmt.Fprintf(w, "Type:        %s\n", rep.FileType)
	fmt.Fprintf(w, "Batch:       %s\n", rep.BatchNo)
	fmt.Fprintf(w, "Header:      %s\n", validity(rep.HeaderValid, rep.HeaderErrors))
	fmt.Fprintf(w, "Records:     %d (decoded %d, parse errors %d)\n", rep.TotalCount, rep.ValidCount, rep.ParseErrorCount)
	if rep.Truncated {
		fmt.Fprintln(w, "Truncated:   yes, line limit reached")
	}
	for _, e := range rep.UploadErrors {
		fmt.Fprintf(w, "Upload:      %s\n", e)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tREFERENCE\tSTATUS\tDETAIL")
	for _, l := range rep.Lines {
		detail := l.ErrorDesc
		notes := append(append([]string{}, l.Warnings...), l.Findings...)
		if len(notes) > 0 {
			if detail != "" {
				detail += "; "
			}
			detail += strings.Join(notes, "; ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", l.LineNumber, l.TxnRefNo, l.Status, detail)
	}
	return tw.Flush()
}

func validity(ok bool, errs []string) string {
	if ok {
		return "ok"
	}
	return "unexpected (" + strings.Join(errs, "; ") + ")"
}
