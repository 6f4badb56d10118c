package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/service"
	"nach-reprocessing/migrations"
)

const dateLayout = "2006-01-02"

type filterFlags struct {
	status    string
	from      string
	to        string
	search    string
	reference string
	fileName  string
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.status, "status", "", "Only records with this status")
	fs.StringVar(&f.from, "from", "", "Processed on or after this date (YYYY-MM-DD)")
	fs.StringVar(&f.to, "to", "", "Processed on or before this date (YYYY-MM-DD)")
	fs.StringVar(&f.search, "search", "", "Substring of reference, mandate id or account number")
	fs.StringVar(&f.reference, "reference", "", "Exact transaction reference")
	fs.StringVar(&f.fileName, "file", "", "Only records from this source file")
}

func (f *filterFlags) filter() (domain.TransactionFilter, error) {
	out := domain.TransactionFilter{
		SearchTerm: strings.TrimSpace(f.search),
		Reference:  strings.TrimSpace(f.reference),
		FileName:   strings.TrimSpace(f.fileName),
	}
	if f.status != "" {
		s, ok := domain.ParseStatus(f.status)
		if !ok {
			return out, fmt.Errorf("unknown status %q", f.status)
		}
		out.Status = s
	}
	if f.from != "" {
		t, err := time.Parse(dateLayout, f.from)
		if err != nil {
			return out, fmt.Errorf("--from: %w", err)
		}
		out.DateFrom = &t
	}
	if f.to != "" {
		t, err := time.Parse(dateLayout, f.to)
		if err != nil {
			return out, fmt.Errorf("--to: %w", err)
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		out.DateTo = &end
	}
	return out, nil
}

func (a *app) newReprocessCommand() *cobra.Command {
	var (
		ids    []int64
		actor  string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-check ERROR, STUCK and FAILED records and mark the passing ones REPROCESSED",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewReprocessService(store, a.cfg.Reprocess, a.logger)
			res, err := svc.Reprocess(cmd.Context(), service.ReprocessRequest{IDs: ids, Actor: actor, Reason: reason})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "Transaction ids, comma separated")
	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "Who is reprocessing")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the records are reprocessed")
	cmd.MarkFlagRequired("ids")
	return cmd
}

func (a *app) newStatsCommand() *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the dashboard summary for the matching records",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}

			store, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewTransactionService(store, nil, a.logger)
			s, err := svc.Stats(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}

	ff.register(cmd.Flags())
	return cmd
}

func (a *app) newExportCommand() *cobra.Command {
	var (
		ff  filterFlags
		out string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the matching records and their summary to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}

			store, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Create(out)
			if err != nil {
				return err
			}

			svc := service.NewTransactionService(store, nil, a.logger)
			n, err := svc.Export(cmd.Context(), filter, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d transactions to %s\n", n, out)
			return nil
		},
	}

	ff.register(cmd.Flags())
	cmd.Flags().StringVarP(&out, "out", "o", "nach_transactions.xlsx", "Output workbook path")
	return cmd
}

func (a *app) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := migrations.Apply(cmd.Context(), db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
