// Package cli implements nachctl, the operator command line for NACH files.
//
//	nachctl
//	├── parse FILE      decode a file offline and report per-line results
//	├── reprocess       move ERROR/STUCK/FAILED records to REPROCESSED
//	├── stats           dashboard summary for a filter
//	├── export          XLSX workbook of a filter
//	└── migrate         apply the embedded schema
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nach-reprocessing/internal/config"
	"nach-reprocessing/internal/repository"
)

type app struct {
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the command tree. Logs go to stderr so stdout stays
// machine readable.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "nachctl",
		Short: "Inspect, reprocess and report on NACH clearing files",
		Long: `nachctl works against the same database as the NACH service.

Example Usage:
  nachctl parse ACH-DR-BDBL-03062024-TPZ000433633-P3FC-INW.txt --validate
  nachctl reprocess --ids 12,15,19 --actor ops --reason "bank retry"
  nachctl stats --status ERROR --from 2024-06-01
  nachctl export --out june.xlsx --from 2024-06-01 --to 2024-06-30`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML configuration file (overrides NACH_CONFIG_FILE)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.newParseCommand(),
		a.newReprocessCommand(),
		a.newStatsCommand(),
		a.newExportCommand(),
		a.newMigrateCommand(),
	)
	return root
}

// Execute runs nachctl and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func (a *app) setup(stderr io.Writer) error {
	path := a.cfgFile
	if path == "" {
		path = os.Getenv("NACH_CONFIG_FILE")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.SlogLevel()
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// openStore connects to the configured database. The caller closes the returned *sql.DB.
func (a *app) openStore(ctx context.Context) (*repository.Store, *sql.DB, error) {
	db, err := repository.Open(ctx, a.cfg.GetDBConnectionString())
	if err != nil {
		return nil, nil, err
	}
	return repository.NewStore(db, a.logger), db, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
