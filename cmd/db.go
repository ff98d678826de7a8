package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/markers"
	"github.com/KaramelBytes/wwarncalc/internal/source"
)

var (
	dbDriver     string
	dbDSN        string
	dbWhere      string
	dbProcedures bool
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Compute prevalence statistics from a WWARN database",
	Long: `Reads subjects and genotypes from a WWARN schema database (sqlite, pgx or mysql).
With --procedures, combination markers that name a stored procedure in the marker
list are computed by calling that procedure (mysql only).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := effectiveConfig(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("driver") {
			c.DBDriver = dbDriver
		}
		if f.Changed("dsn") {
			c.DBDSN = dbDSN
		}
		if f.Changed("where") {
			c.QueryWhere = dbWhere
		}
		if f.Changed("procedures") {
			c.UseProcedures = dbProcedures
		}

		if c.UseProcedures && !source.SupportsProcedures(c.DBDriver) {
			return fmt.Errorf("--procedures requires the mysql driver, got %s", c.DBDriver)
		}

		ctx := cmd.Context()
		db, err := source.OpenDB(ctx, c.DBDriver, c.DBDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		var procs []markers.Combination
		if c.UseProcedures && c.MarkerList != "" {
			list, err := markers.LoadList(c.MarkerList)
			if err != nil {
				return err
			}
			procs = list.Combinations
		}
		ds := dataSource{
			name: c.DBDriver,
			open: func(ctx context.Context) (source.Reader, error) {
				return source.NewSQLReader(ctx, db, source.SQLOptions{
					Driver:     c.DBDriver,
					Where:      c.QueryWhere,
					Procedures: procs,
					Logger:     appLogger(),
				})
			},
			dateRanges: func(ctx context.Context) (grouping.DateRanges, error) {
				return source.DateRanges(ctx, db, c.DBDriver, c.QueryWhere)
			},
			procedures: c.UseProcedures,
		}
		appLogger().Debug("database opened", zap.String("driver", c.DBDriver), zap.Bool("procedures", c.UseProcedures))
		sum, err := runPipeline(ctx, c, ds, cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("db run: %w", err)
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	addRunFlags(dbCmd)
	dbCmd.Flags().StringVar(&dbDriver, "driver", "", "database driver: sqlite, pgx or mysql (overrides db_driver)")
	dbCmd.Flags().StringVar(&dbDSN, "dsn", "", "database connection string (overrides db_dsn)")
	dbCmd.Flags().StringVar(&dbWhere, "where", "", "extra SQL condition appended to the genotype query (overrides query_where)")
	dbCmd.Flags().BoolVar(&dbProcedures, "procedures", false, "compute combinations with stored procedures (overrides use_procedures)")
}
