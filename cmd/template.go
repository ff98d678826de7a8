package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/source"
)

var tplMarkerStart int

var templateCmd = &cobra.Command{
	Use:   "template <file>",
	Short: "Compute prevalence statistics from a tab separated template file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := effectiveConfig(cmd)
		if err != nil {
			return err
		}
		path := args[0]
		opt := source.TemplateOptions{MarkerStart: tplMarkerStart}
		ds := dataSource{
			name: path,
			open: func(context.Context) (source.Reader, error) {
				return source.OpenTemplate(path, opt)
			},
			dateRanges: func(context.Context) (grouping.DateRanges, error) {
				return source.ScanDateRanges(path, opt)
			},
		}
		sum, err := runPipeline(cmd.Context(), c, ds, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)
	addRunFlags(templateCmd)
	templateCmd.Flags().IntVar(&tplMarkerStart, "marker-start", 0, "zero based index of the first marker column (0 = after the metadata columns)")
}
