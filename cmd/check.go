package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the marker list, age group and copy number group files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := effectiveConfig(cmd)
		if err != nil {
			return err
		}
		in, err := loadInputs(c)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		entries := in.list.Entries()
		procs := 0
		for _, cb := range in.list.Combinations {
			if cb.Procedure != "" {
				procs++
			}
		}
		fmt.Fprintf(out, "✓ Marker list: %d markers, %d categories, %d combinations (%d with procedures)\n",
			len(entries), len(in.list.Categories()), len(in.list.Combinations), procs)
		if c.AgeGroups != "" {
			fmt.Fprintf(out, "✓ Age groups: %v\n", grouping.Labels(in.ages))
		} else {
			fmt.Fprintln(out, "⚠ No age groups configured")
		}
		if c.CopyNumberGroups != "" {
			names := make([]string, 0, len(in.bins))
			for _, b := range in.bins {
				names = append(names, b.Name)
			}
			fmt.Fprintf(out, "✓ Copy number groups: %v\n", names)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	f := checkCmd.Flags()
	f.StringVarP(&runMarkerList, "marker-list", "m", "", "marker list file (overrides marker_list)")
	f.StringVarP(&runAgeGroups, "age-groups", "a", "", "age group file (overrides age_groups)")
	f.StringVarP(&runCopyNumberBins, "copy-number-groups", "c", "", "copy number group file (overrides copy_number_groups)")
}
