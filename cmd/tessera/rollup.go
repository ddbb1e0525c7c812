package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tesseradb/tessera/rollup"
)

func rollupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Inspect rollup catalogs",
	}
	cmd.AddCommand(rollupLintCommand())
	return cmd
}

func rollupLintCommand() *cobra.Command {
	var interval int64

	cmd := &cobra.Command{
		Use:   "lint <catalog.yaml>",
		Short: "Validate a rollup catalog and show the tier order for a granularity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := rollup.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "intervals (coarsest first):")
			for _, iv := range rc.Intervals() {
				def := ""
				if iv.Default {
					def = "  (default)"
				}
				fmt.Fprintf(out, "  %-8s %6ds  span=%-6s table=%s%s\n",
					iv.Name, iv.Seconds, iv.Span, iv.Table, def)
			}

			if interval > 0 {
				fmt.Fprintf(out, "tiers for a %ds query:\n", interval)
				ivs := rc.GetRollupIntervals(interval, false)
				if len(ivs) == 0 {
					fmt.Fprintln(out, "  (none; raw data only)")
				}
				for _, iv := range ivs {
					fmt.Fprintf(out, "  %s\n", iv.Name)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&interval, "interval", 0, "show the tier order for this granularity in seconds")
	return cmd
}
