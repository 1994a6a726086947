package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/config"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/money"
)

func newBaselineCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Print the effective cost baseline version and unit rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("baseline") {
				cfg.BaselineFile = file
			}
			return runBaseline(cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&file, "baseline", "", "YAML cost baseline (default: embedded table)")
	return cmd
}

func runBaseline(cfg config.Config, w io.Writer) error {
	t, err := cfg.ResolveBaseline()
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	fmt.Fprintf(w, "Cost baseline %s\n\n", t.Version())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRADE\tUNIT\tMATERIAL\tMIN\tMAX")
	for _, r := range t.Rates() {
		material := r.Material
		if material == "" {
			material = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Trade, r.Unit, material, money.Format(r.Min), money.Format(r.Max))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("baseline: write: %w", err)
	}
	return nil
}
