package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List routes and plans in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := g.load(ctx)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROUTE\tURL\tMETHODS\tSCENARIOS\tGROUPS")
			for _, name := range e.catalog.RouteNames() {
				r := e.routes[name]
				var groups []string
				for grp, scenarios := range r.Groups() {
					groups = append(groups, grp+"("+strings.Join(scenarios, ",")+")")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					name,
					r.BaseURL()+r.Endpoint(),
					dash(r.Methods()),
					dash(r.ScenarioNames()),
					dash(sorted(groups)),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(e.catalog.Plans) == 0 {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout())
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLAN\tSTEPS\tDESCRIPTION")
			for _, name := range e.catalog.PlanNames() {
				p := e.catalog.Plans[name]
				fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(p.Steps), p.Description)
			}
			return w.Flush()
		},
	}
}

func dash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func sorted(s []string) []string {
	slices.Sort(s)
	return s
}
