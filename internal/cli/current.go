package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
)

// CurrentCmd prints the latest score of every metric.
func CurrentCmd(env *Env) *cobra.Command {
	var codes bool

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the latest score of every metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, src, err := env.load(cmd.Context())
			if err != nil {
				return err
			}
			defs := src.Definitions()
			current := snap.Table.Current()
			out := cmd.OutOrStdout()

			h := current.Headline
			fmt.Fprintf(out, "%s  day %s  week of %s  month of %s  quarter of %s\n\n",
				heading.Sprint("CityScore"),
				formatDate(h.Day), formatDate(h.Week), formatDate(h.Month), formatDate(h.Quarter))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "METRIC\tDAY\tWEEK\tMONTH\tQUARTER")
			for i := range current.Rows {
				row := &current.Rows[i]
				name := row.MetricName
				if !codes {
					name = defs.Pretty(name)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					truncate(name, 48),
					formatScore(row.Measure(cityscore.PeriodDay).Score),
					formatScore(row.Measure(cityscore.PeriodWeek).Score),
					formatScore(row.Measure(cityscore.PeriodMonth).Score),
					formatScore(row.Measure(cityscore.PeriodQuarter).Score))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%d latest rows, fetched %s\n", len(current.Rows), snap.FetchedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&codes, "codes", false, "show metric codes instead of display names")
	return cmd
}
