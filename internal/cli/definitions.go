package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// DefinitionsCmd lists the static metric definitions. It never fetches.
func DefinitionsCmd(env *Env) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "definitions",
		Short: "List the metric definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := env.NewSource()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if long {
				for _, d := range src.Definitions().All() {
					fmt.Fprintf(out, "%s (%s)\n  %s\n\n", heading.Sprint(d.MetricPretty), d.MetricName, d.MetricDescription)
				}
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tTREND")
			for _, d := range src.Definitions().All() {
				trend := ""
				if d.Trend {
					trend = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.MetricName, d.MetricPretty, trend)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "include descriptions")
	return cmd
}
