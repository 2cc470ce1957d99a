package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/quality"
)

// ErrQualityViolations is returned by quality --strict when the report is not clean.
var ErrQualityViolations = errors.New("data quality violations found")

// SummaryCmd prints per-metric score statistics.
func SummaryCmd(env *Env) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show score statistics per metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cityscore.ParsePeriod(period)
			if err != nil {
				return err
			}
			snap, src, err := env.load(cmd.Context())
			if err != nil {
				return err
			}
			defs := src.Definitions()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "METRIC\tROWS\tFIRST\tLAST\tSCORED\tMIN\tMEAN\tMAX\n")
			for _, m := range snap.Summary() {
				stats := m.Scores[p]
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
					truncate(defs.Pretty(m.MetricName), 48),
					m.Rows,
					formatDate(m.FirstDay),
					formatDate(m.LastDay),
					stats.Count,
					formatScore(stats.Min),
					formatScore(stats.Mean),
					formatScore(stats.Max))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&period, "period", string(cityscore.PeriodDay), "score period: day, week, month or quarter")
	return cmd
}

// QualityCmd prints the data quality report.
func QualityCmd(env *Env) *cobra.Command {
	var strict, verbose bool

	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Show data quality violations and coercion warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, _, err := env.load(cmd.Context())
			if err != nil {
				return err
			}
			report := snap.Report
			out := cmd.OutOrStdout()

			if report.Clean() && len(report.Warnings) == 0 {
				fmt.Fprintf(out, "%s %d rows, no problems found\n", onTarget.Sprint("OK"), report.Rows)
				return nil
			}

			fmt.Fprintf(out, "%d rows, %d violations, %d warnings\n\n",
				report.Rows, len(report.Violations), len(report.Warnings))

			if len(report.Violations) > 0 {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SEVERITY\tKIND\tMETRIC\tRECORDS\tDETAIL")
				for _, v := range report.Violations {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						severity(v.Severity), v.Kind, v.Metric, recordIDs(v.RecordIDs, 5), v.Detail)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if len(report.Warnings) > 0 {
				fmt.Fprintf(out, "\n%s\n", heading.Sprint("Coercion warnings"))
				limit := len(report.Warnings)
				if !verbose {
					limit = min(limit, 10)
				}
				for _, warn := range report.Warnings[:limit] {
					fmt.Fprintf(out, "  %s\n", warn)
				}
				if limit < len(report.Warnings) {
					fmt.Fprintf(out, "  %s\n", unknown.Sprintf("... %d more (use --verbose)", len(report.Warnings)-limit))
				}
			}

			if strict && !report.Clean() {
				return ErrQualityViolations
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when violations are found")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every coercion warning")
	return cmd
}

func severity(s quality.Severity) string {
	if s == quality.SeverityError {
		return belowTarget.Sprint(string(s))
	}
	return string(s)
}

func recordIDs(ids []int64, limit int) string {
	parts := make([]string, 0, min(len(ids), limit)+1)
	for i, id := range ids {
		if i == limit {
			parts = append(parts, fmt.Sprintf("+%d", len(ids)-limit))
			break
		}
		parts = append(parts, fmt.Sprint(id))
	}
	return strings.Join(parts, ",")
}

// HistoryCmd prints one metric's score series.
func HistoryCmd(env *Env) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "history <metric>",
		Short: "Show the score history of one metric",
		Long: `Show the score history of one metric at the given period.

The metric may be given by code (BFD RESPONSE TIME) or display name
(Boston Fire Response Time).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cityscore.ParsePeriod(period)
			if err != nil {
				return err
			}
			snap, src, err := env.load(cmd.Context())
			if err != nil {
				return err
			}

			name := args[0]
			if def, ok := src.Definitions().ByPretty(name); ok {
				name = def.MetricName
			}

			points := snap.Table.History(name, p)
			if len(points) == 0 {
				return fmt.Errorf("no %s history for metric %q", p, args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", heading.Sprint(src.Definitions().Pretty(name)), p)
			for _, pt := range points {
				fmt.Fprintf(out, "  %s  %s\n", pt.Start.Format("2006-01-02"), formatScore(pt.Score))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&period, "period", string(cityscore.PeriodDay), "score period: day, week, month or quarter")
	return cmd
}
