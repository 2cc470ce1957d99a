package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ExportCmd writes the full table as CSV.
func ExportCmd(env *Env) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every observation with its period buckets as CSV",
		Long: `Export every observation with its period buckets as CSV.

Without --out the file is named after the most recent day in the data,
for example boston_cityscore_2023-03-14.csv. Use --out - for stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, _, err := env.load(cmd.Context())
			if err != nil {
				return err
			}
			data, err := snap.CSV()
			if err != nil {
				return err
			}

			if outPath == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				outPath = snap.CSVFilename()
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", snap.Table.Len(), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (- for stdout)")
	return cmd
}
