// Package cli implements the cityscore command line tool.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/pipeline"
)

// Source builds snapshots. *pipeline.Loader satisfies it.
type Source interface {
	Load(ctx context.Context, resourceID string) (*pipeline.Snapshot, error)
	Definitions() *cityscore.Definitions
}

// Env carries what every command needs. NewSource is called lazily so that
// commands which never fetch, such as definitions, work offline.
type Env struct {
	ResourceID string
	NewSource  func() (Source, error)
}

// NewRootCmd assembles the command tree.
func NewRootCmd(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "cityscore",
		Short: "Boston CityScore reporting",
		Long: `cityscore fetches the Boston CityScore full-metrics resource from the
open data portal, derives day/week/month/quarter/year buckets for each
observation, and reports on the result.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&env.ResourceID, "resource", env.ResourceID, "datastore resource id")

	root.AddCommand(CurrentCmd(env))
	root.AddCommand(SummaryCmd(env))
	root.AddCommand(QualityCmd(env))
	root.AddCommand(HistoryCmd(env))
	root.AddCommand(ExportCmd(env))
	root.AddCommand(DefinitionsCmd(env))
	return root
}

func (e *Env) load(ctx context.Context) (*pipeline.Snapshot, Source, error) {
	src, err := e.NewSource()
	if err != nil {
		return nil, nil, err
	}
	snap, err := src.Load(ctx, e.ResourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cityscore data: %w", err)
	}
	return snap, src, nil
}

var (
	belowTarget = color.New(color.FgRed)
	onTarget    = color.New(color.FgGreen)
	unknown     = color.New(color.Faint)
	heading     = color.New(color.Bold)
)

// formatScore renders a score to two places; below 1 is red, unknown is dimmed.
func formatScore(s decimal.NullDecimal) string {
	if !s.Valid {
		return unknown.Sprint("-")
	}
	text := s.Decimal.StringFixed(2)
	if s.Decimal.LessThan(decimal.NewFromInt(1)) {
		return belowTarget.Sprint(text)
	}
	return onTarget.Sprint(text)
}

func formatDate(t sql.NullTime) string {
	if !t.Valid {
		return unknown.Sprint("-")
	}
	return t.Time.Format("2006-01-02")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}
