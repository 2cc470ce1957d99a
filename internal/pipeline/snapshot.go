// Package pipeline turns a fetched datastore resource into an immutable
// CityScore snapshot and fans it out to the optional sinks.
package pipeline

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/aggregation"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/quality"
)

// Snapshot is one fully built table with its quality report. It is never
// modified after construction and may be shared between goroutines.
type Snapshot struct {
	ID         uuid.UUID
	ResourceID string
	FetchedAt  time.Time
	BuiltAt    time.Time
	Pages      int
	Table      *cityscore.Table
	Report     quality.Report

	csvOnce sync.Once
	csv     []byte
	csvErr  error

	summaryOnce sync.Once
	summary     []aggregation.MetricSummary
}

// CSV returns the CSV export, rendering it on first use.
func (s *Snapshot) CSV() ([]byte, error) {
	s.csvOnce.Do(func() {
		var buf bytes.Buffer
		if err := s.Table.WriteCSV(&buf); err != nil {
			s.csvErr = fmt.Errorf("failed to render csv: %w", err)
			return
		}
		s.csv = buf.Bytes()
	})
	if s.csvErr != nil {
		return nil, s.csvErr
	}
	return bytes.Clone(s.csv), nil
}

// CSVFilename names the export after the most recent day in the table.
func (s *Snapshot) CSVFilename() string {
	day := s.Table.MaxDay()
	if !day.Valid {
		return "boston_cityscore.csv"
	}
	return fmt.Sprintf("boston_cityscore_%s.csv", day.Time.Format("2006-01-02"))
}

// Summary returns the per-metric summary, computing it on first use. The
// result is shared; callers must not modify it.
func (s *Snapshot) Summary() []aggregation.MetricSummary {
	s.summaryOnce.Do(func() {
		s.summary = aggregation.Summarize(s.Table)
	})
	return s.summary
}
