package api

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/aggregation"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/pipeline"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/quality"
)

// Unknown values are encoded as JSON null throughout.

type MeasureResponse struct {
	Score       decimal.NullDecimal `json:"score"`
	Numerator   decimal.NullDecimal `json:"numerator"`
	Denominator decimal.NullDecimal `json:"denominator"`
}

type BucketsResponse struct {
	Day     *string `json:"day"`
	Week    *string `json:"week"`
	Month   *string `json:"month"`
	Quarter *string `json:"quarter"`
	Year    *int32  `json:"year"`
}

// ObservationResponse is the wire form of one table row.
type ObservationResponse struct {
	RecordID          int64                                `json:"_id"`
	MetricName        string                               `json:"metric_name"`
	MetricLogic       *string                              `json:"metric_logic"`
	Target            decimal.NullDecimal                  `json:"target"`
	ScoreCalculatedTS *time.Time                           `json:"score_calculated_ts"`
	LatestScoreFlag   *bool                                `json:"latest_score_flag"`
	Measures          map[cityscore.Period]MeasureResponse `json:"measures"`
	Buckets           BucketsResponse                      `json:"buckets"`
	Extra             map[string]string                    `json:"extra,omitempty"`
}

func newObservationResponse(o *cityscore.Observation) ObservationResponse {
	resp := ObservationResponse{
		RecordID:        o.RecordID,
		MetricName:      o.MetricName,
		Target:          o.Target,
		LatestScoreFlag: nullBool(o.LatestScoreFlag),
		Measures:        make(map[cityscore.Period]MeasureResponse, len(cityscore.Periods)),
		Buckets: BucketsResponse{
			Day:     nullDate(o.Buckets.Day),
			Week:    nullDate(o.Buckets.Week),
			Month:   nullDate(o.Buckets.Month),
			Quarter: nullDate(o.Buckets.Quarter),
			Year:    nullInt(o.Buckets.Year),
		},
		Extra: o.Extra,
	}
	if o.MetricLogic != "" {
		logic := o.MetricLogic
		resp.MetricLogic = &logic
	}
	if o.ScoreCalculatedTS.Valid {
		ts := o.ScoreCalculatedTS.Time
		resp.ScoreCalculatedTS = &ts
	}
	for _, p := range cityscore.Periods {
		m := o.Measure(p)
		resp.Measures[p] = MeasureResponse{Score: m.Score, Numerator: m.Numerator, Denominator: m.Denominator}
	}
	return resp
}

type CurrentScoreResponse struct {
	ObservationResponse
	MetricPretty string `json:"metric_pretty"`
	Trend        bool   `json:"trend"`
}

type CurrentResponse struct {
	SnapshotID string                 `json:"snapshot_id"`
	FetchedAt  time.Time              `json:"fetched_at"`
	Headline   BucketsResponse        `json:"headline"`
	Scores     []CurrentScoreResponse `json:"scores"`
}

type MetricResponse struct {
	cityscore.Definition
	Present bool `json:"present"`
}

type HistoryPointResponse struct {
	Start string              `json:"start"`
	Score decimal.NullDecimal `json:"score"`
}

type HistoryResponse struct {
	MetricName   string                 `json:"metric_name"`
	MetricPretty string                 `json:"metric_pretty"`
	Period       cityscore.Period       `json:"period"`
	Points       []HistoryPointResponse `json:"points"`
}

type SummaryResponse struct {
	MetricName   string                                      `json:"metric_name"`
	MetricPretty string                                      `json:"metric_pretty"`
	Rows         int                                         `json:"rows"`
	FirstDay     *string                                     `json:"first_day"`
	LastDay      *string                                     `json:"last_day"`
	Scores       map[cityscore.Period]aggregation.ScoreStats `json:"scores"`
}

// SnapshotResponse describes a built snapshot without its rows.
type SnapshotResponse struct {
	SnapshotID string    `json:"snapshot_id"`
	ResourceID string    `json:"resource_id"`
	FetchedAt  time.Time `json:"fetched_at"`
	BuiltAt    time.Time `json:"built_at"`
	Pages      int       `json:"pages"`
	Records    int       `json:"records"`
	Metrics    int       `json:"metrics"`
	LatestDay  *string   `json:"latest_day"`
}

func newSnapshotResponse(s *pipeline.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		SnapshotID: s.ID.String(),
		ResourceID: s.ResourceID,
		FetchedAt:  s.FetchedAt,
		BuiltAt:    s.BuiltAt,
		Pages:      s.Pages,
		Records:    s.Table.Len(),
		Metrics:    len(s.Table.MetricNames()),
		LatestDay:  nullDate(s.Table.MaxDay()),
	}
}

type QualityResponse struct {
	SnapshotID string                   `json:"snapshot_id"`
	Clean      bool                     `json:"clean"`
	Counts     map[string]int           `json:"counts"`
	Rows       int                      `json:"rows"`
	Violations []quality.Violation      `json:"violations"`
	Warnings   []cityscore.FieldWarning `json:"warnings"`
}

func newQualityResponse(s *pipeline.Snapshot) QualityResponse {
	resp := QualityResponse{
		SnapshotID: s.ID.String(),
		Clean:      s.Report.Clean(),
		Counts:     s.Report.CountsByKind(),
		Rows:       s.Report.Rows,
		Violations: s.Report.Violations,
		Warnings:   s.Report.Warnings,
	}
	if resp.Violations == nil {
		resp.Violations = []quality.Violation{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []cityscore.FieldWarning{}
	}
	return resp
}

func nullDate(t sql.NullTime) *string {
	if !t.Valid {
		return nil
	}
	s := t.Time.Format("2006-01-02")
	return &s
}

func nullInt(n sql.NullInt32) *int32 {
	if !n.Valid {
		return nil
	}
	v := n.Int32
	return &v
}

func nullBool(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}
