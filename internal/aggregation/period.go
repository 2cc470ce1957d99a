// Package aggregation derives calendar buckets for CityScore observations and
// summarises their scores per metric.
package aggregation

import (
	"database/sql"
	"time"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
)

// DerivePeriods computes the bucket starts for one score_calculated_ts.
//
// A score calculated on day D describes the last completed period, so:
//   - day is the calendar date of ts minus one day
//   - week is the Sunday-start week containing day, minus one week
//   - month is the first day of the month before day's month
//   - quarter is the first day of the quarter before day's quarter
//   - year is the calendar year of day
//
// Dates are computed in ts's own location. An unknown ts yields unknown
// buckets.
func DerivePeriods(ts sql.NullTime) cityscore.Buckets {
	if !ts.Valid {
		return cityscore.Buckets{}
	}

	loc := ts.Time.Location()
	y, m, d := ts.Time.Date()
	day := time.Date(y, m, d-1, 0, 0, 0, 0, loc)

	y, m, d = day.Date()
	weekStart := time.Date(y, m, d-int(day.Weekday())-7, 0, 0, 0, 0, loc)
	monthStart := time.Date(y, m-1, 1, 0, 0, 0, 0, loc)
	quarterMonth := m - (m-1)%3
	quarterStart := time.Date(y, quarterMonth-3, 1, 0, 0, 0, 0, loc)

	return cityscore.Buckets{
		Day:     valid(day),
		Week:    valid(weekStart),
		Month:   valid(monthStart),
		Quarter: valid(quarterStart),
		Year:    sql.NullInt32{Int32: int32(y), Valid: true},
	}
}

// Derive returns a copy of t with every row's buckets recomputed. t is not
// modified.
func Derive(t *cityscore.Table) *cityscore.Table {
	return t.WithBuckets(DerivePeriods)
}

func valid(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
