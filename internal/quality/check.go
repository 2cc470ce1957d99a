// Package quality detects data-quality problems in a CityScore table and
// tracks them across refreshes. Problems are reported, never repaired: the
// table is left exactly as the source delivered it.
package quality

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
)

// Kind classifies a violation.
type Kind string

const (
	KindDuplicateLatest      Kind = "duplicate_latest_flag"
	KindDuplicateObservation Kind = "duplicate_observation"
	KindMissingTimestamp     Kind = "missing_timestamp"
	KindUnknownMetric        Kind = "unknown_metric"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one detected problem. Subject narrows the problem within the
// metric, e.g. the duplicated timestamp.
type Violation struct {
	Kind      Kind     `json:"kind"`
	Severity  Severity `json:"severity"`
	Metric    string   `json:"metric"`
	Subject   string   `json:"subject,omitempty"`
	RecordIDs []int64  `json:"record_ids"`
	Detail    string   `json:"detail"`
}

// Key identifies the violation across refreshes.
func (v Violation) Key() string {
	parts := []string{string(v.Kind), v.Metric}
	if v.Subject != "" {
		parts = append(parts, v.Subject)
	}
	return strings.Join(parts, "|")
}

// Report is the outcome of Check.
type Report struct {
	Rows       int                      `json:"rows"`
	Violations []Violation              `json:"violations"`
	Warnings   []cityscore.FieldWarning `json:"warnings"`
}

// Count returns the number of violations of kind k.
func (r Report) Count(k Kind) int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == k {
			n++
		}
	}
	return n
}

// Clean reports whether nothing at all was found.
func (r Report) Clean() bool {
	return len(r.Violations) == 0 && len(r.Warnings) == 0
}

// CountsByKind returns violation counts keyed by kind, plus the coercion
// warning count under "field_coercion".
func (r Report) CountsByKind() map[string]int {
	counts := make(map[string]int)
	for _, v := range r.Violations {
		counts[string(v.Kind)]++
	}
	if len(r.Warnings) > 0 {
		counts["field_coercion"] = len(r.Warnings)
	}
	return counts
}

// Check inspects t. warnings are the normalizer's coercion warnings and are
// carried into the report unchanged. defs may be nil, in which case metric
// names are not checked.
func Check(t *cityscore.Table, warnings []cityscore.FieldWarning, defs *cityscore.Definitions) Report {
	rows := t.Rows()

	latest := make(map[string][]int64)
	observations := make(map[[2]string][]int64)
	missing := make(map[string][]int64)
	unknown := make(map[string][]int64)

	for _, r := range rows {
		if r.IsLatest() {
			latest[r.MetricName] = append(latest[r.MetricName], r.RecordID)
		}
		if r.ScoreCalculatedTS.Valid {
			k := [2]string{r.MetricName, r.ScoreCalculatedTS.Time.UTC().Format(time.RFC3339Nano)}
			observations[k] = append(observations[k], r.RecordID)
		} else {
			missing[r.MetricName] = append(missing[r.MetricName], r.RecordID)
		}
		if defs != nil {
			if _, ok := defs.Lookup(r.MetricName); !ok {
				unknown[r.MetricName] = append(unknown[r.MetricName], r.RecordID)
			}
		}
	}

	var out []Violation
	for metric, ids := range latest {
		if len(ids) > 1 {
			out = append(out, violation(KindDuplicateLatest, SeverityError, metric, "", ids,
				fmt.Sprintf("%d rows flagged latest", len(ids))))
		}
	}
	for k, ids := range observations {
		if len(ids) > 1 {
			out = append(out, violation(KindDuplicateObservation, SeverityError, k[0], k[1], ids,
				fmt.Sprintf("%d rows share score_calculated_ts %s", len(ids), k[1])))
		}
	}
	for metric, ids := range missing {
		out = append(out, violation(KindMissingTimestamp, SeverityError, metric, "", ids,
			fmt.Sprintf("%d rows without a usable score_calculated_ts", len(ids))))
	}
	for metric, ids := range unknown {
		out = append(out, violation(KindUnknownMetric, SeverityWarning, metric, "", ids,
			"metric has no definition"))
	}

	slices.SortFunc(out, func(a, b Violation) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Metric, b.Metric),
			cmp.Compare(a.Subject, b.Subject),
		)
	})

	return Report{
		Rows:       len(rows),
		Violations: out,
		Warnings:   slices.Clone(warnings),
	}
}

func violation(kind Kind, sev Severity, metric, subject string, ids []int64, detail string) Violation {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return Violation{
		Kind:      kind,
		Severity:  sev,
		Metric:    metric,
		Subject:   subject,
		RecordIDs: ids,
		Detail:    detail,
	}
}
