package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/metrics"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/pipeline"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/refresh"
)

const testResource = "res"

type fakeFetcher struct {
	res       *opendata.Resource
	err       error
	refreshes int
}

func (f *fakeFetcher) FetchResource(context.Context, string) (*opendata.Resource, error) {
	return f.res, f.err
}

func (f *fakeFetcher) Refresh(context.Context, string) (*opendata.Resource, error) {
	f.refreshes++
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.FetchedAt = res.FetchedAt.Add(time.Minute)
	f.res = &res
	return f.res, nil
}

func rec(id int, metric, score, ts, latest string) opendata.Record {
	r := opendata.Record{
		"_id":                 json.Number(strconv.Itoa(id)),
		"metric_name":         metric,
		"score_calculated_ts": ts,
		"latest_score_flag":   json.Number(latest),
	}
	if score == "" {
		r["day_score"] = ""
	} else {
		r["day_score"] = json.Number(score)
	}
	return r
}

func testData() *opendata.Resource {
	return &opendata.Resource{
		ResourceID: testResource,
		Fields:     []string{"_id", "metric_name", "day_score", "score_calculated_ts", "latest_score_flag"},
		Records: []opendata.Record{
			rec(1, "BFD RESPONSE TIME", "0.95", "2023-03-15T08:00:00Z", "1"),
			rec(2, "BFD RESPONSE TIME", "0.90", "2023-03-14T08:00:00Z", "0"),
			rec(3, "BPS ATTENDANCE", "", "2023-03-15T08:00:00Z", "1"),
			rec(4, "UNKNOWN METRIC X", "1.2", "2023-03-15T08:00:00Z", "1"),
		},
		Pages:     1,
		FetchedAt: time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, fetcher *fakeFetcher, opts ...Option) *Server {
	t.Helper()
	loader := pipeline.NewLoader(fetcher)
	return NewServer(":0", testResource, loader, opts...)
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestCurrentScores(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	rr := do(t, s, http.MethodGet, "/api/v1/scores/current")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[CurrentResponse](t, rr)
	require.Len(t, resp.Scores, 3)
	assert.Equal(t, "BFD RESPONSE TIME", resp.Scores[0].MetricName)
	assert.Equal(t, "Boston Fire Response Time", resp.Scores[0].MetricPretty)
	assert.Equal(t, "0.95", resp.Scores[0].Measures["day"].Score.Decimal.String())
	assert.Equal(t, "BPS ATTENDANCE", resp.Scores[1].MetricName)
	assert.False(t, resp.Scores[1].Measures["day"].Score.Valid)
	assert.Equal(t, "UNKNOWN METRIC X", resp.Scores[2].MetricPretty)

	require.NotNil(t, resp.Headline.Day)
	assert.Equal(t, "2023-03-14", *resp.Headline.Day)
	require.NotNil(t, resp.Headline.Week)
	assert.Equal(t, "2023-03-05", *resp.Headline.Week)
}

func TestListObservations_SortAndFilter(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	ids := func(rr *httptest.ResponseRecorder) []int64 {
		var page struct {
			Data    []ObservationResponse `json:"data"`
			Total   int                   `json:"total"`
			HasMore bool                  `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
		out := make([]int64, len(page.Data))
		for i, o := range page.Data {
			out[i] = o.RecordID
		}
		return out
	}

	rr := do(t, s, http.MethodGet, "/api/v1/observations?sort=day_score&order=desc")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []int64{4, 1, 2, 3}, ids(rr))

	rr = do(t, s, http.MethodGet, "/api/v1/observations?sort=day_score")
	assert.Equal(t, []int64{2, 1, 4, 3}, ids(rr))

	rr = do(t, s, http.MethodGet, "/api/v1/observations?latest=false")
	assert.Equal(t, []int64{2}, ids(rr))

	rr = do(t, s, http.MethodGet, "/api/v1/observations?metric=BFD+RESPONSE+TIME&metric=BPS+ATTENDANCE")
	assert.Equal(t, []int64{1, 2, 3}, ids(rr))

	rr = do(t, s, http.MethodGet, "/api/v1/observations?period=day&start=2023-03-13")
	assert.Equal(t, []int64{2}, ids(rr))
}

func TestListObservations_Pagination(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	rr := do(t, s, http.MethodGet, "/api/v1/observations?limit=2&offset=1")
	require.Equal(t, http.StatusOK, rr.Code)

	var page struct {
		Data    []ObservationResponse `json:"data"`
		Total   int                   `json:"total"`
		HasMore bool                  `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 4, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Data, 2)
	assert.Equal(t, int64(2), page.Data[0].RecordID)

	rr = do(t, s, http.MethodGet, "/api/v1/observations?offset=10")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Empty(t, page.Data)
	assert.False(t, page.HasMore)
}

func TestListObservations_BadParameters(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	for _, target := range []string{
		"/api/v1/observations?sort=nope",
		"/api/v1/observations?order=sideways",
		"/api/v1/observations?latest=maybe",
		"/api/v1/observations?period=decade&start=2023-03-13",
		"/api/v1/observations?start=13/03/2023",
	} {
		rr := do(t, s, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestMetricHistory(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	rr := do(t, s, http.MethodGet, "/api/v1/metrics/BFD%20RESPONSE%20TIME/history?period=day")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[HistoryResponse](t, rr)
	assert.Equal(t, "BFD RESPONSE TIME", resp.MetricName)
	require.Len(t, resp.Points, 2)
	assert.Equal(t, "2023-03-13", resp.Points[0].Start)
	assert.Equal(t, "0.9", resp.Points[0].Score.Decimal.String())
	assert.Equal(t, "2023-03-14", resp.Points[1].Start)

	rr = do(t, s, http.MethodGet, "/api/v1/metrics/NOPE/history")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodGet, "/api/v1/metrics/BPS%20ATTENDANCE/history?period=year")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListMetrics(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	rr := do(t, s, http.MethodGet, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[[]MetricResponse](t, rr)
	require.NotEmpty(t, resp)

	byName := make(map[string]MetricResponse, len(resp))
	for _, m := range resp {
		byName[m.MetricName] = m
	}
	assert.True(t, byName["BFD RESPONSE TIME"].Present)
	assert.False(t, byName["311 CALL CENTER PERFORMANCE"].Present)
	assert.True(t, byName["UNKNOWN METRIC X"].Present)
	assert.Equal(t, "UNKNOWN METRIC X", resp[len(resp)-1].MetricName)
}

func TestSummaryAndQuality(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	rr := do(t, s, http.MethodGet, "/api/v1/summary")
	require.Equal(t, http.StatusOK, rr.Code)
	summaries := decode[[]SummaryResponse](t, rr)
	require.Len(t, summaries, 3)
	assert.Equal(t, 2, summaries[0].Rows)
	assert.Equal(t, "0.925", summaries[0].Scores["day"].Mean.Decimal.String())
	require.NotNil(t, summaries[0].FirstDay)
	assert.Equal(t, "2023-03-13", *summaries[0].FirstDay)

	rr = do(t, s, http.MethodGet, "/api/v1/quality")
	require.Equal(t, http.StatusOK, rr.Code)
	q := decode[QualityResponse](t, rr)
	assert.False(t, q.Clean)
	assert.Equal(t, 1, q.Counts["unknown_metric"])
	assert.Equal(t, 4, q.Rows)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()})

	rr := do(t, s, http.MethodGet, "/api/v1/export.csv")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="boston_cityscore_2023-03-14.csv"`, rr.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "_id,metric_name,day_score,score_calculated_ts,latest_score_flag,day,week,month,quarter,year", lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "3,BPS ATTENDANCE,,"))
}

func TestPipelineFailureIs503(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{err: &opendata.FetchError{URL: "http://x", Err: errors.New("connection refused")}})

	for _, target := range []string{
		"/api/v1/scores/current",
		"/api/v1/observations",
		"/api/v1/export.csv",
		"/api/v1/summary",
	} {
		rr := do(t, s, http.MethodGet, target)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code, target)
		body := decode[map[string]string](t, rr)
		assert.Equal(t, "data unavailable", body["error"])
		assert.Equal(t, "fetch", body["kind"])
		assert.Contains(t, body["detail"], "connection refused")
	}

	rr := do(t, s, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRefresh(t *testing.T) {
	fetcher := &fakeFetcher{res: testData()}
	s := newTestServer(t, fetcher)

	rr := do(t, s, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, fetcher.refreshes)

	resp := decode[SnapshotResponse](t, rr)
	assert.Equal(t, 4, resp.Records)
	assert.Equal(t, 3, resp.Metrics)
	require.NotNil(t, resp.LatestDay)
	assert.Equal(t, "2023-03-14", *resp.LatestDay)

	rr = do(t, s, http.MethodGet, "/api/v1/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{res: testData()},
		WithSchedulerStats(func() refresh.Stats { return refresh.Stats{ScheduledJobs: 1, Workers: 1} }))

	rr := do(t, s, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rr.Code)
	health := decode[HealthResponse](t, rr)
	assert.Equal(t, "starting", health.Status)
	assert.Nil(t, health.Snapshot)
	require.NotNil(t, health.Scheduler)
	assert.Equal(t, 1, health.Scheduler.ScheduledJobs)

	do(t, s, http.MethodGet, "/api/v1/scores/current")

	rr = do(t, s, http.MethodGet, "/api/v1/health")
	health = decode[HealthResponse](t, rr)
	assert.Equal(t, "ok", health.Status)
	require.NotNil(t, health.Snapshot)
	assert.Equal(t, testResource, health.Snapshot.ResourceID)
}

func TestPrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPipeline(reg)
	require.NoError(t, err)

	loader := pipeline.NewLoader(&fakeFetcher{res: testData()}, pipeline.WithMetrics(m))
	s := NewServer(":0", testResource, loader,
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	do(t, s, http.MethodGet, "/api/v1/scores/current")

	rr := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cityscore_snapshot_records 4")
}
