// Package api serves CityScore snapshots over a JSON REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/pipeline"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/refresh"
)

// Loader builds snapshots. *pipeline.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context, resourceID string) (*pipeline.Snapshot, error)
	Refresh(ctx context.Context, resourceID string) (*pipeline.Snapshot, error)
	Latest(resourceID string) (*pipeline.Snapshot, bool)
	Definitions() *cityscore.Definitions
}

// Server is the REST API server.
type Server struct {
	loader     Loader
	resourceID string
	router     *chi.Mux
	server     *http.Server
	logger     *slog.Logger

	metricsHandler http.Handler
	schedulerStats func() refresh.Stats
	requestTimeout time.Duration
}

// Option customises a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithSchedulerStats reports refresh scheduler state on the health endpoint.
func WithSchedulerStats(fn func() refresh.Stats) Option {
	return func(s *Server) { s.schedulerStats = fn }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// PaginationParams contains pagination parameters from query string.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps a paginated response with metadata.
type PaginatedResponse struct {
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// parsePaginationParams extracts pagination parameters from request.
// Defaults: limit=100, offset=0, max_limit=5000
func parsePaginationParams(r *http.Request) PaginationParams {
	const (
		defaultLimit = 100
		maxLimit     = 5000
	)

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return PaginationParams{Limit: limit, Offset: offset}
}

// paginateSlice applies pagination to a slice.
func paginateSlice[T any](items []T, params PaginationParams) PaginatedResponse {
	total := len(items)
	start := params.Offset
	if start >= total {
		return PaginatedResponse{Data: []T{}, Total: total, Limit: params.Limit, Offset: params.Offset}
	}
	end := min(start+params.Limit, total)

	return PaginatedResponse{
		Data:    items[start:end],
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: end < total,
	}
}

// NewServer creates a new API server for one datastore resource.
func NewServer(addr, resourceID string, loader Loader, opts ...Option) *Server {
	s := &Server{
		loader:         loader,
		resourceID:     resourceID,
		router:         chi.NewRouter(),
		requestTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.requestTimeout))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/scores/current", s.currentScores)
		r.Get("/observations", s.listObservations)

		r.Get("/metrics", s.listMetrics)
		r.Get("/metrics/{name}/history", s.metricHistory)

		r.Get("/summary", s.summary)
		r.Get("/quality", s.quality)
		r.Get("/export.csv", s.exportCSV)

		r.Post("/refresh", s.refresh)
	})

	if s.metricsHandler != nil {
		s.router.Handle("/metrics", s.metricsHandler)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// snapshot loads the current snapshot or writes a 503. Nothing from an
// earlier snapshot is served when the load fails.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*pipeline.Snapshot, bool) {
	snap, err := s.loader.Load(r.Context(), s.resourceID)
	if err != nil {
		s.unavailable(w, err)
		return nil, false
	}
	return snap, true
}

func (s *Server) unavailable(w http.ResponseWriter, err error) {
	s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error":  "data unavailable",
		"kind":   opendata.ErrorKind(err),
		"detail": err.Error(),
	})
}

// currentScores returns the latest snapshot of every metric.
func (s *Server) currentScores(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	defs := s.loader.Definitions()
	current := snap.Table.Current()
	scores := make([]CurrentScoreResponse, 0, len(current.Rows))
	for i := range current.Rows {
		row := &current.Rows[i]
		def, _ := defs.Lookup(row.MetricName)
		scores = append(scores, CurrentScoreResponse{
			ObservationResponse: newObservationResponse(row),
			MetricPretty:        defs.Pretty(row.MetricName),
			Trend:               def.Trend,
		})
	}

	s.respondJSON(w, http.StatusOK, CurrentResponse{
		SnapshotID: snap.ID.String(),
		FetchedAt:  snap.FetchedAt,
		Headline: BucketsResponse{
			Day:     nullDate(current.Headline.Day),
			Week:    nullDate(current.Headline.Week),
			Month:   nullDate(current.Headline.Month),
			Quarter: nullDate(current.Headline.Quarter),
			Year:    nullInt(current.Headline.Year),
		},
		Scores: scores,
	})
}

// listObservations returns filtered, sorted rows. Supports pagination via
// ?limit=N&offset=M query parameters.
func (s *Server) listObservations(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	rows, err := snap.Table.Select(q)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := make([]ObservationResponse, len(rows))
	for i := range rows {
		out[i] = newObservationResponse(&rows[i])
	}
	s.respondJSON(w, http.StatusOK, paginateSlice(out, parsePaginationParams(r)))
}

func parseQuery(v url.Values) (cityscore.Query, error) {
	var q cityscore.Query

	if latest := v.Get("latest"); latest != "" {
		b, err := strconv.ParseBool(latest)
		if err != nil {
			return q, fmt.Errorf("invalid latest %q", latest)
		}
		q.Latest = &b
	}
	q.Metrics = v["metric"]

	if start := v.Get("start"); start != "" {
		day, err := time.Parse("2006-01-02", start)
		if err != nil {
			return q, fmt.Errorf("invalid start %q (expected YYYY-MM-DD)", start)
		}
		q.PeriodStart = day
		q.Period = cityscore.PeriodDay
	}
	if period := v.Get("period"); period != "" {
		p, err := cityscore.ParsePeriod(period)
		if err != nil {
			return q, err
		}
		q.Period = p
	}

	if sortBy := v.Get("sort"); sortBy != "" {
		col, err := cityscore.ParseColumn(sortBy)
		if err != nil {
			return q, err
		}
		q.SortBy = col
	}
	switch order := v.Get("order"); order {
	case "", "asc":
	case "desc":
		q.Descending = true
	default:
		return q, fmt.Errorf("invalid order %q (expected asc or desc)", order)
	}
	return q, nil
}

// listMetrics returns every defined metric plus any undefined metric that
// appears in the data.
func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	present := make(map[string]bool)
	for _, name := range snap.Table.MetricNames() {
		present[name] = true
	}

	defs := s.loader.Definitions()
	out := make([]MetricResponse, 0, defs.Len())
	for _, d := range defs.All() {
		out = append(out, MetricResponse{Definition: d, Present: present[d.MetricName]})
		delete(present, d.MetricName)
	}
	for _, name := range snap.Table.MetricNames() {
		if present[name] {
			out = append(out, MetricResponse{
				Definition: cityscore.Definition{MetricName: name, MetricPretty: name},
				Present:    true,
			})
		}
	}
	s.respondJSON(w, http.StatusOK, out)
}

// metricHistory returns one metric's score series at ?period= (default day).
func (s *Server) metricHistory(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid metric name")
		return
	}

	period := cityscore.PeriodDay
	if v := r.URL.Query().Get("period"); v != "" {
		period, err = cityscore.ParsePeriod(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	points := snap.Table.History(name, period)
	if len(points) == 0 && !hasMetric(snap, name) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("metric %q not found", name))
		return
	}

	resp := HistoryResponse{
		MetricName:   name,
		MetricPretty: s.loader.Definitions().Pretty(name),
		Period:       period,
		Points:       make([]HistoryPointResponse, len(points)),
	}
	for i, p := range points {
		resp.Points[i] = HistoryPointResponse{Start: p.Start.Format("2006-01-02"), Score: p.Score}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func hasMetric(snap *pipeline.Snapshot, name string) bool {
	for _, m := range snap.Table.MetricNames() {
		if m == name {
			return true
		}
	}
	return false
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	defs := s.loader.Definitions()
	summaries := snap.Summary()
	out := make([]SummaryResponse, len(summaries))
	for i, m := range summaries {
		out[i] = SummaryResponse{
			MetricName:   m.MetricName,
			MetricPretty: defs.Pretty(m.MetricName),
			Rows:         m.Rows,
			FirstDay:     nullDate(m.FirstDay),
			LastDay:      nullDate(m.LastDay),
			Scores:       m.Scores,
		}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) quality(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, newQualityResponse(snap))
}

// exportCSV streams the full table as a CSV attachment.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	data, err := snap.CSV()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snap.CSVFilename()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write csv export", "error", err)
	}
}

// refresh rebuilds the snapshot from a fresh fetch.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loader.Refresh(r.Context(), s.resourceID)
	if err != nil {
		s.unavailable(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
