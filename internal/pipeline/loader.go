package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/aggregation"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/metrics"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/protocol"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/quality"
)

// Fetcher retrieves complete resources. *opendata.Client satisfies it.
type Fetcher interface {
	FetchResource(ctx context.Context, resourceID string) (*opendata.Resource, error)
	Refresh(ctx context.Context, resourceID string) (*opendata.Resource, error)
}

// Publisher receives lifecycle events. *queue.EventPublisher satisfies it.
type Publisher interface {
	PublishSnapshot(ctx context.Context, ev *protocol.SnapshotEvent) error
	PublishAlerts(ctx context.Context, alerts []*protocol.QualityAlert) error
}

// Archiver stores built snapshots. *database.Archive satisfies it.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, s *Snapshot) error
}

// Option customises a Loader.
type Option func(*Loader)

func WithDefinitions(d *cityscore.Definitions) Option {
	return func(l *Loader) { l.defs = d }
}

func WithTracker(t *quality.Tracker) Option {
	return func(l *Loader) { l.tracker = t }
}

func WithPublisher(p Publisher) Option {
	return func(l *Loader) { l.publisher = p }
}

func WithArchiver(a Archiver) Option {
	return func(l *Loader) { l.archiver = a }
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(l *Loader) { l.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.logger = log }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// Loader builds snapshots: fetch, normalize, derive buckets, check quality.
// A fetch or schema failure is returned as is; the loader never substitutes
// an older snapshot for a failed build.
type Loader struct {
	fetcher   Fetcher
	defs      *cityscore.Definitions
	tracker   *quality.Tracker
	publisher Publisher
	archiver  Archiver
	metrics   *metrics.Pipeline
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	latest map[string]*Snapshot
}

// NewLoader creates a Loader. Without WithDefinitions the embedded metric
// definitions are used.
func NewLoader(fetcher Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher: fetcher,
		now:     time.Now,
		latest:  make(map[string]*Snapshot),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.defs == nil {
		l.defs = cityscore.DefaultDefinitions()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Definitions returns the metric definitions the loader checks against.
func (l *Loader) Definitions() *cityscore.Definitions {
	return l.defs
}

// Load returns the snapshot for resourceID. When the fetcher serves the same
// resource as last time (a cache hit) the previous snapshot is reused.
func (l *Loader) Load(ctx context.Context, resourceID string) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.fetcher.FetchResource(ctx, resourceID)
	if err != nil {
		l.failed(ctx, resourceID, err)
		return nil, err
	}

	if prev, ok := l.latest[resourceID]; ok && prev.FetchedAt.Equal(res.FetchedAt) {
		return prev, nil
	}
	return l.build(ctx, res), nil
}

// Refresh rebuilds the snapshot from a fresh fetch, bypassing the cache.
func (l *Loader) Refresh(ctx context.Context, resourceID string) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.fetcher.Refresh(ctx, resourceID)
	if err != nil {
		l.failed(ctx, resourceID, err)
		return nil, err
	}
	return l.build(ctx, res), nil
}

// Latest returns the most recently built snapshot without fetching.
func (l *Loader) Latest(resourceID string) (*Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.latest[resourceID]
	return s, ok
}

func (l *Loader) build(ctx context.Context, res *opendata.Resource) *Snapshot {
	table, warnings := cityscore.Normalize(res)
	table = aggregation.Derive(table)
	report := quality.Check(table, warnings, l.defs)

	for _, w := range warnings {
		l.metrics.CoercionWarning(w.Field)
	}

	snap := &Snapshot{
		ID:         uuid.New(),
		ResourceID: res.ResourceID,
		FetchedAt:  res.FetchedAt,
		BuiltAt:    l.now(),
		Pages:      res.Pages,
		Table:      table,
		Report:     report,
	}
	l.latest[res.ResourceID] = snap
	l.metrics.SnapshotBuilt(table.Len(), res.FetchedAt, report.CountsByKind())

	l.logger.Info("built snapshot",
		"snapshot_id", snap.ID,
		"resource_id", snap.ResourceID,
		"records", table.Len(),
		"violations", len(report.Violations),
		"warnings", len(report.Warnings))

	l.publishSnapshot(ctx, snap)
	l.trackQuality(ctx, snap)
	l.archive(ctx, snap)
	return snap
}

func (l *Loader) publishSnapshot(ctx context.Context, s *Snapshot) {
	if l.publisher == nil {
		return
	}
	ev := &protocol.SnapshotEvent{
		Type:       protocol.EventSnapshotRefreshed,
		SnapshotID: s.ID.String(),
		ResourceID: s.ResourceID,
		FetchedAt:  s.FetchedAt,
		BuiltAt:    s.BuiltAt,
		Records:    s.Table.Len(),
		Metrics:    len(s.Table.MetricNames()),
		Quality:    s.Report.CountsByKind(),
	}
	if day := s.Table.MaxDay(); day.Valid {
		ev.LatestDay = day.Time.Format("2006-01-02")
	}
	if err := l.publisher.PublishSnapshot(ctx, ev); err != nil {
		l.logger.Error("failed to publish snapshot event", "resource_id", s.ResourceID, "error", err)
	}
}

func (l *Loader) trackQuality(ctx context.Context, s *Snapshot) {
	if l.tracker == nil {
		return
	}
	transitions, err := l.tracker.Observe(ctx, s.ResourceID, s.Report)
	if err != nil {
		l.logger.Error("failed to track quality", "resource_id", s.ResourceID, "error", err)
		return
	}
	if l.publisher == nil || len(transitions) == 0 {
		return
	}

	alerts := make([]*protocol.QualityAlert, 0, len(transitions))
	for _, tr := range transitions {
		alerts = append(alerts, AlertFromTransition(tr))
	}
	if err := l.publisher.PublishAlerts(ctx, alerts); err != nil {
		l.logger.Error("failed to publish quality alerts", "resource_id", s.ResourceID, "error", err)
	}
}

func (l *Loader) archive(ctx context.Context, s *Snapshot) {
	if l.archiver == nil {
		return
	}
	if err := l.archiver.ArchiveSnapshot(ctx, s); err != nil {
		l.logger.Error("failed to archive snapshot", "snapshot_id", s.ID, "error", err)
	}
}

func (l *Loader) failed(ctx context.Context, resourceID string, err error) {
	l.logger.Error("pipeline failed", "resource_id", resourceID, "kind", opendata.ErrorKind(err), "error", err)
	if l.publisher == nil {
		return
	}
	ev := &protocol.SnapshotEvent{
		Type:       protocol.EventPipelineFailed,
		ResourceID: resourceID,
		BuiltAt:    l.now(),
		ErrorKind:  opendata.ErrorKind(err),
		Error:      err.Error(),
	}
	if perr := l.publisher.PublishSnapshot(ctx, ev); perr != nil {
		l.logger.Error("failed to publish failure event", "resource_id", resourceID, "error", perr)
	}
}

// AlertFromTransition converts a quality transition to its wire form.
func AlertFromTransition(tr quality.Transition) *protocol.QualityAlert {
	typ := protocol.AlertOpened
	if tr.Type == quality.ViolationResolved {
		typ = protocol.AlertResolved
	}
	v := tr.Violation
	return &protocol.QualityAlert{
		Type:       typ,
		ResourceID: tr.ResourceID,
		Kind:       string(v.Kind),
		Severity:   string(v.Severity),
		Metric:     v.Metric,
		Subject:    v.Subject,
		RecordIDs:  v.RecordIDs,
		Detail:     v.Detail,
		OpenedAt:   tr.OpenedAt,
		At:         tr.At,
	}
}
