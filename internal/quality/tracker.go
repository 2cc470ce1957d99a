package quality

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// TransitionType is the change in a violation's state between two reports.
type TransitionType string

const (
	ViolationOpened   TransitionType = "VIOLATION_OPENED"
	ViolationResolved TransitionType = "VIOLATION_RESOLVED"
)

// Transition is emitted once when a violation first appears and once when it
// disappears.
type Transition struct {
	Type       TransitionType
	ResourceID string
	Violation  Violation
	OpenedAt   time.Time
	At         time.Time
}

// Tracker compares successive reports for a resource against the stored
// open violations.
type Tracker struct {
	store  StateStore
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(store StateStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger, now: time.Now}
}

// Observe records report as the current state of resourceID and returns the
// transitions it causes, opened first, each group ordered by key.
func (t *Tracker) Observe(ctx context.Context, resourceID string, report Report) ([]Transition, error) {
	open, err := t.store.List(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quality state: %w", err)
	}

	now := t.now()
	seen := make(map[string]bool, len(report.Violations))
	var opened, resolved []Transition

	for _, v := range report.Violations {
		key := v.Key()
		seen[key] = true

		state, ok := open[key]
		if !ok {
			state = &ViolationState{Violation: v, OpenedAt: now}
			opened = append(opened, Transition{
				Type: ViolationOpened, ResourceID: resourceID, Violation: v, OpenedAt: now, At: now,
			})
			t.logger.Warn("quality violation opened",
				"resource_id", resourceID, "kind", v.Kind, "metric", v.Metric, "detail", v.Detail)
		}
		state.Violation = v
		state.LastSeen = now
		if err := t.store.Set(ctx, resourceID, key, state); err != nil {
			return nil, err
		}
	}

	for key, state := range open {
		if seen[key] {
			continue
		}
		if err := t.store.Delete(ctx, resourceID, key); err != nil {
			return nil, fmt.Errorf("failed to delete quality state: %w", err)
		}
		resolved = append(resolved, Transition{
			Type: ViolationResolved, ResourceID: resourceID, Violation: state.Violation,
			OpenedAt: state.OpenedAt, At: now,
		})
		t.logger.Info("quality violation resolved",
			"resource_id", resourceID, "kind", state.Violation.Kind, "metric", state.Violation.Metric)
	}

	byKey := func(ts []Transition) {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Violation.Key() < ts[j].Violation.Key() })
	}
	byKey(opened)
	byKey(resolved)
	return append(opened, resolved...), nil
}
