/*
Package views manages the derived per-level rollup tables and their export.

PURPOSE:
  The fact table answers any question but pays the aggregation cost on
  every read. Each aggregation level gets a derived table holding the
  pre-summed (scenario, time step, location, from, to) totals; reads that
  tolerate slight staleness hit those instead.

FRESHNESS:
  The manager tracks a coarse state per level: Stale (never built, or
  facts changed underneath), Rebuilding (a build or refresh is running),
  Fresh (rebuilt since the last fact mutation). Derived tables are caches;
  any inconsistency is repaired by rebuilding, so the states exist for
  operator visibility, not correctness.

REBUILD STRATEGIES:
  Build drops and recreates a level's table from scratch. Refresh scopes
  the rewrite to one scenario (delete-and-reinsert in a transaction),
  which is what an ensemble recreate needs: every other scenario's rows
  are untouched.
*/
package views

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/observability"
	"github.com/landshift/transition-engine/store/sqlite"
)

// State is a level's coarse freshness.
type State string

const (
	StateStale      State = "stale"
	StateRebuilding State = "rebuilding"
	StateFresh      State = "fresh"
)

// Manager coordinates build and refresh of the derived tables.
type Manager struct {
	store   *sqlite.Store
	log     *zap.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	states map[landuse.Level]State
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a logger; default is nop.
func WithLogger(log *zap.Logger) Option { return func(m *Manager) { m.log = log } }

// WithMetrics attaches refresh instrumentation.
func WithMetrics(mx *observability.Metrics) Option { return func(m *Manager) { m.metrics = mx } }

// NewManager creates a Manager. Every level starts Stale until the first
// build observes an existing table.
func NewManager(store *sqlite.Store, opts ...Option) *Manager {
	m := &Manager{store: store, log: zap.NewNop(), states: map[landuse.Level]State{}}
	for _, lvl := range landuse.Levels() {
		m.states[lvl] = StateStale
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports a level's current freshness.
func (m *Manager) State(level landuse.Level) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[level]
}

// MarkStale flags levels whose backing facts changed. Pass no levels to
// flag all of them (a new scenario touches every rollup).
func (m *Manager) MarkStale(levels ...landuse.Level) {
	if len(levels) == 0 {
		levels = landuse.Levels()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lvl := range levels {
		if m.states[lvl] != StateRebuilding {
			m.states[lvl] = StateStale
		}
	}
}

func (m *Manager) setState(level landuse.Level, s State) {
	m.mu.Lock()
	m.states[level] = s
	m.mu.Unlock()
}

// Build drops and recreates one level's derived table from the facts.
func (m *Manager) Build(ctx context.Context, level landuse.Level) error {
	started := time.Now()
	m.setState(level, StateRebuilding)
	if err := m.store.BuildView(ctx, level); err != nil {
		m.setState(level, StateStale)
		return err
	}
	m.setState(level, StateFresh)
	if m.metrics != nil {
		m.metrics.ViewRefreshes.WithLabelValues(string(level), "all").Inc()
		m.metrics.ViewRefreshDuration.Observe(time.Since(started).Seconds())
	}
	m.log.Info("derived table rebuilt",
		zap.String("level", string(level)),
		zap.Duration("took", time.Since(started)))
	return nil
}

// BuildAll rebuilds every level, coarsest first.
func (m *Manager) BuildAll(ctx context.Context) error {
	for _, lvl := range landuse.Levels() {
		if err := m.Build(ctx, lvl); err != nil {
			return err
		}
	}
	return nil
}

// RefreshScenario rewrites one scenario's rows in one level's derived
// table. The table must already exist; a missing table needs Build.
func (m *Manager) RefreshScenario(ctx context.Context, level landuse.Level, scenarioID int64) error {
	started := time.Now()
	m.setState(level, StateRebuilding)
	if err := m.store.RefreshViewScenario(ctx, level, scenarioID); err != nil {
		m.setState(level, StateStale)
		return err
	}
	m.setState(level, StateFresh)
	if m.metrics != nil {
		m.metrics.ViewRefreshes.WithLabelValues(string(level), "scenario").Inc()
		m.metrics.ViewRefreshDuration.Observe(time.Since(started).Seconds())
	}
	m.log.Info("derived table refreshed",
		zap.String("level", string(level)),
		zap.Int64("scenario_id", scenarioID),
		zap.Duration("took", time.Since(started)))
	return nil
}

// RefreshScenarioAll rewrites one scenario's rows across every level's
// derived table, skipping levels never built.
func (m *Manager) RefreshScenarioAll(ctx context.Context, scenarioID int64) error {
	for _, lvl := range landuse.Levels() {
		exists, err := m.store.ViewExists(ctx, lvl)
		if err != nil {
			return err
		}
		if !exists {
			m.log.Warn("derived table not built; skipping refresh",
				zap.String("level", string(lvl)))
			continue
		}
		if err := m.RefreshScenario(ctx, lvl, scenarioID); err != nil {
			return err
		}
	}
	return nil
}
