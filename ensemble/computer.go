/*
Package ensemble synthesizes new scenarios by averaging transition acreage
across groups of existing scenarios.

PURPOSE:
  An ensemble scenario looks exactly like an ingested one - same dimension
  row shape, same fact rows - except its acreage values are per-(time step,
  county, from, to) arithmetic means over a contributing group, and the
  averaged tag axis carries the "ensemble" sentinel.

BUILD SEQUENCE:
  1. Name collision check. Recreating an existing scenario is destructive
     and requires the explicit force flag; with force, the old scenario's
     transitions and dimension row are deleted as a unit first.
  2. Allocate scenario_id = current max + 1.
  3. Per time step (ascending, for log readability only): compute the mean
     rows, assign a contiguous transition_id block, insert in fixed-size
     batches so memory stays bounded at batch size.
  4. Verify: expected distinct groups vs actual rows written.

FAILURE SEMANTICS:
  An empty contributing set is a warned no-op, not an error. Any storage
  failure mid-build aborts the whole operation; the partially-written
  scenario is detected by Verify and recovered by delete-and-rebuild
  (force), never resumed.

SINGLE WRITER:
  max+1 id allocation is only correct for one writer. Concurrent ensemble
  builds are not supported; serialize them externally (one pipeline run at
  a time).
*/
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/observability"
	"github.com/landshift/transition-engine/store/sqlite"
)

// DefaultBatchSize bounds rows per insert transaction. Tens of thousands
// keeps peak memory flat even when a build emits tens of millions of rows.
const DefaultBatchSize = 50000

// Computer builds ensemble scenarios against a transition store.
type Computer struct {
	store     *sqlite.Store
	log       *zap.Logger
	metrics   *observability.Metrics
	batchSize int
}

// Option configures a Computer.
type Option func(*Computer)

// WithLogger attaches a logger; default is nop.
func WithLogger(log *zap.Logger) Option { return func(c *Computer) { c.log = log } }

// WithMetrics attaches build instrumentation.
func WithMetrics(m *observability.Metrics) Option { return func(c *Computer) { c.metrics = m } }

// WithBatchSize overrides the insert batch size (tests use small values).
func WithBatchSize(n int) Option {
	return func(c *Computer) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// New creates a Computer over the given store.
func New(store *sqlite.Store, opts ...Option) *Computer {
	c := &Computer{store: store, log: zap.NewNop(), batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build materializes one ensemble group as a new scenario and returns its
// id. Rebuilding an existing name requires force. An empty contributing
// set returns (0, nil) after a warning.
func (c *Computer) Build(ctx context.Context, g Group, force bool) (int64, error) {
	if len(g.Contributing) == 0 {
		c.log.Warn("ensemble group has no contributing scenarios; nothing to do",
			zap.String("name", g.Name))
		return 0, nil
	}
	started := time.Now()

	if err := c.clearExisting(ctx, g.Name, force); err != nil {
		return 0, err
	}

	id, err := c.store.NextScenarioID(ctx)
	if err != nil {
		return 0, err
	}
	sc := landuse.Scenario{ID: id, Name: g.Name, Tags: g.Tags, Description: g.Description}
	if err := c.store.CreateScenario(ctx, sc); err != nil {
		return 0, err
	}
	c.log.Info("created ensemble scenario",
		zap.String("name", g.Name),
		zap.Int64("scenario_id", id),
		zap.Int("contributing", len(g.Contributing)))

	steps, err := c.store.ListTimeSteps(ctx)
	if err != nil {
		return 0, err
	}
	nextID, err := c.store.NextTransitionID(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, step := range steps {
		n, err := c.buildStep(ctx, id, step, g.Contributing, &nextID)
		if err != nil {
			return 0, fmt.Errorf("ensemble %q, time step %s: %w (scenario %d is partial; rebuild with force)",
				g.Name, step, err, id)
		}
		total += n
	}

	expected, err := c.store.ExpectedEnsembleRows(ctx, g.Contributing)
	if err != nil {
		return 0, err
	}
	if err := c.store.VerifyScenario(ctx, id, expected); err != nil {
		return 0, err
	}

	if c.metrics != nil {
		c.metrics.EnsembleBuildDuration.Observe(time.Since(started).Seconds())
	}
	c.log.Info("ensemble build complete",
		zap.String("name", g.Name),
		zap.Int64("scenario_id", id),
		zap.Int64("rows", total),
		zap.Duration("took", time.Since(started)))
	return id, nil
}

// clearExisting enforces the recreate guard: an existing scenario with the
// target name blocks the build unless force deletes it first.
func (c *Computer) clearExisting(ctx context.Context, name string, force bool) error {
	existing, err := c.store.ScenarioByName(ctx, name)
	if errors.Is(err, landuse.ErrScenarioNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !force {
		return &landuse.ScenarioExistsError{Name: name, ID: existing.ID}
	}
	c.log.Info("deleting existing ensemble scenario for recreate",
		zap.String("name", name), zap.Int64("scenario_id", existing.ID))
	return c.store.DeleteScenario(ctx, existing.ID)
}

// buildStep computes and inserts one time step's mean rows, advancing the
// contiguous transition id cursor.
func (c *Computer) buildStep(ctx context.Context, scenarioID int64, step landuse.TimeStep, contributing []int64, nextID *int64) (int64, error) {
	means, err := c.store.MeanTransitions(ctx, contributing, step.ID)
	if err != nil {
		return 0, err
	}
	if len(means) == 0 {
		c.log.Warn("no transitions for time step", zap.Stringer("step", step))
		return 0, nil
	}

	var written int64
	for start := 0; start < len(means); start += c.batchSize {
		end := start + c.batchSize
		if end > len(means) {
			end = len(means)
		}
		batch := make([]landuse.Transition, 0, end-start)
		for _, m := range means[start:end] {
			batch = append(batch, landuse.Transition{
				ID:         *nextID,
				ScenarioID: scenarioID,
				TimeStepID: step.ID,
				FIPS:       m.FIPS,
				From:       m.From,
				To:         m.To,
				Acres:      m.Acres,
			})
			*nextID++
		}
		if err := c.store.InsertTransitions(ctx, batch); err != nil {
			return written, err
		}
		written += int64(len(batch))
		if c.metrics != nil {
			c.metrics.EnsembleBatches.Inc()
			c.metrics.EnsembleRowsWritten.Add(float64(len(batch)))
		}
	}

	c.log.Info("time step processed",
		zap.Stringer("step", step),
		zap.Int64("rows", written))
	return written, nil
}

// Verify re-checks a previously built group: the named scenario must exist
// and hold exactly the rows its contributing set implies. A mismatch means
// a build died mid-batch and the scenario needs a forced rebuild.
func (c *Computer) Verify(ctx context.Context, g Group) error {
	sc, err := c.store.ScenarioByName(ctx, g.Name)
	if err != nil {
		return err
	}
	expected, err := c.store.ExpectedEnsembleRows(ctx, g.Contributing)
	if err != nil {
		return err
	}
	return c.store.VerifyScenario(ctx, sc.ID, expected)
}
