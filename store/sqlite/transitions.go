/*
transitions.go - Fact-table writes, batching, and id allocation

PURPOSE:
  Everything the ensemble computer needs from the store: max+1 id
  allocation, the per-time-step mean query, batched inserts, and the row
  counts used to detect partially-written scenarios.

BATCHING:
  Callers insert in fixed-size batches (tens of thousands of rows) so peak
  memory stays bounded even when an ensemble output is tens of millions of
  rows. Each batch is one SQL transaction; batches must be inserted in the
  order computed so the transition_id block stays contiguous.

SINGLE WRITER:
  NextScenarioID / NextTransitionID are read-then-write max+1 allocation.
  Correct only when mutating operations are serialized externally.
*/
package sqlite

import (
	"context"
	"fmt"

	"github.com/landshift/transition-engine/landuse"
)

// NextScenarioID allocates the next scenario id (current max + 1).
func (s *Store) NextScenarioID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(scenario_id), 0) + 1 FROM scenarios`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate scenario id: %w", err)
	}
	return next, nil
}

// NextTransitionID allocates the start of a contiguous transition id block.
func (s *Store) NextTransitionID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(transition_id), 0) + 1 FROM land_use_transitions`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate transition id: %w", err)
	}
	return next, nil
}

// InsertTransitions writes one batch atomically. IDs must be pre-assigned
// by the caller so the allocation block stays contiguous.
func (s *Store) InsertTransitions(ctx context.Context, batch []landuse.Transition) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO land_use_transitions
		(transition_id, scenario_id, time_step_id, fips_code, from_land_use, to_land_use, acres)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transition batch: %w", err)
	}
	defer stmt.Close()

	for _, t := range batch {
		if _, err := stmt.ExecContext(ctx, t.ID, t.ScenarioID, t.TimeStepID, t.FIPS, t.From, t.To, t.Acres); err != nil {
			return fmt.Errorf("insert transition %d: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// CountTransitions returns the fact-row count for one scenario.
func (s *Store) CountTransitions(ctx context.Context, scenarioID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM land_use_transitions WHERE scenario_id = ?`, scenarioID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transitions for scenario %d: %w", scenarioID, err)
	}
	return n, nil
}

// MeanTransition is one averaged output row of the ensemble query, before
// ids are assigned.
type MeanTransition struct {
	FIPS  string
	From  landuse.Category
	To    landuse.Category
	Acres float64
}

// MeanTransitions computes, for one time step, the arithmetic mean acreage
// over the contributing scenarios grouped by (fips, from, to). Ordered
// deterministically so rebuilds produce identical row sequences.
func (s *Store) MeanTransitions(ctx context.Context, contributing []int64, timeStepID int64) ([]MeanTransition, error) {
	if len(contributing) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT fips_code, from_land_use, to_land_use, AVG(acres)
		FROM land_use_transitions
		WHERE scenario_id IN (%s) AND time_step_id = ?
		GROUP BY fips_code, from_land_use, to_land_use
		ORDER BY fips_code, from_land_use, to_land_use`, inPlaceholders(len(contributing)))

	args := append(int64Args(contributing), timeStepID)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mean transitions for step %d: %w", timeStepID, err)
	}
	defer rows.Close()

	var out []MeanTransition
	for rows.Next() {
		var m MeanTransition
		if err := rows.Scan(&m.FIPS, &m.From, &m.To, &m.Acres); err != nil {
			return nil, fmt.Errorf("scan mean transition: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ExpectedEnsembleRows counts the distinct (time step, fips, from, to)
// groups an ensemble build over the contributing scenarios will emit. Used
// to detect scenarios left partial by a killed build.
func (s *Store) ExpectedEnsembleRows(ctx context.Context, contributing []int64) (int64, error) {
	if len(contributing) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT 1 FROM land_use_transitions
			WHERE scenario_id IN (%s)
			GROUP BY time_step_id, fips_code, from_land_use, to_land_use
		)`, inPlaceholders(len(contributing)))

	var n int64
	if err := s.db.QueryRowContext(ctx, query, int64Args(contributing)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count expected ensemble rows: %w", err)
	}
	return n, nil
}

// VerifyScenario compares a scenario's actual fact-row count against the
// expected count and returns a PartialBuildError on mismatch.
func (s *Store) VerifyScenario(ctx context.Context, scenarioID, expected int64) error {
	actual, err := s.CountTransitions(ctx, scenarioID)
	if err != nil {
		return err
	}
	if actual != expected {
		return &landuse.PartialBuildError{ScenarioID: scenarioID, Expected: expected, Actual: actual}
	}
	return nil
}
