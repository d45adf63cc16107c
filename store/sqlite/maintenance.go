/*
maintenance.go - Index creation and database optimization

PURPOSE:
  The schema/index manager. No business logic lives here; it exists so the
  other components can assume indexed access paths. EnsureIndexes is
  idempotent and safe to call on every startup; Optimize is the periodic
  statistics-refresh + compaction pass run after large batch writes.
*/
package sqlite

import (
	"context"
	"fmt"
)

// factIndexes are the supporting indexes for the hot aggregation paths.
var factIndexes = []struct {
	name string
	def  string
}{
	{"idx_transitions_scenario_step_fips", "land_use_transitions (scenario_id, time_step_id, fips_code)"},
	{"idx_transitions_scenario_step", "land_use_transitions (scenario_id, time_step_id)"},
	{"idx_transitions_scenario_fips", "land_use_transitions (scenario_id, fips_code)"},
	{"idx_transitions_from", "land_use_transitions (from_land_use)"},
	{"idx_transitions_to", "land_use_transitions (to_land_use)"},
	{"idx_transitions_from_to", "land_use_transitions (from_land_use, to_land_use)"},
	{"idx_scenarios_name", "scenarios (scenario_name)"},
	{"idx_scenarios_tags", "scenarios (gcm, rcp, ssp)"},
	{"idx_time_steps_years", "time_steps (start_year, end_year)"},
}

// EnsureIndexes creates any missing supporting indexes. Idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, idx := range factIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s", idx.name, idx.def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure index %s: %w", idx.name, err)
		}
	}
	return nil
}

// Optimize refreshes planner statistics and compacts the database. Run
// after bulk writes (ensemble builds, view rebuilds); results are
// unaffected, only access paths.
func (s *Store) Optimize(ctx context.Context) error {
	// VACUUM cannot run inside a transaction, so each statement goes alone.
	for _, stmt := range []string{"ANALYZE", "VACUUM", "PRAGMA optimize"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("optimize (%s): %w", stmt, err)
		}
	}
	return nil
}
