/*
views.go - Materialized view tables

PURPOSE:
  Persists the rollup output per geographic level as derived tables so the
  multi-million-row fact table is not re-aggregated on every request. Each
  view holds SUM(acres) grouped by (scenario, time step, location, from,
  to) - net change for any category is derivable from it, and querying a
  view is equivalent to calling the aggregator directly.

TABLES:
  mat_national_transitions   keys: scenario, time step, from, to
  mat_region_transitions     + region
  mat_subregion_transitions  + region, subregion
  mat_state_transitions      + state_fips, state_name
  mat_county_transitions     + fips_code, county_name, state_name

REFRESH:
  Full rebuild is DROP + CREATE TABLE AS (the rebuild window is tracked by
  the views.Manager state machine). Scenario-scoped refresh deletes one
  scenario's rows and reinserts them - used after an ensemble build so the
  rest of the view is untouched.
*/
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/landshift/transition-engine/landuse"
)

// ViewRow is one persisted view row. Only the location columns belonging to
// the row's level are populated.
type ViewRow struct {
	ScenarioID   int64
	ScenarioName string
	TimeStep     landuse.TimeStep
	Region       string
	Subregion    string
	StateFIPS    string
	StateName    string
	CountyFIPS   string
	CountyName   string
	From         landuse.Category
	To           landuse.Category
	TotalArea    float64
}

// viewSpec is the per-level DDL recipe.
type viewSpec struct {
	table    string
	locSel   string // location select-list fragment
	locGroup string // group-by fragment when locSel carries aliases
	locCols  []string
	join     string
}

var viewSpecs = map[landuse.Level]viewSpec{
	landuse.LevelNational: {
		table: "mat_national_transitions",
	},
	landuse.LevelRegion: {
		table:   "mat_region_transitions",
		locSel:  "s.region",
		locCols: []string{"region"},
		join:    stateJoin,
	},
	landuse.LevelSubregion: {
		table:   "mat_subregion_transitions",
		locSel:  "s.region, s.subregion",
		locCols: []string{"region", "subregion"},
		join:    stateJoin,
	},
	landuse.LevelState: {
		table:   "mat_state_transitions",
		locSel:  "s.state_fips, s.state_name",
		locCols: []string{"state_fips", "state_name"},
		join:    stateJoin,
	},
	// County keys on the FIPS code itself, so unmapped counties stay in:
	// the name joins are LEFT and blank out instead of dropping rows. This
	// keeps the view's net change identical to the direct aggregation.
	landuse.LevelCounty: {
		table:    "mat_county_transitions",
		locSel:   "t.fips_code, COALESCE(c.county_name, '') AS county_name, COALESCE(s.state_name, '') AS state_name",
		locGroup: "t.fips_code",
		locCols:  []string{"fips_code", "county_name", "state_name"},
		join: "LEFT JOIN states s ON s.state_fips = substr(t.fips_code, 1, 2)" +
			"\n\t\tLEFT JOIN counties c ON c.fips_code = t.fips_code",
	},
}

// ViewTable returns the derived table name for a level.
func ViewTable(level landuse.Level) (string, error) {
	spec, ok := viewSpecs[level]
	if !ok {
		return "", fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	return spec.table, nil
}

// ViewColumns returns the view's column list: group-by keys then total_area.
func ViewColumns(level landuse.Level) ([]string, error) {
	spec, ok := viewSpecs[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	cols := []string{"scenario_id", "scenario_name", "time_step_id", "start_year", "end_year"}
	cols = append(cols, spec.locCols...)
	return append(cols, "from_land_use", "to_land_use", "total_area"), nil
}

// selectBody renders the aggregation SELECT shared by build and
// scenario-scoped reinsert. scoped adds the scenario_id parameter slot.
func (v viewSpec) selectBody(scoped bool) string {
	var sb strings.Builder
	sb.WriteString("SELECT t.scenario_id, sc.scenario_name, t.time_step_id, ts.start_year, ts.end_year")
	if v.locSel != "" {
		sb.WriteString(", " + v.locSel)
	}
	sb.WriteString(", t.from_land_use, t.to_land_use, SUM(t.acres) AS total_area\n")
	sb.WriteString("\tFROM land_use_transitions t\n")
	sb.WriteString("\tJOIN scenarios sc ON sc.scenario_id = t.scenario_id\n")
	sb.WriteString("\tJOIN time_steps ts ON ts.time_step_id = t.time_step_id\n")
	if v.join != "" {
		sb.WriteString("\t" + v.join + "\n")
	}
	if scoped {
		sb.WriteString("\tWHERE t.scenario_id = ?\n")
	}
	sb.WriteString("\tGROUP BY t.scenario_id, sc.scenario_name, t.time_step_id, ts.start_year, ts.end_year")
	if group := v.locGroup; group != "" {
		sb.WriteString(", " + group)
	} else if v.locSel != "" {
		sb.WriteString(", " + v.locSel)
	}
	sb.WriteString(", t.from_land_use, t.to_land_use")
	return sb.String()
}

// BuildView drops and fully rebuilds one level's derived table, then
// recreates its supporting indexes.
func (s *Store) BuildView(ctx context.Context, level landuse.Level) error {
	spec, ok := viewSpecs[level]
	if !ok {
		return fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+spec.table); err != nil {
		return fmt.Errorf("drop view %s: %w", spec.table, err)
	}
	create := "CREATE TABLE " + spec.table + " AS\n\t" + spec.selectBody(false)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("build view %s: %w", spec.table, err)
	}
	return s.createViewIndexes(ctx, spec)
}

func (s *Store) createViewIndexes(ctx context.Context, spec viewSpec) error {
	idxCols := [][]string{
		{"scenario_id"},
		{"time_step_id"},
	}
	for _, loc := range spec.locCols {
		idxCols = append(idxCols, []string{loc})
	}
	for _, cols := range idxCols {
		name := fmt.Sprintf("idx_%s_%s", spec.table, strings.Join(cols, "_"))
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			name, spec.table, strings.Join(cols, ", "))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index view %s: %w", spec.table, err)
		}
	}
	return nil
}

// ViewExists reports whether a level's derived table has been built.
func (s *Store) ViewExists(ctx context.Context, level landuse.Level) (bool, error) {
	spec, ok := viewSpecs[level]
	if !ok {
		return false, fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, spec.table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check view %s: %w", spec.table, err)
	}
	return n > 0, nil
}

// RefreshViewScenario deletes one scenario's rows from a view and
// recomputes them from the fact table, leaving other scenarios untouched.
func (s *Store) RefreshViewScenario(ctx context.Context, level landuse.Level, scenarioID int64) error {
	spec, ok := viewSpecs[level]
	if !ok {
		return fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	exists, err := s.ViewExists(ctx, level)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", landuse.ErrViewNotBuilt, spec.table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view refresh: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+spec.table+" WHERE scenario_id = ?", scenarioID); err != nil {
		return fmt.Errorf("delete scenario %d from %s: %w", scenarioID, spec.table, err)
	}
	insert := "INSERT INTO " + spec.table + "\n\t" + spec.selectBody(true)
	if _, err := tx.ExecContext(ctx, insert, scenarioID); err != nil {
		return fmt.Errorf("reinsert scenario %d into %s: %w", scenarioID, spec.table, err)
	}
	return tx.Commit()
}

// ViewRows reads a view back, optionally for one scenario. Ordered by the
// full group-by key so exports and equivalence checks are deterministic.
func (s *Store) ViewRows(ctx context.Context, level landuse.Level, scenarioID *int64) ([]ViewRow, error) {
	spec, ok := viewSpecs[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	exists, err := s.ViewExists(ctx, level)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", landuse.ErrViewNotBuilt, spec.table)
	}

	cols, _ := ViewColumns(level)
	var b queryBuilder
	b.write("SELECT " + strings.Join(cols, ", ") + " FROM " + spec.table)
	if scenarioID != nil {
		b.writeBound(" WHERE scenario_id = ?", *scenarioID)
	}
	b.write(" ORDER BY " + strings.Join(cols[:len(cols)-1], ", "))

	rows, err := s.db.QueryContext(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("read view %s: %w", spec.table, err)
	}
	defer rows.Close()

	var out []ViewRow
	for rows.Next() {
		var r ViewRow
		dest := []any{&r.ScenarioID, &r.ScenarioName, &r.TimeStep.ID, &r.TimeStep.StartYear, &r.TimeStep.EndYear}
		for _, loc := range spec.locCols {
			switch loc {
			case "region":
				dest = append(dest, &r.Region)
			case "subregion":
				dest = append(dest, &r.Subregion)
			case "state_fips":
				dest = append(dest, &r.StateFIPS)
			case "state_name":
				dest = append(dest, &r.StateName)
			case "fips_code":
				dest = append(dest, &r.CountyFIPS)
			case "county_name":
				dest = append(dest, &r.CountyName)
			}
		}
		dest = append(dest, &r.From, &r.To, &r.TotalArea)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan view row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ViewNetChange derives net change by category from a view, for the
// equivalence guarantee against Aggregate.
func (s *Store) ViewNetChange(ctx context.Context, level landuse.Level, scenarioID int64, stepIDs []int64) ([]landuse.NetChange, error) {
	spec, ok := viewSpecs[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	exists, err := s.ViewExists(ctx, level)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", landuse.ErrViewNotBuilt, spec.table)
	}
	if len(stepIDs) == 0 {
		return nil, nil
	}

	locExpr := "'National'"
	if len(spec.locCols) > 0 {
		// The level's own key column is the last, except county, whose key
		// is fips_code first.
		switch level {
		case landuse.LevelCounty:
			locExpr = "fips_code"
		case landuse.LevelState:
			locExpr = "state_name"
		case landuse.LevelSubregion:
			locExpr = "subregion"
		case landuse.LevelRegion:
			locExpr = "region"
		}
	}

	in := inPlaceholders(len(stepIDs))
	query := fmt.Sprintf(`
		WITH losses AS (
			SELECT %[1]s AS location, from_land_use AS category, -SUM(total_area) AS net
			FROM %[2]s
			WHERE scenario_id = ? AND time_step_id IN (%[3]s)
			GROUP BY location, category
		), gains AS (
			SELECT %[1]s AS location, to_land_use AS category, SUM(total_area) AS net
			FROM %[2]s
			WHERE scenario_id = ? AND time_step_id IN (%[3]s)
			GROUP BY location, category
		)
		SELECT location, category, SUM(net) AS net_change
		FROM (SELECT * FROM losses UNION ALL SELECT * FROM gains)
		GROUP BY location, category
		ORDER BY location, category`, locExpr, spec.table, in)

	args := append([]any{scenarioID}, int64Args(stepIDs)...)
	args = append(args, scenarioID)
	args = append(args, int64Args(stepIDs)...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("view net change %s: %w", spec.table, err)
	}
	defer rows.Close()

	var out []landuse.NetChange
	for rows.Next() {
		var nc landuse.NetChange
		if err := rows.Scan(&nc.Location, &nc.Category, &nc.Acres); err != nil {
			return nil, fmt.Errorf("scan view net change: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}
