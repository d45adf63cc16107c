/*
aggregate.go - Net-change rollups and analysis queries

PURPOSE:
  Turns raw from->to transition rows into signed net-change-by-category
  figures at a requested geographic granularity. The SQL is assembled by a
  fixed set of parameterized builders keyed by aggregation level - filter
  values only ever travel as bound parameters, never as spliced strings.

NET CHANGE:
  net(category, location) =
      SUM(acres WHERE to   = category)   gains
    - SUM(acres WHERE from = category)   losses
  summed across the resolved time steps and across every county contained
  in the location. Transitions only move area between categories, so for a
  fixed scenario and step set the net changes across all categories sum to
  zero within floating tolerance.

UNRESOLVED COUNTIES:
  Levels above county join counties to states on the FIPS prefix. Counties
  whose prefix has no state row fall out of the join: the caller gets a
  reduced result set and a logged warning, not a failure.
*/
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
)

// Filter narrows an aggregation. Zero values mean "no filter".
type Filter struct {
	// Location matches the level's location key: a FIPS code at county
	// level, a state name at state level, a subregion or region name above.
	Location string
	// Category restricts output to one category's net change.
	Category landuse.Category
}

// levelQuery is one entry of the fixed builder set: how a level derives its
// location key and which dimension join it needs.
type levelQuery struct {
	locExpr string
	join    string
}

const stateJoin = `JOIN states s ON s.state_fips = substr(t.fips_code, 1, 2)`

var levelQueries = map[landuse.Level]levelQuery{
	landuse.LevelCounty:    {locExpr: "t.fips_code"},
	landuse.LevelState:     {locExpr: "s.state_name", join: stateJoin},
	landuse.LevelSubregion: {locExpr: "s.subregion", join: stateJoin},
	landuse.LevelRegion:    {locExpr: "s.region", join: stateJoin},
	landuse.LevelNational:  {locExpr: "'National'"},
}

// queryBuilder accumulates SQL text and bound parameters together, so a
// clause can never be added without its arguments.
type queryBuilder struct {
	sql  strings.Builder
	args []any
}

func (b *queryBuilder) write(text string) {
	b.sql.WriteString(text)
}

func (b *queryBuilder) writeBound(text string, args ...any) {
	b.sql.WriteString(text)
	b.args = append(b.args, args...)
}

// Aggregate computes net change by category at the requested level for one
// scenario over the resolved time steps. An empty result is a valid
// outcome; an unknown category in the filter is a caller error.
func (s *Store) Aggregate(ctx context.Context, scenarioID int64, stepIDs []int64, level landuse.Level, f Filter) ([]landuse.NetChange, error) {
	lq, ok := levelQueries[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	if f.Category != "" {
		if _, err := landuse.ParseCategory(string(f.Category)); err != nil {
			return nil, err
		}
	}
	if len(stepIDs) == 0 {
		return nil, nil
	}

	var b queryBuilder
	side := func(catCol, sumExpr string) {
		b.write("SELECT " + lq.locExpr + " AS location, t." + catCol + " AS category, " + sumExpr + " AS net\n")
		b.write("FROM land_use_transitions t\n")
		if lq.join != "" {
			b.write(lq.join + "\n")
		}
		b.writeBound("WHERE t.scenario_id = ?", scenarioID)
		b.writeBound(" AND t.time_step_id IN ("+inPlaceholders(len(stepIDs))+")", int64Args(stepIDs)...)
		if f.Location != "" {
			b.writeBound(" AND "+lq.locExpr+" = ?", f.Location)
		}
		b.write("\nGROUP BY location, category\n")
	}

	b.write("WITH losses AS (\n")
	side("from_land_use", "-SUM(t.acres)")
	b.write("), gains AS (\n")
	side("to_land_use", "SUM(t.acres)")
	b.write(")\nSELECT location, category, SUM(net) AS net_change\n")
	b.write("FROM (SELECT * FROM losses UNION ALL SELECT * FROM gains)\n")
	if f.Category != "" {
		b.writeBound("WHERE category = ?\n", string(f.Category))
	}
	b.write("GROUP BY location, category\nORDER BY location, category")

	rows, err := s.db.QueryContext(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s level: %w", level, err)
	}
	defer rows.Close()

	var out []landuse.NetChange
	for rows.Next() {
		var nc landuse.NetChange
		if err := rows.Scan(&nc.Location, &nc.Category, &nc.Acres); err != nil {
			return nil, fmt.Errorf("scan net change: %w", err)
		}
		out = append(out, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if lq.join != "" {
		if n, err := s.countUnmapped(ctx, scenarioID); err == nil && n > 0 {
			s.log.Warn("counties excluded from rollup: FIPS prefix resolves to no state",
				zap.Int64("scenario_id", scenarioID),
				zap.Int64("unmapped_counties", n))
		}
	}
	return out, nil
}

// countUnmapped counts distinct counties in a scenario's facts whose FIPS
// prefix has no state row.
func (s *Store) countUnmapped(ctx context.Context, scenarioID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT t.fips_code)
		FROM land_use_transitions t
		LEFT JOIN states s ON s.state_fips = substr(t.fips_code, 1, 2)
		WHERE t.scenario_id = ? AND s.state_fips IS NULL`, scenarioID).Scan(&n)
	return n, err
}

// =============================================================================
// ANALYSIS QUERIES
// =============================================================================

// MajorTransitions returns the largest from->to flows in the window,
// excluding self-transitions, with each flow's share of all change.
func (s *Store) MajorTransitions(ctx context.Context, scenarioID int64, stepIDs []int64, limit int) ([]landuse.TransitionFlow, error) {
	if len(stepIDs) == 0 {
		return nil, nil
	}
	in := inPlaceholders(len(stepIDs))
	query := fmt.Sprintf(`
		WITH window_total AS (
			SELECT SUM(acres) AS total
			FROM land_use_transitions
			WHERE scenario_id = ? AND time_step_id IN (%s) AND from_land_use != to_land_use
		)
		SELECT from_land_use, to_land_use, SUM(acres) AS acres_changed,
		       100.0 * SUM(acres) / (SELECT total FROM window_total) AS share
		FROM land_use_transitions
		WHERE scenario_id = ? AND time_step_id IN (%s) AND from_land_use != to_land_use
		GROUP BY from_land_use, to_land_use
		ORDER BY acres_changed DESC
		LIMIT ?`, in, in)

	args := append([]any{scenarioID}, int64Args(stepIDs)...)
	args = append(args, scenarioID)
	args = append(args, int64Args(stepIDs)...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("major transitions: %w", err)
	}
	defer rows.Close()

	var out []landuse.TransitionFlow
	for rows.Next() {
		var fl landuse.TransitionFlow
		if err := rows.Scan(&fl.From, &fl.To, &fl.Acres, &fl.Share); err != nil {
			return nil, fmt.Errorf("scan transition flow: %w", err)
		}
		out = append(out, fl)
	}
	return out, rows.Err()
}

// TopCountiesByChange ranks counties by net change for one category.
// direction "decrease" orders ascending (largest losses first).
func (s *Store) TopCountiesByChange(ctx context.Context, scenarioID int64, stepIDs []int64, category landuse.Category, limit int, direction string) ([]landuse.CountyChange, error) {
	if _, err := landuse.ParseCategory(string(category)); err != nil {
		return nil, err
	}
	if len(stepIDs) == 0 {
		return nil, nil
	}
	order := "DESC"
	if direction == "decrease" {
		order = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT c.fips_code, c.county_name,
		       SUM(CASE WHEN t.to_land_use = ? THEN t.acres ELSE 0 END) -
		       SUM(CASE WHEN t.from_land_use = ? THEN t.acres ELSE 0 END) AS net_change
		FROM land_use_transitions t
		JOIN counties c ON c.fips_code = t.fips_code
		WHERE t.scenario_id = ? AND t.time_step_id IN (%s)
		  AND (t.from_land_use = ? OR t.to_land_use = ?)
		GROUP BY c.fips_code, c.county_name
		ORDER BY net_change %s
		LIMIT ?`, inPlaceholders(len(stepIDs)), order)

	args := []any{string(category), string(category), scenarioID}
	args = append(args, int64Args(stepIDs)...)
	args = append(args, string(category), string(category), limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top counties: %w", err)
	}
	defer rows.Close()

	var out []landuse.CountyChange
	for rows.Next() {
		var cc landuse.CountyChange
		if err := rows.Scan(&cc.FIPS, &cc.Name, &cc.NetChange); err != nil {
			return nil, fmt.Errorf("scan county change: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// CompareScenarios computes one category's net change and annualized rate
// for each of two scenarios over the same window.
func (s *Store) CompareScenarios(ctx context.Context, scenarioIDs [2]int64, stepIDs []int64, category landuse.Category) ([]landuse.ScenarioComparison, error) {
	if _, err := landuse.ParseCategory(string(category)); err != nil {
		return nil, err
	}
	if len(stepIDs) == 0 {
		return nil, nil
	}

	var spanStart, spanEnd int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MIN(start_year), MAX(end_year) FROM time_steps WHERE time_step_id IN (%s)`,
		inPlaceholders(len(stepIDs))), int64Args(stepIDs)...).Scan(&spanStart, &spanEnd)
	if err != nil {
		return nil, fmt.Errorf("window span: %w", err)
	}
	years := spanEnd - spanStart

	out := make([]landuse.ScenarioComparison, 0, 2)
	for _, id := range scenarioIDs {
		sc, err := s.ScenarioByID(ctx, id)
		if err != nil {
			return nil, err
		}
		var net float64
		query := fmt.Sprintf(`
			SELECT COALESCE(
				SUM(CASE WHEN to_land_use = ? THEN acres ELSE 0 END) -
				SUM(CASE WHEN from_land_use = ? THEN acres ELSE 0 END), 0)
			FROM land_use_transitions
			WHERE scenario_id = ? AND time_step_id IN (%s)`, inPlaceholders(len(stepIDs)))
		args := []any{string(category), string(category), id}
		args = append(args, int64Args(stepIDs)...)
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&net); err != nil {
			return nil, fmt.Errorf("net change for scenario %d: %w", id, err)
		}
		cmp := landuse.ScenarioComparison{Scenario: sc, NetChange: net}
		if years > 0 {
			cmp.AnnualRate = net / float64(years)
		}
		out = append(out, cmp)
	}
	return out, nil
}
