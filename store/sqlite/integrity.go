/*
integrity.go - Read-only validation scans

PURPOSE:
  Populates a landuse.IntegrityReport for one scenario. Violations are
  collected, not raised: a check pass must complete and report everything
  it can find, and nothing here modifies data.

DECIMAL ACCUMULATION:
  The continuity check sums per-county transitioning area across periods
  with shopspring/decimal. The tolerance is a fraction of areas that can
  differ by well under an acre after upstream rounding; accumulating in
  float64 could create or hide breaks near the threshold.
*/
package sqlite

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/landshift/transition-engine/landuse"
)

// continuityTolerance is the fraction of a period's transitioning area that
// the next period may deviate by before the pair is reported.
const continuityTolerance = 0.10

// CheckIntegrity runs every validation scan for one scenario and returns
// the collected report. The scenario must exist.
func (s *Store) CheckIntegrity(ctx context.Context, scenarioID int64) (*landuse.IntegrityReport, error) {
	if _, err := s.ScenarioByID(ctx, scenarioID); err != nil {
		return nil, err
	}

	report := &landuse.IntegrityReport{ScenarioID: scenarioID}

	if err := s.scanNegativeAcres(ctx, scenarioID, report); err != nil {
		return nil, err
	}
	if err := s.scanDuplicateKeys(ctx, report); err != nil {
		return nil, err
	}
	if err := s.scanContinuity(ctx, scenarioID, report); err != nil {
		return nil, err
	}
	if err := s.scanUnmappedCounties(ctx, scenarioID, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) scanNegativeAcres(ctx context.Context, scenarioID int64, report *landuse.IntegrityReport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.transition_id, t.fips_code, ts.time_step_id, ts.start_year, ts.end_year,
		       t.from_land_use, t.to_land_use, t.acres
		FROM land_use_transitions t
		JOIN time_steps ts ON ts.time_step_id = t.time_step_id
		WHERE t.scenario_id = ? AND t.acres < 0
		ORDER BY t.transition_id`, scenarioID)
	if err != nil {
		return fmt.Errorf("scan negative acres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v landuse.NegativeAcres
		if err := rows.Scan(&v.TransitionID, &v.FIPS, &v.TimeStep.ID, &v.TimeStep.StartYear,
			&v.TimeStep.EndYear, &v.From, &v.To, &v.Acres); err != nil {
			return fmt.Errorf("scan negative acres row: %w", err)
		}
		report.NegativeAcres = append(report.NegativeAcres, v)
	}
	return rows.Err()
}

// scanDuplicateKeys checks the dimension uniqueness invariants. The schema
// enforces them with constraints, so findings here mean the database was
// modified outside this store.
func (s *Store) scanDuplicateKeys(ctx context.Context, report *landuse.IntegrityReport) error {
	checks := []struct {
		table string
		query string
	}{
		{"scenarios", `SELECT scenario_name, COUNT(*) FROM scenarios GROUP BY scenario_name HAVING COUNT(*) > 1`},
		{"counties", `SELECT fips_code, COUNT(*) FROM counties GROUP BY fips_code HAVING COUNT(*) > 1`},
		{"time_steps", `SELECT start_year || '-' || end_year, COUNT(*) FROM time_steps GROUP BY start_year, end_year HAVING COUNT(*) > 1`},
	}
	for _, c := range checks {
		rows, err := s.db.QueryContext(ctx, c.query)
		if err != nil {
			return fmt.Errorf("scan duplicates in %s: %w", c.table, err)
		}
		for rows.Next() {
			dup := landuse.DuplicateKey{Table: c.table}
			if err := rows.Scan(&dup.Key, &dup.Count); err != nil {
				rows.Close()
				return fmt.Errorf("scan duplicate key: %w", err)
			}
			report.DuplicateKeys = append(report.DuplicateKeys, dup)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// scanContinuity compares each county's total transitioning area between
// consecutive periods. Small deviations are legitimate reporting noise;
// only breaks beyond the tolerance fraction are reported.
func (s *Store) scanContinuity(ctx context.Context, scenarioID int64, report *landuse.IntegrityReport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.fips_code, ts.start_year, ts.end_year, t.acres
		FROM land_use_transitions t
		JOIN time_steps ts ON ts.time_step_id = t.time_step_id
		WHERE t.scenario_id = ? AND t.from_land_use != t.to_land_use
		ORDER BY t.fips_code, ts.start_year`, scenarioID)
	if err != nil {
		return fmt.Errorf("scan continuity: %w", err)
	}
	defer rows.Close()

	type periodArea struct {
		start, end int
		area       decimal.Decimal
	}
	var (
		curFIPS string
		periods []periodArea
	)

	flush := func() {
		for i := 0; i+1 < len(periods); i++ {
			a, b := periods[i], periods[i+1]
			delta := a.area.Sub(b.area).Abs()
			limit := a.area.Mul(decimal.NewFromFloat(continuityTolerance))
			if delta.GreaterThan(limit) {
				f, _ := delta.Float64()
				report.ContinuityBreaks = append(report.ContinuityBreaks, landuse.ContinuityBreak{
					FIPS:      curFIPS,
					StartYear: a.start,
					NextYear:  b.start,
					Delta:     f,
				})
			}
		}
		periods = periods[:0]
	}

	for rows.Next() {
		var (
			fips       string
			start, end int
			acres      float64
		)
		if err := rows.Scan(&fips, &start, &end, &acres); err != nil {
			return fmt.Errorf("scan continuity row: %w", err)
		}
		if fips != curFIPS {
			flush()
			curFIPS = fips
		}
		d := decimal.NewFromFloat(acres)
		if n := len(periods); n > 0 && periods[n-1].start == start {
			periods[n-1].area = periods[n-1].area.Add(d)
		} else {
			periods = append(periods, periodArea{start: start, end: end, area: d})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	flush()
	return nil
}

func (s *Store) scanUnmappedCounties(ctx context.Context, scenarioID int64, report *landuse.IntegrityReport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT t.fips_code
		FROM land_use_transitions t
		LEFT JOIN states s ON s.state_fips = substr(t.fips_code, 1, 2)
		WHERE t.scenario_id = ? AND s.state_fips IS NULL
		ORDER BY t.fips_code`, scenarioID)
	if err != nil {
		return fmt.Errorf("scan unmapped counties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fips string
		if err := rows.Scan(&fips); err != nil {
			return fmt.Errorf("scan unmapped county: %w", err)
		}
		report.UnmappedCounties = append(report.UnmappedCounties, fips)
	}
	return rows.Err()
}
