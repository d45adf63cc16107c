/*
export.go - parquet snapshots of the derived tables

PURPOSE:
  Downstream analysis wants the rollups as columnar files, one per level,
  optionally partitioned by scenario so a single ensemble rebuild only
  rewrites its own files. Rows stream out of the derived tables in key
  order, so repeated exports of the same data are byte-stable.
*/
package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/store/sqlite"
)

// Per-level parquet row shapes. Column names mirror the derived table
// columns so SQL and file consumers see the same vocabulary.

type nationalRow struct {
	ScenarioID   int64   `parquet:"scenario_id"`
	ScenarioName string  `parquet:"scenario_name"`
	TimeStepID   int64   `parquet:"time_step_id"`
	StartYear    int32   `parquet:"start_year"`
	EndYear      int32   `parquet:"end_year"`
	FromLandUse  string  `parquet:"from_land_use"`
	ToLandUse    string  `parquet:"to_land_use"`
	TotalArea    float64 `parquet:"total_area"`
}

type regionRow struct {
	ScenarioID   int64   `parquet:"scenario_id"`
	ScenarioName string  `parquet:"scenario_name"`
	TimeStepID   int64   `parquet:"time_step_id"`
	StartYear    int32   `parquet:"start_year"`
	EndYear      int32   `parquet:"end_year"`
	Region       string  `parquet:"region"`
	FromLandUse  string  `parquet:"from_land_use"`
	ToLandUse    string  `parquet:"to_land_use"`
	TotalArea    float64 `parquet:"total_area"`
}

type subregionRow struct {
	ScenarioID   int64   `parquet:"scenario_id"`
	ScenarioName string  `parquet:"scenario_name"`
	TimeStepID   int64   `parquet:"time_step_id"`
	StartYear    int32   `parquet:"start_year"`
	EndYear      int32   `parquet:"end_year"`
	Region       string  `parquet:"region"`
	Subregion    string  `parquet:"subregion"`
	FromLandUse  string  `parquet:"from_land_use"`
	ToLandUse    string  `parquet:"to_land_use"`
	TotalArea    float64 `parquet:"total_area"`
}

type stateRow struct {
	ScenarioID   int64   `parquet:"scenario_id"`
	ScenarioName string  `parquet:"scenario_name"`
	TimeStepID   int64   `parquet:"time_step_id"`
	StartYear    int32   `parquet:"start_year"`
	EndYear      int32   `parquet:"end_year"`
	StateFIPS    string  `parquet:"state_fips"`
	StateName    string  `parquet:"state_name"`
	FromLandUse  string  `parquet:"from_land_use"`
	ToLandUse    string  `parquet:"to_land_use"`
	TotalArea    float64 `parquet:"total_area"`
}

type countyRow struct {
	ScenarioID   int64   `parquet:"scenario_id"`
	ScenarioName string  `parquet:"scenario_name"`
	TimeStepID   int64   `parquet:"time_step_id"`
	StartYear    int32   `parquet:"start_year"`
	EndYear      int32   `parquet:"end_year"`
	FIPSCode     string  `parquet:"fips_code"`
	CountyName   string  `parquet:"county_name"`
	StateName    string  `parquet:"state_name"`
	FromLandUse  string  `parquet:"from_land_use"`
	ToLandUse    string  `parquet:"to_land_use"`
	TotalArea    float64 `parquet:"total_area"`
}

// ExportOptions controls one export run.
type ExportOptions struct {
	Dir         string
	Levels      []landuse.Level // default: all
	PerScenario bool            // one file per scenario instead of one per level
}

// Export writes the selected derived tables to parquet under opts.Dir and
// returns the written file paths. Every level exported must have been
// built; a missing table fails the run rather than silently skipping.
func (m *Manager) Export(ctx context.Context, opts ExportOptions) ([]string, error) {
	levels := opts.Levels
	if len(levels) == 0 {
		levels = landuse.Levels()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}

	var written []string
	for _, lvl := range levels {
		exists, err := m.store.ViewExists(ctx, lvl)
		if err != nil {
			return written, err
		}
		if !exists {
			return written, fmt.Errorf("level %q: %w", lvl, landuse.ErrViewNotBuilt)
		}
		files, err := m.exportLevel(ctx, lvl, opts)
		if err != nil {
			return written, err
		}
		written = append(written, files...)
	}
	return written, nil
}

func (m *Manager) exportLevel(ctx context.Context, level landuse.Level, opts ExportOptions) ([]string, error) {
	table, err := sqlite.ViewTable(level)
	if err != nil {
		return nil, err
	}

	if !opts.PerScenario {
		rows, err := m.store.ViewRows(ctx, level, nil)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(opts.Dir, table+".parquet")
		if err := m.writeFile(level, path, rows); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	scenarios, err := m.store.ListScenarios(ctx)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, sc := range scenarios {
		id := sc.ID
		rows, err := m.store.ViewRows(ctx, level, &id)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		name := fmt.Sprintf("%s_scenario_%d_%s.parquet", table, sc.ID, sanitizeName(sc.Name))
		path := filepath.Join(opts.Dir, name)
		if err := m.writeFile(level, path, rows); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}

func (m *Manager) writeFile(level landuse.Level, path string, rows []sqlite.ViewRow) error {
	var err error
	switch level {
	case landuse.LevelNational:
		err = writeParquet(path, convert(rows, toNationalRow))
	case landuse.LevelRegion:
		err = writeParquet(path, convert(rows, toRegionRow))
	case landuse.LevelSubregion:
		err = writeParquet(path, convert(rows, toSubregionRow))
	case landuse.LevelState:
		err = writeParquet(path, convert(rows, toStateRow))
	case landuse.LevelCounty:
		err = writeParquet(path, convert(rows, toCountyRow))
	default:
		err = fmt.Errorf("%w: %q", landuse.ErrUnknownLevel, level)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	if m.metrics != nil {
		m.metrics.ExportedFiles.Inc()
	}
	m.log.Info("exported derived table",
		zap.String("level", string(level)),
		zap.String("path", path),
		zap.Int("rows", len(rows)))
	return nil
}

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func convert[T any](rows []sqlite.ViewRow, fn func(sqlite.ViewRow) T) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}

func toNationalRow(r sqlite.ViewRow) nationalRow {
	return nationalRow{
		ScenarioID: r.ScenarioID, ScenarioName: r.ScenarioName,
		TimeStepID: r.TimeStep.ID, StartYear: int32(r.TimeStep.StartYear), EndYear: int32(r.TimeStep.EndYear),
		FromLandUse: string(r.From), ToLandUse: string(r.To), TotalArea: r.TotalArea,
	}
}

func toRegionRow(r sqlite.ViewRow) regionRow {
	return regionRow{
		ScenarioID: r.ScenarioID, ScenarioName: r.ScenarioName,
		TimeStepID: r.TimeStep.ID, StartYear: int32(r.TimeStep.StartYear), EndYear: int32(r.TimeStep.EndYear),
		Region:      r.Region,
		FromLandUse: string(r.From), ToLandUse: string(r.To), TotalArea: r.TotalArea,
	}
}

func toSubregionRow(r sqlite.ViewRow) subregionRow {
	return subregionRow{
		ScenarioID: r.ScenarioID, ScenarioName: r.ScenarioName,
		TimeStepID: r.TimeStep.ID, StartYear: int32(r.TimeStep.StartYear), EndYear: int32(r.TimeStep.EndYear),
		Region:     r.Region, Subregion: r.Subregion,
		FromLandUse: string(r.From), ToLandUse: string(r.To), TotalArea: r.TotalArea,
	}
}

func toStateRow(r sqlite.ViewRow) stateRow {
	return stateRow{
		ScenarioID: r.ScenarioID, ScenarioName: r.ScenarioName,
		TimeStepID: r.TimeStep.ID, StartYear: int32(r.TimeStep.StartYear), EndYear: int32(r.TimeStep.EndYear),
		StateFIPS:  r.StateFIPS, StateName: r.StateName,
		FromLandUse: string(r.From), ToLandUse: string(r.To), TotalArea: r.TotalArea,
	}
}

func toCountyRow(r sqlite.ViewRow) countyRow {
	return countyRow{
		ScenarioID: r.ScenarioID, ScenarioName: r.ScenarioName,
		TimeStepID: r.TimeStep.ID, StartYear: int32(r.TimeStep.StartYear), EndYear: int32(r.TimeStep.EndYear),
		FIPSCode:   r.CountyFIPS, CountyName: r.CountyName, StateName: r.StateName,
		FromLandUse: string(r.From), ToLandUse: string(r.To), TotalArea: r.TotalArea,
	}
}

// sanitizeName maps a scenario name to a filesystem-safe token: lowercase,
// runs of non-alphanumerics collapsed to single underscores.
func sanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
