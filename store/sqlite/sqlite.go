/*
Package sqlite provides the SQLite-backed Transition Store.

PURPOSE:
  Owns the schema of the transition fact table and its dimension tables
  (scenarios, time steps, counties, states), plus low-level read/write
  access. Higher-level components (ensemble computer, view manager, read
  API) build on the typed methods here - no SQL leaks out of this package.

KEY TABLES:
  scenarios:             Scenario dimension with explicit climate tags
  time_steps:            Fixed projection periods, UNIQUE(start, end)
  counties:              County dimension keyed by 5-char FIPS code
  states:                State dimension carrying subregion/region placement,
                         seeded once from the static region hierarchy
  land_use_transitions:  The fact table: one row per recorded area movement

ID ALLOCATION:
  scenario_id and transition_id are allocated as current-max + 1 (and
  contiguous blocks thereof). This is only correct for a single writer;
  concurrent mutating operations are not supported and must be serialized
  externally. The sync.Mutex here guards in-process callers only.

WAL MODE:
  The database is opened with WAL so read-only aggregation queries can run
  concurrently with each other while a batch build holds the writer.

RESOURCE BUDGET:
  WithThreads and WithCacheMB bound how much parallelism and memory the
  query engine may use per statement. This is a tuning budget, not a
  correctness mechanism.

USAGE:
  st, err := sqlite.New("./data/landuse.db", sqlite.WithThreads(8))
  if err != nil { ... }
  defer st.Close()

SEE ALSO:
  - aggregate.go:   Net-change rollups (parameterized builders per level)
  - transitions.go: Fact-table writes, batching, id allocation
  - views.go:       Materialized view tables
  - integrity.go:   Read-only validation scans
  - maintenance.go: Index creation and optimization
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
)

// Store is the SQLite-backed transition store. Safe for concurrent readers;
// mutating operations take the writer lock and must not run concurrently
// across processes.
type Store struct {
	db     *sql.DB
	log    *zap.Logger
	mu     sync.Mutex // serializes in-process writers
	onDisk string
}

// Option configures a Store at open time.
type Option func(*options)

type options struct {
	threads int
	cacheMB int
	log     *zap.Logger
}

// WithThreads bounds SQLite's per-statement worker threads.
func WithThreads(n int) Option { return func(o *options) { o.threads = n } }

// WithCacheMB bounds the page cache size in mebibytes.
func WithCacheMB(n int) Option { return func(o *options) { o.cacheMB = n } }

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(log *zap.Logger) Option { return func(o *options) { o.log = log } }

// New opens (creating if needed) a transition store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection to a :memory: DSN gets its own database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, log: o.log, onDisk: dbPath}
	if o.threads > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA threads = %d", o.threads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set thread budget: %w", err)
		}
	}
	if o.cacheMB > 0 {
		// Negative cache_size is KiB.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA cache_size = %d", -o.cacheMB*1024)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set cache budget: %w", err)
		}
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// migrate creates the dimension and fact tables.
func (s *Store) migrate() error {
	schema := `
	-- Scenario dimension. Tags are explicit columns, never parsed from the
	-- name. Ensemble scenarios carry the 'ensemble' sentinel on the axis
	-- that was averaged over.
	CREATE TABLE IF NOT EXISTS scenarios (
		scenario_id   INTEGER PRIMARY KEY,
		scenario_name TEXT NOT NULL UNIQUE,
		gcm           TEXT NOT NULL,
		rcp           TEXT NOT NULL,
		ssp           TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT ''
	);

	-- Projection periods, half-open [start_year, end_year).
	CREATE TABLE IF NOT EXISTS time_steps (
		time_step_id INTEGER PRIMARY KEY,
		start_year   INTEGER NOT NULL,
		end_year     INTEGER NOT NULL,
		UNIQUE (start_year, end_year),
		CHECK (start_year < end_year)
	);

	CREATE TABLE IF NOT EXISTS counties (
		fips_code   TEXT PRIMARY KEY,
		county_name TEXT NOT NULL
	);

	-- State dimension mirrors the static containment hierarchy so rollup
	-- SQL can join on the 2-char FIPS prefix.
	CREATE TABLE IF NOT EXISTS states (
		state_fips TEXT PRIMARY KEY,
		state_name TEXT NOT NULL UNIQUE,
		state_abbr TEXT NOT NULL,
		subregion  TEXT NOT NULL,
		region     TEXT NOT NULL
	);

	-- The fact table. Append-only: rows are inserted by ingestion or the
	-- ensemble computer and bulk-deleted per scenario, never updated.
	CREATE TABLE IF NOT EXISTS land_use_transitions (
		transition_id INTEGER PRIMARY KEY,
		scenario_id   INTEGER NOT NULL REFERENCES scenarios(scenario_id),
		time_step_id  INTEGER NOT NULL REFERENCES time_steps(time_step_id),
		fips_code     TEXT NOT NULL,
		from_land_use TEXT NOT NULL,
		to_land_use   TEXT NOT NULL,
		acres         REAL NOT NULL CHECK (acres >= 0)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCENARIO DIMENSION
// =============================================================================

// CreateScenario inserts a scenario with an explicit id.
func (s *Store) CreateScenario(ctx context.Context, sc landuse.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scenarios (scenario_id, scenario_name, gcm, rcp, ssp, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.Tags.Model, sc.Tags.Warming, sc.Tags.Growth, sc.Description,
	)
	if err != nil {
		return fmt.Errorf("create scenario %q: %w", sc.Name, err)
	}
	return nil
}

// ScenarioByID looks up a scenario; unknown ids are a caller-visible error.
func (s *Store) ScenarioByID(ctx context.Context, id int64) (landuse.Scenario, error) {
	return s.scanScenario(s.db.QueryRowContext(ctx, `
		SELECT scenario_id, scenario_name, gcm, rcp, ssp, description
		FROM scenarios WHERE scenario_id = ?`, id))
}

// ScenarioByName looks up a scenario by its unique name.
func (s *Store) ScenarioByName(ctx context.Context, name string) (landuse.Scenario, error) {
	return s.scanScenario(s.db.QueryRowContext(ctx, `
		SELECT scenario_id, scenario_name, gcm, rcp, ssp, description
		FROM scenarios WHERE scenario_name = ?`, name))
}

func (s *Store) scanScenario(row *sql.Row) (landuse.Scenario, error) {
	var sc landuse.Scenario
	err := row.Scan(&sc.ID, &sc.Name, &sc.Tags.Model, &sc.Tags.Warming, &sc.Tags.Growth, &sc.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return landuse.Scenario{}, landuse.ErrScenarioNotFound
	}
	if err != nil {
		return landuse.Scenario{}, fmt.Errorf("scan scenario: %w", err)
	}
	return sc, nil
}

// ListScenarios returns all scenarios ordered by id.
func (s *Store) ListScenarios(ctx context.Context) ([]landuse.Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_id, scenario_name, gcm, rcp, ssp, description
		FROM scenarios ORDER BY scenario_id`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var out []landuse.Scenario
	for rows.Next() {
		var sc landuse.Scenario
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Tags.Model, &sc.Tags.Warming, &sc.Tags.Growth, &sc.Description); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// DeleteScenario removes a scenario and its transitions as a unit.
func (s *Store) DeleteScenario(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete scenario: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM land_use_transitions WHERE scenario_id = ?`, id); err != nil {
		return fmt.Errorf("delete transitions for scenario %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scenarios WHERE scenario_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scenario %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return landuse.ErrScenarioNotFound
	}
	return tx.Commit()
}

// =============================================================================
// TIME STEP DIMENSION
// =============================================================================

// CreateTimeStep inserts a projection period with an explicit id.
func (s *Store) CreateTimeStep(ctx context.Context, ts landuse.TimeStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_steps (time_step_id, start_year, end_year) VALUES (?, ?, ?)`,
		ts.ID, ts.StartYear, ts.EndYear,
	)
	if err != nil {
		return fmt.Errorf("create time step %s: %w", ts, err)
	}
	return nil
}

// ListTimeSteps returns all stored periods ordered by start year.
func (s *Store) ListTimeSteps(ctx context.Context) ([]landuse.TimeStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_step_id, start_year, end_year
		FROM time_steps ORDER BY start_year, time_step_id`)
	if err != nil {
		return nil, fmt.Errorf("list time steps: %w", err)
	}
	defer rows.Close()

	var out []landuse.TimeStep
	for rows.Next() {
		var ts landuse.TimeStep
		if err := rows.Scan(&ts.ID, &ts.StartYear, &ts.EndYear); err != nil {
			return nil, fmt.Errorf("scan time step: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// =============================================================================
// GEOGRAPHIC DIMENSIONS
// =============================================================================

// UpsertCounty inserts or renames a county.
func (s *Store) UpsertCounty(ctx context.Context, fips, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counties (fips_code, county_name) VALUES (?, ?)
		ON CONFLICT(fips_code) DO UPDATE SET county_name = excluded.county_name`,
		fips, name,
	)
	if err != nil {
		return fmt.Errorf("upsert county %s: %w", fips, err)
	}
	return nil
}

// SeedRegions mirrors the static containment hierarchy into the states
// dimension. Idempotent; called once at startup after loading the config.
func (s *Store) SeedRegions(ctx context.Context, m *landuse.RegionMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin region seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO states (state_fips, state_name, state_abbr, subregion, region)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(state_fips) DO UPDATE SET
			state_name = excluded.state_name,
			state_abbr = excluded.state_abbr,
			subregion  = excluded.subregion,
			region     = excluded.region`)
	if err != nil {
		return fmt.Errorf("prepare region seed: %w", err)
	}
	defer stmt.Close()

	for _, st := range m.States() {
		if _, err := stmt.ExecContext(ctx, st.FIPS, st.Name, st.Abbr, st.Subregion, st.Region); err != nil {
			return fmt.Errorf("seed state %s: %w", st.FIPS, err)
		}
	}
	return tx.Commit()
}

// ListStates returns the mirrored state hierarchy ordered by FIPS prefix.
func (s *Store) ListStates(ctx context.Context) ([]landuse.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state_fips, state_name, state_abbr, subregion, region
		FROM states ORDER BY state_fips`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var out []landuse.State
	for rows.Next() {
		var st landuse.State
		if err := rows.Scan(&st.FIPS, &st.Name, &st.Abbr, &st.Subregion, &st.Region); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// inPlaceholders renders "?, ?, ?" for n parameters.
func inPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// int64Args widens ids for driver args.
func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
