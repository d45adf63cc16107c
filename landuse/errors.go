/*
errors.go - Centralized error types for the transition engine

PURPOSE:
  All sentinel and structured errors in one place. Components wrap these
  with operation context via fmt.Errorf("%w"); callers branch with
  errors.Is / errors.As.

ERROR TAXONOMY (mirrors the failure model of the engine):
  not-found          unknown scenario name/id - raised immediately, never
                     silently substituted
  empty-result       NOT an error; aggregations return empty slices
  fallback-applied   NOT an error; surfaced as a boolean so callers can warn
  integrity          collected into IntegrityReport, never auto-corrected
  operational        batch-write / storage failures - fatal for the whole
                     operation, recovery is delete-and-rebuild

SEE ALSO:
  - integrity.go: IntegrityReport collection
  - matcher.go: fallback signalling
*/
package landuse

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScenarioNotFound is returned when a scenario id or name does not
	// exist. The engine never substitutes a different scenario.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrNoTimeSteps is returned when the store holds no time steps at all.
	// This is fatal: the dataset was never ingested.
	ErrNoTimeSteps = errors.New("no time steps in store")

	// ErrUnknownLevel is returned for an aggregation level outside the
	// fixed set (national, region, subregion, state, county).
	ErrUnknownLevel = errors.New("unknown aggregation level")

	// ErrScenarioExists is returned when an ensemble build would overwrite
	// an existing scenario and force was not given. Destructive recreation
	// always requires an explicit flag.
	ErrScenarioExists = errors.New("scenario already exists")

	// ErrNoContributors is returned by grouping helpers when a grouping
	// rule selects no scenarios. Builds treat this as a warned no-op.
	ErrNoContributors = errors.New("no contributing scenarios")

	// ErrViewNotBuilt is returned when a materialized view is queried or
	// exported before it has ever been built.
	ErrViewNotBuilt = errors.New("materialized view not built")

	// ErrUnresolvedCounty is returned when a county's FIPS prefix does not
	// resolve to a known state in the region hierarchy.
	ErrUnresolvedCounty = errors.New("county does not resolve to a state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownCategoryError reports a caller-supplied category outside the fixed
// vocabulary. This is invalid input, not a database condition.
type UnknownCategoryError struct {
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown land-use category %q (valid: %v)", e.Value, Categories())
}

// ScenarioExistsError carries the identity of the scenario blocking a
// non-forced ensemble build.
type ScenarioExistsError struct {
	Name string
	ID   int64
}

func (e *ScenarioExistsError) Error() string {
	return fmt.Sprintf("scenario %q already exists with id %d (pass force to delete and recreate)", e.Name, e.ID)
}

func (e *ScenarioExistsError) Unwrap() error { return ErrScenarioExists }

// PartialBuildError reports a scenario whose transition row count does not
// match what its build should have produced - the signature of a process
// killed mid-batch. The scenario must be deleted and rebuilt, not resumed.
type PartialBuildError struct {
	ScenarioID int64
	Expected   int64
	Actual     int64
}

func (e *PartialBuildError) Error() string {
	return fmt.Sprintf("scenario %d is partially built: expected %d transition rows, found %d; delete and rebuild",
		e.ScenarioID, e.Expected, e.Actual)
}
