/*
Package landuse provides the core types and algorithms of the transition
rollup engine.

PURPOSE:
  This package contains the domain vocabulary shared by every other
  component: land-use categories, scenario identity and climate tags,
  projection time steps, transition records, aggregation levels, and the
  time-period matcher. It has no persistence dependencies - the SQLite
  store and the batch components build on top of these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: One of the five land-use classes area can move between
  - ScenarioTags: Explicit {climate model, warming pathway, growth pathway}
    record. Ensemble scenarios carry the "ensemble" sentinel on whichever
    axis was averaged over - tags are never parsed out of scenario names.
  - TimeStep: A half-open projection interval [StartYear, EndYear)
  - Transition: One recorded area movement (from -> to) for one scenario,
    time step, and county
  - Level: Geographic rollup granularity (national .. county)

DESIGN PRINCIPLES:
  1. Append-only fact data: transitions are inserted and bulk-deleted per
     scenario, never updated row by row
  2. Conservation: transitions move area between categories; for a fixed
     scenario and time-step set, net changes across all categories sum to
     zero within floating tolerance
  3. Closed vocabularies: categories and levels are fixed sets; unknown
     values are caller errors, not data

SEE ALSO:
  - matcher.go: Requested-window to stored-step resolution
  - regions.go: County/state/subregion/region containment hierarchy
  - errors.go: Sentinel and structured errors
*/
package landuse

import "fmt"

// =============================================================================
// CATEGORIES - Fixed land-use vocabulary
// =============================================================================

// Category is one of the five land-use classes in the projection dataset.
type Category string

const (
	CategoryCrop    Category = "Crop"
	CategoryPasture Category = "Pasture"
	CategoryRange   Category = "Range"
	CategoryForest  Category = "Forest"
	CategoryUrban   Category = "Urban"
)

// Categories returns the full category vocabulary in stable order.
func Categories() []Category {
	return []Category{CategoryCrop, CategoryPasture, CategoryRange, CategoryForest, CategoryUrban}
}

// ParseCategory validates a caller-supplied category string.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &UnknownCategoryError{Value: s}
}

// =============================================================================
// AGGREGATION LEVELS
// =============================================================================

// Level is the geographic granularity of a rollup.
type Level string

const (
	LevelNational  Level = "national"
	LevelRegion    Level = "region"
	LevelSubregion Level = "subregion"
	LevelState     Level = "state"
	LevelCounty    Level = "county"
)

// Levels returns all aggregation levels, coarsest first.
func Levels() []Level {
	return []Level{LevelNational, LevelRegion, LevelSubregion, LevelState, LevelCounty}
}

// ParseLevel validates a caller-supplied level string.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels() {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// =============================================================================
// SCENARIOS
// =============================================================================

// EnsembleTag is the sentinel tag value marking the axis an ensemble
// scenario was averaged over.
const EnsembleTag = "ensemble"

// ScenarioTags is the explicit tagged record describing what drives a
// scenario: a global climate model, a warming (emissions) pathway, and a
// socioeconomic growth pathway.
type ScenarioTags struct {
	Model   string // climate model, e.g. "CNRM_CM5"
	Warming string // warming pathway, e.g. "rcp45"
	Growth  string // growth pathway, e.g. "ssp1"
}

// IsEnsemble reports whether any tag axis carries the ensemble sentinel.
func (t ScenarioTags) IsEnsemble() bool {
	return t.Model == EnsembleTag || t.Warming == EnsembleTag || t.Growth == EnsembleTag
}

// Scenario is one named projection run, or a synthetic average thereof.
// Immutable once created except for deletion-and-recreation as a unit.
type Scenario struct {
	ID          int64
	Name        string
	Tags        ScenarioTags
	Description string
}

// IsEnsemble reports whether this scenario was synthesized by the ensemble
// computer rather than ingested from source data.
func (s Scenario) IsEnsemble() bool { return s.Tags.IsEnsemble() }

// =============================================================================
// TIME STEPS
// =============================================================================

// TimeStep is one stored projection period. Intervals are half-open
// [StartYear, EndYear) and never overlap each other in the ingested data.
type TimeStep struct {
	ID        int64
	StartYear int
	EndYear   int
}

// Overlaps reports whether the step's interval intersects the half-open
// request [startYear, endYear).
func (ts TimeStep) Overlaps(startYear, endYear int) bool {
	return !(ts.EndYear <= startYear || ts.StartYear >= endYear)
}

// Distance is the interval distance |start-Start| + |end-End| used by the
// nearest-step fallback.
func (ts TimeStep) Distance(startYear, endYear int) int {
	return abs(startYear-ts.StartYear) + abs(endYear-ts.EndYear)
}

// Years is the span length, used for annualized rates.
func (ts TimeStep) Years() int { return ts.EndYear - ts.StartYear }

func (ts TimeStep) String() string {
	return fmt.Sprintf("[%d, %d)", ts.StartYear, ts.EndYear)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// =============================================================================
// TRANSITIONS - The fact records
// =============================================================================

// Transition is one recorded area movement between categories for one
// (scenario, time step, county). Acres is always non-negative; a loss is
// expressed as a movement into another category, never a negative quantity.
type Transition struct {
	ID         int64
	ScenarioID int64
	TimeStepID int64
	FIPS       string
	From       Category
	To         Category
	Acres      float64
}

// =============================================================================
// AGGREGATION RESULTS
// =============================================================================

// NetChange is one row of aggregator output: area gained minus area lost
// for a category at a location, over the resolved time steps.
type NetChange struct {
	Location string
	Category Category
	Acres    float64
}

// TransitionFlow is one from->to flow in the major-transitions report.
type TransitionFlow struct {
	From  Category
	To    Category
	Acres float64
	// Share is this flow's percentage of all change in the window.
	Share float64
}

// CountyChange ranks a county by net change for one category.
type CountyChange struct {
	FIPS      string
	Name      string
	NetChange float64
}

// ScenarioComparison is one side of a two-scenario comparison for a single
// category: total net change over the window plus the annualized rate.
type ScenarioComparison struct {
	Scenario   Scenario
	NetChange  float64
	AnnualRate float64
}
