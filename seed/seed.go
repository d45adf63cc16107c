/*
Package seed ships the static dimension data and a deterministic demo
dataset.

PURPOSE:
  Two jobs. First, the canonical region hierarchy (regions.yml, embedded)
  that every deployment loads into the states dimension table. Second, a
  reproducible demo dataset - the full scenario matrix of 5 climate models
  by 4 pathway combinations over 6 modeled intervals - so the query API,
  ensemble builds, and derived tables can be exercised without the real
  projection files.

DETERMINISM:
  The demo transitions come from a fixed-seed generator. Two seeded
  databases are row-for-row identical, which the equivalence and ensemble
  tests rely on.

CONSERVATION:
  Per-county net change sums to zero by construction: every generated
  acre leaves one category and enters another, so gains and losses cancel
  when summed over categories at any rollup level.
*/
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/store/sqlite"
)

//go:embed regions.yml
var regionsYAML []byte

// Regions returns the embedded state and region hierarchy.
func Regions() (*landuse.RegionMap, error) {
	return landuse.ParseRegionMap(regionsYAML)
}

// =============================================================================
// DEMO SCENARIO MATRIX
// =============================================================================

// Models are the five climate models of the demo matrix.
var Models = []string{"CNRM_CM5", "HadGEM2_ES365", "IPSL_CM5A_MR", "MRI_CGCM3", "NorESM1_M"}

// Pathways are the four warming/growth combinations each model is run under.
var Pathways = []struct {
	Warming string
	Growth  string
}{
	{"rcp45", "ssp1"},
	{"rcp85", "ssp2"},
	{"rcp85", "ssp3"},
	{"rcp85", "ssp5"},
}

// timeSpans are the modeled intervals: one calibration span then decades.
var timeSpans = [][2]int{
	{2012, 2020},
	{2020, 2030},
	{2030, 2040},
	{2040, 2050},
	{2050, 2060},
	{2060, 2070},
}

// demoCounties is a geographically spread sample: at least one county in
// every region and subregion of the hierarchy, so all rollup levels have
// data.
var demoCounties = []struct {
	FIPS string
	Name string
}{
	{"01001", "Autauga County"},
	{"06037", "Los Angeles County"},
	{"08031", "Denver County"},
	{"12086", "Miami-Dade County"},
	{"13121", "Fulton County"},
	{"17031", "Cook County"},
	{"20173", "Sedgwick County"},
	{"26161", "Washtenaw County"},
	{"36061", "New York County"},
	{"37183", "Wake County"},
	{"41051", "Multnomah County"},
	{"48453", "Travis County"},
	{"53033", "King County"},
	{"56025", "Natrona County"},
}

const demoSeed = 42

// Load populates an empty store with the demo dataset: region hierarchy,
// counties, time steps, the 20-scenario matrix, and deterministic
// transition facts. It is not idempotent; run it against a fresh database.
func Load(ctx context.Context, store *sqlite.Store, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	regions, err := Regions()
	if err != nil {
		return err
	}
	if err := store.SeedRegions(ctx, regions); err != nil {
		return fmt.Errorf("seed regions: %w", err)
	}
	for _, c := range demoCounties {
		if err := store.UpsertCounty(ctx, c.FIPS, c.Name); err != nil {
			return fmt.Errorf("seed county %s: %w", c.FIPS, err)
		}
	}

	steps := make([]landuse.TimeStep, len(timeSpans))
	for i, span := range timeSpans {
		steps[i] = landuse.TimeStep{ID: int64(i + 1), StartYear: span[0], EndYear: span[1]}
		if err := store.CreateTimeStep(ctx, steps[i]); err != nil {
			return fmt.Errorf("seed time step %s: %w", steps[i], err)
		}
	}

	scenarios := Scenarios()
	for _, sc := range scenarios {
		if err := store.CreateScenario(ctx, sc); err != nil {
			return fmt.Errorf("seed scenario %q: %w", sc.Name, err)
		}
	}

	rng := rand.New(rand.NewSource(demoSeed))
	var nextID int64 = 1
	var total int64
	for _, sc := range scenarios {
		batch := generateScenario(rng, sc, steps, &nextID)
		if err := store.InsertTransitions(ctx, batch); err != nil {
			return fmt.Errorf("seed transitions for %q: %w", sc.Name, err)
		}
		total += int64(len(batch))
	}

	log.Info("demo dataset loaded",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("counties", len(demoCounties)),
		zap.Int("time_steps", len(steps)),
		zap.Int64("transitions", total))
	return nil
}

// Scenarios returns the demo scenario matrix with ids pre-assigned in
// matrix order (model-major).
func Scenarios() []landuse.Scenario {
	var out []landuse.Scenario
	id := int64(1)
	for _, model := range Models {
		for _, p := range Pathways {
			out = append(out, landuse.Scenario{
				ID:   id,
				Name: fmt.Sprintf("%s_%s_%s", model, p.Warming, p.Growth),
				Tags: landuse.ScenarioTags{Model: model, Warming: p.Warming, Growth: p.Growth},
				Description: fmt.Sprintf("%s climate model under %s warming and %s growth",
					model, p.Warming, p.Growth),
			})
			id++
		}
	}
	return out
}

// generateScenario emits one scenario's facts: every county gets a full
// from-to matrix per time step. The base flow per (county, from, to) is
// fixed for the scenario and each step applies a small jitter, so
// consecutive steps move similar total acreage per county.
func generateScenario(rng *rand.Rand, sc landuse.Scenario, steps []landuse.TimeStep, nextID *int64) []landuse.Transition {
	cats := landuse.Categories()
	var out []landuse.Transition

	for _, county := range demoCounties {
		// Fixed per-pair base flows in the 50 to 550 acre range.
		base := make(map[[2]landuse.Category]float64)
		for _, from := range cats {
			for _, to := range cats {
				if from == to {
					continue
				}
				base[[2]landuse.Category{from, to}] = 50 + rng.Float64()*500
			}
		}
		for _, step := range steps {
			// Keep adjacent steps within the continuity tolerance.
			jitter := 0.98 + rng.Float64()*0.04
			for _, from := range cats {
				for _, to := range cats {
					if from == to {
						continue
					}
					out = append(out, landuse.Transition{
						ID:         *nextID,
						ScenarioID: sc.ID,
						TimeStepID: step.ID,
						FIPS:       county.FIPS,
						From:       from,
						To:         to,
						Acres:      base[[2]landuse.Category{from, to}] * jitter,
					})
					*nextID++
				}
			}
		}
	}
	return out
}
