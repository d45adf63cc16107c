package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testRegions is a three-state slice of the hierarchy, enough to exercise
// every rollup level.
const testRegions = `
states:
  "01": {name: Alabama, abbr: AL}
  "06": {name: California, abbr: CA}
  "13": {name: Georgia, abbr: GA}
regions:
  South:
    Southeast:
      - Alabama
      - Georgia
  Pacific Coast:
    Pacific Southwest:
      - California
`

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedDims loads the region slice, three mapped counties plus one
// unmapped, two time steps, and two scenarios.
func seedDims(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	regions, err := landuse.ParseRegionMap([]byte(testRegions))
	require.NoError(t, err)
	require.NoError(t, store.SeedRegions(ctx, regions))

	counties := map[string]string{
		"01001": "Autauga County",
		"06037": "Los Angeles County",
		"13121": "Fulton County",
		"99001": "Nowhere County", // no state row for prefix 99
	}
	for fips, name := range counties {
		require.NoError(t, store.UpsertCounty(ctx, fips, name))
	}

	require.NoError(t, store.CreateTimeStep(ctx, landuse.TimeStep{ID: 1, StartYear: 2020, EndYear: 2030}))
	require.NoError(t, store.CreateTimeStep(ctx, landuse.TimeStep{ID: 2, StartYear: 2030, EndYear: 2040}))

	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: 1, Name: "CNRM_CM5_rcp45_ssp1",
		Tags: landuse.ScenarioTags{Model: "CNRM_CM5", Warming: "rcp45", Growth: "ssp1"},
	}))
	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: 2, Name: "HadGEM2_ES365_rcp45_ssp1",
		Tags: landuse.ScenarioTags{Model: "HadGEM2_ES365", Warming: "rcp45", Growth: "ssp1"},
	}))
}

// tr builds a fact row; ids are assigned by insertAll.
func tr(scenarioID, stepID int64, fips string, from, to landuse.Category, acres float64) landuse.Transition {
	return landuse.Transition{
		ScenarioID: scenarioID,
		TimeStepID: stepID,
		FIPS:       fips,
		From:       from,
		To:         to,
		Acres:      acres,
	}
}

func insertAll(t *testing.T, store *sqlite.Store, batch []landuse.Transition) {
	t.Helper()
	ctx := context.Background()
	next, err := store.NextTransitionID(ctx)
	require.NoError(t, err)
	for i := range batch {
		batch[i].ID = next
		next++
	}
	require.NoError(t, store.InsertTransitions(ctx, batch))
}

// =============================================================================
// SCENARIO DIMENSION
// =============================================================================

func TestScenarioLookup(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)
	ctx := context.Background()

	sc, err := store.ScenarioByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "CNRM_CM5_rcp45_ssp1", sc.Name)
	require.Equal(t, "CNRM_CM5", sc.Tags.Model)

	byName, err := store.ScenarioByName(ctx, "HadGEM2_ES365_rcp45_ssp1")
	require.NoError(t, err)
	require.Equal(t, int64(2), byName.ID)

	_, err = store.ScenarioByID(ctx, 99)
	require.ErrorIs(t, err, landuse.ErrScenarioNotFound)
	_, err = store.ScenarioByName(ctx, "no_such_scenario")
	require.ErrorIs(t, err, landuse.ErrScenarioNotFound)
}

func TestListStates_MirrorsHierarchy(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	states, err := store.ListStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 3)
	require.Equal(t, "01", states[0].FIPS)
	require.Equal(t, "Alabama", states[0].Name)
	require.Equal(t, "Southeast", states[0].Subregion)
	require.Equal(t, "Pacific Coast", states[1].Region)
}

func TestScenarioNameUnique(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	err := store.CreateScenario(context.Background(), landuse.Scenario{
		ID: 3, Name: "CNRM_CM5_rcp45_ssp1",
		Tags: landuse.ScenarioTags{Model: "x", Warming: "y", Growth: "z"},
	})
	require.Error(t, err, "duplicate scenario name must be rejected")
}

func TestDeleteScenario_RemovesFacts(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)
	ctx := context.Background()

	insertAll(t, store, []landuse.Transition{
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 100),
		tr(2, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 50),
	})

	require.NoError(t, store.DeleteScenario(ctx, 1))

	_, err := store.ScenarioByID(ctx, 1)
	require.ErrorIs(t, err, landuse.ErrScenarioNotFound)
	n, err := store.CountTransitions(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, n, "facts must go with the scenario")

	// The other scenario's facts are untouched
	n, err = store.CountTransitions(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.ErrorIs(t, store.DeleteScenario(ctx, 1), landuse.ErrScenarioNotFound)
}

// =============================================================================
// ID ALLOCATION
// =============================================================================

func TestNextIDs_MaxPlusOne(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Empty database starts at 1
	id, err := store.NextScenarioID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	seedDims(t, store)

	id, err = store.NextScenarioID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), id)

	tid, err := store.NextTransitionID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), tid)

	insertAll(t, store, []landuse.Transition{
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 10),
	})
	tid, err = store.NextTransitionID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), tid)
}

// =============================================================================
// FACT TABLE CONSTRAINTS
// =============================================================================

func TestInsertTransitions_NegativeAcresRejected(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	batch := []landuse.Transition{tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, -5)}
	batch[0].ID = 1
	err := store.InsertTransitions(context.Background(), batch)
	require.Error(t, err, "acres >= 0 is a schema invariant")
}

func TestInsertTransitions_BatchIsAtomic(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)
	ctx := context.Background()

	// Second row violates the acres check; the whole batch must roll back.
	batch := []landuse.Transition{
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 10),
		tr(1, 1, "01001", landuse.CategoryCrop, landuse.CategoryUrban, -1),
	}
	batch[0].ID = 1
	batch[1].ID = 2
	require.Error(t, store.InsertTransitions(ctx, batch))

	n, err := store.CountTransitions(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, n)
}

// =============================================================================
// VERIFICATION
// =============================================================================

func TestVerifyScenario_PartialBuildDetected(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)
	ctx := context.Background()

	insertAll(t, store, []landuse.Transition{
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 10),
	})

	require.NoError(t, store.VerifyScenario(ctx, 1, 1))

	err := store.VerifyScenario(ctx, 1, 5)
	var partial *landuse.PartialBuildError
	require.True(t, errors.As(err, &partial))
	require.Equal(t, int64(5), partial.Expected)
	require.Equal(t, int64(1), partial.Actual)
}
