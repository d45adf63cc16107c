package ensemble_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/landshift/transition-engine/ensemble"
	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newBuildFixture seeds two contributing scenarios whose only shared key
// (01001, Forest->Urban, step 1) holds 10 and 20 acres.
func newBuildFixture(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, store.UpsertCounty(ctx, "01001", "Autauga County"))
	require.NoError(t, store.CreateTimeStep(ctx, landuse.TimeStep{ID: 1, StartYear: 2020, EndYear: 2030}))
	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: 1, Name: "CNRM_CM5_rcp45_ssp1",
		Tags: landuse.ScenarioTags{Model: "CNRM_CM5", Warming: "rcp45", Growth: "ssp1"},
	}))
	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: 2, Name: "NorESM1_M_rcp45_ssp1",
		Tags: landuse.ScenarioTags{Model: "NorESM1_M", Warming: "rcp45", Growth: "ssp1"},
	}))

	require.NoError(t, store.InsertTransitions(ctx, []landuse.Transition{
		{ID: 1, ScenarioID: 1, TimeStepID: 1, FIPS: "01001",
			From: landuse.CategoryForest, To: landuse.CategoryUrban, Acres: 10},
		{ID: 2, ScenarioID: 2, TimeStepID: 1, FIPS: "01001",
			From: landuse.CategoryForest, To: landuse.CategoryUrban, Acres: 20},
	}))
	return store
}

func overallGroup() ensemble.Group {
	return ensemble.Group{
		Name: "ensemble_overall",
		Tags: landuse.ScenarioTags{
			Model:   landuse.EnsembleTag,
			Warming: landuse.EnsembleTag,
			Growth:  landuse.EnsembleTag,
		},
		Contributing: []int64{1, 2},
	}
}

// meanAcres reads the single ensemble fact row back.
func meanAcres(t *testing.T, store *sqlite.Store, scenarioID int64) float64 {
	t.Helper()
	rows, err := store.Aggregate(context.Background(), scenarioID, []int64{1},
		landuse.LevelCounty, sqlite.Filter{Category: landuse.CategoryUrban})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0].Acres
}

// =============================================================================
// BUILD SEMANTICS
// =============================================================================

func TestBuild_MeanOfContributors(t *testing.T) {
	// GIVEN: 10 and 20 acres on the same (county, from, to, step) key
	// THEN: The ensemble row holds their mean, 15
	store := newBuildFixture(t)
	computer := ensemble.New(store)

	id, err := computer.Build(context.Background(), overallGroup(), false)
	require.NoError(t, err)
	require.Equal(t, int64(3), id, "ids allocate as max+1")

	sc, err := store.ScenarioByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, sc.IsEnsemble())
	require.Equal(t, "ensemble_overall", sc.Name)

	require.InDelta(t, 15.0, meanAcres(t, store, id), 1e-9)
}

func TestBuild_IdenticalContributorsPreserveValue(t *testing.T) {
	// Three scenarios reporting the same 100 acres must average to exactly
	// 100, not accumulate.
	store := newBuildFixture(t)
	ctx := context.Background()
	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: 3, Name: "IPSL_CM5A_MR_rcp45_ssp1",
		Tags: landuse.ScenarioTags{Model: "IPSL_CM5A_MR", Warming: "rcp45", Growth: "ssp1"},
	}))
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, store.InsertTransitions(ctx, []landuse.Transition{
			{ID: 10 + id, ScenarioID: id, TimeStepID: 1, FIPS: "01001",
				From: landuse.CategoryCrop, To: landuse.CategoryPasture, Acres: 100},
		}))
	}

	computer := ensemble.New(store, ensemble.WithLogger(zaptest.NewLogger(t)))
	g := overallGroup()
	g.Contributing = []int64{1, 2, 3}
	id, err := computer.Build(ctx, g, false)
	require.NoError(t, err)

	rows, err := store.Aggregate(ctx, id, []int64{1},
		landuse.LevelCounty, sqlite.Filter{Category: landuse.CategoryPasture})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 100.0, rows[0].Acres, 1e-9)
}

func TestBuild_ExistingNameNeedsForce(t *testing.T) {
	store := newBuildFixture(t)
	computer := ensemble.New(store)
	ctx := context.Background()

	first, err := computer.Build(ctx, overallGroup(), false)
	require.NoError(t, err)

	// Same name again without force: structured error naming the holder
	_, err = computer.Build(ctx, overallGroup(), false)
	var exists *landuse.ScenarioExistsError
	require.True(t, errors.As(err, &exists))
	require.Equal(t, first, exists.ID)
	require.ErrorIs(t, err, landuse.ErrScenarioExists)

	// The existing scenario was not touched
	n, err := store.CountTransitions(ctx, first)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestBuild_ForceRecreatesDeterministically(t *testing.T) {
	store := newBuildFixture(t)
	computer := ensemble.New(store)
	ctx := context.Background()

	first, err := computer.Build(ctx, overallGroup(), false)
	require.NoError(t, err)
	firstMean := meanAcres(t, store, first)

	second, err := computer.Build(ctx, overallGroup(), true)
	require.NoError(t, err)

	require.NotEqual(t, first, second, "recreate allocates a fresh id")
	_, err = store.ScenarioByID(ctx, first)
	require.ErrorIs(t, err, landuse.ErrScenarioNotFound, "old scenario is gone")

	require.InDelta(t, firstMean, meanAcres(t, store, second), 1e-9,
		"same contributors must produce identical values")
}

func TestBuild_EmptyGroupIsNoOp(t *testing.T) {
	store := newBuildFixture(t)
	computer := ensemble.New(store)

	g := overallGroup()
	g.Contributing = nil
	id, err := computer.Build(context.Background(), g, false)
	require.NoError(t, err)
	require.Zero(t, id)

	_, err = store.ScenarioByName(context.Background(), "ensemble_overall")
	require.ErrorIs(t, err, landuse.ErrScenarioNotFound, "no scenario row is created")
}

func TestBuild_SmallBatchesCoverAllRows(t *testing.T) {
	// A batch size smaller than the row count must still write everything
	// and pass verification.
	store := newBuildFixture(t)
	ctx := context.Background()

	// Widen the fixture: a second county on both contributors
	require.NoError(t, store.UpsertCounty(ctx, "13121", "Fulton County"))
	require.NoError(t, store.InsertTransitions(ctx, []landuse.Transition{
		{ID: 3, ScenarioID: 1, TimeStepID: 1, FIPS: "13121",
			From: landuse.CategoryCrop, To: landuse.CategoryUrban, Acres: 8},
		{ID: 4, ScenarioID: 2, TimeStepID: 1, FIPS: "13121",
			From: landuse.CategoryCrop, To: landuse.CategoryUrban, Acres: 12},
	}))

	computer := ensemble.New(store, ensemble.WithBatchSize(1))
	id, err := computer.Build(ctx, overallGroup(), false)
	require.NoError(t, err)

	n, err := store.CountTransitions(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, computer.Verify(ctx, overallGroup()))
}

// =============================================================================
// VERIFICATION
// =============================================================================

func TestVerify_DetectsMissingRows(t *testing.T) {
	store := newBuildFixture(t)
	computer := ensemble.New(store)
	ctx := context.Background()

	id, err := computer.Build(ctx, overallGroup(), false)
	require.NoError(t, err)
	require.NoError(t, computer.Verify(ctx, overallGroup()))

	// Simulate a build that died mid-batch by removing the scenario's rows
	// and recreating the dimension row alone.
	require.NoError(t, store.DeleteScenario(ctx, id))
	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: id, Name: "ensemble_overall",
		Tags: landuse.ScenarioTags{
			Model:   landuse.EnsembleTag,
			Warming: landuse.EnsembleTag,
			Growth:  landuse.EnsembleTag,
		},
	}))

	err = computer.Verify(ctx, overallGroup())
	var partial *landuse.PartialBuildError
	require.True(t, errors.As(err, &partial))
	require.Equal(t, int64(1), partial.Expected)
	require.Equal(t, int64(0), partial.Actual)
}
