package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/seed"
	"github.com/landshift/transition-engine/store/sqlite"
)

// =============================================================================
// EMBEDDED HIERARCHY
// =============================================================================

func TestRegions_EmbeddedHierarchyIsComplete(t *testing.T) {
	regions, err := seed.Regions()
	require.NoError(t, err)

	// 50 states plus DC
	require.Equal(t, 51, regions.Len())

	st, err := regions.StateForCounty("01001")
	require.NoError(t, err)
	require.Equal(t, "Alabama", st.Name)
	require.Equal(t, "South", st.Region)
	require.Equal(t, "Southeast", st.Subregion)

	// ParseRegionMap already rejects unplaced states; spot-check a few
	// placements across the four regions.
	for _, tc := range []struct {
		fips, region, subregion string
	}{
		{"36", "North", "Northeast"},
		{"17", "North", "North Central"},
		{"48", "South", "South Central"},
		{"20", "Rocky Mountain", "Great Plains"},
		{"08", "Rocky Mountain", "Intermountain"},
		{"53", "Pacific Coast", "Pacific Northwest"},
		{"06", "Pacific Coast", "Pacific Southwest"},
		{"02", "Pacific Coast", "Alaska"},
	} {
		st, err := regions.StateForCounty(tc.fips + "001")
		require.NoError(t, err, "prefix %s", tc.fips)
		require.Equal(t, tc.region, st.Region, "prefix %s", tc.fips)
		require.Equal(t, tc.subregion, st.Subregion, "prefix %s", tc.fips)
	}
}

// =============================================================================
// DEMO DATASET
// =============================================================================

func TestScenarios_MatrixOrderAndTags(t *testing.T) {
	scenarios := seed.Scenarios()
	require.Len(t, scenarios, len(seed.Models)*len(seed.Pathways))

	require.Equal(t, int64(1), scenarios[0].ID)
	require.Equal(t, "CNRM_CM5_rcp45_ssp1", scenarios[0].Name)
	require.Equal(t, "NorESM1_M_rcp85_ssp5", scenarios[len(scenarios)-1].Name)

	for _, sc := range scenarios {
		require.False(t, sc.IsEnsemble(), "%s must be a raw model run", sc.Name)
		require.Equal(t, sc.Tags.Model+"_"+sc.Tags.Warming+"_"+sc.Tags.Growth, sc.Name)
	}
}

func TestLoad_PopulatesAllDimensions(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, seed.Load(ctx, store, nil))

	scenarios, err := store.ListScenarios(ctx)
	require.NoError(t, err)
	require.Len(t, scenarios, 20)

	steps, err := store.ListTimeSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 6)
	require.Equal(t, 2012, steps[0].StartYear)
	require.Equal(t, 2070, steps[5].EndYear)

	// 14 counties * 6 steps * 20 ordered category pairs per scenario
	nextID, err := store.NextTransitionID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(20*14*6*20+1), nextID)
}

func TestLoad_GeneratedFactsConserveAcreage(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, seed.Load(ctx, store, nil))

	steps, err := store.ListTimeSteps(ctx)
	require.NoError(t, err)
	stepIDs := make([]int64, len(steps))
	for i, ts := range steps {
		stepIDs[i] = ts.ID
	}

	rows, err := store.Aggregate(ctx, 1, stepIDs, landuse.LevelCounty, sqlite.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	net := map[string]float64{}
	for _, row := range rows {
		net[row.Location] += row.Acres
	}
	for loc, sum := range net {
		require.InDelta(t, 0.0, sum, 0.1, "county %s must net to zero", loc)
	}

	report, err := store.CheckIntegrity(ctx, 1)
	require.NoError(t, err)
	require.True(t, report.Clean(), "generated facts must pass every integrity scan")
}

func TestLoad_IsDeterministic(t *testing.T) {
	ctx := context.Background()
	national := func(t *testing.T) []landuse.NetChange {
		t.Helper()
		store, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		require.NoError(t, seed.Load(ctx, store, nil))
		rows, err := store.Aggregate(ctx, 7, []int64{1, 2, 3}, landuse.LevelNational, sqlite.Filter{})
		require.NoError(t, err)
		return rows
	}

	first := national(t)
	second := national(t)
	require.Equal(t, first, second, "two seeded databases must agree row for row")
}
