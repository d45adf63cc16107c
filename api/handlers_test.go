package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/landshift/transition-engine/api"
	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testRegions = `
states:
  "01": {name: Alabama, abbr: AL}
  "13": {name: Georgia, abbr: GA}
regions:
  South:
    Southeast:
      - Alabama
      - Georgia
`

// newTestRouter builds a router over an in-memory store with two
// scenarios, two modeled intervals, and facts for scenario 1 only.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	regions, err := landuse.ParseRegionMap([]byte(testRegions))
	require.NoError(t, err)
	require.NoError(t, store.SeedRegions(ctx, regions))
	require.NoError(t, store.UpsertCounty(ctx, "01001", "Autauga County"))
	require.NoError(t, store.UpsertCounty(ctx, "13121", "Fulton County"))
	require.NoError(t, store.CreateTimeStep(ctx, landuse.TimeStep{ID: 1, StartYear: 2020, EndYear: 2030}))
	require.NoError(t, store.CreateTimeStep(ctx, landuse.TimeStep{ID: 2, StartYear: 2030, EndYear: 2040}))
	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: 1, Name: "CNRM_CM5_rcp45_ssp1",
		Tags: landuse.ScenarioTags{Model: "CNRM_CM5", Warming: "rcp45", Growth: "ssp1"},
	}))
	require.NoError(t, store.CreateScenario(ctx, landuse.Scenario{
		ID: 2, Name: "HadGEM2_ES365_rcp85_ssp2",
		Tags: landuse.ScenarioTags{Model: "HadGEM2_ES365", Warming: "rcp85", Growth: "ssp2"},
	}))
	require.NoError(t, store.InsertTransitions(ctx, []landuse.Transition{
		{ID: 1, ScenarioID: 1, TimeStepID: 1, FIPS: "01001",
			From: landuse.CategoryForest, To: landuse.CategoryUrban, Acres: 100},
		{ID: 2, ScenarioID: 1, TimeStepID: 1, FIPS: "13121",
			From: landuse.CategoryCrop, To: landuse.CategoryUrban, Acres: 40},
		{ID: 3, ScenarioID: 1, TimeStepID: 2, FIPS: "01001",
			From: landuse.CategoryForest, To: landuse.CategoryUrban, Acres: 60},
	}))

	return api.NewRouter(api.NewHandler(store, nil, nil), nil)
}

// doGet performs a request and decodes the JSON body into out.
func doGet(t *testing.T, router http.Handler, url string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

// =============================================================================
// DIMENSION ENDPOINTS
// =============================================================================

func TestListScenarios(t *testing.T) {
	router := newTestRouter(t)

	var got []api.ScenarioDTO
	code := doGet(t, router, "/api/scenarios", &got)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, got, 2)
	require.Equal(t, "CNRM_CM5_rcp45_ssp1", got[0].Name)
	require.Equal(t, "CNRM_CM5", got[0].Model)
	require.Equal(t, "rcp45", got[0].Warming)
	require.False(t, got[0].Ensemble)
}

func TestListTimeSteps(t *testing.T) {
	router := newTestRouter(t)

	var got []api.TimeStepDTO
	code := doGet(t, router, "/api/time-steps", &got)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, got, 2)
	require.Equal(t, 2020, got[0].StartYear)
	require.Equal(t, 2040, got[1].EndYear)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	var got api.HealthResponse
	code := doGet(t, router, "/api/health", &got)

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", got.Status)
	require.Equal(t, 2, got.Scenarios)
	require.Equal(t, 2, got.TimeSteps)
}

// =============================================================================
// NET CHANGE
// =============================================================================

func TestNetChange_NationalDefault(t *testing.T) {
	// GIVEN facts in two states
	router := newTestRouter(t)

	// WHEN querying without a level over the first interval
	var got api.NetChangeResponse
	code := doGet(t, router, "/api/net-change?scenario_id=1&year=2025", &got)

	// THEN the national rollup nets out per category
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "national", got.Level)
	require.False(t, got.PeriodFallback)
	require.Len(t, got.TimeSteps, 1)
	require.Equal(t, int64(1), got.TimeSteps[0].ID)

	byCategory := map[string]float64{}
	for _, row := range got.Rows {
		byCategory[row.Category] += row.Acres
	}
	require.InDelta(t, 140.0, byCategory["Urban"], 1e-9)
	require.InDelta(t, -100.0, byCategory["Forest"], 1e-9)
	require.InDelta(t, -40.0, byCategory["Crop"], 1e-9)
}

func TestNetChange_StateLevelWithFilter(t *testing.T) {
	router := newTestRouter(t)

	var got api.NetChangeResponse
	code := doGet(t, router,
		"/api/net-change?scenario_id=1&year=2025&level=state&location=Georgia&category=Urban", &got)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, got.Rows, 1)
	require.Equal(t, "Georgia", got.Rows[0].Location)
	require.InDelta(t, 40.0, got.Rows[0].Acres, 1e-9)
}

func TestNetChange_PeriodFallback(t *testing.T) {
	// GIVEN a year before every stored interval
	router := newTestRouter(t)

	// WHEN resolving it
	var got api.NetChangeResponse
	code := doGet(t, router, "/api/net-change?scenario_id=1&year=1990", &got)

	// THEN the nearest interval is substituted and flagged
	require.Equal(t, http.StatusOK, code)
	require.True(t, got.PeriodFallback)
	require.Len(t, got.TimeSteps, 1)
	require.Equal(t, int64(1), got.TimeSteps[0].ID)
}

func TestNetChange_EmptyWindowIsOK(t *testing.T) {
	// Scenario 2 has no facts; that is an empty result, not an error
	router := newTestRouter(t)

	var got api.NetChangeResponse
	code := doGet(t, router, "/api/net-change?scenario_id=2", &got)

	require.Equal(t, http.StatusOK, code)
	require.Empty(t, got.Rows)
}

func TestNetChange_Validation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing scenario id", "/api/net-change", http.StatusBadRequest},
		{"non-numeric scenario id", "/api/net-change?scenario_id=abc", http.StatusBadRequest},
		{"unknown scenario", "/api/net-change?scenario_id=999", http.StatusNotFound},
		{"invalid level", "/api/net-change?scenario_id=1&level=continental", http.StatusBadRequest},
		{"invalid category", "/api/net-change?scenario_id=1&category=Swamp", http.StatusBadRequest},
		{"inverted year range", "/api/net-change?scenario_id=1&start_year=2040&end_year=2020", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, doGet(t, router, tc.url, nil))
		})
	}
}

// =============================================================================
// FLOWS AND RANKINGS
// =============================================================================

func TestMajorTransitions(t *testing.T) {
	router := newTestRouter(t)

	var got api.MajorTransitionsResponse
	code := doGet(t, router, "/api/transitions/major?scenario_id=1&year=2025", &got)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, got.Flows, 2)
	require.Equal(t, "Forest", got.Flows[0].From)
	require.Equal(t, "Urban", got.Flows[0].To)
	require.InDelta(t, 100.0, got.Flows[0].Acres, 1e-9)
	// 100 of 140 acres moved in the window
	require.InDelta(t, 100.0*100.0/140.0, got.Flows[0].SharePercent, 1e-9)
}

func TestTopCounties(t *testing.T) {
	router := newTestRouter(t)

	var got api.TopCountiesResponse
	code := doGet(t, router,
		"/api/counties/top?scenario_id=1&year=2025&category=Urban&limit=1", &got)

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "increase", got.Direction)
	require.Len(t, got.Counties, 1)
	require.Equal(t, "01001", got.Counties[0].FIPS)
	require.Equal(t, "Autauga County", got.Counties[0].Name)
	require.InDelta(t, 100.0, got.Counties[0].NetChange, 1e-9)
}

func TestTopCounties_RejectsBadDirection(t *testing.T) {
	router := newTestRouter(t)

	code := doGet(t, router,
		"/api/counties/top?scenario_id=1&category=Urban&direction=sideways", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestCompare(t *testing.T) {
	router := newTestRouter(t)

	var got api.CompareResponse
	code := doGet(t, router,
		"/api/compare?scenario_a=1&scenario_b=2&category=Urban&year=2025", &got)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, got.Scenarios, 2)
	require.Equal(t, int64(1), got.Scenarios[0].Scenario.ID)
	require.InDelta(t, 140.0, got.Scenarios[0].NetChange, 1e-9)
	// 140 acres over a 10 year interval
	require.InDelta(t, 14.0, got.Scenarios[0].AnnualRate, 1e-9)
	require.InDelta(t, 0.0, got.Scenarios[1].NetChange, 1e-9)
}
