/*
handlers.go - HTTP handlers for the rollup read API

PURPOSE:
  Exposes the transition store's aggregation queries over REST. Handles
  HTTP request/response, JSON serialization, and delegates to the store.

ENDPOINTS:
  GET /api/scenarios           List scenarios (dimension rows)
  GET /api/time-steps          List modeled intervals
  GET /api/net-change          Net change by location for one scenario
  GET /api/transitions/major   Largest from-to flows in a window
  GET /api/counties/top        Counties ranked by net change
  GET /api/compare             Two-scenario net change comparison
  GET /api/health              Liveness plus dimension counts

PERIOD RESOLUTION:
  Callers ask in years (year=2050, or start_year/end_year). The handler
  resolves those against the stored intervals: overlap match first, then
  nearest interval with period_fallback=true in the response. Requests
  never fail because a year falls between modeled intervals.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Scenario not found
  - 500: Internal errors
  An empty result set is a 200 with empty rows, never an error.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/observability"
	"github.com/landshift/transition-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Log     *zap.Logger
	Metrics *observability.Metrics
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store, log *zap.Logger, metrics *observability.Metrics) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Log: log, Metrics: metrics}
}

// =============================================================================
// DIMENSION HANDLERS
// =============================================================================

// ListScenarios returns all scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.Store.ListScenarios(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scenarios", err)
		return
	}
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, sc := range scenarios {
		dtos[i] = toScenarioDTO(sc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListTimeSteps returns all modeled intervals, ascending by start year.
// GET /api/time-steps
func (h *Handler) ListTimeSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.Store.ListTimeSteps(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list time steps", err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeStepDTOs(steps, nil))
}

// Health reports liveness and dimension counts.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.Store.ListScenarios(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Store unavailable", err)
		return
	}
	steps, err := h.Store.ListTimeSteps(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Scenarios: len(scenarios),
		TimeSteps: len(steps),
	})
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// NetChange returns the net acreage change by location for one scenario.
// GET /api/net-change?scenario_id=&year=|start_year=&end_year=&level=&location=&category=
func (h *Handler) NetChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	scenarioID, ok := h.requireScenario(w, r, q.Get("scenario_id"))
	if !ok {
		return
	}
	level := landuse.LevelNational
	if raw := q.Get("level"); raw != "" {
		var err error
		level, err = landuse.ParseLevel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid level", err)
			return
		}
	}
	var filter sqlite.Filter
	filter.Location = q.Get("location")
	if raw := q.Get("category"); raw != "" {
		cat, err := landuse.ParseCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid category", err)
			return
		}
		filter.Category = cat
	}

	stepIDs, steps, fallback, ok := h.resolvePeriod(w, r)
	if !ok {
		return
	}

	started := time.Now()
	rows, err := h.Store.Aggregate(ctx, scenarioID, stepIDs, level, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Aggregation failed", err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.AggregateDuration.Observe(time.Since(started).Seconds())
	}

	resp := NetChangeResponse{
		ScenarioID:     scenarioID,
		Level:          string(level),
		TimeSteps:      toTimeStepDTOs(steps, stepIDs),
		PeriodFallback: fallback,
		Rows:           make([]NetChangeDTO, len(rows)),
	}
	for i, row := range rows {
		resp.Rows[i] = NetChangeDTO{Location: row.Location, Category: string(row.Category), Acres: row.Acres}
	}
	writeJSON(w, http.StatusOK, resp)
}

// MajorTransitions returns the largest from-to flows in a window.
// GET /api/transitions/major?scenario_id=&year=&limit=
func (h *Handler) MajorTransitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scenarioID, ok := h.requireScenario(w, r, q.Get("scenario_id"))
	if !ok {
		return
	}
	limit := 10
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	stepIDs, steps, fallback, ok := h.resolvePeriod(w, r)
	if !ok {
		return
	}

	flows, err := h.Store.MajorTransitions(r.Context(), scenarioID, stepIDs, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Query failed", err)
		return
	}
	resp := MajorTransitionsResponse{
		ScenarioID:     scenarioID,
		TimeSteps:      toTimeStepDTOs(steps, stepIDs),
		PeriodFallback: fallback,
		Flows:          make([]TransitionFlowDTO, len(flows)),
	}
	for i, f := range flows {
		resp.Flows[i] = TransitionFlowDTO{
			From: string(f.From), To: string(f.To),
			Acres: f.Acres, SharePercent: f.Share,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// TopCounties ranks counties by net change for one category.
// GET /api/counties/top?scenario_id=&year=&category=&limit=&direction=increase|decrease
func (h *Handler) TopCounties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scenarioID, ok := h.requireScenario(w, r, q.Get("scenario_id"))
	if !ok {
		return
	}
	cat, err := landuse.ParseCategory(q.Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	direction := q.Get("direction")
	if direction == "" {
		direction = "increase"
	}
	if direction != "increase" && direction != "decrease" {
		writeError(w, http.StatusBadRequest, "Invalid direction, want increase or decrease", nil)
		return
	}
	limit := 10
	if raw := q.Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", convErr)
			return
		}
		limit = n
	}
	stepIDs, steps, fallback, ok := h.resolvePeriod(w, r)
	if !ok {
		return
	}

	counties, err := h.Store.TopCountiesByChange(r.Context(), scenarioID, stepIDs, cat, limit, direction)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Query failed", err)
		return
	}
	resp := TopCountiesResponse{
		ScenarioID:     scenarioID,
		Category:       string(cat),
		Direction:      direction,
		TimeSteps:      toTimeStepDTOs(steps, stepIDs),
		PeriodFallback: fallback,
		Counties:       make([]CountyChangeDTO, len(counties)),
	}
	for i, c := range counties {
		resp.Counties[i] = CountyChangeDTO{FIPS: c.FIPS, Name: c.Name, NetChange: c.NetChange}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Compare returns net change and annualized rate for two scenarios over
// the same window.
// GET /api/compare?scenario_a=&scenario_b=&category=&year=
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, ok := h.requireScenario(w, r, q.Get("scenario_a"))
	if !ok {
		return
	}
	b, ok := h.requireScenario(w, r, q.Get("scenario_b"))
	if !ok {
		return
	}
	cat, err := landuse.ParseCategory(q.Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	stepIDs, steps, fallback, ok := h.resolvePeriod(w, r)
	if !ok {
		return
	}

	comparisons, err := h.Store.CompareScenarios(r.Context(), [2]int64{a, b}, stepIDs, cat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Comparison failed", err)
		return
	}
	resp := CompareResponse{
		Category:       string(cat),
		TimeSteps:      toTimeStepDTOs(steps, stepIDs),
		PeriodFallback: fallback,
		Scenarios:      make([]ComparisonDTO, len(comparisons)),
	}
	for i, c := range comparisons {
		resp.Scenarios[i] = ComparisonDTO{
			Scenario:   toScenarioDTO(c.Scenario),
			NetChange:  c.NetChange,
			AnnualRate: c.AnnualRate,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// REQUEST PARSING HELPERS
// =============================================================================

// requireScenario parses and existence-checks a scenario id parameter.
// Writes the error response itself; the bool reports success.
func (h *Handler) requireScenario(w http.ResponseWriter, r *http.Request, raw string) (int64, bool) {
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing scenario id", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scenario id", err)
		return 0, false
	}
	if _, err := h.Store.ScenarioByID(r.Context(), id); err != nil {
		if errors.Is(err, landuse.ErrScenarioNotFound) {
			writeError(w, http.StatusNotFound, "Scenario not found", err)
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		}
		return 0, false
	}
	return id, true
}

// resolvePeriod turns year parameters into stored time step ids. With no
// year parameters the whole modeled span is used. Writes the error
// response itself; the bool reports success.
func (h *Handler) resolvePeriod(w http.ResponseWriter, r *http.Request) ([]int64, []landuse.TimeStep, bool, bool) {
	q := r.URL.Query()
	steps, err := h.Store.ListTimeSteps(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list time steps", err)
		return nil, nil, false, false
	}

	var (
		ids      []int64
		fallback bool
	)
	switch {
	case q.Get("year") != "":
		year, convErr := strconv.Atoi(q.Get("year"))
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", convErr)
			return nil, nil, false, false
		}
		ids, fallback, err = landuse.ResolveYear(steps, year)
	case q.Get("start_year") != "" || q.Get("end_year") != "":
		start, convErr := strconv.Atoi(q.Get("start_year"))
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_year", convErr)
			return nil, nil, false, false
		}
		end, convErr := strconv.Atoi(q.Get("end_year"))
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_year", convErr)
			return nil, nil, false, false
		}
		if end <= start {
			writeError(w, http.StatusBadRequest, "end_year must be after start_year", nil)
			return nil, nil, false, false
		}
		ids, fallback, err = landuse.ResolvePeriod(steps, start, end)
	default:
		for _, ts := range steps {
			ids = append(ids, ts.ID)
		}
	}
	if err != nil {
		if errors.Is(err, landuse.ErrNoTimeSteps) {
			writeError(w, http.StatusNotFound, "No time steps stored", err)
		} else {
			writeError(w, http.StatusInternalServerError, "Period resolution failed", err)
		}
		return nil, nil, false, false
	}
	if fallback {
		h.Log.Warn("requested period missed all stored intervals; nearest substituted",
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery))
		if h.Metrics != nil {
			h.Metrics.FallbackResolutions.Inc()
		}
	}
	return ids, steps, fallback, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func toScenarioDTO(sc landuse.Scenario) ScenarioDTO {
	return ScenarioDTO{
		ID:          sc.ID,
		Name:        sc.Name,
		Model:       sc.Tags.Model,
		Warming:     sc.Tags.Warming,
		Growth:      sc.Tags.Growth,
		Ensemble:    sc.IsEnsemble(),
		Description: sc.Description,
	}
}

// toTimeStepDTOs filters steps to the given ids; nil ids means all.
func toTimeStepDTOs(steps []landuse.TimeStep, ids []int64) []TimeStepDTO {
	keep := map[int64]bool{}
	for _, id := range ids {
		keep[id] = true
	}
	dtos := make([]TimeStepDTO, 0, len(steps))
	for _, ts := range steps {
		if ids != nil && !keep[ts.ID] {
			continue
		}
		dtos = append(dtos, TimeStepDTO{ID: ts.ID, StartYear: ts.StartYear, EndYear: ts.EndYear})
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
