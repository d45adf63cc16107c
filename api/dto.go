/*
dto.go - request/response data structures

PURPOSE:
  JSON shapes for the read API. These are deliberately separate from the
  domain types: the wire format is a public contract and the domain types
  are free to change underneath it.

CONVENTIONS:
  - snake_case field names
  - acreage values as plain numbers (acres)
  - every period-resolved response carries the resolved time steps and a
    period_fallback flag so callers can tell when their requested window
    missed every stored interval and a nearest one was substituted

SEE ALSO:
  - handlers.go: where these are populated
*/
package api

// ScenarioDTO is a scenario dimension row.
type ScenarioDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	Warming     string `json:"warming"`
	Growth      string `json:"growth"`
	Ensemble    bool   `json:"ensemble"`
	Description string `json:"description,omitempty"`
}

// TimeStepDTO is a modeled interval.
type TimeStepDTO struct {
	ID        int64 `json:"id"`
	StartYear int   `json:"start_year"`
	EndYear   int   `json:"end_year"`
}

// NetChangeDTO is one location's net acreage change for one category.
type NetChangeDTO struct {
	Location string  `json:"location"`
	Category string  `json:"category"`
	Acres    float64 `json:"acres"`
}

// NetChangeResponse is the net-change query result plus period resolution
// detail.
type NetChangeResponse struct {
	ScenarioID     int64          `json:"scenario_id"`
	Level          string         `json:"level"`
	TimeSteps      []TimeStepDTO  `json:"time_steps"`
	PeriodFallback bool           `json:"period_fallback"`
	Rows           []NetChangeDTO `json:"rows"`
}

// TransitionFlowDTO is one from-to flow with its share of window volume.
type TransitionFlowDTO struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Acres        float64 `json:"acres"`
	SharePercent float64 `json:"share_percent"`
}

// MajorTransitionsResponse lists the largest flows in a window.
type MajorTransitionsResponse struct {
	ScenarioID     int64               `json:"scenario_id"`
	TimeSteps      []TimeStepDTO       `json:"time_steps"`
	PeriodFallback bool                `json:"period_fallback"`
	Flows          []TransitionFlowDTO `json:"flows"`
}

// CountyChangeDTO is one county's net change for a category.
type CountyChangeDTO struct {
	FIPS      string  `json:"fips"`
	Name      string  `json:"name"`
	NetChange float64 `json:"net_change"`
}

// TopCountiesResponse ranks counties by net change.
type TopCountiesResponse struct {
	ScenarioID     int64             `json:"scenario_id"`
	Category       string            `json:"category"`
	Direction      string            `json:"direction"`
	TimeSteps      []TimeStepDTO     `json:"time_steps"`
	PeriodFallback bool              `json:"period_fallback"`
	Counties       []CountyChangeDTO `json:"counties"`
}

// ComparisonDTO is one side of a scenario comparison.
type ComparisonDTO struct {
	Scenario   ScenarioDTO `json:"scenario"`
	NetChange  float64     `json:"net_change"`
	AnnualRate float64     `json:"annual_rate"`
}

// CompareResponse holds both sides of a two-scenario comparison.
type CompareResponse struct {
	Category       string          `json:"category"`
	TimeSteps      []TimeStepDTO   `json:"time_steps"`
	PeriodFallback bool            `json:"period_fallback"`
	Scenarios      []ComparisonDTO `json:"scenarios"`
}

// HealthResponse reports service liveness and dimension counts.
type HealthResponse struct {
	Status    string `json:"status"`
	Scenarios int    `json:"scenarios"`
	TimeSteps int    `json:"time_steps"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
