/*
integrity.go - Integrity report structures

PURPOSE:
  Validation passes over the fact table collect violations into a report
  instead of aborting on the first finding. Nothing here auto-corrects
  data: upstream rounding can legitimately produce small inconsistencies,
  so continuity is checked, not enforced.

CHECKS REPRESENTED:
  - Negative acreage (hard invariant: acres >= 0)
  - Duplicate unique keys: scenario_name, fips_code, (start_year, end_year)
  - Cross-period area continuity: the area leaving a category in one step
    should approximately match the area carried to the next
  - Counties whose FIPS prefix resolves to no known state

SEE ALSO:
  - store/sqlite/integrity.go: The scan queries that populate this report
*/
package landuse

// NegativeAcres identifies one fact row violating the acres >= 0 invariant.
type NegativeAcres struct {
	TransitionID int64
	FIPS         string
	TimeStep     TimeStep
	From         Category
	To           Category
	Acres        float64
}

// DuplicateKey reports a uniqueness violation in a dimension table.
type DuplicateKey struct {
	Table string // "scenarios", "counties", "time_steps"
	Key   string // the duplicated value, rendered as text
	Count int64
}

// ContinuityBreak reports a county whose total transitioning area shifts by
// more than the tolerated fraction between consecutive periods.
type ContinuityBreak struct {
	FIPS      string
	StartYear int
	NextYear  int
	// Delta is |area(step) - area(next)| in acres, computed with exact
	// decimal accumulation so sub-acre drift is not masked by float error.
	Delta float64
}

// IntegrityReport collects every violation found by a read-only check pass.
type IntegrityReport struct {
	ScenarioID       int64
	NegativeAcres    []NegativeAcres
	DuplicateKeys    []DuplicateKey
	ContinuityBreaks []ContinuityBreak
	UnmappedCounties []string
}

// Clean reports whether the pass found nothing to flag.
func (r *IntegrityReport) Clean() bool {
	return len(r.NegativeAcres) == 0 &&
		len(r.DuplicateKeys) == 0 &&
		len(r.ContinuityBreaks) == 0 &&
		len(r.UnmappedCounties) == 0
}

// Total returns the number of violations across all checks.
func (r *IntegrityReport) Total() int {
	return len(r.NegativeAcres) + len(r.DuplicateKeys) + len(r.ContinuityBreaks) + len(r.UnmappedCounties)
}
