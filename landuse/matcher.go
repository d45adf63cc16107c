/*
matcher.go - Requested-window to stored-step resolution

PURPOSE:
  Callers ask for net change over an arbitrary [startYear, endYear) window,
  but the fact table only stores a fixed set of projection periods. This
  file resolves a requested window to the stored time steps to aggregate
  over.

ALGORITHM:
  1. Select every stored step whose interval intersects the request.
     A step is rejected only when stored.end <= start OR stored.start >= end.
  2. If nothing intersects, fall back to the single stored step minimizing
     |start - stored.start| + |end - stored.end|, ties broken by lowest id.
     Callers outside the dataset's span get a best-effort answer instead of
     an empty one, and the fallback flag tells them the match is inexact.
  3. An empty step list is fatal - the dataset was never ingested.

SEE ALSO:
  - types.go: TimeStep.Overlaps / TimeStep.Distance
*/
package landuse

import "sort"

// ResolvePeriod maps a requested half-open [startYear, endYear) window to
// the stored time steps to aggregate over. fallback is true when no stored
// step intersects the request and the nearest step was substituted; callers
// should surface that so results are not mistaken for an exact match.
func ResolvePeriod(steps []TimeStep, startYear, endYear int) (ids []int64, fallback bool, err error) {
	if len(steps) == 0 {
		return nil, false, ErrNoTimeSteps
	}

	for _, ts := range steps {
		if ts.Overlaps(startYear, endYear) {
			ids = append(ids, ts.ID)
		}
	}
	if len(ids) > 0 {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids, false, nil
	}

	// Nearest-interval fallback. Deterministic: lowest id wins ties.
	best := steps[0]
	for _, ts := range steps[1:] {
		d, bd := ts.Distance(startYear, endYear), best.Distance(startYear, endYear)
		if d < bd || (d == bd && ts.ID < best.ID) {
			best = ts
		}
	}
	return []int64{best.ID}, true, nil
}

// ResolveYear is the single-year convenience used by the read API: a
// request for year Y means the window [Y, Y+1).
func ResolveYear(steps []TimeStep, year int) (ids []int64, fallback bool, err error) {
	return ResolvePeriod(steps, year, year+1)
}
