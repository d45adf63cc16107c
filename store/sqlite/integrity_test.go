package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/landshift/transition-engine/landuse"
)

func TestCheckIntegrity_Clean(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	// Mapped counties, steady area across consecutive periods
	insertAll(t, store, []landuse.Transition{
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 100),
		tr(1, 2, "01001", landuse.CategoryForest, landuse.CategoryUrban, 105),
		tr(1, 1, "13121", landuse.CategoryCrop, landuse.CategoryPasture, 50),
		tr(1, 2, "13121", landuse.CategoryCrop, landuse.CategoryPasture, 48),
	})

	report, err := store.CheckIntegrity(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, report.Clean(), "expected clean report, got %d violations", report.Total())
}

func TestCheckIntegrity_ContinuityBreak(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	// 01001's transitioning area collapses from 100 to 10 between periods,
	// far past the 10% tolerance. 13121 moves within tolerance.
	insertAll(t, store, []landuse.Transition{
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 100),
		tr(1, 2, "01001", landuse.CategoryForest, landuse.CategoryUrban, 10),
		tr(1, 1, "13121", landuse.CategoryCrop, landuse.CategoryPasture, 50),
		tr(1, 2, "13121", landuse.CategoryCrop, landuse.CategoryPasture, 54),
	})

	report, err := store.CheckIntegrity(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, report.ContinuityBreaks, 1)

	brk := report.ContinuityBreaks[0]
	require.Equal(t, "01001", brk.FIPS)
	require.Equal(t, 2020, brk.StartYear)
	require.Equal(t, 2030, brk.NextYear)
	require.InDelta(t, 90.0, brk.Delta, 1e-9)
}

func TestCheckIntegrity_SelfTransitionsIgnoredForContinuity(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	// A huge self-transition (area staying put) must not mask or trigger
	// continuity findings.
	insertAll(t, store, []landuse.Transition{
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryForest, 100000),
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 100),
		tr(1, 2, "01001", landuse.CategoryForest, landuse.CategoryUrban, 100),
	})

	report, err := store.CheckIntegrity(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, report.ContinuityBreaks)
}

func TestCheckIntegrity_UnmappedCounties(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	insertAll(t, store, []landuse.Transition{
		tr(1, 1, "99001", landuse.CategoryForest, landuse.CategoryUrban, 10),
		tr(1, 1, "01001", landuse.CategoryForest, landuse.CategoryUrban, 10),
	})

	report, err := store.CheckIntegrity(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"99001"}, report.UnmappedCounties)
	require.False(t, report.Clean())
}

func TestCheckIntegrity_UnknownScenario(t *testing.T) {
	store := newTestStore(t)
	seedDims(t, store)

	_, err := store.CheckIntegrity(context.Background(), 42)
	require.ErrorIs(t, err, landuse.ErrScenarioNotFound)
}
