package landuse_test

import (
	"testing"

	"github.com/landshift/transition-engine/landuse"
)

func TestParseCategory(t *testing.T) {
	for _, c := range landuse.Categories() {
		got, err := landuse.ParseCategory(string(c))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c, err)
		}
		if got != c {
			t.Errorf("expected %s, got %s", c, got)
		}
	}

	if _, err := landuse.ParseCategory("Wetland"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestParseLevel(t *testing.T) {
	for _, l := range landuse.Levels() {
		got, err := landuse.ParseLevel(string(l))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", l, err)
		}
		if got != l {
			t.Errorf("expected %s, got %s", l, got)
		}
	}

	if _, err := landuse.ParseLevel("continent"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestScenarioTags_IsEnsemble(t *testing.T) {
	regular := landuse.ScenarioTags{Model: "CNRM_CM5", Warming: "rcp45", Growth: "ssp1"}
	if regular.IsEnsemble() {
		t.Error("regular scenario must not report as ensemble")
	}

	// The sentinel on any axis marks an ensemble
	cases := []landuse.ScenarioTags{
		{Model: landuse.EnsembleTag, Warming: "rcp45", Growth: "ssp1"},
		{Model: "CNRM_CM5", Warming: landuse.EnsembleTag, Growth: "ssp1"},
		{Model: "CNRM_CM5", Warming: "rcp45", Growth: landuse.EnsembleTag},
	}
	for _, tags := range cases {
		if !tags.IsEnsemble() {
			t.Errorf("%+v must report as ensemble", tags)
		}
	}
}

func TestTimeStep_Overlaps(t *testing.T) {
	ts := landuse.TimeStep{ID: 1, StartYear: 2020, EndYear: 2030}

	cases := []struct {
		start, end int
		want       bool
	}{
		{2020, 2030, true},  // exact
		{2025, 2026, true},  // inside
		{2015, 2025, true},  // straddles start
		{2029, 2035, true},  // straddles end
		{2010, 2020, false}, // touches start only
		{2030, 2040, false}, // touches end only
		{2000, 2010, false}, // disjoint
	}
	for _, c := range cases {
		if got := ts.Overlaps(c.start, c.end); got != c.want {
			t.Errorf("Overlaps(%d, %d) = %v, want %v", c.start, c.end, got, c.want)
		}
	}
}
