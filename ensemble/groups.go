/*
groups.go - Grouping rules over existing scenarios

PURPOSE:
  An ensemble scenario averages transition acreage over a defined group of
  existing scenarios. The variants differ only in which scenarios
  contribute and which tag axis is replaced by the ensemble sentinel:

    Overall         every non-ensemble scenario; all three tags sentinel
    AcrossWarming   hold (model, growth) fixed, average warming pathways
    AcrossGrowth    hold (model, warming) fixed, average growth pathways

  Grouping reads the explicit scenario tags only - names are labels, never
  parsed.
*/
package ensemble

import (
	"fmt"
	"sort"

	"github.com/landshift/transition-engine/landuse"
)

// Group selects the contributing scenarios for one ensemble build and
// describes the scenario row the build will create.
type Group struct {
	Name         string
	Tags         landuse.ScenarioTags
	Description  string
	Contributing []int64
}

// Overall groups every non-ensemble scenario into a single grand mean.
func Overall(scenarios []landuse.Scenario) Group {
	g := Group{
		Name: "ensemble_overall",
		Tags: landuse.ScenarioTags{
			Model:   landuse.EnsembleTag,
			Warming: landuse.EnsembleTag,
			Growth:  landuse.EnsembleTag,
		},
		Description: "Mean transition acreage across all scenarios",
	}
	for _, sc := range scenarios {
		if sc.IsEnsemble() {
			continue
		}
		g.Contributing = append(g.Contributing, sc.ID)
	}
	return g
}

// AcrossWarming builds one group per (model, growth) pair, averaging over
// that pair's warming pathways. The warming tag becomes the sentinel.
func AcrossWarming(scenarios []landuse.Scenario) []Group {
	return axisGroups(scenarios,
		func(t landuse.ScenarioTags) [2]string { return [2]string{t.Model, t.Growth} },
		func(key [2]string) Group {
			return Group{
				Name: fmt.Sprintf("ensemble_%s_%s", key[0], key[1]),
				Tags: landuse.ScenarioTags{
					Model:   key[0],
					Warming: landuse.EnsembleTag,
					Growth:  key[1],
				},
				Description: fmt.Sprintf("Mean across warming pathways for %s / %s", key[0], key[1]),
			}
		})
}

// AcrossGrowth builds one group per (model, warming) pair, averaging over
// that pair's growth pathways. The growth tag becomes the sentinel.
func AcrossGrowth(scenarios []landuse.Scenario) []Group {
	return axisGroups(scenarios,
		func(t landuse.ScenarioTags) [2]string { return [2]string{t.Model, t.Warming} },
		func(key [2]string) Group {
			return Group{
				Name: fmt.Sprintf("ensemble_%s_%s", key[0], key[1]),
				Tags: landuse.ScenarioTags{
					Model:   key[0],
					Warming: key[1],
					Growth:  landuse.EnsembleTag,
				},
				Description: fmt.Sprintf("Mean across growth pathways for %s / %s", key[0], key[1]),
			}
		})
}

// axisGroups partitions non-ensemble scenarios by a fixed-tag key, in
// deterministic key order.
func axisGroups(scenarios []landuse.Scenario, keyOf func(landuse.ScenarioTags) [2]string, makeGroup func([2]string) Group) []Group {
	byKey := make(map[[2]string][]int64)
	for _, sc := range scenarios {
		if sc.IsEnsemble() {
			continue
		}
		k := keyOf(sc.Tags)
		byKey[k] = append(byKey[k], sc.ID)
	}

	keys := make([][2]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		g := makeGroup(k)
		ids := byKey[k]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		g.Contributing = ids
		groups = append(groups, g)
	}
	return groups
}
