/*
regions.go - Geographic containment hierarchy

PURPOSE:
  Counties roll up to states, states to subregions, subregions to regions.
  The state is derived from the first two characters of a county's 5-digit
  FIPS code; the state -> subregion -> region placement comes from a static
  YAML mapping loaded once at startup.

INVARIANTS:
  - Every county FIPS prefix must resolve to exactly one state
  - Every state must sit in exactly one subregion and one region
  - A county that cannot be resolved is reported (reduced result set plus
    an ErrUnresolvedCounty), never silently dropped and never a hard
    failure of the whole aggregation

CONFIG FORMAT (regions.yml):
  states:
    "01": {name: Alabama, abbr: AL}
    ...
  regions:
    South:
      Southeast: [Alabama, Florida, Georgia, ...]
      South Central: [...]

SEE ALSO:
  - seed/regions.yml: The shipped mapping for the conterminous US
  - store/sqlite: Mirrors the hierarchy into the states dimension table so
    rollup SQL can join on the FIPS prefix
*/
package landuse

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// State is one state-level node of the containment hierarchy.
type State struct {
	FIPS      string // 2-character FIPS prefix
	Name      string
	Abbr      string
	Subregion string
	Region    string
}

// RegionMap is the loaded, validated containment hierarchy.
type RegionMap struct {
	byPrefix map[string]State
	byName   map[string]State
}

type regionConfig struct {
	States map[string]struct {
		Name string `yaml:"name"`
		Abbr string `yaml:"abbr"`
	} `yaml:"states"`
	Regions map[string]map[string][]string `yaml:"regions"`
}

// LoadRegionMap reads and validates the hierarchy from a YAML file.
func LoadRegionMap(path string) (*RegionMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region config: %w", err)
	}
	return ParseRegionMap(raw)
}

// ParseRegionMap builds the hierarchy from YAML bytes.
func ParseRegionMap(raw []byte) (*RegionMap, error) {
	var cfg regionConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse region config: %w", err)
	}

	// State name -> (region, subregion), rejecting double placement.
	placement := make(map[string][2]string)
	for region, subregions := range cfg.Regions {
		for subregion, states := range subregions {
			for _, name := range states {
				if prev, dup := placement[name]; dup {
					return nil, fmt.Errorf("state %q placed in both %s/%s and %s/%s",
						name, prev[0], prev[1], region, subregion)
				}
				placement[name] = [2]string{region, subregion}
			}
		}
	}

	m := &RegionMap{
		byPrefix: make(map[string]State, len(cfg.States)),
		byName:   make(map[string]State, len(cfg.States)),
	}
	for prefix, s := range cfg.States {
		if len(prefix) != 2 {
			return nil, fmt.Errorf("state FIPS prefix %q is not 2 characters", prefix)
		}
		place, ok := placement[s.Name]
		if !ok {
			return nil, fmt.Errorf("state %q has no region/subregion placement", s.Name)
		}
		st := State{FIPS: prefix, Name: s.Name, Abbr: s.Abbr, Region: place[0], Subregion: place[1]}
		m.byPrefix[prefix] = st
		m.byName[s.Name] = st
	}
	return m, nil
}

// StateForCounty resolves a county FIPS code to its containing state.
func (m *RegionMap) StateForCounty(fips string) (State, error) {
	if len(fips) < 2 {
		return State{}, fmt.Errorf("%w: malformed FIPS code %q", ErrUnresolvedCounty, fips)
	}
	st, ok := m.byPrefix[fips[:2]]
	if !ok {
		return State{}, fmt.Errorf("%w: no state for FIPS prefix %q", ErrUnresolvedCounty, fips[:2])
	}
	return st, nil
}

// States returns every state in the hierarchy, in unspecified order.
func (m *RegionMap) States() []State {
	out := make([]State, 0, len(m.byPrefix))
	for _, st := range m.byPrefix {
		out = append(out, st)
	}
	return out
}

// Len returns the number of mapped states.
func (m *RegionMap) Len() int { return len(m.byPrefix) }
