package tzstream

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrInvalidData is matched by every error returned from Validate.
var ErrInvalidData = errors.New("tzstream: invalid data")

// Rule names a referential integrity check performed by Validate.
type Rule string

// Rules in the order Validate checks them.
const (
	RuleAliasTarget         Rule = "alias-target"
	RuleCanonicalFixedPoint Rule = "canonical-fixed-point"
	RuleWindowsReference    Rule = "windows-reference"
	RuleWindowsDuplicate    Rule = "windows-duplicate"
	RuleTerritoryCollision  Rule = "windows-territory-collision"
	RuleLocationReference   Rule = "location-reference"
)

// InvalidDataError reports the first integrity violation of a stream.
type InvalidDataError struct {
	Rule   Rule
	ID     string // the offending ID
	Detail string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("tzstream: invalid data: %s: %s: %s", e.Rule, e.ID, e.Detail)
}

func (e *InvalidDataError) Is(target error) bool { return target == ErrInvalidData }

func invalid(rule Rule, id, format string, args ...any) error {
	return &InvalidDataError{Rule: rule, ID: id, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks the cross references between the tables of s and
// returns the first violation found.
func (s *Stream) Validate() error {
	for _, alias := range slices.Sorted(maps.Keys(s.aliases)) {
		target := s.aliases[alias]
		if _, ok := s.zones[target]; !ok {
			return invalid(RuleAliasTarget, alias, "target %q is not in the zone table", target)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(s.canonical)) {
		if _, ok := s.zones[id]; ok {
			if target, ok := s.aliases[id]; ok {
				return invalid(RuleCanonicalFixedPoint, id, "is a zone and an alias of %q", target)
			}
		}
		c := s.canonical[id]
		if cc := s.canonical[c]; cc != c {
			return invalid(RuleCanonicalFixedPoint, id, "canonical ID %q maps to %q", c, cc)
		}
	}

	if s.windows != nil {
		if err := s.validateWindows(); err != nil {
			return err
		}
	}

	for _, l := range s.zoneLocations {
		if _, ok := s.canonical[l.ZoneID]; !ok {
			return invalid(RuleLocationReference, l.ZoneID, "zone.tab location in %s references an unknown zone", l.Country.Code)
		}
	}
	for _, l := range s.zone1970Locations {
		if _, ok := s.canonical[l.ZoneID]; !ok {
			return invalid(RuleLocationReference, l.ZoneID, "zone1970.tab location references an unknown zone")
		}
	}
	return nil
}

func (s *Stream) validateWindows() error {
	for _, z := range s.windows.Zones {
		for _, id := range z.TzdbIDs {
			if _, ok := s.canonical[id]; !ok {
				return invalid(RuleWindowsReference, id, "referenced by Windows zone %q territory %s", z.WindowsID, z.Territory)
			}
		}
	}

	// IDs repeated across records of one (Windows ID, territory) pair
	// are reported by ID. A pair may not span records otherwise either.
	type pair struct{ windowsID, territory string }
	seen := make(map[pair]map[string]bool)
	for _, z := range s.windows.Zones {
		p := pair{z.WindowsID, z.Territory}
		ids, repeated := seen[p]
		if !repeated {
			ids = make(map[string]bool, len(z.TzdbIDs))
			seen[p] = ids
		}
		for _, id := range z.TzdbIDs {
			if ids[id] {
				return invalid(RuleWindowsDuplicate, id, "repeated for Windows zone %q territory %s", z.WindowsID, z.Territory)
			}
			ids[id] = true
		}
		if repeated {
			return invalid(RuleWindowsDuplicate, z.WindowsID, "territory %s repeated", z.Territory)
		}
	}

	type group struct {
		primary    string
		hasPrimary bool
		others     map[string]string // key -> territory
	}
	groups := make(map[string]*group)
	for _, z := range s.windows.Zones {
		g := groups[z.WindowsID]
		if g == nil {
			g = &group{others: make(map[string]string)}
			groups[z.WindowsID] = g
		}
		if z.Primary() {
			g.primary, g.hasPrimary = TerritoryKey(z.WindowsID, z.TzdbIDs), true
		}
	}
	for _, z := range s.windows.Zones {
		if z.Primary() {
			continue
		}
		g := groups[z.WindowsID]
		key := TerritoryKey(z.WindowsID, z.TzdbIDs)
		if g.hasPrimary && key == g.primary {
			return invalid(RuleTerritoryCollision, z.WindowsID, "territory %s repeats the primary zones", z.Territory)
		}
		if other, ok := g.others[key]; ok {
			return invalid(RuleTerritoryCollision, z.WindowsID, "territories %s and %s map to the same zones", other, z.Territory)
		}
		g.others[key] = z.Territory
	}
	return nil
}

// TerritoryKey identifies the set of tzdb IDs a Windows zone maps to,
// independent of the territory and of the order of the IDs. Two
// territories of one Windows zone with equal keys are ambiguous.
func TerritoryKey(windowsID string, tzdbIDs []string) string {
	ids := slices.Clone(tzdbIDs)
	slices.Sort(ids)
	return windowsID + "\x00" + strings.Join(ids, " ")
}
