// Package tzstream holds a complete time zone database in memory and
// reads and writes its compact binary stream format.
//
// A Stream is assembled once, either by a Builder or by Decode, and is
// validated and immutable from then on. Zones are kept as encoded bytes
// (see package zone) and decoded by their consumers on demand.
package tzstream

import (
	"iter"
	"maps"
	"slices"
)

// PrimaryTerritory is the territory tag of the default entry of a
// Windows zone mapping.
const PrimaryTerritory = "001"

// WindowsMapping maps Windows time zone IDs to tzdb IDs per territory, as
// published by CLDR in windowsZones.xml.
type WindowsMapping struct {
	Version        string
	TzdbVersion    string
	WindowsVersion string
	Zones          []MapZone
}

// MapZone is one mapping entry: for Territory, WindowsID corresponds to
// TzdbIDs. The first TzdbID is the preferred one.
type MapZone struct {
	WindowsID string
	Territory string
	TzdbIDs   []string
}

// Primary reports whether z is the default entry for its Windows ID.
func (z MapZone) Primary() bool { return z.Territory == PrimaryTerritory }

func (m *WindowsMapping) clone() *WindowsMapping {
	if m == nil {
		return nil
	}
	c := *m
	c.Zones = make([]MapZone, len(m.Zones))
	for i, z := range m.Zones {
		z.TzdbIDs = slices.Clone(z.TzdbIDs)
		c.Zones[i] = z
	}
	return &c
}

// Country is an ISO 3166 country.
type Country struct {
	Name string
	Code string
}

// ZoneLocation is a row of zone.tab: the principal location of a zone
// within one country.
type ZoneLocation struct {
	// LatitudeSeconds and LongitudeSeconds are in arc-seconds, positive
	// north and east.
	LatitudeSeconds  int32
	LongitudeSeconds int32
	Country          Country
	ZoneID           string
	Comment          string
}

// Latitude returns the latitude in degrees.
func (l ZoneLocation) Latitude() float64 { return float64(l.LatitudeSeconds) / 3600 }

// Longitude returns the longitude in degrees.
func (l ZoneLocation) Longitude() float64 { return float64(l.LongitudeSeconds) / 3600 }

// Zone1970Location is a row of zone1970.tab, which lists every country
// whose clocks have agreed with the zone since 1970.
type Zone1970Location struct {
	LatitudeSeconds  int32
	LongitudeSeconds int32
	Countries        []Country
	ZoneID           string
	Comment          string
}

// Latitude returns the latitude in degrees.
func (l Zone1970Location) Latitude() float64 { return float64(l.LatitudeSeconds) / 3600 }

// Longitude returns the longitude in degrees.
func (l Zone1970Location) Longitude() float64 { return float64(l.LongitudeSeconds) / 3600 }

// Stream is a validated, immutable time zone database.
type Stream struct {
	version           string
	strings           []string
	zones             map[string][]byte
	aliases           map[string]string
	canonical         map[string]string
	windows           *WindowsMapping
	zoneLocations     []ZoneLocation
	zone1970Locations []Zone1970Location
}

// Version returns the tzdb release, such as "2024a".
func (s *Stream) Version() string { return s.version }

// ZoneIDs returns the sorted IDs of all zones in the zone table.
func (s *Stream) ZoneIDs() []string {
	return slices.Sorted(maps.Keys(s.zones))
}

// ZoneData returns the encoded zone for a canonical ID.
func (s *Stream) ZoneData(id string) ([]byte, bool) {
	b, ok := s.zones[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(b), true
}

// Aliases returns a copy of the alias table, mapping alias to target.
func (s *Stream) Aliases() map[string]string { return maps.Clone(s.aliases) }

// CanonicalID returns the canonical ID for a zone or alias ID.
func (s *Stream) CanonicalID(id string) (string, bool) {
	c, ok := s.canonical[id]
	return c, ok
}

// Canonical yields every known ID with its canonical ID, sorted by ID.
// Canonical IDs map to themselves.
func (s *Stream) Canonical() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, id := range slices.Sorted(maps.Keys(s.canonical)) {
			if !yield(id, s.canonical[id]) {
				return
			}
		}
	}
}

// CanonicalLen returns the number of known IDs, aliases included.
func (s *Stream) CanonicalLen() int { return len(s.canonical) }

// WindowsMapping returns a copy of the Windows mapping, or nil if the
// stream has none.
func (s *Stream) WindowsMapping() *WindowsMapping { return s.windows.clone() }

// ZoneLocations returns a copy of the zone.tab table.
func (s *Stream) ZoneLocations() []ZoneLocation { return slices.Clone(s.zoneLocations) }

// Zone1970Locations returns a copy of the zone1970.tab table.
func (s *Stream) Zone1970Locations() []Zone1970Location {
	out := make([]Zone1970Location, len(s.zone1970Locations))
	for i, l := range s.zone1970Locations {
		l.Countries = slices.Clone(l.Countries)
		out[i] = l
	}
	return out
}

// Strings returns a copy of the string pool the stream was read with.
func (s *Stream) Strings() []string { return slices.Clone(s.strings) }
