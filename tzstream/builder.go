package tzstream

import (
	"maps"
	"slices"
)

// Builder accumulates the tables of a stream. Fields may be filled in any
// order; Build validates them together.
type Builder struct {
	Version           string
	Zones             map[string][]byte
	Aliases           map[string]string
	WindowsMapping    *WindowsMapping
	ZoneLocations     []ZoneLocation
	Zone1970Locations []Zone1970Location

	pool stringPool
}

// AddString appends s to the string pool unless it is already present and
// returns its index.
func (b *Builder) AddString(s string) uint64 {
	return b.pool.intern(s)
}

// Build returns a validated stream. The builder's tables are copied, so
// it may be reused afterwards.
func (b *Builder) Build() (*Stream, error) {
	s := &Stream{
		version:       b.Version,
		strings:       slices.Clone(b.pool.strings()),
		zones:         make(map[string][]byte, len(b.Zones)),
		aliases:       maps.Clone(b.Aliases),
		canonical:     make(map[string]string, len(b.Zones)+len(b.Aliases)),
		windows:       b.WindowsMapping.clone(),
		zoneLocations: slices.Clone(b.ZoneLocations),
	}
	if s.aliases == nil {
		s.aliases = map[string]string{}
	}
	for id, data := range b.Zones {
		s.zones[id] = slices.Clone(data)
		s.canonical[id] = id
	}
	// An ID that is a zone and an alias at once is rejected by Validate.
	for alias, target := range s.aliases {
		s.canonical[alias] = target
	}
	for _, l := range b.Zone1970Locations {
		l.Countries = slices.Clone(l.Countries)
		s.zone1970Locations = append(s.zone1970Locations, l)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// stringPool deduplicates strings. Index 0 is always the empty string.
type stringPool struct {
	lookup []string
	index  map[string]uint64
}

func (p *stringPool) init() {
	if p.index == nil {
		p.lookup = []string{""}
		p.index = map[string]uint64{"": 0}
	}
}

func (p *stringPool) intern(s string) uint64 {
	p.init()
	if i, ok := p.index[s]; ok {
		return i
	}
	i := uint64(len(p.lookup))
	p.lookup = append(p.lookup, s)
	p.index[s] = i
	return i
}

func (p *stringPool) contains(s string) bool {
	p.init()
	_, ok := p.index[s]
	return ok
}

func (p *stringPool) get(i uint64) (string, bool) {
	p.init()
	if i >= uint64(len(p.lookup)) {
		return "", false
	}
	return p.lookup[i], true
}

func (p *stringPool) strings() []string {
	p.init()
	return p.lookup
}
