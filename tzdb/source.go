// Package tzdb provides zones from a time zone database stream by ID.
//
// A Source wraps a validated tzstream.Stream. Zones are decoded on first
// use and shared afterwards; a Source is safe for concurrent use.
//
//	src, err := tzdb.Open("tzdb.bin")
//	if err != nil {
//		// handle error
//	}
//	z, err := src.ForID("Europe/Berlin")
//	if err != nil {
//		// handle error
//	}
//	fmt.Println(z.OffsetAt(time.Now()))
package tzdb

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ngrash/go-tzdb/hostzone"
	"github.com/ngrash/go-tzdb/internal/logger"
	"github.com/ngrash/go-tzdb/internal/metrics"
	"github.com/ngrash/go-tzdb/tzstream"
	"github.com/ngrash/go-tzdb/zone"
)

var (
	// ErrMissingID is returned for an empty zone ID.
	ErrMissingID = errors.New("tzdb: missing zone ID")
	// ErrNotFound is returned for zone IDs unknown to the database.
	ErrNotFound = errors.New("tzdb: zone not found")
	// ErrNotSupported is returned when modifying read-only data.
	ErrNotSupported = errors.New("tzdb: operation not supported")
)

// Source resolves zone IDs against a time zone database.
type Source struct {
	stream  *tzstream.Stream
	log     *slog.Logger
	metrics *metrics.Metrics
	matcher hostzone.Matcher
	env     hostzone.Env
	local   *time.Location

	ids     []string            // all known IDs, sorted
	aliases map[string][]string // canonical ID -> sorted aliases
	windows map[string]map[string][]string

	zones   sync.Map // canonical ID -> *zone.Cached
	guesses sync.Map // host zone ID -> guess
	group   singleflight.Group
}

type guess struct {
	id string
	ok bool
}

// New returns a Source for s.
func New(s *tzstream.Stream, opts ...Option) *Source {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Discard()
	}
	src := &Source{
		stream:  s,
		log:     o.logger,
		matcher: hostzone.Matcher{Threshold: o.threshold, Now: o.now},
		env:     o.env,
		local:   o.local,
		aliases: make(map[string][]string),
		windows: make(map[string]map[string][]string),
	}
	if o.registerer != nil {
		src.metrics = metrics.New(o.registerer)
	}

	for _, id := range s.ZoneIDs() {
		src.aliases[id] = []string{}
	}
	for id, canonical := range s.Canonical() {
		src.ids = append(src.ids, id)
		if id != canonical {
			src.aliases[canonical] = append(src.aliases[canonical], id)
		}
	}
	if m := s.WindowsMapping(); m != nil {
		for _, z := range m.Zones {
			byTerritory := src.windows[z.WindowsID]
			if byTerritory == nil {
				byTerritory = make(map[string][]string)
				src.windows[z.WindowsID] = byTerritory
			}
			byTerritory[z.Territory] = z.TzdbIDs
		}
	}
	return src
}

// Load decodes a stream from r and returns a Source for it.
func Load(r io.Reader, opts ...Option) (*Source, error) {
	s, err := tzstream.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("load stream: %w", err)
	}
	return New(s, opts...), nil
}

// Open reads the stream file at path and returns a Source for it.
func Open(path string, opts ...Option) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, opts...)
}

// Stream returns the underlying stream.
func (s *Source) Stream() *tzstream.Stream { return s.stream }

// Version returns the tzdb release of the database, such as "2024a".
func (s *Source) Version() string { return s.stream.Version() }

// Validate checks the referential integrity of the database.
func (s *Source) Validate() error { return s.stream.Validate() }

// ForID returns the zone for a canonical or alias ID. Aliases resolve to
// the zone of their canonical ID, whose ID the returned zone carries.
func (s *Source) ForID(id string) (*zone.Zone, error) {
	c, err := s.CachedForID(id)
	if err != nil {
		return nil, err
	}
	return c.Zone(), nil
}

// CachedForID is like ForID but returns the zone behind the interval
// cache shared by all callers of this Source.
func (s *Source) CachedForID(id string) (*zone.Cached, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	canonical, ok := s.stream.CanonicalID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if c, ok := s.zones.Load(canonical); ok {
		s.metrics.ObserveCache(true)
		return c.(*zone.Cached), nil
	}
	s.metrics.ObserveCache(false)

	data, ok := s.stream.ZoneData(canonical)
	if !ok {
		// Validation guarantees canonical IDs are in the zone table.
		return nil, fmt.Errorf("%w: %q has no zone data", ErrNotFound, canonical)
	}
	z, err := zone.Decode(canonical, data)
	s.metrics.ObserveDecode(err)
	if err != nil {
		s.log.Error("zone_decode_failed", "id", canonical, "error", err)
		return nil, fmt.Errorf("decode %q: %w", canonical, err)
	}
	s.log.Debug("zone_decoded", "id", canonical, "kind", z.Kind(), "transitions", len(z.Transitions()))

	c, _ := s.zones.LoadOrStore(canonical, zone.NewCached(z))
	return c.(*zone.Cached), nil
}

// IDs yields every known zone ID, canonical and alias, in sorted order.
func (s *Source) IDs() iter.Seq[string] {
	return slices.Values(s.ids)
}

// CanonicalIDs returns the sorted IDs of all zones, excluding aliases.
func (s *Source) CanonicalIDs() []string { return s.stream.ZoneIDs() }

// Aliases returns the sorted aliases of a canonical ID. It returns an
// empty slice for canonical IDs without aliases and nil for IDs that are
// not canonical.
func (s *Source) Aliases(id string) []string {
	a, ok := s.aliases[id]
	if !ok {
		return nil
	}
	return slices.Clone(a)
}

// AliasMap returns every canonical ID with its sorted aliases.
func (s *Source) AliasMap() map[string][]string {
	m := maps.Clone(s.aliases)
	for id, a := range m {
		m[id] = slices.Clone(a)
	}
	return m
}

// CanonicalIDMap returns a read-only view of the canonical ID map.
func (s *Source) CanonicalIDMap() IDMap { return IDMap{s: s.stream} }

// ZoneLocations returns the zone.tab table.
func (s *Source) ZoneLocations() []tzstream.ZoneLocation { return s.stream.ZoneLocations() }

// Zone1970Locations returns the zone1970.tab table.
func (s *Source) Zone1970Locations() []tzstream.Zone1970Location {
	return s.stream.Zone1970Locations()
}

// WindowsMapping returns the Windows zone mapping, or nil.
func (s *Source) WindowsMapping() *tzstream.WindowsMapping { return s.stream.WindowsMapping() }

// MapWindowsID returns the canonical tzdb ID for a Windows zone ID in a
// territory, falling back to the primary territory.
func (s *Source) MapWindowsID(windowsID, territory string) (string, bool) {
	byTerritory, ok := s.windows[windowsID]
	if !ok {
		return "", false
	}
	ids, ok := byTerritory[territory]
	if !ok || len(ids) == 0 {
		ids = byTerritory[tzstream.PrimaryTerritory]
	}
	if len(ids) == 0 {
		return "", false
	}
	return s.stream.CanonicalID(ids[0])
}

// MapHostID returns the canonical ID for a zone ID reported by the host,
// which is either a tzdb ID or a Windows zone ID.
func (s *Source) MapHostID(hostID string) (string, bool) {
	if c, ok := s.stream.CanonicalID(hostID); ok {
		return c, true
	}
	return s.MapWindowsID(hostID, tzstream.PrimaryTerritory)
}
