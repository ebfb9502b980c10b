package tzstream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Magic starts every stream.
const Magic = "TZDB"

// FormatVersion is the stream format version written by Encode. Decode
// accepts this and every earlier version.
const FormatVersion = 2

// Section IDs. Sections may appear in any order, except that the string
// pool must precede the sections referencing it. Unknown sections are
// skipped.
const (
	SectionVersion           byte = 1
	SectionStringPool        byte = 2
	SectionZones             byte = 3
	SectionAliases           byte = 4
	SectionWindowsMapping    byte = 5
	SectionZoneLocations     byte = 6
	SectionZone1970Locations byte = 7
)

// ErrFormat is matched by errors for malformed streams.
var ErrFormat = errors.New("tzstream: malformed stream")

// Encode writes s in the stream format.
func (s *Stream) Encode(w io.Writer) error {
	var pool stringPool
	for _, str := range s.strings {
		pool.intern(str)
	}

	// Sections referencing strings are encoded first to fill the pool.
	sections := []section{
		{SectionVersion, binary.AppendUvarint(nil, pool.intern(s.version))},
		{SectionZones, s.appendZones(nil, &pool)},
		{SectionAliases, s.appendAliases(nil, &pool)},
	}
	if s.windows != nil {
		sections = append(sections, section{SectionWindowsMapping, s.appendWindows(nil, &pool)})
	}
	sections = append(sections,
		section{SectionZoneLocations, s.appendZoneLocations(nil, &pool)},
		section{SectionZone1970Locations, s.appendZone1970Locations(nil, &pool)},
	)

	bw := bufio.NewWriter(w)
	bw.WriteString(Magic)
	bw.WriteByte(FormatVersion)
	writeSection(bw, section{SectionStringPool, appendPool(nil, &pool)})
	for _, sec := range sections {
		writeSection(bw, sec)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write stream: %w", err)
	}
	return nil
}

type section struct {
	id   byte
	data []byte
}

// writeSection ignores errors; bufio.Writer reports them on Flush.
func writeSection(w *bufio.Writer, s section) {
	w.WriteByte(s.id)
	w.Write(binary.AppendUvarint(nil, uint64(len(s.data))))
	w.Write(s.data)
}

func appendPool(b []byte, p *stringPool) []byte {
	strs := p.strings()[1:] // index 0 is implied
	b = binary.AppendUvarint(b, uint64(len(strs)))
	for _, s := range strs {
		b = binary.AppendUvarint(b, uint64(len(s)))
		b = append(b, s...)
	}
	return b
}

func (s *Stream) appendZones(b []byte, p *stringPool) []byte {
	ids := s.ZoneIDs()
	b = binary.AppendUvarint(b, uint64(len(ids)))
	for _, id := range ids {
		data := s.zones[id]
		b = binary.AppendUvarint(b, p.intern(id))
		b = binary.AppendUvarint(b, uint64(len(data)))
		b = append(b, data...)
	}
	return b
}

func (s *Stream) appendAliases(b []byte, p *stringPool) []byte {
	b = binary.AppendUvarint(b, uint64(len(s.aliases)))
	for _, alias := range slices.Sorted(maps.Keys(s.aliases)) {
		b = binary.AppendUvarint(b, p.intern(alias))
		b = binary.AppendUvarint(b, p.intern(s.aliases[alias]))
	}
	return b
}

func (s *Stream) appendWindows(b []byte, p *stringPool) []byte {
	m := s.windows
	b = binary.AppendUvarint(b, p.intern(m.Version))
	b = binary.AppendUvarint(b, p.intern(m.TzdbVersion))
	b = binary.AppendUvarint(b, p.intern(m.WindowsVersion))
	b = binary.AppendUvarint(b, uint64(len(m.Zones)))
	for _, z := range m.Zones {
		b = binary.AppendUvarint(b, p.intern(z.WindowsID))
		b = binary.AppendUvarint(b, p.intern(z.Territory))
		b = binary.AppendUvarint(b, uint64(len(z.TzdbIDs)))
		for _, id := range z.TzdbIDs {
			b = binary.AppendUvarint(b, p.intern(id))
		}
	}
	return b
}

func (s *Stream) appendZoneLocations(b []byte, p *stringPool) []byte {
	b = binary.AppendUvarint(b, uint64(len(s.zoneLocations)))
	for _, l := range s.zoneLocations {
		b = binary.AppendVarint(b, int64(l.LatitudeSeconds))
		b = binary.AppendVarint(b, int64(l.LongitudeSeconds))
		b = binary.AppendUvarint(b, p.intern(l.Country.Name))
		b = binary.AppendUvarint(b, p.intern(l.Country.Code))
		b = binary.AppendUvarint(b, p.intern(l.ZoneID))
		b = binary.AppendUvarint(b, p.intern(l.Comment))
	}
	return b
}

func (s *Stream) appendZone1970Locations(b []byte, p *stringPool) []byte {
	b = binary.AppendUvarint(b, uint64(len(s.zone1970Locations)))
	for _, l := range s.zone1970Locations {
		b = binary.AppendVarint(b, int64(l.LatitudeSeconds))
		b = binary.AppendVarint(b, int64(l.LongitudeSeconds))
		b = binary.AppendUvarint(b, uint64(len(l.Countries)))
		for _, c := range l.Countries {
			b = binary.AppendUvarint(b, p.intern(c.Name))
			b = binary.AppendUvarint(b, p.intern(c.Code))
		}
		b = binary.AppendUvarint(b, p.intern(l.ZoneID))
		b = binary.AppendUvarint(b, p.intern(l.Comment))
	}
	return b
}

// Decode reads a stream and validates it.
func Decode(r io.Reader) (*Stream, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is like Decode for a stream held in memory.
func DecodeBytes(data []byte) (*Stream, error) {
	if len(data) < len(Magic)+1 || string(data[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("%w: invalid magic", ErrFormat)
	}
	if v := data[len(Magic)]; v == 0 || v > FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrFormat, v)
	}

	var b Builder
	seen := make(map[byte]bool)
	rest := data[len(Magic)+1:]
	for len(rest) > 0 {
		id := rest[0]
		n, k := binary.Uvarint(rest[1:])
		if k <= 0 || n > uint64(len(rest)-1-k) {
			return nil, fmt.Errorf("%w: section %d: invalid length", ErrFormat, id)
		}
		payload := rest[1+k : 1+k+int(n)]
		rest = rest[1+k+int(n):]

		if seen[id] {
			return nil, fmt.Errorf("%w: section %d: repeated", ErrFormat, id)
		}
		seen[id] = true

		sr := &sectionReader{buf: payload, pool: &b.pool}
		switch id {
		case SectionVersion:
			b.Version = sr.str()
		case SectionStringPool:
			sr.readPool()
		case SectionZones:
			b.Zones = sr.readZones()
		case SectionAliases:
			b.Aliases = sr.readAliases()
		case SectionWindowsMapping:
			b.WindowsMapping = sr.readWindows()
		case SectionZoneLocations:
			b.ZoneLocations = sr.readZoneLocations()
		case SectionZone1970Locations:
			b.Zone1970Locations = sr.readZone1970Locations()
		default:
			continue
		}
		if sr.err != nil {
			return nil, fmt.Errorf("read section %d: %w", id, sr.err)
		}
	}
	return b.Build()
}

// sectionReader decodes a section payload and keeps the first error.
// Bytes left after the known fields are ignored.
type sectionReader struct {
	buf  []byte
	pos  int
	pool *stringPool
	err  error
}

func (r *sectionReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: at byte %d: %s", ErrFormat, r.pos, fmt.Sprintf(format, args...))
	}
}

func (r *sectionReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.fail("truncated uvarint")
		return 0
	}
	r.pos += n
	return v
}

func (r *sectionReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		r.fail("truncated varint")
		return 0
	}
	r.pos += n
	return v
}

// count reads a length and checks it against the remaining bytes, each
// element taking at least one byte.
func (r *sectionReader) count() int {
	n := r.uvarint()
	if r.err == nil && n > uint64(len(r.buf)-r.pos) {
		r.fail("count %d exceeds section length", n)
		return 0
	}
	return int(n)
}

func (r *sectionReader) bytes() []byte {
	n := r.count()
	if r.err != nil {
		return nil
	}
	b := slices.Clone(r.buf[r.pos : r.pos+n])
	r.pos += n
	return b
}

func (r *sectionReader) str() string {
	i := r.uvarint()
	if r.err != nil {
		return ""
	}
	s, ok := r.pool.get(i)
	if !ok {
		r.fail("string index %d out of range", i)
	}
	return s
}

func (r *sectionReader) coordinate() int32 {
	v := r.varint()
	if r.err == nil && (v < -180*3600 || v > 180*3600) {
		r.fail("coordinate %d out of range", v)
	}
	return int32(v)
}

// readPool appends the strings from index 1 on. Strings must be distinct
// from each other and from the implied empty string at index 0.
func (r *sectionReader) readPool() {
	n := r.count()
	for range n {
		s := string(r.bytes())
		if r.err != nil {
			return
		}
		if r.pool.contains(s) {
			r.fail("string %q repeated in pool", s)
			return
		}
		r.pool.intern(s)
	}
}

func (r *sectionReader) readZones() map[string][]byte {
	n := r.count()
	zones := make(map[string][]byte, n)
	for range n {
		id := r.str()
		data := r.bytes()
		if r.err != nil {
			return nil
		}
		if _, dup := zones[id]; dup {
			r.fail("zone %q repeated", id)
			return nil
		}
		zones[id] = data
	}
	return zones
}

func (r *sectionReader) readAliases() map[string]string {
	n := r.count()
	aliases := make(map[string]string, n)
	for range n {
		alias, target := r.str(), r.str()
		if r.err != nil {
			return nil
		}
		if _, dup := aliases[alias]; dup {
			r.fail("alias %q repeated", alias)
			return nil
		}
		aliases[alias] = target
	}
	return aliases
}

func (r *sectionReader) readWindows() *WindowsMapping {
	m := &WindowsMapping{
		Version:        r.str(),
		TzdbVersion:    r.str(),
		WindowsVersion: r.str(),
	}
	n := r.count()
	for range n {
		z := MapZone{WindowsID: r.str(), Territory: r.str()}
		ids := r.count()
		for range ids {
			z.TzdbIDs = append(z.TzdbIDs, r.str())
		}
		if r.err != nil {
			return nil
		}
		m.Zones = append(m.Zones, z)
	}
	return m
}

func (r *sectionReader) readZoneLocations() []ZoneLocation {
	n := r.count()
	var locs []ZoneLocation
	for range n {
		l := ZoneLocation{
			LatitudeSeconds:  r.coordinate(),
			LongitudeSeconds: r.coordinate(),
			Country:          Country{Name: r.str(), Code: r.str()},
			ZoneID:           r.str(),
			Comment:          r.str(),
		}
		if r.err != nil {
			return nil
		}
		locs = append(locs, l)
	}
	return locs
}

func (r *sectionReader) readZone1970Locations() []Zone1970Location {
	n := r.count()
	var locs []Zone1970Location
	for range n {
		l := Zone1970Location{
			LatitudeSeconds:  r.coordinate(),
			LongitudeSeconds: r.coordinate(),
		}
		countries := r.count()
		for range countries {
			l.Countries = append(l.Countries, Country{Name: r.str(), Code: r.str()})
		}
		l.ZoneID = r.str()
		l.Comment = r.str()
		if r.err != nil {
			return nil
		}
		locs = append(locs, l)
	}
	return locs
}
