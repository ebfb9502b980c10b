package tzstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/go-tzdb/zone"
)

func zoneBytes(t *testing.T, id string, off zone.Offset) []byte {
	t.Helper()
	z, err := zone.New(id, off, nil, nil)
	require.NoError(t, err)
	b, err := zone.Encode(z)
	require.NoError(t, err)
	return b
}

func sampleBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{
		Version: "2024a",
		Zones: map[string][]byte{
			"Europe/London":    zoneBytes(t, "Europe/London", 0),
			"Europe/Berlin":    zoneBytes(t, "Europe/Berlin", 3600),
			"Pacific/Honolulu": zoneBytes(t, "Pacific/Honolulu", -36000),
			"Etc/GMT+10":       zoneBytes(t, "Etc/GMT+10", -36000),
		},
		Aliases: map[string]string{
			"GB":        "Europe/London",
			"US/Hawaii": "Pacific/Honolulu",
		},
		WindowsMapping: &WindowsMapping{
			Version:        "7e11800",
			TzdbVersion:    "2024a",
			WindowsVersion: "7dc0101",
			Zones: []MapZone{
				{WindowsID: "GMT Standard Time", Territory: PrimaryTerritory, TzdbIDs: []string{"Europe/London"}},
				{WindowsID: "GMT Standard Time", Territory: "GB", TzdbIDs: []string{"Europe/London", "GB"}},
				{WindowsID: "W. Europe Standard Time", Territory: PrimaryTerritory, TzdbIDs: []string{"Europe/Berlin"}},
				{WindowsID: "Hawaiian Standard Time", Territory: PrimaryTerritory, TzdbIDs: []string{"Pacific/Honolulu"}},
				{WindowsID: "Hawaiian Standard Time", Territory: "ZZ", TzdbIDs: []string{"Etc/GMT+10"}},
			},
		},
		ZoneLocations: []ZoneLocation{
			{LatitudeSeconds: 185430, LongitudeSeconds: -455, Country: Country{"Britain (UK)", "GB"}, ZoneID: "Europe/London"},
			{LatitudeSeconds: 188400, LongitudeSeconds: 48120, Country: Country{"Germany", "DE"}, ZoneID: "Europe/Berlin", Comment: "most of Germany"},
		},
		Zone1970Locations: []Zone1970Location{
			{LatitudeSeconds: 185430, LongitudeSeconds: -455, Countries: []Country{{"Britain (UK)", "GB"}, {"Guernsey", "GG"}}, ZoneID: "Europe/London"},
		},
	}
}

func TestBuild(t *testing.T) {
	s, err := sampleBuilder(t).Build()
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"Etc/GMT+10", "Europe/Berlin", "Europe/London", "Pacific/Honolulu"}, s.ZoneIDs()); diff != "" {
		t.Errorf("ZoneIDs() mismatch (-want +got):\n%s", diff)
	}
	for id, want := range map[string]string{
		"GB":            "Europe/London",
		"Europe/London": "Europe/London",
		"US/Hawaii":     "Pacific/Honolulu",
	} {
		got, ok := s.CanonicalID(id)
		if !ok || got != want {
			t.Errorf("CanonicalID(%q) = %q, %v, want %q", id, got, ok, want)
		}
	}
	if _, ok := s.CanonicalID("Mars/Olympus"); ok {
		t.Error("CanonicalID(Mars/Olympus) found")
	}
	if got := s.CanonicalLen(); got != 6 {
		t.Errorf("CanonicalLen() = %d, want 6", got)
	}
}

func TestCanonicalIsFixedPoint(t *testing.T) {
	s, err := sampleBuilder(t).Build()
	require.NoError(t, err)
	for id, c := range s.Canonical() {
		if cc, _ := s.CanonicalID(c); cc != c {
			t.Errorf("canonical(canonical(%q)) = %q, want %q", id, cc, c)
		}
	}
}

func TestStreamIsImmutable(t *testing.T) {
	b := sampleBuilder(t)
	s, err := b.Build()
	require.NoError(t, err)

	b.Aliases["Extra"] = "Europe/Berlin"
	b.WindowsMapping.Zones[0].TzdbIDs[0] = "Etc/GMT+10"
	s.Aliases()["Another"] = "Europe/Berlin"
	s.WindowsMapping().Zones[0].TzdbIDs[0] = "Etc/GMT+10"
	s.Zone1970Locations()[0].Countries[0].Code = "XX"

	if _, ok := s.CanonicalID("Extra"); ok {
		t.Error("builder change leaked into stream")
	}
	if _, ok := s.Aliases()["Another"]; ok {
		t.Error("Aliases() returned internal map")
	}
	if got := s.WindowsMapping().Zones[0].TzdbIDs[0]; got != "Europe/London" {
		t.Errorf("WindowsMapping() shares storage: got %q", got)
	}
	if got := s.Zone1970Locations()[0].Countries[0].Code; got != "GB" {
		t.Errorf("Zone1970Locations() shares storage: got %q", got)
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		modify func(b *Builder)
		rule   Rule
		id     string
	}{
		{
			name:   "alias to missing zone",
			modify: func(b *Builder) { b.Aliases["Mars/Base"] = "Mars/Olympus" },
			rule:   RuleAliasTarget,
			id:     "Mars/Base",
		},
		{
			name: "alias chain",
			modify: func(b *Builder) {
				// Europe/Berlin is a zone and an alias at once, so CET
				// resolves to an ID that is not canonical.
				b.Aliases["Europe/Berlin"] = "Europe/London"
				b.Aliases["CET"] = "Europe/Berlin"
			},
			rule: RuleCanonicalFixedPoint,
			id:   "CET",
		},
		{
			name: "windows references unknown id",
			modify: func(b *Builder) {
				b.WindowsMapping.Zones[2].TzdbIDs = []string{"Europe/Paris"}
			},
			rule: RuleWindowsReference,
			id:   "Europe/Paris",
		},
		{
			name: "windows duplicate id",
			modify: func(b *Builder) {
				b.WindowsMapping.Zones[2].TzdbIDs = []string{"Europe/Berlin", "Europe/Berlin"}
			},
			rule: RuleWindowsDuplicate,
			id:   "Europe/Berlin",
		},
		{
			name: "territory repeats primary",
			modify: func(b *Builder) {
				b.WindowsMapping.Zones[4].TzdbIDs = []string{"Pacific/Honolulu"}
			},
			rule: RuleTerritoryCollision,
			id:   "Hawaiian Standard Time",
		},
		{
			name: "territories collide",
			modify: func(b *Builder) {
				b.WindowsMapping.Zones = append(b.WindowsMapping.Zones,
					MapZone{WindowsID: "GMT Standard Time", Territory: "IM", TzdbIDs: []string{"GB", "Europe/London"}})
			},
			rule: RuleTerritoryCollision,
			id:   "GMT Standard Time",
		},
		{
			name: "zone is also an alias",
			modify: func(b *Builder) { b.Aliases["Europe/Berlin"] = "Europe/London" },
			rule:   RuleCanonicalFixedPoint,
			id:     "Europe/Berlin",
		},
		{
			name: "windows primary repeated",
			modify: func(b *Builder) {
				b.WindowsMapping.Zones = append(b.WindowsMapping.Zones,
					MapZone{WindowsID: "W. Europe Standard Time", Territory: PrimaryTerritory, TzdbIDs: []string{"Europe/Berlin"}})
			},
			rule: RuleWindowsDuplicate,
			id:   "Europe/Berlin",
		},
		{
			name: "windows id repeated across records of a territory",
			modify: func(b *Builder) {
				b.WindowsMapping.Zones = append(b.WindowsMapping.Zones,
					MapZone{WindowsID: "GMT Standard Time", Territory: "GB", TzdbIDs: []string{"GB"}})
			},
			rule: RuleWindowsDuplicate,
			id:   "GB",
		},
		{
			name: "windows territory repeated",
			modify: func(b *Builder) {
				b.WindowsMapping.Zones = append(b.WindowsMapping.Zones,
					MapZone{WindowsID: "W. Europe Standard Time", Territory: PrimaryTerritory, TzdbIDs: []string{"Europe/London"}})
			},
			rule: RuleWindowsDuplicate,
			id:   "W. Europe Standard Time",
		},
		{
			name: "location references unknown zone",
			modify: func(b *Builder) {
				b.ZoneLocations = append(b.ZoneLocations, ZoneLocation{ZoneID: "Europe/Paris", Country: Country{"France", "FR"}})
			},
			rule: RuleLocationReference,
			id:   "Europe/Paris",
		},
		{
			name: "1970 location references unknown zone",
			modify: func(b *Builder) {
				b.Zone1970Locations[0].ZoneID = "Europe/Paris"
			},
			rule: RuleLocationReference,
			id:   "Europe/Paris",
		},
		{
			name: "first violation wins",
			modify: func(b *Builder) {
				b.Aliases["Mars/Base"] = "Mars/Olympus"
				b.ZoneLocations[0].ZoneID = "Europe/Paris"
			},
			rule: RuleAliasTarget,
			id:   "Mars/Base",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sampleBuilder(t)
			tt.modify(b)
			s, err := b.Build()
			require.Error(t, err)
			require.Nil(t, s)
			require.ErrorIs(t, err, ErrInvalidData)

			var ide *InvalidDataError
			require.True(t, errors.As(err, &ide))
			if ide.Rule != tt.rule || ide.ID != tt.id {
				t.Errorf("Build() error = %s %q, want %s %q", ide.Rule, ide.ID, tt.rule, tt.id)
			}
		})
	}
}

func TestTerritoryKey(t *testing.T) {
	a := TerritoryKey("Hawaiian Standard Time", []string{"Pacific/Honolulu", "Pacific/Johnston"})
	b := TerritoryKey("Hawaiian Standard Time", []string{"Pacific/Johnston", "Pacific/Honolulu"})
	c := TerritoryKey("Other Standard Time", []string{"Pacific/Honolulu", "Pacific/Johnston"})
	if a != b {
		t.Errorf("TerritoryKey depends on order: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("TerritoryKey ignores the Windows ID: %q", a)
	}
}

func TestEncodeDecode(t *testing.T) {
	want, err := sampleBuilder(t).Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, want.Encode(&buf))
	encoded := bytes.Clone(buf.Bytes())

	got, err := Decode(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(want.Version(), got.Version()); diff != "" {
		t.Errorf("Version() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Aliases(), got.Aliases()); diff != "" {
		t.Errorf("Aliases() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.WindowsMapping(), got.WindowsMapping()); diff != "" {
		t.Errorf("WindowsMapping() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.ZoneLocations(), got.ZoneLocations()); diff != "" {
		t.Errorf("ZoneLocations() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Zone1970Locations(), got.Zone1970Locations()); diff != "" {
		t.Errorf("Zone1970Locations() mismatch (-want +got):\n%s", diff)
	}
	for _, id := range want.ZoneIDs() {
		w, _ := want.ZoneData(id)
		g, ok := got.ZoneData(id)
		if !ok {
			t.Errorf("ZoneData(%q) missing after decode", id)
			continue
		}
		if diff := cmp.Diff(w, g); diff != "" {
			t.Errorf("ZoneData(%q) mismatch (-want +got):\n%s", id, diff)
		}
	}

	// Re-encoding a decoded stream reproduces it byte for byte.
	var again bytes.Buffer
	require.NoError(t, got.Encode(&again))
	if diff := cmp.Diff(encoded, again.Bytes()); diff != "" {
		t.Errorf("re-encoded stream mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSkipsUnknownSections(t *testing.T) {
	s, err := sampleBuilder(t).Build()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))

	// A section from a future format version.
	data := append(bytes.Clone(buf.Bytes()), 42, 3, 'x', 'y', 'z')
	got, err := DecodeBytes(data)
	require.NoError(t, err)
	if got.Version() != "2024a" {
		t.Errorf("Version() = %q, want 2024a", got.Version())
	}

	// Known sections must not repeat.
	data = append(data, SectionVersion, 1, 0)
	_, err = DecodeBytes(data)
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeIgnoresTrailingSectionBytes(t *testing.T) {
	data := []byte(Magic)
	data = append(data, FormatVersion)
	// string pool: one string
	pool := binary.AppendUvarint(nil, 1)
	pool = binary.AppendUvarint(pool, 5)
	pool = append(pool, "2024b"...)
	data = append(data, SectionStringPool)
	data = binary.AppendUvarint(data, uint64(len(pool)))
	data = append(data, pool...)
	// version section with a reference and two extra bytes
	data = append(data, SectionVersion, 3, 1, 0xAA, 0xBB)

	s, err := DecodeBytes(data)
	require.NoError(t, err)
	if s.Version() != "2024b" {
		t.Errorf("Version() = %q, want 2024b", s.Version())
	}
	if len(s.ZoneIDs()) != 0 || s.WindowsMapping() != nil {
		t.Errorf("absent sections decoded as %v, %v", s.ZoneIDs(), s.WindowsMapping())
	}
}

func appendSection(data []byte, id byte, payload []byte) []byte {
	data = append(data, id)
	data = binary.AppendUvarint(data, uint64(len(payload)))
	return append(data, payload...)
}

func poolPayload(strs ...string) []byte {
	b := binary.AppendUvarint(nil, uint64(len(strs)))
	for _, s := range strs {
		b = binary.AppendUvarint(b, uint64(len(s)))
		b = append(b, s...)
	}
	return b
}

func TestDecodeFormatVersion1(t *testing.T) {
	london := zoneBytes(t, "Europe/London", 0)

	// Pool indices: 1 2024a, 2 Europe/London, 3 GB.
	data := append([]byte(Magic), 1)
	data = appendSection(data, SectionStringPool, poolPayload("2024a", "Europe/London", "GB"))
	data = appendSection(data, SectionVersion, []byte{1})
	zones := []byte{1, 2}
	zones = binary.AppendUvarint(zones, uint64(len(london)))
	zones = append(zones, london...)
	data = appendSection(data, SectionZones, zones)
	data = appendSection(data, SectionAliases, []byte{1, 3, 2})

	s, err := DecodeBytes(data)
	require.NoError(t, err)
	require.Equal(t, "2024a", s.Version())
	if diff := cmp.Diff([]string{"Europe/London"}, s.ZoneIDs()); diff != "" {
		t.Errorf("ZoneIDs() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"GB": "Europe/London"}, s.Aliases()); diff != "" {
		t.Errorf("Aliases() mismatch (-want +got):\n%s", diff)
	}
	got, ok := s.ZoneData("Europe/London")
	require.True(t, ok)
	if diff := cmp.Diff(london, got); diff != "" {
		t.Errorf("ZoneData() mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, s.Zone1970Locations())
}

func TestDecodeRejectsRepeatedPoolStrings(t *testing.T) {
	tests := []struct {
		name string
		pool []string
	}{
		{"repeated string", []string{"2024a", "Europe/London", "2024a"}},
		{"empty string", []string{"", "2024a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(Magic), FormatVersion)
			data = appendSection(data, SectionStringPool, poolPayload(tt.pool...))
			data = appendSection(data, SectionVersion, []byte{1})
			_, err := DecodeBytes(data)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	valid := func() []byte {
		data := []byte(Magic)
		return append(data, FormatVersion)
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("TZif\x02")},
		{"future version", append([]byte(Magic), FormatVersion+1)},
		{"version zero", append([]byte(Magic), 0)},
		{"section longer than data", append(valid(), SectionZones, 10, 0)},
		{"string index out of range", append(valid(), SectionVersion, 1, 7)},
		{"count exceeds section", append(valid(), SectionAliases, 1, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes(tt.data)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestDecodeValidates(t *testing.T) {
	// Bypass Build to produce an invalid stream on the wire.
	s := &Stream{
		aliases:   map[string]string{"A": "B"},
		canonical: map[string]string{"A": "B"},
		zones:     map[string][]byte{},
	}
	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))

	_, err := Decode(&buf)
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestAddString(t *testing.T) {
	var b Builder
	if got := b.AddString(""); got != 0 {
		t.Errorf("AddString(\"\") = %d, want 0", got)
	}
	first := b.AddString("Europe/London")
	if again := b.AddString("Europe/London"); again != first {
		t.Errorf("AddString() not deduplicated: %d != %d", first, again)
	}
	s, err := b.Build()
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"", "Europe/London"}, s.Strings()); diff != "" {
		t.Errorf("Strings() mismatch (-want +got):\n%s", diff)
	}
}
