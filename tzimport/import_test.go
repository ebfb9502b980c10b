package tzimport

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/go-tzdb/internal/tzif"
	"github.com/ngrash/go-tzdb/tzstream"
	"github.com/ngrash/go-tzdb/zone"
)

func encodeTZif(t *testing.T, f tzif.File) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))
	return buf.Bytes()
}

func berlinTZif() tzif.File {
	return tzif.File{
		Version: tzif.V2,
		Data: tzif.Data{
			TransitionTimes: []int64{-2422054408, -1693706400, -1680483600},
			TransitionTypes: []uint8{1, 2, 1},
			Types: []tzif.LocalTimeType{
				{Utoff: 3208, Idx: 0},
				{Utoff: 3600, Idx: 4},
				{Utoff: 7200, Dst: true, Idx: 8},
			},
			Designations: []byte("LMT\x00CET\x00CEST\x00"),
		},
		TZString: "CET-1CEST,M3.5.0,M10.5.0/3",
	}
}

func londonTZif() tzif.File {
	return tzif.File{
		Version: tzif.V2,
		Data: tzif.Data{
			TransitionTimes: []int64{-3852662325, -1691964000},
			TransitionTypes: []uint8{1, 2},
			Types: []tzif.LocalTimeType{
				{Utoff: -75, Idx: 0},
				{Utoff: 0, Idx: 4},
				{Utoff: 3600, Dst: true, Idx: 8},
			},
			Designations: []byte("LMT\x00GMT\x00BST\x00"),
		},
		TZString: "GMT0BST,M3.5.0/1,M10.5.0",
	}
}

func utcTZif() tzif.File {
	return tzif.File{
		Version: tzif.V2,
		Data: tzif.Data{
			Types:        []tzif.LocalTimeType{{Utoff: 0, Idx: 0}},
			Designations: []byte("UTC\x00"),
		},
		TZString: "UTC0",
	}
}

const windowsZonesXML = `<?xml version="1.0" encoding="UTF-8" ?>
<supplementalData>
	<version number="$Revision: 13756 $"/>
	<windowsZones>
		<mapTimezones otherVersion="7e11800" typeVersion="2024a">
			<mapZone other="W. Europe Standard Time" territory="001" type="Europe/Berlin"/>
			<mapZone other="W. Europe Standard Time" territory="DE" type="Europe/Berlin Europe/Busingen"/>
			<mapZone other="W. Europe Standard Time" territory="CH" type="Europe/Berlin"/>
			<mapZone other="W. Europe Standard Time" territory="AT" type="Europe/Busingen Europe/Berlin Europe/Busingen"/>
			<mapZone other="W. Europe Standard Time" territory="001" type="Europe/Busingen"/>
			<mapZone other="GMT Standard Time" territory="001" type="Europe/London"/>
			<mapZone other="GMT Standard Time" territory="GB" type="Europe/London GB Unknown/Zone"/>
			<mapZone other="GMT Standard Time" territory="GB" type="GB"/>
			<mapZone other="Bogus Standard Time" territory="001" type="Unknown/Zone"/>
			<mapZone other="UTC" territory="001" type="UTC"/>
		</mapTimezones>
	</windowsZones>
</supplementalData>`

func testFS(t *testing.T) fstest.MapFS {
	berlin := encodeTZif(t, berlinTZif())
	return fstest.MapFS{
		"tzdata.zi": {Data: []byte("# version 2024b\n" +
			"# This zic input file is in the public domain.\n" +
			"R E 1981 ma - Mar lastSu 1u 1 S\n" +
			"Z Europe/Berlin 0:53:28 - LMT 1893 Ap\n" +
			"L Europe/Berlin Europe/Busingen\n" +
			"L Europe/London GB\n" +
			"L Nowhere/Zone Bogus/Alias\n")},
		"Europe/Berlin":       {Data: berlin},
		"Europe/Busingen":     {Data: berlin},
		"Europe/London":       {Data: encodeTZif(t, londonTZif())},
		"GB":                  {Data: encodeTZif(t, londonTZif())},
		"UTC":                 {Data: encodeTZif(t, utcTZif())},
		"posix/Europe/Berlin": {Data: berlin},
		"right/UTC":           {Data: encodeTZif(t, utcTZif())},
		"posixrules":          {Data: berlin},
		"leapseconds":         {Data: []byte("# leap seconds\nLeap\t2016\tDec\t31\t23:59:60\t+\tS\n")},
		"zone.tab": {Data: []byte("# tz zone descriptions\n" +
			"DE\t+5230+01322\tEurope/Berlin\tmost of Germany\n" +
			"GB\t+513030-0000731\tEurope/London\n" +
			"XX\t+0000+00000\tNowhere/Zone\n")},
		"iso3166.tab": {Data: []byte("#country-\n#code\tname of country\nDE\tGermany\nGB\tBritain (UK)\n")},
		"zone1970.tab": {Data: []byte("#codes\tcoordinates\tTZ\tcomments\n" +
			"DE,DK,NO,SE,SJ\t+5230+01322\tEurope/Berlin\tmost of Germany\n" +
			"GB,GG,IM,JE\t+513030-0000731\tEurope/London\n")},
	}
}

func TestFromFS(t *testing.T) {
	s, err := FromFS(testFS(t), Options{WindowsZones: strings.NewReader(windowsZonesXML)})
	require.NoError(t, err)

	require.Equal(t, "2024b", s.Version())
	if diff := cmp.Diff([]string{"Europe/Berlin", "Europe/London", "UTC"}, s.ZoneIDs()); diff != "" {
		t.Errorf("ZoneIDs() mismatch (-want +got):\n%s", diff)
	}
	wantAliases := map[string]string{"Europe/Busingen": "Europe/Berlin", "GB": "Europe/London"}
	if diff := cmp.Diff(wantAliases, s.Aliases()); diff != "" {
		t.Errorf("Aliases() mismatch (-want +got):\n%s", diff)
	}

	wantLocations := []tzstream.ZoneLocation{
		{LatitudeSeconds: 189000, LongitudeSeconds: 48120, Country: tzstream.Country{Name: "Germany", Code: "DE"}, ZoneID: "Europe/Berlin", Comment: "most of Germany"},
		{LatitudeSeconds: 185430, LongitudeSeconds: -451, Country: tzstream.Country{Name: "Britain (UK)", Code: "GB"}, ZoneID: "Europe/London"},
	}
	if diff := cmp.Diff(wantLocations, s.ZoneLocations()); diff != "" {
		t.Errorf("ZoneLocations() mismatch (-want +got):\n%s", diff)
	}
	z1970 := s.Zone1970Locations()
	require.Len(t, z1970, 2)
	require.Len(t, z1970[0].Countries, 5)
	require.Equal(t, tzstream.Country{Name: "Germany", Code: "DE"}, z1970[0].Countries[0])
	require.Equal(t, tzstream.Country{Code: "DK"}, z1970[0].Countries[1])

	wantWindows := &tzstream.WindowsMapping{
		Version:        "13756",
		TzdbVersion:    "2024a",
		WindowsVersion: "7e11800",
		Zones: []tzstream.MapZone{
			{WindowsID: "W. Europe Standard Time", Territory: "001", TzdbIDs: []string{"Europe/Berlin"}},
			{WindowsID: "W. Europe Standard Time", Territory: "DE", TzdbIDs: []string{"Europe/Berlin", "Europe/Busingen"}},
			{WindowsID: "GMT Standard Time", Territory: "001", TzdbIDs: []string{"Europe/London"}},
			{WindowsID: "GMT Standard Time", Territory: "GB", TzdbIDs: []string{"Europe/London", "GB"}},
			{WindowsID: "UTC", Territory: "001", TzdbIDs: []string{"UTC"}},
		},
	}
	if diff := cmp.Diff(wantWindows, s.WindowsMapping()); diff != "" {
		t.Errorf("WindowsMapping() mismatch (-want +got):\n%s", diff)
	}

	data, ok := s.ZoneData("Europe/Berlin")
	require.True(t, ok)
	berlin, err := zone.Decode("Europe/Berlin", data)
	require.NoError(t, err)
	require.Equal(t, zone.Offset(7200), berlin.OffsetAt(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, zone.Offset(3600), berlin.OffsetAt(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFromFSWithoutZi(t *testing.T) {
	fsys := testFS(t)
	delete(fsys, "tzdata.zi")
	fsys["+VERSION"] = &fstest.MapFile{Data: []byte("2023c\n")}

	s, err := FromFS(fsys, Options{})
	require.NoError(t, err)
	require.Equal(t, "2023c", s.Version())
	if diff := cmp.Diff([]string{"Europe/Berlin", "Europe/Busingen", "Europe/London", "GB", "UTC"}, s.ZoneIDs()); diff != "" {
		t.Errorf("ZoneIDs() mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, s.Aliases())
	require.Nil(t, s.WindowsMapping())

	s, err = FromFS(fsys, Options{Version: "custom"})
	require.NoError(t, err)
	require.Equal(t, "custom", s.Version())
}

func TestFromFSErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(fstest.MapFS)
	}{
		{"no zones", func(fsys fstest.MapFS) {
			for name := range fsys {
				if !strings.HasSuffix(name, ".tab") && name != "tzdata.zi" {
					delete(fsys, name)
				}
			}
		}},
		{"corrupt TZif", func(fsys fstest.MapFS) {
			fsys["Broken/Zone"] = &fstest.MapFile{Data: []byte("TZif2\x00")}
		}},
		{"bad coordinates", func(fsys fstest.MapFS) {
			fsys["zone.tab"] = &fstest.MapFile{Data: []byte("DE\t+52+013\tEurope/Berlin\n")}
		}},
		{"bad link", func(fsys fstest.MapFS) {
			fsys["tzdata.zi"] = &fstest.MapFile{Data: []byte("L Europe/Berlin\n")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := testFS(t)
			tt.modify(fsys)
			_, err := FromFS(fsys, Options{})
			require.Error(t, err)
		})
	}
}

func TestParseErrorLine(t *testing.T) {
	_, err := parseZoneTab(strings.NewReader("# comment\nDE\t+5230+01322\tEurope/Berlin\nGB\n"), nil)
	require.EqualError(t, err, `zone.tab: line 3: "GB": expected 3 or 4 fields, got 1`)
}

func TestFromTZif(t *testing.T) {
	z, err := FromTZif("Europe/Berlin", encodeTZif(t, berlinTZif()))
	require.NoError(t, err)
	require.Equal(t, zone.Offset(3208), z.Initial())
	wantTx := []zone.Transition{
		{At: -2422054408, Offset: 3600},
		{At: -1693706400, Offset: 7200},
		{At: -1680483600, Offset: 3600},
	}
	if diff := cmp.Diff(wantTx, z.Transitions()); diff != "" {
		t.Errorf("Transitions() mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, zone.Recurring, z.Kind())
}

func TestFromTZifDropsNoOpTransitions(t *testing.T) {
	f := tzif.File{
		Version: tzif.V2,
		Data: tzif.Data{
			TransitionTimes: []int64{-(1 << 59), 100, 200, 300},
			TransitionTypes: []uint8{1, 2, 1, 0},
			Types: []tzif.LocalTimeType{
				{Utoff: 0, Idx: 0},
				{Utoff: 3600, Idx: 4},
				{Utoff: 3600, Idx: 8},
			},
			Designations: []byte("UTC\x00AAA\x00BBB\x00"),
		},
	}
	z, err := FromTZif("Test/NoOp", encodeTZif(t, f))
	require.NoError(t, err)
	require.Equal(t, zone.Offset(3600), z.Initial())
	if diff := cmp.Diff([]zone.Transition{{At: 300, Offset: 0}}, z.Transitions()); diff != "" {
		t.Errorf("Transitions() mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, zone.FixedTail{Offset: 0}, z.Tail())
}

func TestFirstType(t *testing.T) {
	tests := []struct {
		name string
		data tzif.Data
		want int
	}{
		{"unused type 0", tzif.Data{
			TransitionTypes: []uint8{1},
			Types:           []tzif.LocalTimeType{{Utoff: 1}, {Utoff: 2}},
		}, 0},
		{"dst first transition", tzif.Data{
			TransitionTypes: []uint8{2, 0},
			Types:           []tzif.LocalTimeType{{Utoff: 7200, Dst: true}, {Utoff: 3600}, {Utoff: 7200, Dst: true}},
		}, 1},
		{"first standard type", tzif.Data{
			TransitionTypes: []uint8{0, 1},
			Types:           []tzif.LocalTimeType{{Utoff: 7200, Dst: true}, {Utoff: 3600}},
		}, 1},
		{"only dst", tzif.Data{
			TransitionTypes: []uint8{0},
			Types:           []tzif.LocalTimeType{{Utoff: 7200, Dst: true}},
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstType(tt.data); got != tt.want {
				t.Errorf("firstType() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in       string
		lat, lng int32
		wantErr  bool
	}{
		{in: "+5230+01322", lat: 189000, lng: 48120},
		{in: "-3352+15113", lat: -(33*3600 + 52*60), lng: 151*3600 + 13*60},
		{in: "+513030-0000731", lat: 185430, lng: -451},
		{in: "+9100+00000", wantErr: true},
		{in: "+5260+01322", wantErr: true},
		{in: "5230+01322", wantErr: true},
		{in: "+5230", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lat, lng, err := parseCoordinates(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.lat, lat)
			require.Equal(t, tt.lng, lng)
		})
	}
}
