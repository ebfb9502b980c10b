package tzdb

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/go-tzdb/hostzone"
	"github.com/ngrash/go-tzdb/tzstream"
	"github.com/ngrash/go-tzdb/zone"
)

func unix(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
}

func encode(t *testing.T, id string, initial zone.Offset, tx []zone.Transition, tail zone.Tail) []byte {
	t.Helper()
	z, err := zone.New(id, initial, tx, tail)
	require.NoError(t, err)
	b, err := zone.Encode(z)
	require.NoError(t, err)
	return b
}

var central = zone.DaylightTail{
	Standard: 3600,
	Start:    zone.Recurrence{Savings: 3600, Month: time.March, Day: -1, Weekday: int(time.Sunday), At: 3600, Mode: zone.UTC},
	End:      zone.Recurrence{Month: time.October, Day: -1, Weekday: int(time.Sunday), At: 3600, Mode: zone.UTC},
}

func testStream(t *testing.T) *tzstream.Stream {
	t.Helper()
	b := &tzstream.Builder{
		Version: "2024a",
		Zones: map[string][]byte{
			"Etc/GMT+10":       encode(t, "Etc/GMT+10", -36000, nil, nil),
			"Pacific/Honolulu": encode(t, "Pacific/Honolulu", -36000, nil, nil),
			"Europe/London":    encode(t, "Europe/London", 0, nil, nil),
			"Europe/Berlin":    encode(t, "Europe/Berlin", 3600, nil, central),
			"Test/Steps": encode(t, "Test/Steps", 0, []zone.Transition{
				{At: unix(2020, time.January, 1), Offset: 3600},
				{At: unix(2020, time.July, 1), Offset: 7200},
			}, nil),
		},
		Aliases: map[string]string{
			"GB":        "Europe/London",
			"GB-Eire":   "Europe/London",
			"US/Hawaii": "Pacific/Honolulu",
		},
		WindowsMapping: &tzstream.WindowsMapping{
			Zones: []tzstream.MapZone{
				{WindowsID: "GMT Standard Time", Territory: tzstream.PrimaryTerritory, TzdbIDs: []string{"Europe/London"}},
				{WindowsID: "W. Europe Standard Time", Territory: tzstream.PrimaryTerritory, TzdbIDs: []string{"Europe/Berlin"}},
				{WindowsID: "Hawaiian Standard Time", Territory: tzstream.PrimaryTerritory, TzdbIDs: []string{"Pacific/Honolulu"}},
				{WindowsID: "Hawaiian Standard Time", Territory: "ZZ", TzdbIDs: []string{"Etc/GMT+10"}},
			},
		},
		ZoneLocations: []tzstream.ZoneLocation{
			{LatitudeSeconds: 185430, LongitudeSeconds: -455, Country: tzstream.Country{Name: "Britain (UK)", Code: "GB"}, ZoneID: "Europe/London"},
			{LatitudeSeconds: 188400, LongitudeSeconds: 48120, Country: tzstream.Country{Name: "Germany", Code: "DE"}, ZoneID: "Europe/Berlin"},
			{LatitudeSeconds: 76074, LongitudeSeconds: -568326, Country: tzstream.Country{Name: "United States", Code: "US"}, ZoneID: "Pacific/Honolulu"},
		},
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func noHostEnv() hostzone.Env {
	return hostzone.Env{
		LookupEnv: func(string) (string, bool) { return "", false },
		Readlink:  func(string) (string, error) { return "", fs.ErrNotExist },
		ReadFile:  func(string) ([]byte, error) { return nil, fs.ErrNotExist },
	}
}

func testSource(t *testing.T, opts ...Option) *Source {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC) }),
		WithHostEnv(noHostEnv()),
		WithLocalZone(time.UTC),
	}, opts...)
	return New(testStream(t), opts...)
}

func TestForIDErrors(t *testing.T) {
	src := testSource(t)

	_, err := src.ForID("")
	require.ErrorIs(t, err, ErrMissingID)

	_, err = src.ForID("Mars/Olympus")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "Mars/Olympus")
}

func TestForIDAliasEquivalence(t *testing.T) {
	src := testSource(t)

	canonical, err := src.ForID("Europe/London")
	require.NoError(t, err)
	for _, alias := range []string{"GB", "GB-Eire"} {
		z, err := src.ForID(alias)
		require.NoError(t, err)
		if z != canonical {
			t.Errorf("ForID(%q) = %p, want the zone of Europe/London %p", alias, z, canonical)
		}
		if z.ID() != "Europe/London" {
			t.Errorf("ForID(%q).ID() = %q, want Europe/London", alias, z.ID())
		}
	}
}

func TestForIDResolvesOffsets(t *testing.T) {
	src := testSource(t)
	z, err := src.ForID("Test/Steps")
	require.NoError(t, err)

	tests := []struct {
		at   time.Time
		want zone.Offset
	}{
		{time.Date(2019, time.December, 31, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC), 3600},
		{time.Date(2020, time.December, 31, 0, 0, 0, 0, time.UTC), 7200},
	}
	for _, tt := range tests {
		if got := z.OffsetAt(tt.at); got != tt.want {
			t.Errorf("OffsetAt(%v) = %s, want %s", tt.at, got, tt.want)
		}
	}
}

func TestForIDDecodeError(t *testing.T) {
	b := &tzstream.Builder{Zones: map[string][]byte{"Broken/Zone": {0xff}}}
	s, err := b.Build()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	src := New(s, WithRegisterer(reg))
	_, err = src.ForID("Broken/Zone")
	require.ErrorIs(t, err, zone.ErrDecode)

	n, err := testutil.GatherAndCount(reg, "tzdb_zone_decodes_total")
	require.NoError(t, err)
	if n != 1 {
		t.Errorf("decode series = %d, want 1", n)
	}
}

func TestCachedForIDIsShared(t *testing.T) {
	src := testSource(t)
	var (
		wg  sync.WaitGroup
		got = make([]*zone.Cached, 16)
	)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := src.CachedForID("Europe/Berlin")
			if err != nil {
				t.Error(err)
				return
			}
			got[i] = c
		}()
	}
	wg.Wait()
	for i, c := range got {
		if c != got[0] {
			t.Errorf("CachedForID() call %d returned a different cache", i)
		}
	}
}

func TestIDs(t *testing.T) {
	src := testSource(t)
	want := []string{
		"Etc/GMT+10", "Europe/Berlin", "Europe/London", "GB", "GB-Eire",
		"Pacific/Honolulu", "Test/Steps", "US/Hawaii",
	}
	// The sequence is restartable.
	for range 2 {
		if diff := cmp.Diff(want, slices.Collect(src.IDs())); diff != "" {
			t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestAliases(t *testing.T) {
	src := testSource(t)
	tests := []struct {
		id   string
		want []string
	}{
		{"Europe/London", []string{"GB", "GB-Eire"}},
		{"Europe/Berlin", []string{}},
		{"GB", nil},
		{"Mars/Olympus", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, src.Aliases(tt.id)); diff != "" {
			t.Errorf("Aliases(%q) mismatch (-want +got):\n%s", tt.id, diff)
		}
	}

	m := src.AliasMap()
	m["Europe/London"][0] = "changed"
	if got := src.Aliases("Europe/London")[0]; got != "GB" {
		t.Errorf("AliasMap() shares storage, Aliases()[0] = %q", got)
	}
}

func TestCanonicalIDMap(t *testing.T) {
	m := testSource(t).CanonicalIDMap()

	if got, ok := m.Get("US/Hawaii"); !ok || got != "Pacific/Honolulu" {
		t.Errorf("Get(US/Hawaii) = %q, %v", got, ok)
	}
	if m.Len() != 8 {
		t.Errorf("Len() = %d, want 8", m.Len())
	}
	for id, c := range m.All() {
		if cc, _ := m.Get(c); cc != c {
			t.Errorf("%s -> %s is not a fixed point", id, c)
		}
	}
	require.ErrorIs(t, m.Set("Foo", "Europe/London"), ErrNotSupported)
	require.ErrorIs(t, m.Delete("GB"), ErrNotSupported)
	if _, ok := m.Get("Foo"); ok {
		t.Error("Set() modified the map")
	}
}

func TestMapHostID(t *testing.T) {
	src := testSource(t)
	tests := []struct {
		host   string
		want   string
		wantOK bool
	}{
		{"Europe/Berlin", "Europe/Berlin", true},
		{"GB", "Europe/London", true},
		{"GMT Standard Time", "Europe/London", true},
		{"Hawaiian Standard Time", "Pacific/Honolulu", true},
		{"Martian Standard Time", "", false},
	}
	for _, tt := range tests {
		got, ok := src.MapHostID(tt.host)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("MapHostID(%q) = %q, %v, want %q, %v", tt.host, got, ok, tt.want, tt.wantOK)
		}
	}

	if got, _ := src.MapWindowsID("Hawaiian Standard Time", "ZZ"); got != "Etc/GMT+10" {
		t.Errorf("MapWindowsID(ZZ) = %q, want Etc/GMT+10", got)
	}
	if got, _ := src.MapWindowsID("Hawaiian Standard Time", "US"); got != "Pacific/Honolulu" {
		t.Errorf("MapWindowsID(US) = %q, want primary Pacific/Honolulu", got)
	}
}

func TestGuessZoneID(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := testSource(t, WithRegisterer(reg))
	host := hostzone.FromLocation(time.FixedZone("HST", -10*3600))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Etc/GMT+10 and Pacific/Honolulu agree on every day.
			if id, ok := src.GuessZoneID(host); !ok || id != "Etc/GMT+10" {
				t.Errorf("GuessZoneID() = %q, %v, want Etc/GMT+10", id, ok)
			}
		}()
	}
	wg.Wait()

	if _, ok := src.GuessZoneID(hostzone.FromLocation(time.FixedZone("X", 5*3600+45*60))); ok {
		t.Error("GuessZoneID(+05:45) matched")
	}

	n, err := testutil.GatherAndCount(reg, "tzdb_host_match_duration_seconds")
	require.NoError(t, err)
	if n != 1 {
		t.Errorf("match duration series = %d, want 1", n)
	}
}

func TestGuessZoneIDThreshold(t *testing.T) {
	// A fixed +01:00 zone agrees with Europe/Berlin in winter only.
	host := hostzone.FromLocation(time.FixedZone("CET", 3600))

	if id, ok := testSource(t).GuessZoneID(host); ok {
		t.Errorf("GuessZoneID() = %q with default threshold, want no match", id)
	}
	if id, ok := testSource(t, WithMatchThreshold(0.3)).GuessZoneID(host); !ok || id != "Europe/Berlin" {
		t.Errorf("GuessZoneID() = %q, %v with threshold 0.3, want Europe/Berlin", id, ok)
	}
}

func TestWithMatchThresholdOutOfRange(t *testing.T) {
	// Out of range thresholds keep the default, so a winter-only match
	// is still rejected and an exact match still accepted.
	cet := hostzone.FromLocation(time.FixedZone("CET", 3600))
	hst := hostzone.FromLocation(time.FixedZone("HST", -10*3600))
	for _, threshold := range []float64{0, -0.5, 1.5} {
		src := testSource(t, WithMatchThreshold(threshold))
		if id, ok := src.GuessZoneID(cet); ok {
			t.Errorf("GuessZoneID(CET) = %q with threshold %v, want no match", id, threshold)
		}
		if id, ok := src.GuessZoneID(hst); !ok || id != "Etc/GMT+10" {
			t.Errorf("GuessZoneID(HST) = %q, %v with threshold %v, want Etc/GMT+10", id, ok, threshold)
		}
	}
}

func TestSystemDefaultID(t *testing.T) {
	env := func(tz string) hostzone.Env {
		e := noHostEnv()
		e.LookupEnv = func(key string) (string, bool) { return tz, key == "TZ" }
		return e
	}
	tests := []struct {
		name   string
		opts   []Option
		want   string
		wantOK bool
	}{
		{"tz alias", []Option{WithHostEnv(env("GB"))}, "Europe/London", true},
		{"tz windows id", []Option{WithHostEnv(env("W. Europe Standard Time"))}, "Europe/Berlin", true},
		{"unknown tz falls back to guess", []Option{
			WithHostEnv(env("Mars/Olympus")),
			WithLocalZone(time.FixedZone("HST", -10*3600)),
		}, "Etc/GMT+10", true},
		{"no host id", []Option{WithLocalZone(time.FixedZone("GMT", 0))}, "Europe/London", true},
		{"nothing matches", []Option{WithLocalZone(time.FixedZone("NPT", 5*3600+45*60))}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := testSource(t, tt.opts...).SystemDefaultID()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("SystemDefaultID() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNearestLocation(t *testing.T) {
	src := testSource(t)

	// Potsdam is close to Berlin.
	l, km, ok := src.NearestLocation(52.39, 13.06)
	require.True(t, ok)
	if l.ZoneID != "Europe/Berlin" {
		t.Errorf("NearestLocation(Potsdam) = %q, want Europe/Berlin", l.ZoneID)
	}
	if km < 10 || km > 50 {
		t.Errorf("distance = %.1f km, want about 30 km", km)
	}

	if l, _, _ := src.NearestLocation(21, -157); l.ZoneID != "Pacific/Honolulu" {
		t.Errorf("NearestLocation(Hawaii) = %q, want Pacific/Honolulu", l.ZoneID)
	}
}

func TestLoad(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testStream(t).Encode(&buf))

	src, err := Load(&buf)
	require.NoError(t, err)
	require.NoError(t, src.Validate())
	if src.Version() != "2024a" {
		t.Errorf("Version() = %q, want 2024a", src.Version())
	}

	_, err = Load(bytes.NewReader([]byte("nope")))
	require.ErrorIs(t, err, tzstream.ErrFormat)
	if errors.Is(err, tzstream.ErrInvalidData) {
		t.Error("malformed stream reported as invalid data")
	}
}

func TestDefault(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testStream(t).Encode(&buf))
	path := filepath.Join(t.TempDir(), "tzdb.stream")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	t.Setenv("TZDB_STREAM", path)

	src, err := Default()
	require.NoError(t, err)
	require.Equal(t, "2024a", src.Version())

	again, err := Default()
	require.NoError(t, err)
	if again != src {
		t.Error("Default() returned a different Source on the second call")
	}
}

func TestLoadDefaultZoneinfo(t *testing.T) {
	t.Setenv("TZDB_STREAM", "")
	t.Setenv("ZONEINFO", filepath.Join(t.TempDir(), "missing"))
	t.Setenv("TZDB_WINDOWS_ZONES", "")
	_, err := loadDefault()
	require.Error(t, err)
}
