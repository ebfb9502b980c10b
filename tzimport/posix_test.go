package tzimport

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"

	"github.com/ngrash/go-tzdb/zone"
)

func lastSunday(m time.Month, at int32, savings zone.Offset) zone.Recurrence {
	return zone.Recurrence{Savings: savings, Month: m, Day: -1, Weekday: int(time.Sunday), At: at, Mode: zone.Wall}
}

func nthWeekday(m time.Month, n int, wd time.Weekday, at int32, savings zone.Offset) zone.Recurrence {
	return zone.Recurrence{Savings: savings, Month: m, Day: 1 + 7*(n-1), Weekday: int(wd), Advance: true, At: at, Mode: zone.Wall}
}

func TestParseTZString(t *testing.T) {
	usRules := zone.DaylightTail{
		Standard: -5 * 3600,
		Start:    nthWeekday(time.March, 2, time.Sunday, 7200, 3600),
		End:      nthWeekday(time.November, 1, time.Sunday, 7200, 0),
	}
	tests := []struct {
		in   string
		want zone.Tail
	}{
		{"UTC0", zone.FixedTail{Offset: 0}},
		{"<+03>-3", zone.FixedTail{Offset: 3 * 3600}},
		{"<-0930>9:30", zone.FixedTail{Offset: -(9*3600 + 1800)}},
		{"CET-1CEST,M3.5.0,M10.5.0/3", zone.DaylightTail{
			Standard: 3600,
			Start:    lastSunday(time.March, 7200, 3600),
			End:      lastSunday(time.October, 3*3600, 0),
		}},
		{"EST5EDT,M3.2.0,M11.1.0", usRules},
		{"EST5EDT", usRules},
		{"EST5EDT4,M3.2.0/2:00:00,M11.1.0/2:00:00", usRules},
		{"IST-2IDT,M3.4.4/26,M10.5.0", zone.DaylightTail{
			Standard: 2 * 3600,
			Start:    nthWeekday(time.March, 4, time.Thursday, 26*3600, 3600),
			End:      lastSunday(time.October, 7200, 0),
		}},
		{"<-02>2<-01>,M3.5.0/-1,M10.5.0/0", zone.DaylightTail{
			Standard: -2 * 3600,
			Start:    lastSunday(time.March, -3600, 3600),
			End:      lastSunday(time.October, 0, 0),
		}},
		{"<+1030>-10:30<+11>-11,M10.1.0,M4.1.0", zone.DaylightTail{
			Standard: 10*3600 + 1800,
			Start:    nthWeekday(time.October, 1, time.Sunday, 7200, 1800),
			End:      nthWeekday(time.April, 1, time.Sunday, 7200, 0),
		}},
		{"XXX3YYY,J60/2,J300", zone.DaylightTail{
			Standard: -3 * 3600,
			Start:    zone.Recurrence{Savings: 3600, Month: time.March, Day: 1, Weekday: zone.NoWeekday, At: 7200, Mode: zone.Wall},
			End:      zone.Recurrence{Month: time.October, Day: 27, Weekday: zone.NoWeekday, At: 7200, Mode: zone.Wall},
		}},
		{"XXX3YYY,31,58/1", zone.DaylightTail{
			Standard: -3 * 3600,
			Start:    zone.Recurrence{Savings: 3600, Month: time.February, Day: 1, Weekday: zone.NoWeekday, At: 7200, Mode: zone.Wall},
			End:      zone.Recurrence{Month: time.February, Day: 28, Weekday: zone.NoWeekday, At: 3600, Mode: zone.Wall},
		}},
		{"EST5EDT,0/0,J365/25", zone.FixedTail{Offset: -4 * 3600}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTZString(tt.in)
			if err != nil {
				t.Fatalf("ParseTZString() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseTZString() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTZStringRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"AB5",
		"EST",
		"EST25",
		"<+03-3",
		"EST5EDT,M3.2.0",
		"EST5EDT,M13.1.0,M11.1.0",
		"EST5EDT,M3.6.0,M11.1.0",
		"EST5EDT,M3.2.7,M11.1.0",
		"EST5EDT,J0,J300",
		"EST5EDT,60,J300",
		"EST5EDT,M3.2.0/168,M11.1.0",
		"EST5EDT;M3.2.0,M11.1.0",
	} {
		if tail, err := ParseTZString(in); err == nil {
			t.Errorf("ParseTZString(%q) = %v, want error", in, tail)
		}
	}
}

func TestParseTZStringAgreesWithTime(t *testing.T) {
	const tz = "CET-1CEST,M3.5.0,M10.5.0/3"
	tail, err := ParseTZString(tz)
	if err != nil {
		t.Fatalf("ParseTZString() failed: %v", err)
	}
	z, err := zone.New("Test/CET", 3600, nil, tail)
	if err != nil {
		t.Fatalf("zone.New() failed: %v", err)
	}
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation() failed: %v", err)
	}
	for ts := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC); ts.Year() < 2032; ts = ts.Add(7 * time.Hour) {
		_, want := ts.In(loc).Zone()
		if got := z.OffsetAt(ts); int(got) != want {
			t.Fatalf("OffsetAt(%v) = %v, want %d", ts, got, want)
		}
	}
}
