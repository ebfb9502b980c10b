package zone

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ngrash/go-tzdb/internal/civil"
)

// Mode says which clock the time of day of a Recurrence is read on.
type Mode uint8

const (
	// Wall is local wall-clock time: standard offset plus the savings
	// in effect just before the transition.
	Wall Mode = iota
	// Standard is local standard time, ignoring any savings.
	Standard
	// UTC is universal time.
	UTC
)

func (m Mode) String() string {
	switch m {
	case Wall:
		return "wall"
	case Standard:
		return "standard"
	case UTC:
		return "utc"
	default:
		return fmt.Sprintf("<undefined mode (%d)>", m)
	}
}

// maxRecurrenceAt bounds the time of day of a Recurrence, as POSIX TZ
// strings do.
const maxRecurrenceAt = 167 * 60 * 60

// NoWeekday is the Weekday of a Recurrence that falls on a fixed day of month.
const NoWeekday = -1

// Recurrence describes a transition that happens once every year, such as
// "last Sunday in March at 01:00 UTC, savings become one hour".
type Recurrence struct {
	// Savings is added to the standard offset once the transition occurred.
	Savings Offset
	// Month is the month of the transition.
	Month time.Month
	// Day is the day of month (1-31) or, if negative, counts back from the
	// end of the month: -1 is the last day.
	Day int
	// Weekday is NoWeekday or a time.Weekday value. If set, the transition
	// happens on that weekday on or after Day (Advance) or on or before Day.
	Weekday int
	Advance bool
	// At is the time of day in seconds. It may be negative or exceed a day.
	At   int32
	Mode Mode
}

func (r Recurrence) validate() error {
	if r.Month < time.January || r.Month > time.December {
		return fmt.Errorf("invalid month %d", r.Month)
	}
	if r.Day == 0 || r.Day > 31 || r.Day < -31 {
		return fmt.Errorf("invalid day %d", r.Day)
	}
	if r.Weekday < NoWeekday || r.Weekday > int(time.Saturday) {
		return fmt.Errorf("invalid weekday %d", r.Weekday)
	}
	if r.At < -maxRecurrenceAt || r.At > maxRecurrenceAt {
		return fmt.Errorf("invalid time of day %d", r.At)
	}
	if r.Mode > UTC {
		return fmt.Errorf("invalid mode %d", r.Mode)
	}
	if !r.Savings.Valid() {
		return fmt.Errorf("invalid savings %d", r.Savings)
	}
	return nil
}

// date returns the local calendar date of the transition in year.
func (r Recurrence) date(year int) (y, m, d int) {
	y, m = year, int(r.Month)
	n := civil.DaysInMonth(y, m)
	if r.Day < 0 {
		d = n + 1 + r.Day
		if d < 1 {
			d = 1
		}
	} else {
		d = min(r.Day, n)
	}
	if r.Weekday == NoWeekday {
		return y, m, d
	}
	if r.Advance {
		return civil.WeekdayOnOrAfter(y, m, d, r.Weekday)
	}
	return civil.WeekdayOnOrBefore(y, m, d, r.Weekday)
}

// instant returns the Unix time of the transition in year, given the
// standard offset of the zone and the savings in effect before it.
func (r Recurrence) instant(year int, standard, savingsBefore Offset) int64 {
	y, m, d := r.date(year)
	local := civil.Seconds(y, m, d, int64(r.At))
	switch r.Mode {
	case UTC:
		return local
	case Standard:
		return local - int64(standard)
	default:
		return local - int64(standard+savingsBefore)
	}
}

// String formats r in the notation of zic rule lines, for example
// "Mar lastSun 01:00u save +01:00" or "Oct Sun>=1 02:00 save +00:00".
func (r Recurrence) String() string {
	day := strconv.Itoa(r.Day)
	switch {
	case r.Day == -1:
		day = "last"
	case r.Day < -1:
		day = fmt.Sprintf("last-%d", -r.Day-1)
	}
	if r.Weekday != NoWeekday {
		wd := time.Weekday(r.Weekday).String()[:3]
		switch {
		case r.Advance:
			day = wd + ">=" + day
		case r.Day == -1:
			day = "last" + wd
		default:
			day = wd + "<=" + day
		}
	}

	at := int64(r.At)
	sign := ""
	if at < 0 {
		sign, at = "-", -at
	}
	clock := fmt.Sprintf("%s%02d:%02d", sign, at/3600, at/60%60)
	if at%60 != 0 {
		clock += fmt.Sprintf(":%02d", at%60)
	}
	switch r.Mode {
	case Standard:
		clock += "s"
	case UTC:
		clock += "u"
	}
	return fmt.Sprintf("%s %s %s save %s", r.Month.String()[:3], day, clock, r.Savings)
}
