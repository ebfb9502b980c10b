// Package civil converts proleptic Gregorian calendar dates to Unix seconds
// and answers the weekday questions needed to evaluate recurring zone rules.
//
// Seconds does not depend on time.Location: the values computed here are used
// to build the very offsets a Location would need.
package civil

import "time"

// Seconds converts a date and a number of seconds into that day to a Unix
// timestamp, i.e. seconds since 1970-01-01 00:00:00 UTC. Leap seconds are
// ignored. secOfDay may be negative or exceed one day; it is added as is.
func Seconds(year, month, day int, secOfDay int64) int64 {
	d := daysSinceEpoch(year) + daysBeforeMonth[month-1] + uint64(day-1)
	if month > 2 && IsLeapYear(year) {
		d++
	}
	abs := int64(d * secondsPerDay)
	return abs + (absoluteToInternal + internalToUnix) + secOfDay
}

// YearOf returns the UTC calendar year containing the Unix timestamp sec.
func YearOf(sec int64) int {
	return time.Unix(sec, 0).UTC().Year()
}

var daysBeforeMonth = [12]uint64{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// The constants mirror time.go in the Go standard library's time package.
const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	daysPer400Years  = 365*400 + 97
	daysPer100Years  = 365*100 + 24
	daysPer4Years    = 365*4 + 1

	absoluteZeroYear         = -292277022399
	internalYear             = 1
	absoluteToInternal int64 = (absoluteZeroYear - internalYear) * 365.2425 * secondsPerDay
	unixToInternal     int64 = (1969*365 + 1969/4 - 1969/100 + 1969/400) * secondsPerDay
	internalToUnix     int64 = -unixToInternal
)

// daysSinceEpoch takes a year and returns the number of days from
// the absolute epoch to the start of that year.
func daysSinceEpoch(year int) uint64 {
	y := uint64(int64(year) - absoluteZeroYear)

	n := y / 400
	y -= 400 * n
	d := daysPer400Years * n

	n = y / 100
	y -= 100 * n
	d += daysPer100Years * n

	n = y / 4
	y -= 4 * n
	d += daysPer4Years * n

	d += 365 * y
	return d
}
