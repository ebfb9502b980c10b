package civil

// IsLeapYear reports whether year is a leap year in the proleptic Gregorian calendar.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the number of days in month (1-12) of year.
func DaysInMonth(year, month int) int {
	if month == 2 {
		if IsLeapYear(year) {
			return 29
		}
		return 28
	}
	if month == 4 || month == 6 || month == 9 || month == 11 {
		return 30
	}
	return 31
}

// Weekday returns the day of the week for a date, where 0=Sunday, 1=Monday, ..., 6=Saturday.
func Weekday(year, month, day int) int {
	// Zeller's congruence for the Gregorian calendar.
	if month < 3 {
		month += 12
		year -= 1
	}
	k := mod(year, 100)
	j := floorDiv(year, 100)
	h := (day + ((13 * (month + 1)) / 5) + k + (k / 4) + floorDiv(j, 4) + (5 * j)) % 7
	return mod(h+6, 7)
}

// WeekdayOnOrAfter returns the first date with the given weekday on or after
// year-month-day, rolling over into the next month or year if needed.
func WeekdayOnOrAfter(year, month, day, weekday int) (int, int, int) {
	diff := weekday - Weekday(year, month, day)
	if diff < 0 {
		diff += 7
	}

	d := day + diff
	if n := DaysInMonth(year, month); d > n {
		d -= n
		month++
		if month > 12 {
			month = 1
			year++
		}
	}
	return year, month, d
}

// WeekdayOnOrBefore returns the last date with the given weekday on or before
// year-month-day, rolling back into the previous month or year if needed.
func WeekdayOnOrBefore(year, month, day, weekday int) (int, int, int) {
	diff := Weekday(year, month, day) - weekday
	if diff < 0 {
		diff += 7
	}

	d := day - diff
	if d < 1 {
		month--
		if month < 1 {
			month = 12
			year--
		}
		d += DaysInMonth(year, month)
	}
	return year, month, d
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
