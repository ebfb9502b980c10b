package tzimport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ngrash/go-tzdb/zone"
)

// ParseTZString converts a POSIX TZ string, such as the footer of a TZif
// file, to the tail of a zone:
//
//	std offset [dst [offset] [,start[/time],end[/time]]]
//
// Offsets are positive west of Greenwich, as in POSIX. Rules take the
// forms Mm.w.d, Jn and n; the hour of a rule time may range from -167 to
// 167 as permitted by TZif version 3. A DST zone without rules uses the
// US rules M3.2.0,M11.1.0.
func ParseTZString(s string) (zone.Tail, error) {
	p := &tzParser{s: s}
	tail, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("parse TZ string %q: %w", s, err)
	}
	return tail, nil
}

type tzParser struct {
	s   string
	pos int
}

func (p *tzParser) rest() string { return p.s[p.pos:] }

func (p *tzParser) parse() (zone.Tail, error) {
	if _, err := p.name(); err != nil {
		return nil, fmt.Errorf("std name: %w", err)
	}
	stdWest, err := p.offset(24)
	if err != nil {
		return nil, fmt.Errorf("std offset: %w", err)
	}
	std := zone.Offset(-stdWest)
	if p.rest() == "" {
		return zone.FixedTail{Offset: std}, nil
	}

	if _, err := p.name(); err != nil {
		return nil, fmt.Errorf("dst name: %w", err)
	}
	dst := std + 3600
	if r := p.rest(); r != "" && r[0] != ',' {
		dstWest, err := p.offset(24)
		if err != nil {
			return nil, fmt.Errorf("dst offset: %w", err)
		}
		dst = zone.Offset(-dstWest)
	}

	rules := ",M3.2.0,M11.1.0"
	if p.rest() != "" {
		rules = p.rest()
	}
	parts := strings.Split(strings.TrimPrefix(rules, ","), ",")
	if len(parts) != 2 || !strings.HasPrefix(rules, ",") {
		return nil, fmt.Errorf("expected two rules, got %q", rules)
	}
	start, err := parseRule(parts[0])
	if err != nil {
		return nil, fmt.Errorf("start rule: %w", err)
	}
	end, err := parseRule(parts[1])
	if err != nil {
		return nil, fmt.Errorf("end rule: %w", err)
	}

	if start.allYear(end, dst-std) {
		return zone.FixedTail{Offset: dst}, nil
	}
	tail := zone.DaylightTail{
		Standard: std,
		Start:    start.recurrence(dst - std),
		End:      end.recurrence(0),
	}
	if _, err := zone.New("", std, nil, tail); err != nil {
		return nil, err
	}
	return tail, nil
}

// name consumes an abbreviation: at least three letters, or any
// characters except '>' enclosed in angle brackets.
func (p *tzParser) name() (string, error) {
	r := p.rest()
	if strings.HasPrefix(r, "<") {
		end := strings.IndexByte(r, '>')
		if end < 0 {
			return "", fmt.Errorf("unterminated quoted name %q", r)
		}
		p.pos += end + 1
		return r[1:end], nil
	}
	n := 0
	for n < len(r) && (r[n] >= 'a' && r[n] <= 'z' || r[n] >= 'A' && r[n] <= 'Z') {
		n++
	}
	if n < 3 {
		return "", fmt.Errorf("invalid name at %q", r)
	}
	p.pos += n
	return r[:n], nil
}

// offset consumes [+-]hh[:mm[:ss]] and returns seconds.
func (p *tzParser) offset(maxHours int) (int64, error) {
	r := p.rest()
	n := 0
	for n < len(r) && strings.IndexByte("+-:0123456789", r[n]) >= 0 {
		n++
	}
	v, err := parseHMS(r[:n], maxHours)
	if err != nil {
		return 0, err
	}
	p.pos += n
	return v, nil
}

// parseHMS parses [+-]hh[:mm[:ss]] into seconds.
func parseHMS(s string, maxHours int) (int64, error) {
	sign := int64(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign, s = -1, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 || parts[0] == "" {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	limits := []int{maxHours, 59, 59}
	var secs int64
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		secs = secs*60 + int64(v)
	}
	for range 3 - len(parts) {
		secs *= 60
	}
	return sign * secs, nil
}

type ruleKind int

const (
	ruleMonthWeek   ruleKind = iota // Mm.w.d
	ruleJulian                      // Jn, 1..365, February 29 never counted
	ruleZeroJulian                  // n, 0..365, February 29 counted
)

type rule struct {
	kind    ruleKind
	month   int
	week    int
	weekday int
	day     int
	at      int64
}

var daysBefore = [...]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334, 365}

func parseRule(s string) (rule, error) {
	var r rule
	date, at, hasTime := strings.Cut(s, "/")
	r.at = 2 * 60 * 60
	if hasTime {
		v, err := parseHMS(at, 167)
		if err != nil {
			return r, err
		}
		r.at = v
	}

	switch {
	case strings.HasPrefix(date, "M"):
		r.kind = ruleMonthWeek
		fields := strings.Split(date[1:], ".")
		if len(fields) != 3 {
			return r, fmt.Errorf("invalid rule %q", s)
		}
		var err error
		if r.month, err = atoiRange(fields[0], 1, 12); err != nil {
			return r, fmt.Errorf("month: %w", err)
		}
		if r.week, err = atoiRange(fields[1], 1, 5); err != nil {
			return r, fmt.Errorf("week: %w", err)
		}
		if r.weekday, err = atoiRange(fields[2], 0, 6); err != nil {
			return r, fmt.Errorf("weekday: %w", err)
		}
	case strings.HasPrefix(date, "J"):
		r.kind = ruleJulian
		var err error
		if r.day, err = atoiRange(date[1:], 1, 365); err != nil {
			return r, fmt.Errorf("julian day: %w", err)
		}
	default:
		r.kind = ruleZeroJulian
		var err error
		if r.day, err = atoiRange(date, 0, 365); err != nil {
			return r, fmt.Errorf("day: %w", err)
		}
		// Days after February 28 depend on the year and have no
		// month/day equivalent.
		if r.day >= 59 {
			return r, fmt.Errorf("zero-based day %d after February is not supported", r.day)
		}
	}
	return r, nil
}

func atoiRange(s string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", v, lo, hi)
	}
	return v, nil
}

// recurrence converts r to a wall clock recurrence. POSIX rule times are
// local time in the offset in effect before the transition.
func (r rule) recurrence(savings zone.Offset) zone.Recurrence {
	rec := zone.Recurrence{
		Savings: savings,
		Weekday: zone.NoWeekday,
		At:      int32(r.at),
		Mode:    zone.Wall,
	}
	switch r.kind {
	case ruleMonthWeek:
		rec.Month = time.Month(r.month)
		rec.Weekday = r.weekday
		if r.week == 5 {
			rec.Day = -1
		} else {
			rec.Day = 1 + 7*(r.week-1)
			rec.Advance = true
		}
	default:
		// Jn counts 1..365 and n counts 0..58 here; both map to a
		// non-leap year's calendar.
		yday := r.day
		if r.kind == ruleJulian {
			yday--
		}
		m := 1
		for yday >= daysBefore[m] {
			m++
		}
		rec.Month = time.Month(m)
		rec.Day = yday - daysBefore[m-1] + 1
	}
	return rec
}

// allYear reports whether start and end describe daylight saving time
// all year round, as in "EST5EDT,0/0,J365/25".
func (r rule) allYear(end rule, savings zone.Offset) bool {
	startsJan1 := (r.kind == ruleZeroJulian && r.day == 0 || r.kind == ruleJulian && r.day == 1) && r.at == 0
	endsDec31 := end.kind == ruleJulian && end.day == 365 && end.at == 24*60*60+int64(savings)
	return startsJan1 && endsDec31
}
