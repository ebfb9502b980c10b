package zone

import (
	"fmt"
	"math"
	"time"
)

// Offset is the difference between local time and UTC, in seconds.
// Positive offsets are east of Greenwich.
type Offset int32

// MaxOffset bounds the magnitude of any Offset stored in a zone.
const MaxOffset Offset = 18 * 60 * 60

// OffsetOf returns the Offset for d, truncated to whole seconds.
func OffsetOf(d time.Duration) Offset {
	return Offset(d / time.Second)
}

// Duration returns o as a time.Duration.
func (o Offset) Duration() time.Duration {
	return time.Duration(o) * time.Second
}

// Valid reports whether o lies within [-MaxOffset, MaxOffset].
func (o Offset) Valid() bool {
	return o >= -MaxOffset && o <= MaxOffset
}

// String formats o as ±hh:mm, or ±hh:mm:ss when seconds are present.
func (o Offset) String() string {
	sign := '+'
	v := int64(o)
	if v < 0 {
		sign = '-'
		v = -v
	}
	h, m, s := v/3600, v/60%60, v%60
	if s != 0 {
		return fmt.Sprintf("%c%02d:%02d:%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d:%02d", sign, h, m)
}

// Alpha and Omega are the beginning and end of time for intervals:
// an interval starting at Alpha has no lower bound, one ending at
// Omega has no upper bound.
const (
	Alpha int64 = math.MinInt64
	Omega int64 = math.MaxInt64
)

// Transition marks the instant, in Unix seconds, at which a zone's
// offset from UTC changes to Offset.
type Transition struct {
	At     int64
	Offset Offset
}

func (t Transition) String() string {
	return fmt.Sprintf("%s %s", time.Unix(t.At, 0).UTC().Format(time.RFC3339), t.Offset)
}

// Interval is the half-open range [Start, End) of Unix seconds during
// which a single offset applies.
type Interval struct {
	Start int64
	End   int64
}

// Contains reports whether sec lies within the interval.
func (i Interval) Contains(sec int64) bool {
	return i.Start <= sec && sec < i.End
}

// Bounded reports whether the interval has a lower and an upper bound.
func (i Interval) Bounded() (lower, upper bool) {
	return i.Start != Alpha, i.End != Omega
}
