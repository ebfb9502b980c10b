// Package zone models a single time zone as an ordered list of offset
// transitions followed by a tail rule, and resolves instants to offsets.
package zone

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/ngrash/go-tzdb/internal/civil"
)

// Kind classifies a zone by the shape of its data.
type Kind uint8

const (
	// Fixed zones have a single offset for all of time.
	Fixed Kind = iota
	// Precalculated zones have explicit transitions and keep the last
	// offset forever.
	Precalculated
	// Recurring zones continue with a yearly standard/daylight rule after
	// their last explicit transition.
	Recurring
)

func (k Kind) String() string {
	switch k {
	case Fixed:
		return "fixed"
	case Precalculated:
		return "precalculated"
	case Recurring:
		return "recurring"
	default:
		return fmt.Sprintf("<undefined kind (%d)>", k)
	}
}

// A Tail determines the offsets after the last explicit transition of a
// zone. It is either a FixedTail or a DaylightTail.
type Tail interface {
	// lookup resolves sec, which is not before from, the instant the
	// tail takes over.
	lookup(sec, from int64) (Offset, Interval)
	validate() error
}

// FixedTail keeps a single offset forever.
type FixedTail struct {
	Offset Offset
}

func (t FixedTail) lookup(_, from int64) (Offset, Interval) {
	return t.Offset, Interval{Start: from, End: Omega}
}

func (t FixedTail) String() string { return "fixed " + t.Offset.String() }

func (t FixedTail) validate() error {
	if !t.Offset.Valid() {
		return fmt.Errorf("invalid fixed tail offset %d", t.Offset)
	}
	return nil
}

// DaylightTail alternates every year between standard time and daylight
// saving time. Start is the transition into daylight saving time, End the
// transition back to standard time.
type DaylightTail struct {
	Standard Offset
	Start    Recurrence
	End      Recurrence
}

// Years beyond this range are clamped when evaluating a DaylightTail.
const (
	minTailYear = -100000
	maxTailYear = 100000
)

func (t DaylightTail) lookup(sec, from int64) (Offset, Interval) {
	year := tailYear(sec)
	var tx [8]Transition
	for i := range 4 {
		y := year - 2 + i
		tx[2*i] = Transition{
			At:     t.Start.instant(y, t.Standard, t.End.Savings),
			Offset: t.Standard + t.Start.Savings,
		}
		tx[2*i+1] = Transition{
			At:     t.End.instant(y, t.Standard, t.Start.Savings),
			Offset: t.Standard + t.End.Savings,
		}
	}
	slices.SortFunc(tx[:], func(a, b Transition) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})

	i := sort.Search(len(tx), func(i int) bool { return tx[i].At > sec }) - 1
	if i < 0 {
		// Only reachable for instants clamped to minTailYear.
		return tx[len(tx)-1].Offset, Interval{Start: from, End: tx[0].At}
	}
	iv := Interval{Start: max(tx[i].At, from), End: Omega}
	if i+1 < len(tx) {
		iv.End = tx[i+1].At
	}
	return tx[i].Offset, iv
}

func (t DaylightTail) String() string {
	return fmt.Sprintf("standard %s, daylight from %s until %s", t.Standard, t.Start, t.End)
}

func (t DaylightTail) validate() error {
	if !t.Standard.Valid() {
		return fmt.Errorf("invalid standard offset %d", t.Standard)
	}
	if err := t.Start.validate(); err != nil {
		return fmt.Errorf("daylight start: %w", err)
	}
	if err := t.End.validate(); err != nil {
		return fmt.Errorf("daylight end: %w", err)
	}
	if !(t.Standard + t.Start.Savings).Valid() || !(t.Standard + t.End.Savings).Valid() {
		return fmt.Errorf("daylight offsets out of range")
	}
	return nil
}

func tailYear(sec int64) int {
	switch {
	case sec <= civil.Seconds(minTailYear, 1, 1, 0):
		return minTailYear
	case sec >= civil.Seconds(maxTailYear, 1, 1, 0):
		return maxTailYear
	}
	return civil.YearOf(sec)
}

// Zone is an immutable time zone: an initial offset, strictly increasing
// transitions and a tail for everything after the last transition.
type Zone struct {
	id          string
	initial     Offset
	transitions []Transition
	tail        Tail
}

// New returns a zone after checking that transitions are strictly
// increasing and all offsets are in range. A nil tail keeps the offset
// of the last transition (or the initial offset) forever.
func New(id string, initial Offset, transitions []Transition, tail Tail) (*Zone, error) {
	if !initial.Valid() {
		return nil, fmt.Errorf("zone %s: invalid initial offset %d", id, initial)
	}
	for i, t := range transitions {
		if !t.Offset.Valid() {
			return nil, fmt.Errorf("zone %s: transition %d: invalid offset %d", id, i, t.Offset)
		}
		if i > 0 && t.At <= transitions[i-1].At {
			return nil, fmt.Errorf("zone %s: transition %d: instant %d not after %d", id, i, t.At, transitions[i-1].At)
		}
	}
	if tail == nil {
		last := initial
		if n := len(transitions); n > 0 {
			last = transitions[n-1].Offset
		}
		tail = FixedTail{Offset: last}
	}
	if err := tail.validate(); err != nil {
		return nil, fmt.Errorf("zone %s: %w", id, err)
	}
	return &Zone{
		id:          id,
		initial:     initial,
		transitions: slices.Clone(transitions),
		tail:        tail,
	}, nil
}

// ID returns the zone identifier.
func (z *Zone) ID() string { return z.id }

// Initial returns the offset in effect before the first transition.
func (z *Zone) Initial() Offset { return z.initial }

// Transitions returns a copy of the explicit transitions.
func (z *Zone) Transitions() []Transition { return slices.Clone(z.transitions) }

// Tail returns the rule in effect after the last explicit transition.
func (z *Zone) Tail() Tail { return z.tail }

// Kind reports whether the zone is fixed, precalculated or recurring.
func (z *Zone) Kind() Kind {
	if _, ok := z.tail.(DaylightTail); ok {
		return Recurring
	}
	if len(z.transitions) == 0 {
		return Fixed
	}
	return Precalculated
}

// Lookup returns the offset in effect at sec (Unix seconds) and the
// interval around sec during which that offset applies.
func (z *Zone) Lookup(sec int64) (Offset, Interval) {
	tx := z.transitions
	if len(tx) == 0 {
		return z.tail.lookup(sec, Alpha)
	}
	if sec < tx[0].At {
		return z.initial, Interval{Start: Alpha, End: tx[0].At}
	}

	// Greatest transition instant <= sec.
	i := sort.Search(len(tx), func(i int) bool { return tx[i].At > sec }) - 1
	if i < len(tx)-1 {
		return tx[i].Offset, Interval{Start: tx[i].At, End: tx[i+1].At}
	}
	return z.tail.lookup(sec, tx[i].At)
}

// OffsetAt returns the offset in effect at t.
func (z *Zone) OffsetAt(t time.Time) Offset {
	off, _ := z.Lookup(t.Unix())
	return off
}

// SameRules reports whether z and o resolve every instant identically
// because they carry the same data, regardless of their IDs.
func (z *Zone) SameRules(o *Zone) bool {
	return z.initial == o.initial &&
		slices.Equal(z.transitions, o.transitions) &&
		z.tail == o.tail
}

func (z *Zone) String() string {
	return fmt.Sprintf("%s (%s, %d transitions)", z.id, z.Kind(), len(z.transitions))
}
