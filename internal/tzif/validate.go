package tzif

import (
	"errors"
	"fmt"
)

// Validate checks the structural rules of RFC 8536 section 3.2 that a
// reader relies on and returns all violations found.
func Validate(f File) error {
	var (
		errs []error
		d    = f.Data
	)
	switch f.Version {
	case V1, V2, V3, V4:
	default:
		errs = append(errs, fmt.Errorf("unknown version %v", f.Version))
	}

	if n := len(d.UTLocal); n != 0 && n != len(d.Types) {
		errs = append(errs, fmt.Errorf("invalid isutcnt (%d): must be 0 or equal to typecnt (%d)", n, len(d.Types)))
	}
	if n := len(d.StandardWall); n != 0 && n != len(d.Types) {
		errs = append(errs, fmt.Errorf("invalid isstdcnt (%d): must be 0 or equal to typecnt (%d)", n, len(d.Types)))
	}
	if times, types := len(d.TransitionTimes), len(d.TransitionTypes); times != types {
		errs = append(errs, fmt.Errorf("inconsistent transitions: transition times = %d, transition types = %d", times, types))
	}
	if len(d.Types) == 0 {
		errs = append(errs, errors.New("invalid typecnt: must not be zero"))
	}
	if len(d.Designations) == 0 {
		errs = append(errs, errors.New("invalid charcnt: must not be zero"))
	} else if d.Designations[len(d.Designations)-1] != 0 {
		errs = append(errs, errors.New("invalid time zone designations: missing null terminator"))
	}

	for i, t := range d.TransitionTimes {
		if i > 0 && t <= d.TransitionTimes[i-1] {
			errs = append(errs, fmt.Errorf("transition time %d (%d) not after previous (%d)", i, t, d.TransitionTimes[i-1]))
		}
	}
	for i, typ := range d.TransitionTypes {
		if int(typ) >= len(d.Types) {
			errs = append(errs, fmt.Errorf("transition %d: type %d out of range [0, %d)", i, typ, len(d.Types)))
		}
	}
	for i, t := range d.Types {
		if t.Utoff == -1<<31 {
			errs = append(errs, fmt.Errorf("local time type %d: utoff must not be -2**31", i))
		}
		if int(t.Idx) >= len(d.Designations) {
			errs = append(errs, fmt.Errorf("local time type %d: designation index %d out of range", i, t.Idx))
		}
	}
	for i, ut := range d.UTLocal {
		if ut && i < len(d.StandardWall) && !d.StandardWall[i] {
			errs = append(errs, fmt.Errorf("local time type %d: UT indicator set without standard indicator", i))
		}
	}
	return errors.Join(errs...)
}
