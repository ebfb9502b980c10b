// Package hostzone relates the time zones of the host system to tzdb
// zones: it detects the host's zone ID and guesses the tzdb zone that
// behaves most like a host zone.
package hostzone

import (
	"time"

	"github.com/ngrash/go-tzdb/zone"
)

// Zone is anything that reports a UTC offset per instant.
// *zone.Zone and *zone.Cached satisfy it.
type Zone interface {
	ID() string
	OffsetAt(t time.Time) zone.Offset
}

// DefaultThreshold is the fraction of sampled days on which a candidate
// must agree with the host zone to be accepted.
const DefaultThreshold = 0.7

// Matcher guesses which candidate zone a host zone corresponds to by
// comparing their offsets at UTC midnight of every day from January 1 of
// the current year to December 31 of the next year.
type Matcher struct {
	// Threshold is the minimum score of an accepted match. Zero means
	// DefaultThreshold.
	Threshold float64
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// Result is the best candidate and the fraction of samples it matched.
type Result struct {
	ID    string
	Score float64
}

// Match returns the ID of the best candidate, or false if no candidate
// reaches the threshold.
func (m Matcher) Match(host Zone, candidates []Zone) (string, bool) {
	r, ok := m.Best(host, candidates)
	if !ok || !m.Accepts(r) {
		return "", false
	}
	return r.ID, true
}

// Accepts reports whether r reaches the threshold.
func (m Matcher) Accepts(r Result) bool {
	return r.Score >= m.threshold()
}

// Best returns the highest scoring candidate regardless of the threshold.
// Equal scores are broken by the lexically smallest ID. It returns false
// only if there are no candidates.
func (m Matcher) Best(host Zone, candidates []Zone) (Result, bool) {
	if len(candidates) == 0 {
		return Result{}, false
	}
	samples := m.samples()
	want := make([]zone.Offset, len(samples))
	for i, t := range samples {
		want[i] = host.OffsetAt(t)
	}

	var (
		best      Result
		bestCount = -1
	)
	for _, c := range candidates {
		n := 0
		for i, t := range samples {
			if c.OffsetAt(t) == want[i] {
				n++
			}
		}
		if n > bestCount || (n == bestCount && c.ID() < best.ID) {
			best.ID, bestCount = c.ID(), n
		}
	}
	best.Score = float64(bestCount) / float64(len(samples))
	return best, true
}

func (m Matcher) threshold() float64 {
	if m.Threshold == 0 {
		return DefaultThreshold
	}
	return m.Threshold
}

// samples returns UTC midnight of every day in the current and next year.
func (m Matcher) samples() []time.Time {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	year := now().UTC().Year()
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+2, time.January, 1, 0, 0, 0, 0, time.UTC)

	var out []time.Time
	for t := start; t.Before(end); t = t.AddDate(0, 0, 1) {
		out = append(out, t)
	}
	return out
}
