package tzdb

import (
	"time"

	"github.com/ngrash/go-tzdb/hostzone"
)

// GuessZoneID returns the canonical ID of the zone that behaves most like
// h, or false if none agrees with it often enough. Results are cached by
// h.ID() for the lifetime of the Source.
func (s *Source) GuessZoneID(h hostzone.Zone) (string, bool) {
	key := h.ID()
	if g, ok := s.guesses.Load(key); ok {
		s.metrics.IncrementMatch("cached")
		g := g.(guess)
		return g.id, g.ok
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		if g, ok := s.guesses.Load(key); ok {
			return g, nil
		}
		start := time.Now()
		var candidates []hostzone.Zone
		for _, id := range s.stream.ZoneIDs() {
			c, err := s.CachedForID(id)
			if err != nil {
				s.log.Warn("guess_candidate_skipped", "id", id, "error", err)
				continue
			}
			candidates = append(candidates, c)
		}
		r, found := s.matcher.Best(h, candidates)
		g := guess{id: r.ID, ok: found && s.matcher.Accepts(r)}
		if !g.ok {
			g.id = ""
		}
		s.metrics.ObserveMatchDuration(time.Since(start))
		if g.ok {
			s.metrics.IncrementMatch("match")
		} else {
			s.metrics.IncrementMatch("none")
		}
		s.log.Info("host_zone_guessed", "host_id", key, "id", g.id, "best", r.ID, "score", r.Score, "matched", g.ok)
		s.guesses.Store(key, g)
		return g, nil
	})
	g := v.(guess)
	return g.id, g.ok
}

// SystemDefaultID returns the canonical ID of the host's time zone. The
// host zone ID from TZ, /etc/localtime or /etc/timezone is used if the
// database knows it; otherwise the zone is guessed from the behaviour of
// the local time.Location.
func (s *Source) SystemDefaultID() (string, bool) {
	if hostID, ok := hostzone.LocalID(s.env); ok {
		if id, ok := s.MapHostID(hostID); ok {
			return id, true
		}
		s.log.Debug("host_id_unknown", "host_id", hostID)
	}
	return s.GuessZoneID(hostzone.FromLocation(s.local))
}
