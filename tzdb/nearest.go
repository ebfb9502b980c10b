package tzdb

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/ngrash/go-tzdb/tzstream"
)

// earthRadiusKm is the mean radius of the earth.
const earthRadiusKm = 6371.0088

// NearestLocation returns the zone.tab location closest to the given
// coordinates in degrees and its great-circle distance in kilometres.
// Equidistant locations are broken by zone ID.
func (s *Source) NearestLocation(lat, lng float64) (tzstream.ZoneLocation, float64, bool) {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return tzstream.ZoneLocation{}, 0, false
	}
	query := s2.LatLngFromDegrees(lat, lng)

	var (
		best  tzstream.ZoneLocation
		dist  = math.Inf(1)
		found bool
	)
	for _, l := range s.stream.ZoneLocations() {
		d := float64(query.Distance(s2.LatLngFromDegrees(l.Latitude(), l.Longitude())))
		if d < dist || (d == dist && l.ZoneID < best.ZoneID) {
			best, dist, found = l, d, true
		}
	}
	if !found {
		return tzstream.ZoneLocation{}, 0, false
	}
	return best, dist * earthRadiusKm, true
}
