package tzdb

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngrash/go-tzdb/hostzone"
)

// Option configures a Source.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	threshold  float64
	now        func() time.Time
	env        hostzone.Env
	local      *time.Location
}

func defaultOptions() options {
	return options{
		threshold: hostzone.DefaultThreshold,
		now:       time.Now,
		env:       hostzone.OSEnv(),
		local:     time.Local,
	}
}

// WithLogger sets the logger for cache and matching events.
// By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the source's prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMatchThreshold sets the fraction of sampled days a tzdb zone must
// agree with a host zone to be returned by GuessZoneID. Values outside
// (0, 1] are ignored and leave hostzone.DefaultThreshold in effect.
func WithMatchThreshold(t float64) Option {
	return func(o *options) {
		if t > 0 && t <= 1 {
			o.threshold = t
		}
	}
}

// WithClock sets the function returning the current time, which decides
// the sampling window of GuessZoneID.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHostEnv replaces the environment SystemDefaultID inspects.
func WithHostEnv(env hostzone.Env) Option {
	return func(o *options) { o.env = env }
}

// WithLocalZone replaces time.Local as the zone SystemDefaultID guesses
// from when the host zone ID is unknown.
func WithLocalZone(loc *time.Location) Option {
	return func(o *options) { o.local = loc }
}
