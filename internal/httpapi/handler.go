// Package httpapi serves a Source over HTTP as JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ngrash/go-tzdb/internal/logger"
	"github.com/ngrash/go-tzdb/tzdb"
	"github.com/ngrash/go-tzdb/tzstream"
)

// Handler wires the zone endpoints to a Source.
type Handler struct {
	source  *tzdb.Source
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// New constructs a handler. log and metrics may be nil.
func New(source *tzdb.Source, log *slog.Logger, metrics *Metrics) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		source:  source,
		logger:  log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Register mounts the zone endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/zones", h.HandleZones)
	r.Get("/v1/zone", h.HandleZone)
	r.Get("/v1/offset", h.HandleOffset)
	r.Get("/v1/system-default", h.HandleSystemDefault)
	r.Get("/v1/nearest", h.HandleNearest)
}

// NewRouter returns a router serving h and, if gatherer is not nil, its
// metrics at /metrics.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)
	h.Register(r)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveRequest(route, status, time.Since(start))
		h.logger.Debug("http_request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
		)
	})
}

type zonesResponse struct {
	Version string     `json:"version"`
	Zones   []zoneInfo `json:"zones"`
}

type zoneInfo struct {
	ID        string `json:"id"`
	Canonical string `json:"canonical"`
}

// HandleZones handles GET /v1/zones. With canonical=true only zone IDs
// are listed, otherwise aliases too.
func (h *Handler) HandleZones(w http.ResponseWriter, r *http.Request) {
	resp := zonesResponse{Version: h.source.Version(), Zones: []zoneInfo{}}
	if r.URL.Query().Get("canonical") == "true" {
		for _, id := range h.source.CanonicalIDs() {
			resp.Zones = append(resp.Zones, zoneInfo{ID: id, Canonical: id})
		}
	} else {
		ids := h.source.CanonicalIDMap()
		for id := range h.source.IDs() {
			c, _ := ids.Get(id)
			resp.Zones = append(resp.Zones, zoneInfo{ID: id, Canonical: c})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type zoneResponse struct {
	ID          string                  `json:"id"`
	Canonical   string                  `json:"canonical"`
	Kind        string                  `json:"kind"`
	Aliases     []string                `json:"aliases"`
	Initial     int32                   `json:"initial_offset_seconds"`
	Transitions int                     `json:"transitions"`
	Locations   []tzstream.ZoneLocation `json:"locations,omitempty"`
}

// HandleZone handles GET /v1/zone?id=.
func (h *Handler) HandleZone(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	z, err := h.source.ForID(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := zoneResponse{
		ID:          id,
		Canonical:   z.ID(),
		Kind:        z.Kind().String(),
		Aliases:     h.source.Aliases(z.ID()),
		Initial:     int32(z.Initial()),
		Transitions: len(z.Transitions()),
	}
	for _, l := range h.source.ZoneLocations() {
		if l.ZoneID == z.ID() {
			resp.Locations = append(resp.Locations, l)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type offsetResponse struct {
	ID            string `json:"id"`
	Canonical     string `json:"canonical"`
	At            int64  `json:"at"`
	OffsetSeconds int32  `json:"offset_seconds"`
	Offset        string `json:"offset"`
	// Start and End bound the interval of the offset; nil if unbounded.
	Start *int64 `json:"start"`
	End   *int64 `json:"end"`
}

// HandleOffset handles GET /v1/offset?id=&at=. at is Unix seconds or
// RFC 3339 and defaults to now.
func (h *Handler) HandleOffset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at, err := parseInstant(q.Get("at"), h.now)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id := q.Get("id")
	z, err := h.source.CachedForID(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	off, iv := z.Lookup(at)
	resp := offsetResponse{
		ID:            id,
		Canonical:     z.ID(),
		At:            at,
		OffsetSeconds: int32(off),
		Offset:        off.String(),
	}
	if lower, upper := iv.Bounded(); lower || upper {
		if lower {
			resp.Start = &iv.Start
		}
		if upper {
			resp.End = &iv.End
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseInstant(s string, now func() time.Time) (int64, error) {
	if s == "" {
		return now().Unix(), nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sec, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, errors.New("at must be Unix seconds or RFC 3339")
	}
	return t.Unix(), nil
}

type systemDefaultResponse struct {
	ID string `json:"id"`
}

// HandleSystemDefault handles GET /v1/system-default.
func (h *Handler) HandleSystemDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := h.source.SystemDefaultID()
	if !ok {
		writeErrorCode(w, http.StatusNotFound, "not_found", "no zone matches the host")
		return
	}
	writeJSON(w, http.StatusOK, systemDefaultResponse{ID: id})
}

type nearestResponse struct {
	ZoneID     string           `json:"zone_id"`
	Country    tzstream.Country `json:"country"`
	Latitude   float64          `json:"latitude"`
	Longitude  float64          `json:"longitude"`
	Comment    string           `json:"comment,omitempty"`
	DistanceKm float64          `json:"distance_km"`
}

// HandleNearest handles GET /v1/nearest?lat=&lng=.
func (h *Handler) HandleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err := errors.Join(err1, err2); err != nil || math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "lat and lng must be degrees")
		return
	}
	l, km, ok := h.source.NearestLocation(lat, lng)
	if !ok {
		writeErrorCode(w, http.StatusNotFound, "not_found", "no zone locations")
		return
	}
	writeJSON(w, http.StatusOK, nearestResponse{
		ZoneID:     l.ZoneID,
		Country:    l.Country,
		Latitude:   l.Latitude(),
		Longitude:  l.Longitude(),
		Comment:    l.Comment,
		DistanceKm: km,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeErrorCode(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, Description: description})
}

// writeError translates Source errors to responses. Internal errors are
// logged and their description is omitted.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tzdb.ErrMissingID):
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "id is required")
	case errors.Is(err, tzdb.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error("request_failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "")
	}
}
