package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzdb/hostzone"
	"github.com/ngrash/go-tzdb/zone"
)

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarize the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.loadSource()
			if err != nil {
				return err
			}
			type info struct {
				Version           string `json:"version"`
				Zones             int    `json:"zones"`
				IDs               int    `json:"ids"`
				WindowsZones      int    `json:"windows_zones"`
				WindowsVersion    string `json:"windows_version,omitempty"`
				ZoneLocations     int    `json:"zone_locations"`
				Zone1970Locations int    `json:"zone1970_locations"`
			}
			v := info{
				Version:           src.Version(),
				Zones:             len(src.CanonicalIDs()),
				IDs:               src.CanonicalIDMap().Len(),
				ZoneLocations:     len(src.ZoneLocations()),
				Zone1970Locations: len(src.Zone1970Locations()),
			}
			if m := src.WindowsMapping(); m != nil {
				v.WindowsZones = len(m.Zones)
				v.WindowsVersion = m.WindowsVersion
			}
			rows := fieldRows(
				"Version", v.Version,
				"Zones", strconv.Itoa(v.Zones),
				"Aliases", strconv.Itoa(v.IDs-v.Zones),
				"Windows mappings", strconv.Itoa(v.WindowsZones),
				"Windows version", v.WindowsVersion,
				"zone.tab locations", strconv.Itoa(v.ZoneLocations),
				"zone1970.tab locations", strconv.Itoa(v.Zone1970Locations),
			)
			return a.render(a.out(cmd), v, []string{"FIELD", "VALUE"}, rows)
		},
	}
}

func (a *app) idsCommand() *cobra.Command {
	var canonicalOnly bool
	cmd := &cobra.Command{
		Use:   "ids",
		Short: "List zone IDs and their canonical IDs",
		Example: `  tzdb ids
  tzdb ids --canonical --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.loadSource()
			if err != nil {
				return err
			}
			type entry struct {
				ID        string `json:"id"`
				Canonical string `json:"canonical"`
			}
			var entries []entry
			var rows [][]string
			ids := src.CanonicalIDMap()
			for id := range src.IDs() {
				c, _ := ids.Get(id)
				if canonicalOnly && c != id {
					continue
				}
				entries = append(entries, entry{id, c})
				rows = append(rows, []string{id, c})
			}
			return a.render(a.out(cmd), entries, []string{"ID", "CANONICAL"}, rows)
		},
	}
	cmd.Flags().BoolVar(&canonicalOnly, "canonical", false, "list canonical IDs only")
	return cmd
}

func (a *app) zoneCommand() *cobra.Command {
	var (
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "zone <id>",
		Short: "Show a zone with its transitions",
		Example: `  tzdb zone Europe/Berlin
  tzdb zone GB --from 1990-01-01 --to 2000-01-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.loadSource()
			if err != nil {
				return err
			}
			z, err := src.ForID(args[0])
			if err != nil {
				return err
			}
			lo, hi := zone.Alpha, zone.Omega
			if from != "" {
				if lo, err = parseInstant(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			if to != "" {
				if hi, err = parseInstant(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			type transition struct {
				At     time.Time `json:"at"`
				Offset string    `json:"offset"`
			}
			type zoneInfo struct {
				ID          string       `json:"id"`
				Canonical   string       `json:"canonical"`
				Kind        string       `json:"kind"`
				Aliases     []string     `json:"aliases"`
				Initial     string       `json:"initial"`
				Tail        string       `json:"tail"`
				Transitions []transition `json:"transitions"`
			}
			v := zoneInfo{
				ID:        args[0],
				Canonical: z.ID(),
				Kind:      z.Kind().String(),
				Aliases:   src.Aliases(z.ID()),
				Initial:   z.Initial().String(),
				Tail:      fmt.Sprint(z.Tail()),
			}
			rows := fieldRows(
				"ID", v.ID,
				"Canonical", v.Canonical,
				"Kind", v.Kind,
				"Aliases", strings.Join(v.Aliases, " "),
				"Initial", v.Initial,
				"Tail", v.Tail,
			)
			for _, t := range z.Transitions() {
				if t.At < lo || t.At >= hi {
					continue
				}
				at := time.Unix(t.At, 0).UTC()
				v.Transitions = append(v.Transitions, transition{at, t.Offset.String()})
				rows = append(rows, []string{at.Format(time.RFC3339), t.Offset.String()})
			}
			return a.render(a.out(cmd), v, []string{"FIELD", "VALUE"}, rows)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first transition to list (RFC 3339, date or Unix seconds)")
	cmd.Flags().StringVar(&to, "to", "", "end of transitions to list (exclusive)")
	return cmd
}

func (a *app) offsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "offset <id> [instant]",
		Short: "Show the UTC offset of a zone at an instant (default now)",
		Example: `  tzdb offset Europe/Berlin
  tzdb offset US/Hawaii 2024-07-01T12:00:00Z
  tzdb offset GB 1700000000`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.loadSource()
			if err != nil {
				return err
			}
			z, err := src.CachedForID(args[0])
			if err != nil {
				return err
			}
			at := time.Now().Unix()
			if len(args) == 2 {
				if at, err = parseInstant(args[1]); err != nil {
					return err
				}
			}
			off, iv := z.Lookup(at)

			type offset struct {
				ID            string `json:"id"`
				Canonical     string `json:"canonical"`
				At            int64  `json:"at"`
				Offset        string `json:"offset"`
				OffsetSeconds int32  `json:"offset_seconds"`
				Start         string `json:"start"`
				End           string `json:"end"`
			}
			v := offset{
				ID:            args[0],
				Canonical:     z.ID(),
				At:            at,
				Offset:        off.String(),
				OffsetSeconds: int32(off),
				Start:         formatBound(iv.Start),
				End:           formatBound(iv.End),
			}
			rows := fieldRows(
				"ID", v.ID,
				"Canonical", v.Canonical,
				"At", time.Unix(at, 0).UTC().Format(time.RFC3339),
				"Offset", v.Offset,
				"Since", v.Start,
				"Until", v.End,
			)
			return a.render(a.out(cmd), v, []string{"FIELD", "VALUE"}, rows)
		},
	}
}

func formatBound(sec int64) string {
	if sec == zone.Alpha || sec == zone.Omega {
		return "-"
	}
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// parseInstant accepts Unix seconds, RFC 3339 times and dates.
func parseInstant(s string) (int64, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sec, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("invalid instant %q: want Unix seconds, RFC 3339 or YYYY-MM-DD", s)
}

func (a *app) guessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "guess",
		Short: "Determine the zone the host is configured with",
		Long: `guess reports the host zone ID from TZ, /etc/localtime or /etc/timezone
and the database zone it maps to. If the host ID is unknown, the zone that
agrees most often with the local time over this and next year is chosen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.loadSource()
			if err != nil {
				return err
			}
			type guess struct {
				HostID string `json:"host_id,omitempty"`
				ID     string `json:"id,omitempty"`
			}
			var v guess
			v.HostID, _ = hostzone.LocalID(hostzone.OSEnv())
			id, ok := src.SystemDefaultID()
			if !ok {
				return errors.New("no zone matches the host")
			}
			v.ID = id
			rows := fieldRows("Host ID", v.HostID, "Zone", v.ID)
			return a.render(a.out(cmd), v, []string{"FIELD", "VALUE"}, rows)
		},
	}
}

func (a *app) nearestCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "nearest <lat> <lng>",
		Short:   "Find the zone whose principal location is nearest to a point",
		Example: `  tzdb nearest 52.52 13.40`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			src, err := a.loadSource()
			if err != nil {
				return err
			}
			l, km, ok := src.NearestLocation(lat, lng)
			if !ok {
				return errors.New("no zone locations in the database")
			}
			type nearest struct {
				ZoneID     string  `json:"zone_id"`
				Country    string  `json:"country"`
				Comment    string  `json:"comment,omitempty"`
				DistanceKm float64 `json:"distance_km"`
			}
			v := nearest{ZoneID: l.ZoneID, Country: l.Country.Code, Comment: l.Comment, DistanceKm: km}
			rows := fieldRows(
				"Zone", v.ZoneID,
				"Country", strings.TrimSpace(l.Country.Code+" "+l.Country.Name),
				"Comment", v.Comment,
				"Distance", fmt.Sprintf("%.1f km", km),
			)
			return a.render(a.out(cmd), v, []string{"FIELD", "VALUE"}, rows)
		},
	}
}
