package tzimport

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/ngrash/go-tzdb/tzstream"
)

type supplementalData struct {
	Version struct {
		Number string `xml:"number,attr"`
	} `xml:"version"`
	MapTimezones struct {
		OtherVersion string `xml:"otherVersion,attr"`
		TypeVersion  string `xml:"typeVersion,attr"`
		MapZones     []struct {
			Other     string `xml:"other,attr"`
			Territory string `xml:"territory,attr"`
			Type      string `xml:"type,attr"`
		} `xml:"mapZone"`
	} `xml:"windowsZones>mapTimezones"`
}

// ParseWindowsZones reads CLDR's windowsZones.xml. Entries are kept in
// document order; see filterWindows for the cleanup applied on import.
func ParseWindowsZones(r io.Reader) (*tzstream.WindowsMapping, error) {
	var doc supplementalData
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse windows zones: %w", err)
	}
	m := &tzstream.WindowsMapping{
		Version:        cldrRevision(doc.Version.Number),
		TzdbVersion:    doc.MapTimezones.TypeVersion,
		WindowsVersion: doc.MapTimezones.OtherVersion,
	}
	for _, z := range doc.MapTimezones.MapZones {
		if z.Other == "" || z.Territory == "" {
			return nil, fmt.Errorf("parse windows zones: mapZone %q: missing other or territory", z.Other)
		}
		m.Zones = append(m.Zones, tzstream.MapZone{
			WindowsID: z.Other,
			Territory: z.Territory,
			TzdbIDs:   strings.Fields(z.Type),
		})
	}
	return m, nil
}

// cldrRevision strips the SVN keyword of older CLDR releases:
// "$Revision: 13756 $" becomes "13756".
func cldrRevision(s string) string {
	s = strings.TrimPrefix(s, "$Revision:")
	s = strings.TrimSuffix(s, "$")
	s = strings.TrimPrefix(s, "$Revision")
	return strings.TrimSpace(s)
}

// filterWindows removes what a stream rejects: IDs unknown to the
// database, repeated IDs, entries left without IDs, repeated territories
// of a Windows zone, and territory entries whose IDs equal those of the
// primary entry or of an earlier territory.
func filterWindows(m *tzstream.WindowsMapping, known func(string) bool, log *slog.Logger) *tzstream.WindowsMapping {
	out := *m
	out.Zones = nil

	zones := make([]tzstream.MapZone, 0, len(m.Zones))
	primary := make(map[string]string)
	territories := make(map[[2]string]bool)
	for _, z := range m.Zones {
		z.TzdbIDs = cleanIDs(z, known, log)
		if len(z.TzdbIDs) == 0 {
			log.Warn("windows_zone_dropped", "windows_id", z.WindowsID, "territory", z.Territory, "reason", "no known zones")
			continue
		}
		pair := [2]string{z.WindowsID, z.Territory}
		if territories[pair] {
			log.Warn("windows_zone_dropped", "windows_id", z.WindowsID, "territory", z.Territory, "reason", "repeated territory")
			continue
		}
		territories[pair] = true
		if z.Primary() {
			primary[z.WindowsID] = tzstream.TerritoryKey(z.WindowsID, z.TzdbIDs)
		}
		zones = append(zones, z)
	}

	seen := make(map[string]bool)
	for _, z := range zones {
		if !z.Primary() {
			key := tzstream.TerritoryKey(z.WindowsID, z.TzdbIDs)
			if key == primary[z.WindowsID] || seen[key] {
				continue
			}
			seen[key] = true
		}
		out.Zones = append(out.Zones, z)
	}
	return &out
}

func cleanIDs(z tzstream.MapZone, known func(string) bool, log *slog.Logger) []string {
	var ids []string
	for _, id := range z.TzdbIDs {
		if !known(id) {
			log.Warn("windows_zone_unknown_id", "windows_id", z.WindowsID, "territory", z.Territory, "tzdb_id", id)
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
