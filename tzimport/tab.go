package tzimport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ngrash/go-tzdb/tzstream"
)

// parseError is an error in a line of a text file of the database.
type parseError struct {
	file       string
	lineNumber int
	line       string
	err        error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("%s: line %d: %q: %v", e.file, e.lineNumber, e.line, e.err)
}

func (e *parseError) Unwrap() error { return e.err }

// scanLines calls fn with the fields of every line of r that is neither
// empty nor a comment. split separates the fields of a line.
func scanLines(file string, r io.Reader, split func(string) []string, fn func(fields []string) error) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(split(line)); err != nil {
			return &parseError{file, lineNumber, line, err}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	return nil
}

func splitTabs(line string) []string { return strings.Split(line, "\t") }

// splitFields removes a trailing comment and splits at white space.
func splitFields(line string) []string {
	if i := strings.Index(line, "#"); i != -1 {
		line = line[:i]
	}
	return strings.Fields(line)
}

// parseISO3166 reads iso3166.tab into a map from country code to name.
func parseISO3166(r io.Reader) (map[string]string, error) {
	countries := make(map[string]string)
	err := scanLines("iso3166.tab", r, splitTabs, func(fields []string) error {
		if len(fields) != 2 {
			return fmt.Errorf("expected 2 fields, got %d", len(fields))
		}
		countries[fields[0]] = fields[1]
		return nil
	})
	return countries, err
}

// parseZoneTab reads zone.tab. Countries missing from countries are kept
// with an empty name.
func parseZoneTab(r io.Reader, countries map[string]string) ([]tzstream.ZoneLocation, error) {
	var locs []tzstream.ZoneLocation
	err := scanLines("zone.tab", r, splitTabs, func(fields []string) error {
		if len(fields) < 3 || len(fields) > 4 {
			return fmt.Errorf("expected 3 or 4 fields, got %d", len(fields))
		}
		lat, lng, err := parseCoordinates(fields[1])
		if err != nil {
			return err
		}
		l := tzstream.ZoneLocation{
			LatitudeSeconds:  lat,
			LongitudeSeconds: lng,
			Country:          tzstream.Country{Code: fields[0], Name: countries[fields[0]]},
			ZoneID:           fields[2],
		}
		if len(fields) == 4 {
			l.Comment = fields[3]
		}
		locs = append(locs, l)
		return nil
	})
	return locs, err
}

// parseZone1970Tab reads zone1970.tab, whose first column is a comma
// separated list of country codes.
func parseZone1970Tab(r io.Reader, countries map[string]string) ([]tzstream.Zone1970Location, error) {
	var locs []tzstream.Zone1970Location
	err := scanLines("zone1970.tab", r, splitTabs, func(fields []string) error {
		if len(fields) < 3 || len(fields) > 4 {
			return fmt.Errorf("expected 3 or 4 fields, got %d", len(fields))
		}
		lat, lng, err := parseCoordinates(fields[1])
		if err != nil {
			return err
		}
		l := tzstream.Zone1970Location{
			LatitudeSeconds:  lat,
			LongitudeSeconds: lng,
			ZoneID:           fields[2],
		}
		for _, code := range strings.Split(fields[0], ",") {
			l.Countries = append(l.Countries, tzstream.Country{Code: code, Name: countries[code]})
		}
		if len(fields) == 4 {
			l.Comment = fields[3]
		}
		locs = append(locs, l)
		return nil
	})
	return locs, err
}

// parseCoordinates parses ISO 6709 sign-degrees-minutes[-seconds]
// coordinates such as "+5230+01322" or "-340000+1511200" into arc-seconds.
func parseCoordinates(s string) (lat, lng int32, err error) {
	i := strings.IndexAny(s[min(1, len(s)):], "+-") + 1
	if i <= 0 {
		return 0, 0, fmt.Errorf("invalid coordinates %q", s)
	}
	if lat, err = parseDMS(s[:i], 2, 90); err != nil {
		return 0, 0, fmt.Errorf("latitude: %w", err)
	}
	if lng, err = parseDMS(s[i:], 3, 180); err != nil {
		return 0, 0, fmt.Errorf("longitude: %w", err)
	}
	return lat, lng, nil
}

func parseDMS(s string, degreeDigits int, maxDegrees int64) (int32, error) {
	if len(s) < 1 || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("missing sign in %q", s)
	}
	digits := s[1:]
	if len(digits) != degreeDigits+2 && len(digits) != degreeDigits+4 {
		return 0, fmt.Errorf("invalid length of %q", s)
	}
	var parts [3]int64
	for i := 0; len(digits) > 0; i++ {
		n := 2
		if i == 0 {
			n = degreeDigits
		}
		v, err := strconv.ParseUint(digits[:n], 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid digits in %q", s)
		}
		parts[i] = int64(v)
		digits = digits[n:]
	}
	if parts[1] > 59 || parts[2] > 59 {
		return 0, fmt.Errorf("invalid minutes or seconds in %q", s)
	}
	secs := parts[0]*3600 + parts[1]*60 + parts[2]
	if secs > maxDegrees*3600 {
		return 0, fmt.Errorf("%q out of range", s)
	}
	if s[0] == '-' {
		secs = -secs
	}
	return int32(secs), nil
}

// parseZi reads the version and the links of tzdata.zi. Links map an
// alias to its target.
func parseZi(r io.Reader) (version string, links map[string]string, err error) {
	links = make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "# version "); ok {
			version = strings.TrimSpace(v)
			continue
		}
		fields := splitFields(line)
		if len(fields) == 0 || fields[0] != "L" {
			continue
		}
		if len(fields) != 3 {
			return "", nil, &parseError{"tzdata.zi", lineNumber, line, fmt.Errorf("parse link: expected 3 fields, got %d", len(fields))}
		}
		links[fields[2]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("read tzdata.zi: %w", err)
	}
	return version, links, nil
}
