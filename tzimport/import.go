// Package tzimport builds a time zone stream from a compiled zoneinfo
// directory, as installed in /usr/share/zoneinfo, and the CLDR Windows
// zone mapping.
package tzimport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ngrash/go-tzdb/internal/logger"
	"github.com/ngrash/go-tzdb/internal/tzif"
	"github.com/ngrash/go-tzdb/tzstream"
	"github.com/ngrash/go-tzdb/zone"
)

// Options configure an import.
type Options struct {
	// Logger receives warnings about skipped data. Nil discards them.
	Logger *slog.Logger
	// WindowsZones, if set, is read as CLDR windowsZones.xml.
	WindowsZones io.Reader
	// Version overrides the version found in tzdata.zi or +VERSION.
	Version string
}

// Directories and files of a zoneinfo tree that are not zones.
var (
	skipDirs  = []string{"posix", "right"}
	skipFiles = []string{"posixrules", "localtime", "Factory"}
)

// FromDir imports the zoneinfo directory dir.
func FromDir(dir string, opts Options) (*tzstream.Stream, error) {
	return FromFS(os.DirFS(dir), opts)
}

// FromFS imports a zoneinfo tree. Every TZif file becomes a zone unless
// tzdata.zi declares its name a link, in which case it becomes an alias
// of the link target. Locations are read from zone.tab, zone1970.tab and
// iso3166.tab if present.
func FromFS(fsys fs.FS, opts Options) (*tzstream.Stream, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	var b tzstream.Builder
	version, links, err := readVersionAndLinks(fsys)
	if err != nil {
		return nil, err
	}
	b.Version = version
	if opts.Version != "" {
		b.Version = opts.Version
	}

	files, err := zoneFiles(fsys)
	if err != nil {
		return nil, err
	}
	b.Zones, err = readZones(fsys, files, links)
	if err != nil {
		return nil, err
	}
	if len(b.Zones) == 0 {
		return nil, errors.New("import: no TZif files found")
	}

	b.Aliases = make(map[string]string)
	for alias, target := range links {
		if _, ok := b.Zones[target]; !ok {
			log.Warn("alias_dropped", "alias", alias, "target", target, "reason", "unknown target")
			continue
		}
		b.Aliases[alias] = target
	}
	known := func(id string) bool {
		_, zok := b.Zones[id]
		_, aok := b.Aliases[id]
		return zok || aok
	}

	if err := readLocations(fsys, &b, known, log); err != nil {
		return nil, err
	}

	if opts.WindowsZones != nil {
		m, err := ParseWindowsZones(opts.WindowsZones)
		if err != nil {
			return nil, err
		}
		b.WindowsMapping = filterWindows(m, known, log)
	}

	s, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	log.Info("zoneinfo_imported", "version", s.Version(), "zones", len(b.Zones), "aliases", len(b.Aliases))
	return s, nil
}

func readVersionAndLinks(fsys fs.FS) (string, map[string]string, error) {
	var version string
	links := map[string]string{}
	f, err := fsys.Open("tzdata.zi")
	switch {
	case err == nil:
		defer f.Close()
		if version, links, err = parseZi(f); err != nil {
			return "", nil, err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", nil, err
	}
	if version == "" {
		data, err := fs.ReadFile(fsys, "+VERSION")
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", nil, err
		}
		version = strings.TrimSpace(string(data))
	}
	return version, links, nil
}

// zoneFiles returns the names of all TZif files in fsys.
func zoneFiles(fsys fs.FS) ([]string, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && slices.Contains(skipDirs, p) {
				return fs.SkipDir
			}
			return nil
		}
		if slices.Contains(skipFiles, p) || !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		ok, err := isTZif(fsys, p)
		if err != nil {
			return err
		}
		if ok {
			names = append(names, p)
		}
		return nil
	})
	return names, err
}

func isTZif(fsys fs.FS, name string) (bool, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()
	magic := make([]byte, len(tzif.Magic))
	if _, err := io.ReadFull(f, magic); err != nil {
		// Short files and symlinks to directories are not zones.
		return false, nil
	}
	return bytes.Equal(magic, tzif.Magic[:]), nil
}

// readZones converts the TZif files in parallel and encodes them. Files
// named like an alias are skipped.
func readZones(fsys fs.FS, names []string, links map[string]string) (map[string][]byte, error) {
	var (
		mu    sync.Mutex
		zones = make(map[string][]byte, len(names))
		g     errgroup.Group
	)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		id := path.Clean(name)
		if _, ok := links[id]; ok {
			continue
		}
		g.Go(func() error {
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				return err
			}
			z, err := FromTZif(id, data)
			if err != nil {
				return err
			}
			enc, err := zone.Encode(z)
			if err != nil {
				return fmt.Errorf("encode %s: %w", id, err)
			}
			mu.Lock()
			zones[id] = enc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return zones, nil
}

// bigBang is the instant zic writes as the first transition of some
// files to mark the beginning of time.
const bigBang = -(1 << 59)

// FromTZif converts the TZif file data to a zone. Transitions that do not
// change the offset are dropped and the POSIX TZ footer, if any, becomes
// the tail.
func FromTZif(id string, data []byte) (*zone.Zone, error) {
	f, err := tzif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	if err := tzif.Validate(f); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	d := f.Data
	initial := zone.Offset(d.Types[firstType(d)].Utoff)
	var transitions []zone.Transition
	last := initial
	for i, at := range d.TransitionTimes {
		off := zone.Offset(d.Types[d.TransitionTypes[i]].Utoff)
		if at <= bigBang {
			initial, last = off, off
			continue
		}
		if off == last {
			continue
		}
		transitions = append(transitions, zone.Transition{At: at, Offset: off})
		last = off
	}

	var tail zone.Tail
	if f.TZString != "" {
		if tail, err = ParseTZString(f.TZString); err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
	}
	return zone.New(id, initial, transitions, tail)
}

// firstType returns the local time type in effect before the first
// transition: type 0 unless a transition uses it, else the standard time
// type preceding the type of the first transition, else the first
// standard time type.
func firstType(d tzif.Data) int {
	if !slices.Contains(d.TransitionTypes, 0) {
		return 0
	}
	if len(d.TransitionTypes) > 0 && d.Types[d.TransitionTypes[0]].Dst {
		for i := int(d.TransitionTypes[0]) - 1; i >= 0; i-- {
			if !d.Types[i].Dst {
				return i
			}
		}
	}
	for i, t := range d.Types {
		if !t.Dst {
			return i
		}
	}
	return 0
}

func readLocations(fsys fs.FS, b *tzstream.Builder, known func(string) bool, log *slog.Logger) error {
	var countries map[string]string
	if err := withFile(fsys, "iso3166.tab", func(r io.Reader) (err error) {
		countries, err = parseISO3166(r)
		return err
	}); err != nil {
		return err
	}

	if err := withFile(fsys, "zone.tab", func(r io.Reader) error {
		locs, err := parseZoneTab(r, countries)
		for _, l := range locs {
			if !known(l.ZoneID) {
				log.Warn("location_dropped", "file", "zone.tab", "zone_id", l.ZoneID)
				continue
			}
			b.ZoneLocations = append(b.ZoneLocations, l)
		}
		return err
	}); err != nil {
		return err
	}

	return withFile(fsys, "zone1970.tab", func(r io.Reader) error {
		locs, err := parseZone1970Tab(r, countries)
		for _, l := range locs {
			if !known(l.ZoneID) {
				log.Warn("location_dropped", "file", "zone1970.tab", "zone_id", l.ZoneID)
				continue
			}
			b.Zone1970Locations = append(b.Zone1970Locations, l)
		}
		return err
	})
}

// withFile calls fn with the content of name if it exists.
func withFile(fsys fs.FS, name string, fn func(io.Reader) error) error {
	f, err := fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
