package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzdb/internal/tzif"
	"github.com/ngrash/go-tzdb/tzimport"
	"github.com/ngrash/go-tzdb/tzstream"
	"github.com/ngrash/go-tzdb/zone"
)

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [stream file]",
		Short: "Check the referential integrity of a database",
		Long: `validate decodes a stream file, or the configured database when no file
is given, and checks that every zone decodes and every reference resolves.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				s   *tzstream.Stream
				err error
			)
			if len(args) == 1 {
				s, err = readStreamFile(args[0])
			} else {
				s, err = a.loadStream()
			}
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}
			for _, id := range s.ZoneIDs() {
				data, _ := s.ZoneData(id)
				if _, err := zone.Decode(id, data); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.out(cmd), "%s: %d zones, %d IDs ok\n", s.Version(), len(s.ZoneIDs()), s.CanonicalLen())
			return nil
		},
	}
}

func (a *app) importCommand() *cobra.Command {
	var (
		out     string
		put     bool
		version string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a zoneinfo directory into a stream",
		Long: `import reads the compiled zoneinfo directory (--zoneinfo), the zone.tab
tables next to it and optionally CLDR windowsZones.xml (--windows-zones),
and writes the resulting stream to a file, the store, or both.`,
		Example: `  tzdb import --out tzdb.stream
  tzdb import --zoneinfo ./zoneinfo --windows-zones windowsZones.xml --put
  tzdb import --version 2024b --out 2024b.stream`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && !put {
				return errors.New("nothing to do: use --out and/or --put")
			}
			s, err := a.importZoneinfo(version)
			if err != nil {
				return err
			}
			if out != "" {
				if err := writeStreamFile(out, s); err != nil {
					return err
				}
				a.log.Info("stream_written", "path", out, "version", s.Version())
			}
			if put {
				st, err := a.openStore()
				if err != nil {
					return err
				}
				defer st.Close()
				info, err := st.Put(s)
				if err != nil {
					return err
				}
				a.log.Info("stream_stored", "store", st.Path(), "version", info.Version, "bytes", info.Bytes)
			}
			fmt.Fprintf(a.out(cmd), "imported %s: %d zones, %d aliases\n", s.Version(), len(s.ZoneIDs()), len(s.Aliases()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the stream to this file")
	cmd.Flags().BoolVar(&put, "put", false, "archive the stream in the store")
	cmd.Flags().StringVar(&version, "version", "", "override the tzdb version of the import")
	return cmd
}

func (a *app) diffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "Compare two databases",
		Long: `diff compares two databases given as stream files or as versions archived
in the store. It reports added and removed IDs, changed aliases and zones
whose rules differ.`,
		Example: `  tzdb diff 2024a.stream 2024b.stream
  tzdb diff 2024a 2024b --store ~/.tzdb/tzdb.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := a.resolveStream(args[0])
			if err != nil {
				return err
			}
			y, err := a.resolveStream(args[1])
			if err != nil {
				return err
			}
			d, err := diffStreams(x, y)
			if err != nil {
				return err
			}
			w := a.out(cmd)
			if a.flags.format == formatJSON {
				return a.render(w, d, nil, nil)
			}
			if d.empty() {
				fmt.Fprintln(w, "databases are identical")
				return nil
			}
			d.write(w)
			return nil
		},
	}
}

// resolveStream reads arg as a stream file, or as a version in the store
// when no such file exists.
func (a *app) resolveStream(arg string) (*tzstream.Stream, error) {
	s, err := readStreamFile(arg)
	if err == nil || !errors.Is(err, fs.ErrNotExist) || a.cfg.Store == "" {
		return s, err
	}
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	s, ok, err := st.Get(arg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: no such file or stored version", arg)
	}
	return s, nil
}

// streamDiff lists the differences between database A and B.
type streamDiff struct {
	VersionA       string       `json:"version_a"`
	VersionB       string       `json:"version_b"`
	AddedZones     []string     `json:"added_zones,omitempty"`
	RemovedZones   []string     `json:"removed_zones,omitempty"`
	AddedAliases   []string     `json:"added_aliases,omitempty"`
	RemovedAliases []string     `json:"removed_aliases,omitempty"`
	Retargeted     []string     `json:"retargeted_aliases,omitempty"`
	ChangedZones   []zoneChange `json:"changed_zones,omitempty"`
	Windows        string       `json:"windows,omitempty"`
}

type zoneChange struct {
	ID   string `json:"id"`
	Diff string `json:"diff"`
}

func (d *streamDiff) empty() bool {
	return len(d.AddedZones)+len(d.RemovedZones)+len(d.AddedAliases)+len(d.RemovedAliases)+
		len(d.Retargeted)+len(d.ChangedZones) == 0 && d.Windows == ""
}

func (d *streamDiff) write(w io.Writer) {
	fmt.Fprintf(w, "-A %s\n+B %s\n", d.VersionA, d.VersionB)
	list := func(title string, ids []string) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s (%d)\n", title, len(ids))
		for _, id := range ids {
			fmt.Fprintln(w, "  "+id)
		}
	}
	list("Added zones", d.AddedZones)
	list("Removed zones", d.RemovedZones)
	list("Added aliases", d.AddedAliases)
	list("Removed aliases", d.RemovedAliases)
	list("Retargeted aliases", d.Retargeted)
	for _, c := range d.ChangedZones {
		fmt.Fprintf(w, "\nZone %s (-A +B)\n%s", c.ID, c.Diff)
	}
	if d.Windows != "" {
		fmt.Fprintf(w, "\nWindows mapping (-A +B)\n%s", d.Windows)
	}
}

// zoneRules is the comparable form of a zone.
type zoneRules struct {
	Initial     zone.Offset
	Transitions []zone.Transition
	Tail        string
}

func rulesOf(z *zone.Zone) zoneRules {
	return zoneRules{z.Initial(), z.Transitions(), fmt.Sprint(z.Tail())}
}

func diffStreams(x, y *tzstream.Stream) (*streamDiff, error) {
	d := &streamDiff{VersionA: x.Version(), VersionB: y.Version()}
	d.AddedZones, d.RemovedZones = setDiff(x.ZoneIDs(), y.ZoneIDs())

	xa, ya := x.Aliases(), y.Aliases()
	d.AddedAliases, d.RemovedAliases = setDiff(sortedKeys(xa), sortedKeys(ya))
	for _, alias := range sortedKeys(xa) {
		if target, ok := ya[alias]; ok && target != xa[alias] {
			d.Retargeted = append(d.Retargeted, fmt.Sprintf("%s: %s -> %s", alias, xa[alias], target))
		}
	}

	for _, id := range x.ZoneIDs() {
		xb, _ := x.ZoneData(id)
		yb, ok := y.ZoneData(id)
		if !ok || bytes.Equal(xb, yb) {
			continue
		}
		xz, err := zone.Decode(id, xb)
		if err != nil {
			return nil, err
		}
		yz, err := zone.Decode(id, yb)
		if err != nil {
			return nil, err
		}
		if diff := cmp.Diff(rulesOf(xz), rulesOf(yz)); diff != "" {
			d.ChangedZones = append(d.ChangedZones, zoneChange{id, diff})
		}
	}

	d.Windows = cmp.Diff(x.WindowsMapping(), y.WindowsMapping())
	return d, nil
}

// setDiff returns the elements only in b and the elements only in a. Both
// inputs are sorted.
func setDiff(a, b []string) (added, removed []string) {
	for _, s := range b {
		if _, found := slices.BinarySearch(a, s); !found {
			added = append(added, s)
		}
	}
	for _, s := range a {
		if _, found := slices.BinarySearch(b, s); !found {
			removed = append(removed, s)
		}
	}
	return added, removed
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (a *app) inspectCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "inspect <tzif file>",
		Short: "Print the content of a compiled TZif file",
		Long: `inspect decodes a TZif file such as /usr/share/zoneinfo/Europe/Berlin and
prints its header, local time types, transitions and footer, followed by
the zone it converts to.`,
		Example: `  tzdb inspect /usr/share/zoneinfo/Europe/Berlin
  tzdb inspect --limit 0 /usr/share/zoneinfo/America/New_York`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			f, err := tzif.Decode(bytes.NewReader(b))
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			id := zoneIDFromPath(args[0])
			z, err := tzimport.FromTZif(id, b)
			if err != nil {
				return fmt.Errorf("convert %s: %w", args[0], err)
			}
			w := a.out(cmd)
			if a.flags.format == formatJSON {
				return a.render(w, inspection{File: f, Kind: z.Kind().String(), Tail: fmt.Sprint(z.Tail())}, nil, nil)
			}
			writeTZif(w, f, limit)
			fmt.Fprintln(w, "Zone")
			renderTable(w, []string{"FIELD", "VALUE"}, fieldRows(
				"ID", id,
				"Kind", z.Kind().String(),
				"Initial", z.Initial().String(),
				"Transitions", strconv.Itoa(len(z.Transitions())),
				"Tail", fmt.Sprint(z.Tail()),
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of transitions to print, 0 for all")
	return cmd
}

type inspection struct {
	File tzif.File `json:"file"`
	Kind string    `json:"kind"`
	Tail string    `json:"tail"`
}

// zoneIDFromPath returns the part of path below a zoneinfo directory, or
// the base name.
func zoneIDFromPath(path string) string {
	path = filepath.ToSlash(path)
	if _, id, ok := strings.Cut(path, "zoneinfo/"); ok && id != "" {
		return id
	}
	return filepath.Base(path)
}

func writeTZif(w io.Writer, f tzif.File, limit int) {
	d := f.Data
	fmt.Fprintln(w, "Header")
	renderTable(w, []string{"FIELD", "VALUE"}, fieldRows(
		"version", f.Version.String(),
		"isutcnt", strconv.Itoa(len(d.UTLocal)),
		"isstdcnt", strconv.Itoa(len(d.StandardWall)),
		"leapcnt", strconv.Itoa(len(d.LeapSeconds)),
		"timecnt", strconv.Itoa(len(d.TransitionTimes)),
		"typecnt", strconv.Itoa(len(d.Types)),
		"charcnt", strconv.Itoa(len(d.Designations)),
	))

	fmt.Fprintln(w, "Local time types")
	var rows [][]string
	for i, t := range d.Types {
		rows = append(rows, []string{
			strconv.Itoa(i),
			zone.Offset(t.Utoff).String(),
			strconv.FormatBool(t.Dst),
			d.Designation(i),
		})
	}
	renderTable(w, []string{"TYPE", "UTOFF", "DST", "ABBR"}, rows)

	fmt.Fprintln(w, "Transitions")
	rows = nil
	for i, at := range d.TransitionTimes {
		if limit > 0 && i == limit {
			rows = append(rows, []string{"...", fmt.Sprintf("%d more", len(d.TransitionTimes)-limit), ""})
			break
		}
		rows = append(rows, []string{
			strconv.FormatInt(at, 10),
			time.Unix(at, 0).UTC().Format(time.RFC3339),
			strconv.Itoa(int(d.TransitionTypes[i])),
		})
	}
	renderTable(w, []string{"UNIX", "UTC", "TYPE"}, rows)

	if len(d.LeapSeconds) > 0 {
		fmt.Fprintln(w, "Leap seconds")
		rows = nil
		for _, l := range d.LeapSeconds {
			rows = append(rows, []string{time.Unix(l.Occur, 0).UTC().Format(time.RFC3339), strconv.Itoa(int(l.Corr))})
		}
		renderTable(w, []string{"OCCUR", "CORR"}, rows)
	}

	fmt.Fprintln(w, "Footer")
	fmt.Fprintf(w, "  TZString = %q\n\n", f.TZString)
}
