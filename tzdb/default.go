package tzdb

import (
	"fmt"
	"os"
	"sync"

	"github.com/ngrash/go-tzdb/tzimport"
)

// DefaultZoneinfoDir is imported by Default when neither TZDB_STREAM nor
// ZONEINFO is set.
const DefaultZoneinfoDir = "/usr/share/zoneinfo"

var (
	defaultOnce   sync.Once
	defaultSource *Source
	defaultErr    error
)

// Default returns the process-wide Source. On first use it opens the
// stream file named by $TZDB_STREAM or, if unset, imports the zoneinfo
// directory named by $ZONEINFO (default /usr/share/zoneinfo) together with
// the CLDR file named by $TZDB_WINDOWS_ZONES. Later calls return the same
// Source or error.
func Default() (*Source, error) {
	defaultOnce.Do(func() {
		defaultSource, defaultErr = loadDefault()
	})
	return defaultSource, defaultErr
}

func loadDefault() (*Source, error) {
	if path := os.Getenv("TZDB_STREAM"); path != "" {
		return Open(path)
	}

	dir := os.Getenv("ZONEINFO")
	if dir == "" {
		dir = DefaultZoneinfoDir
	}
	var opts tzimport.Options
	if path := os.Getenv("TZDB_WINDOWS_ZONES"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open windows zones: %w", err)
		}
		defer f.Close()
		opts.WindowsZones = f
	}
	s, err := tzimport.FromDir(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", dir, err)
	}
	return New(s), nil
}
