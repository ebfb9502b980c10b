package hostzone

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/ngrash/go-tzdb/zone"
)

// location adapts a *time.Location to Zone.
type location struct {
	loc *time.Location
}

// FromLocation returns a Zone backed by loc. Its ID is loc.String().
func FromLocation(loc *time.Location) Zone {
	return location{loc: loc}
}

func (l location) ID() string { return l.loc.String() }

func (l location) OffsetAt(t time.Time) zone.Offset {
	_, off := t.In(l.loc).Zone()
	return zone.Offset(off)
}

// Env is the part of the host system consulted by LocalID.
type Env struct {
	LookupEnv func(key string) (string, bool)
	Readlink  func(name string) (string, error)
	ReadFile  func(name string) ([]byte, error)
}

// OSEnv returns an Env backed by the running process and file system.
func OSEnv() Env {
	return Env{
		LookupEnv: os.LookupEnv,
		Readlink:  os.Readlink,
		ReadFile:  os.ReadFile,
	}
}

// LocalID returns the zone ID the host is configured with, consulting in
// order the TZ environment variable, the target of the /etc/localtime
// symlink and /etc/timezone. TZ set to the empty string means UTC.
func LocalID(env Env) (string, bool) {
	if tz, ok := env.LookupEnv("TZ"); ok {
		tz = strings.TrimPrefix(tz, ":")
		switch {
		case tz == "":
			return "UTC", true
		case strings.HasPrefix(tz, "/"):
			if tz != "/etc/localtime" {
				if id, ok := idFromPath(tz); ok {
					return id, true
				}
				return "", false
			}
		default:
			return tz, true
		}
	}

	if target, err := env.Readlink("/etc/localtime"); err == nil {
		if id, ok := idFromPath(target); ok {
			return id, true
		}
	}

	if b, err := env.ReadFile("/etc/timezone"); err == nil {
		line, _, _ := bufio.NewReader(bytes.NewReader(b)).ReadLine()
		if id := strings.TrimSpace(string(line)); id != "" {
			return id, true
		}
	}
	return "", false
}

// idFromPath extracts "Europe/Berlin" from paths like
// /usr/share/zoneinfo/Europe/Berlin or ../usr/share/zoneinfo/posix/Europe/Berlin.
func idFromPath(p string) (string, bool) {
	_, id, ok := strings.Cut(p, "zoneinfo/")
	if !ok {
		return "", false
	}
	for _, prefix := range []string{"posix/", "right/"} {
		id = strings.TrimPrefix(id, prefix)
	}
	return id, id != ""
}
