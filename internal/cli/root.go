// Package cli implements the tzdb command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzdb/internal/config"
	"github.com/ngrash/go-tzdb/internal/logger"
	"github.com/ngrash/go-tzdb/internal/store"
	"github.com/ngrash/go-tzdb/tzdb"
	"github.com/ngrash/go-tzdb/tzimport"
	"github.com/ngrash/go-tzdb/tzstream"
)

// app holds the resolved configuration and shared dependencies of a
// command invocation.
type app struct {
	flags   globalFlags
	cfg     *config.Config
	log     *slog.Logger
	reg     *prometheus.Registry
	environ func(string) (string, bool)
}

// globalFlags holds the values of the persistent flags.
type globalFlags struct {
	configPath string
	envFile    string
	format     string
	config.Flags
}

// NewRootCommand returns the tzdb command with all subcommands.
func NewRootCommand() *cobra.Command {
	a := &app{environ: os.LookupEnv}
	root := &cobra.Command{
		Use:   "tzdb",
		Short: "tzdb - time zone database tool",
		Long: `tzdb imports, archives, inspects and serves time zone databases.

The database is read from an encoded stream file (--stream) or imported
from a compiled zoneinfo directory (--zoneinfo, default /usr/share/zoneinfo).

Quick start:
  tzdb info                           # summary of the database
  tzdb offset Europe/Berlin           # current offset of a zone
  tzdb import --out tzdb.stream       # write the database to a stream file
  tzdb serve                          # serve the HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default: ./config.yaml if present)")
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	pf.StringVar(&a.flags.format, "format", formatTable, "output format: table|json")
	pf.StringVar(&a.flags.Stream, "stream", "", "encoded stream file (env "+config.EnvStream+")")
	pf.StringVar(&a.flags.Zoneinfo, "zoneinfo", "", "zoneinfo directory (env "+config.EnvZoneinfo+")")
	pf.StringVar(&a.flags.WindowsZones, "windows-zones", "", "CLDR windowsZones.xml (env "+config.EnvWindowsZones+")")
	pf.StringVar(&a.flags.Store, "store", "", "stream archive database (env "+config.EnvStore+")")
	pf.Float64Var(&a.flags.MatchThreshold, "threshold", 0, "minimum host zone match score (env "+config.EnvMatchThreshold+")")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "debug|info|warn|error (env "+config.EnvLogLevel+")")
	pf.StringVar(&a.flags.LogFormat, "log-format", "", "text|json (env "+config.EnvLogFormat+")")

	root.AddCommand(
		a.infoCommand(),
		a.idsCommand(),
		a.zoneCommand(),
		a.offsetCommand(),
		a.guessCommand(),
		a.nearestCommand(),
		a.validateCommand(),
		a.importCommand(),
		a.diffCommand(),
		a.inspectCommand(),
		a.storeCommand(),
		a.outdatedCommand(),
		a.serveCommand(),
		a.configCommand(),
	)
	return root
}

// Execute runs the command tree with the process arguments.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.flags.envFile != "" {
		if err := godotenv.Load(a.flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.flags.envFile, err)
		}
	}
	cfg, err := config.Load(a.flags.configPath, a.flags.Flags, a.environ)
	if err != nil {
		return err
	}
	if a.flags.format != formatTable && a.flags.format != formatJSON {
		return fmt.Errorf("unknown format %q", a.flags.format)
	}
	a.cfg = cfg
	a.log = logger.Setup(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	a.reg = prometheus.NewRegistry()
	return nil
}

func (a *app) sourceOptions() []tzdb.Option {
	return []tzdb.Option{
		tzdb.WithLogger(a.log),
		tzdb.WithRegisterer(a.reg),
		tzdb.WithMatchThreshold(a.cfg.MatchThreshold),
	}
}

// loadStream reads the configured stream file or imports the zoneinfo
// directory.
func (a *app) loadStream() (*tzstream.Stream, error) {
	if a.cfg.Stream != "" {
		return readStreamFile(a.cfg.Stream)
	}
	return a.importZoneinfo("")
}

// importZoneinfo imports the configured zoneinfo directory. A non-empty
// version overrides the one recorded in the directory.
func (a *app) importZoneinfo(version string) (*tzstream.Stream, error) {
	opts := tzimport.Options{Logger: a.log, Version: version}
	if a.cfg.WindowsZones != "" {
		f, err := os.Open(a.cfg.WindowsZones)
		if err != nil {
			return nil, fmt.Errorf("open windows zones: %w", err)
		}
		defer f.Close()
		opts.WindowsZones = f
	}
	s, err := tzimport.FromDir(a.cfg.Zoneinfo, opts)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", a.cfg.Zoneinfo, err)
	}
	return s, nil
}

func (a *app) loadSource() (*tzdb.Source, error) {
	s, err := a.loadStream()
	if err != nil {
		return nil, err
	}
	return tzdb.New(s, a.sourceOptions()...), nil
}

func (a *app) openStore() (*store.Store, error) {
	if a.cfg.Store == "" {
		return nil, errors.New("no store configured; use --store or " + config.EnvStore)
	}
	return store.Open(a.cfg.Store)
}

func readStreamFile(path string) (*tzstream.Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := tzstream.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

func writeStreamFile(path string, s *tzstream.Stream) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func (a *app) out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
