package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzdb/internal/config"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or show the configuration",
	}
	cmd.AddCommand(a.configInitCommand(), a.configShowCommand())
	return cmd
}

func (a *app) configInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := config.WriteFile(path, config.Template()); err != nil {
				return err
			}
			fmt.Fprintln(a.out(cmd), "wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg
			rows := fieldRows(
				"Config file", orDash(c.ConfigPath),
				"Stream", orDash(c.Stream),
				"Zoneinfo", orDash(c.Zoneinfo),
				"Windows zones", orDash(c.WindowsZones),
				"Store", orDash(c.Store),
				"Match threshold", strconv.FormatFloat(c.MatchThreshold, 'g', -1, 64),
				"Listen", c.Listen,
				"Log level", c.LogLevel,
				"Log format", c.LogFormat,
			)
			return a.render(a.out(cmd), c, []string{"SETTING", "VALUE"}, rows)
		},
	}
}
