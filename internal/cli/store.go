package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzdb/internal/store"
	"github.com/ngrash/go-tzdb/tzdb/ianadist"
	"github.com/ngrash/go-tzdb/tzstream"
)

func (a *app) storeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the archive of database versions",
		Long: `store keeps encoded streams by tzdb version in a bbolt database
(--store, default ~/.tzdb/tzdb.db).`,
	}
	cmd.AddCommand(
		a.storePutCommand(),
		a.storeGetCommand(),
		a.storeListCommand(),
		a.storeDeleteCommand(),
	)
	return cmd
}

func (a *app) storePutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put [stream file]",
		Short: "Archive a stream file or the configured database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.loadStream
			if len(args) == 1 {
				path := args[0]
				s = func() (*tzstream.Stream, error) { return readStreamFile(path) }
			}
			stream, err := s()
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			info, err := st.Put(stream)
			if err != nil {
				return err
			}
			return a.renderInfos(cmd, []store.Info{info})
		},
	}
}

func (a *app) storeGetCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <version>",
		Short: "Write an archived version to a stream file",
		Example: `  tzdb store get 2024b --out 2024b.stream
  tzdb store get latest --out tzdb.stream`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var (
				stream *tzstream.Stream
				ok     bool
			)
			if args[0] == "latest" {
				stream, ok, err = st.Latest()
			} else {
				stream, ok, err = st.Get(args[0])
			}
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("version %s not in store", args[0])
			}
			if err := writeStreamFile(out, stream); err != nil {
				return err
			}
			fmt.Fprintf(a.out(cmd), "wrote %s to %s\n", stream.Version(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "stream file to write (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) storeListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			infos, err := st.List()
			if err != nil {
				return err
			}
			return a.renderInfos(cmd, infos)
		},
	}
}

func (a *app) storeDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <version>",
		Short: "Remove an archived version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Delete(args[0])
		},
	}
}

func (a *app) renderInfos(cmd *cobra.Command, infos []store.Info) error {
	var rows [][]string
	for _, i := range infos {
		rows = append(rows, []string{
			i.Version,
			strconv.Itoa(i.Zones),
			strconv.Itoa(i.Aliases),
			strconv.Itoa(i.Bytes),
			i.ImportedAt.Format(time.RFC3339),
		})
	}
	if infos == nil {
		infos = []store.Info{}
	}
	return a.render(a.out(cmd), infos, []string{"VERSION", "ZONES", "ALIASES", "BYTES", "IMPORTED"}, rows)
}

func (a *app) outdatedCommand() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "outdated",
		Short: "Check whether IANA has published a newer tzdb release",
		Long: `outdated fetches the latest tzdb release from IANA and compares its version
with the configured database. The ETag of the download is kept in the store
so that unchanged releases are not fetched again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadStream()
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			etag, err := st.ETag()
			if err != nil {
				return err
			}

			client := &ianadist.Client{BaseURL: baseURL}
			latest, newETag, err := client.LatestVersion(cmd.Context(), etag)
			if err != nil {
				return err
			}
			if err := st.SetETag(newETag); err != nil {
				return err
			}

			type status struct {
				Current  string `json:"current"`
				Latest   string `json:"latest,omitempty"`
				Outdated bool   `json:"outdated"`
			}
			v := status{Current: s.Version(), Latest: latest}
			if latest != "" {
				c, err := ianadist.CompareVersions(s.Version(), latest)
				if err != nil {
					return fmt.Errorf("compare versions: %w", err)
				}
				v.Outdated = c < 0
			} else {
				a.log.Info("release_unchanged", "etag", newETag)
			}
			rows := fieldRows(
				"Current", v.Current,
				"Latest", orDash(v.Latest),
				"Outdated", strconv.FormatBool(v.Outdated),
			)
			return a.render(a.out(cmd), v, []string{"FIELD", "VALUE"}, rows)
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "tzdb distribution URL (default https://data.iana.org/time-zones/)")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
