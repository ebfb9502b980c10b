package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzdb/internal/httpapi"
	"github.com/ngrash/go-tzdb/tzdb"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCommand() *cobra.Command {
	var fromStore bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve zone lookups over HTTP",
		Long: `serve answers zone lookups over HTTP:

  GET /v1/zones                  all IDs (canonical=true for zones only)
  GET /v1/zone?id=               zone details
  GET /v1/offset?id=&at=         offset at an instant (Unix or RFC 3339)
  GET /v1/system-default         zone of the host
  GET /v1/nearest?lat=&lng=      zone nearest to a point
  GET /metrics                   prometheus metrics`,
		Example: `  tzdb serve --listen :8080
  tzdb serve --from-store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				src *tzdb.Source
				err error
			)
			if fromStore {
				src, err = a.latestSource()
			} else {
				src, err = a.loadSource()
			}
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, src)
		},
	}
	cmd.Flags().StringVar(&a.flags.Listen, "listen", "", "listen address (env TZDB_LISTEN, default :8080)")
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "serve the latest version in the store")
	return cmd
}

func (a *app) latestSource() (*tzdb.Source, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	s, ok, err := st.Latest()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("store %s is empty", st.Path())
	}
	return tzdb.New(s, a.sourceOptions()...), nil
}

// serve runs the HTTP server until ctx is done.
func (a *app) serve(ctx context.Context, src *tzdb.Source) error {
	h := httpapi.New(src, a.log, httpapi.NewMetrics(a.reg))
	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           httpapi.NewRouter(h, a.reg),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("server_started", "addr", srv.Addr, "version", src.Version())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.log.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
