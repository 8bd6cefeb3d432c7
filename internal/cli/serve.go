package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quickmod/internal/server"
	"github.com/matzehuels/quickmod/pkg/install"
	"github.com/matzehuels/quickmod/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve resolutions and installs over HTTP",
		Long: `Serve starts an HTTP API on top of the local descriptor store. Resolutions
and installs are started with POST and polled with GET; Prometheus metrics are
exposed on /metrics.`,
		Example: `  quickmod serve --addr :8080
  curl -X POST localhost:8080/v1/resolutions -d '{"mods": ["jei"]}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr != "" {
				c.Config.Server.Addr = addr
			}

			ws, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			metrics := observability.NewMetrics()
			observability.Register(metrics)
			defer observability.Reset()

			api := server.New(server.Options{
				Store:       ws.store,
				Downloader:  ws.client,
				Navigator:   &install.HTMLNavigator{Fetcher: ws.client, Downloader: ws.client, Logger: c.Logger},
				DownloadDir: c.Config.Downloads.Dir,
				GameVersion: c.Config.Game.Version,
				Metrics:     metrics,
				Logger:      c.Logger,
			})
			defer api.Close()

			srv := &http.Server{
				Addr:              c.Config.Server.Addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return c.listen(ctx, srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// listen serves until ctx is canceled, then shuts down gracefully.
func (c *CLI) listen(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
