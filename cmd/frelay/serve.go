package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/franksops/filerelay/api"
	"github.com/franksops/filerelay/store"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the relay HTTP API",
	Long: `Serves POST /v1/relays, GET /healthz and GET /metrics.

Local file handles are not accepted over the API. The API fetches any
http(s) URL it is given unless --source-hosts limits the hosts, so without
that list expose it to trusted callers only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		if len(cfg.SourceHosts) == 0 {
			log.Warnw("no source-hosts configured, the API relays from any http(s) host")
		}
		go a.pruneCache(ctx, store.DefaultTTL)

		metrics := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
		// relays run as long as the upload timeout allows
		srv := api.NewHTTPServer(cfg.ListenAddr, api.NewServer(a.orchestrator, metrics).Routes(), 0)

		errc := make(chan error, 1)
		go func() {
			log.Infow("serving relay API", "addr", cfg.ListenAddr)
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		log.Infow("shutting down", "grace", shutdownGrace)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
