package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/quill/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/quill/internal/adapters/driving/mcp"
	"github.com/custodia-labs/quill/internal/adapters/driving/watcher"
	"github.com/custodia-labs/quill/internal/logger"
)

var (
	serveAddr  string
	serveWatch string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serves the JSON API (retrieve, articles, status, rebuild) plus /healthz and
/metrics. Also runs the reconcile schedule when reconcile.enabled is set,
mounts MCP at /mcp when http.mount_mcp is set, and mirrors a directory when
--watch or watch.dir is given.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveWatch, "watch", "", "directory to mirror into the index")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	addr := serveAddr
	var apiKeys []string
	mountMCP := false
	watchDir := serveWatch
	if cfg != nil {
		if addr == "" {
			addr = cfg.HTTP.Addr
		}
		apiKeys = cfg.HTTP.APIKeys
		mountMCP = cfg.HTTP.MountMCP
		if watchDir == "" {
			watchDir = cfg.Watch.Dir
		}
	}
	if addr == "" {
		return fmt.Errorf("no listen address: pass --addr or set http.addr")
	}

	ports := httpapi.Ports{
		Retrieval: svc.Retrieval,
		Articles:  svc.Articles,
		Index:     svc.Index,
	}
	if mountMCP {
		m, err := mcp.NewServer(&mcp.Ports{Retrieval: svc.Retrieval, Articles: svc.Articles, Index: svc.Index})
		if err != nil {
			return err
		}
		ports.MCP = m.Handler()
	}
	server, err := httpapi.NewServer(ports, httpapi.Options{APIKeys: apiKeys, Logger: logger.L()})
	if err != nil {
		return err
	}

	var w *watcher.Watcher
	if watchDir != "" {
		w, err = startWatcher(cmd, svc.Articles, watchDir)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	// Any background task failing stops the others.
	g, ctx := errgroup.WithContext(ctx)

	if cfg != nil && cfg.Reconcile.Enabled && svc.Scheduler != nil {
		g.Go(func() error { return ignoreCancel(svc.Scheduler.Start(ctx)) })
	}

	if w != nil {
		g.Go(func() error { return ignoreCancel(w.Run(ctx)) })
	}

	cmd.PrintErrf("Listening on %s\n", addr)
	g.Go(func() error {
		if err := server.Run(ctx, addr); err != nil {
			return ignoreCancel(err)
		}
		// The server only returns cleanly once ctx is done.
		cancel()
		return nil
	})

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
