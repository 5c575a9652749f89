package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/conneroisu/clips/internal/metrics"
	"github.com/conneroisu/clips/internal/renderer"
	"github.com/conneroisu/clips/internal/server"
)

var serveBindings = mergeBindings(pageBindings, map[string]string{
	"server.port": "port",
	"server.host": "host",
	"server.watch": "watch",
})

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve [clip]",
		Aliases: []string{"s"},
		Short:   "Serve the page with live reload",
		Long: `Start a development server that renders the page on every request and
reloads connected browsers when resources change.

Routes:
  /          the rendered page; ?clip=, ?target= and ?position= override the
             page, any other query parameter becomes a clip option
  /ws        live reload websocket
  /metrics   Prometheus metrics
  /healthz   health report

Examples:
  clips serve home
  clips serve home --port 3000 --page index.html --target "#app"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, root)
		},
	}

	addPageFlags(cmd)
	cmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().StringSliceP("watch", "w", nil, "extra paths that trigger a reload")
	return cmd
}

func runServe(cmd *cobra.Command, args []string, root *rootOptions) error {
	cfg, logger, err := root.load(cmd, serveBindings)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Page.Clip = args[0]
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(metrics.WithRegistry(registry))

	pages := renderer.NewPageRenderer(cfg,
		renderer.WithLogger(logger),
		renderer.WithMetrics(recorder),
	)
	srv, err := server.New(cfg, pages,
		server.WithLogger(logger),
		server.WithMetrics(recorder),
		server.WithGatherer(registry),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", cfg.Page.Clip, cfg.Address())
	return srv.Start(ctx)
}
