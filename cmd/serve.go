package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/qiprof/internal/server"
)

var (
	flagServeAddr         string
	flagServeEventsBuffer int
)

var serveCmd = &cobra.Command{
	Use:   "serve <trace>",
	Short: "Serve a trace and its selection over HTTP with live events",
	Long: "Ingest a trace and expose its status, the selection and matching\n" +
		"loops as JSON under /v1, with lifecycle and selection events as\n" +
		"server-sent events on /v1/stream.",
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().IntVar(&flagServeEventsBuffer, "events-buffer", 0, "Events kept for /v1/events (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagServeAddr != "" {
		cfg.Serve.Addr = flagServeAddr
	}
	if flagServeEventsBuffer > 0 {
		cfg.Serve.EventsBuffer = flagServeEventsBuffer
	}
	if _, err := os.Stat(args[0]); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	svc := server.New(server.Config{
		Path:          args[0],
		Addr:          cfg.Serve.Addr,
		EventsBuffer:  cfg.Serve.EventsBuffer,
		Limits:        cfg.Limits(),
		Graph:         cfg.GraphOptions(),
		ForceBuffered: cfg.Ingest.ForceBuffered,
		EagerGraph:    cfg.Ingest.EagerGraph,
		IgnoreTermIDs: cfg.Display.IgnoreTermIDs,
		Logger:        newLogger(os.Stderr),
	})

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Serving %s on http://%s\n", args[0], cfg.Serve.Addr)
	}
	return svc.Run(ctx)
}
