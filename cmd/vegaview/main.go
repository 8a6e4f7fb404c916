package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raykavin/vegaview"
	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
	"github.com/raykavin/vegaview/session"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

//go:embed sample_spec.json
var sampleSpec []byte

// Command line flags
var (
	port         int
	host         string
	lazyView     bool
	watchTimeout string
	idleTimeout  string
	demo         bool
	debug        bool
	silent       bool
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:     "vegaview",
		Short:   "Local Vega-Lite visualization viewer",
		Version: "1.0.0",
	}

	// Add commands
	rootCmd.AddCommand(buildServeCmd())

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the viewer web server",
		RunE:  runServe,
	}

	// Add flags
	serveCmd.Flags().IntVarP(&port, "port", "p", 8000, "Port to run the viewer web server on (0 selects a free port)")
	serveCmd.Flags().StringVar(&host, "host", "127.0.0.1", "Address to bind the viewer web server to")
	serveCmd.Flags().BoolVar(&lazyView, "lazy-view", false, "Open the browser lazily upon first visualization instead of at startup")
	serveCmd.Flags().StringVar(&watchTimeout, "watch-timeout", "30s", "Wait window for change-notification requests (e.g. 30s, 2m)")
	serveCmd.Flags().StringVar(&idleTimeout, "idle-timeout", "", "Shut the server down after this period of inactivity (disabled when empty)")
	serveCmd.Flags().BoolVar(&demo, "demo", false, "Register a sample visualization at startup")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging and unminified viewer assets")
	serveCmd.Flags().BoolVar(&silent, "silent", false, "Show only error messages")

	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := vegaview.DefaultLog
	switch {
	case silent:
		log.SetLevel(logger.ErrorLevel)
	case debug:
		log.SetLevel(logger.DebugLevel)
	}

	options, err := buildOptions()
	if err != nil {
		return err
	}

	app, err := vegaview.New(log, options...)
	if err != nil {
		return err
	}

	if err := app.Start(); err != nil {
		return err
	}

	log.Infof("viewer web server running at %s", app.URL())

	if demo {
		handle, err := app.Show(cmd.Context(), sampleSpec)
		if err != nil {
			return err
		}
		log.Infof("sample visualization registered at %s", handle.URL)
	} else if !lazyView {
		// Nothing to display yet; open the session index so the tab is ready
		if err := session.NewBrowserLauncher(log).Open(app.URL()); err != nil {
			log.WithError(err).Warn("could not open browser, viewer remains reachable")
		}
	}

	// Block until interrupted
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	app.Summary(os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return app.Close(ctx)
}

func buildOptions() ([]vegaview.Option, error) {
	options := []vegaview.Option{
		vegaview.WithPort(port),
		vegaview.WithBindHost(host),
	}

	if lazyView {
		options = append(options, vegaview.WithDisplayPolicy(core.DisplayLazy))
	}

	if debug {
		options = append(options, vegaview.WithDebug())
	}

	if watchTimeout != "" {
		timeout, err := str2duration.ParseDuration(watchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid watch timeout: %w", err)
		}
		options = append(options, vegaview.WithWatchTimeout(timeout))
	}

	if idleTimeout != "" {
		timeout, err := str2duration.ParseDuration(idleTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid idle timeout: %w", err)
		}
		options = append(options, vegaview.WithIdleTimeout(timeout))
	}

	return options, nil
}
