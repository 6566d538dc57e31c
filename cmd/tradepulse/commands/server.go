package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/am"
	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/server"
)

// ServerCmd runs the scheduler, approval gate and gateway behind the HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Run the scheduler, approval gate and execution gateway",
	Long: `Start the tradepulse server: the schedule loop, the approval expiry sweep
and the execution gateway, exposed over the HTTP API with a websocket
event stream on /ws. Orders go to the in-process paper broker.

Ctrl+C drains HTTP, cancels in-flight job runs and exits; a second Ctrl+C
exits immediately.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var (
	serverDBPath string
	serverPort   int
)

func init() {
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Custom database path (overrides config)")
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	// Copy before overriding so the cached config stays as loaded
	runCfg := *cfg
	if serverDBPath != "" {
		runCfg.Database.Path = serverDBPath
	}
	if serverPort != 0 {
		runCfg.Server.Port = serverPort
	}

	printStartupBanner(verbosity, &runCfg)

	srv, err := server.NewFromConfig(context.Background(), &runCfg, nil, nil, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		srv.Stop()
		return errors.Wrap(err, "server stopped unexpectedly")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
