package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"campaignflow/internal/api"
	"campaignflow/internal/browser"
	"campaignflow/internal/campaign"
	"campaignflow/internal/paths"
	"campaignflow/internal/report"
	"campaignflow/internal/sender"
)

var serveReport string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API used by the desktop front end",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveReport, "report", "", "Append every outcome to this CSV file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logFile, err := paths.LogFile()
	if err != nil {
		return err
	}
	cfg, log, cleanup, err := setup(logFile)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(cfg.Server.AllowedOrigins, log)
	defer hub.Close()

	observers := report.Fanout{hub}
	if serveReport != "" {
		observers = append(observers, report.NewRecorder(serveReport, log))
	}

	runner := campaign.NewRunner(
		&browser.Launcher{Config: cfg.Browser, Log: log},
		sender.New(cfg.Sending, log),
		cfg.Sending,
		log,
		campaign.WithObserver(observers),
	)
	server := api.New(runner, hub, cfg, log, api.WithShutdown(stop))

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("CampaignFlow API listening on %s", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutdown signal received. Waiting for graceful termination...")
	if err := stopServer(httpServer, server, cfg.Server.ShutdownGrace(), log); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}

// teardownTimeout bounds how long a canceled batch may take to close its
// browser once the grace period is over.
const teardownTimeout = 30 * time.Second

// stopServer lets in-flight requests finish within grace. A batch still
// running after that is canceled and its browser teardown awaited before
// the listener is closed.
func stopServer(httpServer *http.Server, server *api.Server, grace time.Duration, log logrus.FieldLogger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	if err == nil {
		return nil
	}
	log.Warnf("Server did not shut down within %v: %v", grace, err)

	log.Info("Canceling the running batch...")
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancelDrain()
	if err := server.Drain(drainCtx); err != nil {
		log.Errorf("Browser may still be running: %v", err)
	}
	return httpServer.Close()
}
