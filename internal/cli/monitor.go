package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Check alerts against current prices",
}

var monitorRunOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single price check cycle and print its report",
	RunE:  runMonitorOnce,
}

var monitorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run price checks continuously until interrupted",
	RunE:  runMonitorStart,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorRunOnceCmd, monitorStartCmd)

	monitorStartCmd.Flags().Duration("interval", 0, "Time between checks (default from config)")
}

func runMonitorOnce(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.Monitor.RunOnce(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Err != nil {
		return fmt.Errorf("price check: %w", report.Err)
	}
	return nil
}

func runMonitorStart(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.Config.Monitor.Interval
	if d, _ := cmd.Flags().GetDuration("interval"); d > 0 {
		interval = d
	}

	a.Monitor.Start(cmd.Context(), interval)
	fmt.Fprintf(cmd.ErrOrStderr(), "ORBIT price monitor running every %s\n", interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.Logger.Info("shutting down", "signal", sig.String())
	a.Monitor.Stop()

	return nil
}
