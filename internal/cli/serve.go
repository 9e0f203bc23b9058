package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the continuous price monitor",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("no-monitor", false, "Serve the API only; rely on the cron endpoint for checks")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		a.Config.Server.Listen = listen
	}
	if off, _ := cmd.Flags().GetBool("no-monitor"); off {
		a.Config.Monitor.Enabled = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "ORBIT listening on %s\n", a.Config.Server.Listen)
	return a.Serve(ctx)
}
