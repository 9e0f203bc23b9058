package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old notifications and long-inactive alerts, archive long-quiet ones",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Cleanup(cmd.Context(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d notification(s) and %d alert(s), archived %d alert(s)\n",
		res.DeletedNotifications, res.DeletedAlerts, res.ArchivedAlerts)
	return nil
}
