package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification channel tools",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a sample BTC alert through one channel",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)

	notifyTestCmd.Flags().StringP("user", "u", "", "User ID")
	notifyTestCmd.Flags().StringP("channel", "c", "", "Channel to test")
	_ = notifyTestCmd.MarkFlagRequired("user")
	_ = notifyTestCmd.MarkFlagRequired("channel")
}

func runNotifyTest(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	channel, _ := cmd.Flags().GetString("channel")

	kind, err := model.ParseChannelKind(channel)
	if err != nil {
		return err
	}

	a, err := initApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	prefs, err := a.Store.GetPreferences(cmd.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no preferences for %s", userID)
	}
	if err != nil {
		return fmt.Errorf("get preferences: %w", err)
	}

	res := a.Notifier.TestChannel(cmd.Context(), kind, prefs)
	if !res.Success {
		return fmt.Errorf("%s test failed: %s", kind, res.Error)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s test sent", kind)
	if res.MessageID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (message %s)", res.MessageID)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
