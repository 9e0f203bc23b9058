package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a price alert",
	RunE:  runAlertsAdd,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's alerts",
	RunE:  runAlertsList,
}

var alertsPauseCmd = &cobra.Command{
	Use:   "pause <alert-id>",
	Short: "Deactivate an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAlertActive(cmd, args[0], false) },
}

var alertsResumeCmd = &cobra.Command{
	Use:   "resume <alert-id>",
	Short: "Reactivate an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAlertActive(cmd, args[0], true) },
}

var alertsDeleteCmd = &cobra.Command{
	Use:   "delete <alert-id>",
	Short: "Delete an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsDelete,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsPauseCmd, alertsResumeCmd, alertsDeleteCmd)

	alertsCmd.PersistentFlags().StringP("user", "u", "", "User ID")
	_ = alertsCmd.MarkPersistentFlagRequired("user")

	alertsAddCmd.Flags().StringP("token", "t", "", "Token symbol (e.g. BTC)")
	alertsAddCmd.Flags().StringP("condition", "c", "above", "Trigger direction (above, below)")
	alertsAddCmd.Flags().Float64P("target", "p", 0, "Target price in USD")
	alertsAddCmd.Flags().String("channels", "in-app", "Comma-separated channels to notify")
	_ = alertsAddCmd.MarkFlagRequired("token")
	_ = alertsAddCmd.MarkFlagRequired("target")
}

func runAlertsAdd(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	token, _ := cmd.Flags().GetString("token")
	condition, _ := cmd.Flags().GetString("condition")
	target, _ := cmd.Flags().GetFloat64("target")
	rawChannels, _ := cmd.Flags().GetString("channels")

	channels, err := parseChannels(rawChannels)
	if err != nil {
		return err
	}

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	alert := &model.Alert{
		UserID:      userID,
		Token:       token,
		Condition:   model.Condition(strings.ToLower(condition)),
		TargetPrice: target,
		Active:      true,
		Channels:    channels,
	}
	if err := store.CreateAlert(cmd.Context(), alert); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Alert created:\n")
	fmt.Fprintf(out, "  ID:        %s\n", alert.ID)
	fmt.Fprintf(out, "  Token:     %s\n", alert.Token)
	fmt.Fprintf(out, "  Condition: %s $%.2f\n", alert.Condition, alert.TargetPrice)
	fmt.Fprintf(out, "  Channels:  %s\n", joinChannels(alert.Channels))

	return nil
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	alerts, err := store.ListAlerts(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No alerts configured. Use 'orbit alerts add' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTOKEN\tCONDITION\tTARGET\tACTIVE\tCHANNELS\tLAST TRIGGERED\n")
	for _, a := range alerts {
		last := "-"
		if a.LastTriggered != nil {
			last = a.LastTriggered.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t$%.2f\t%t\t%s\t%s\n",
			a.ID, a.Token, a.Condition, a.TargetPrice, a.Active, joinChannels(a.Channels), last,
		)
	}
	w.Flush()

	return nil
}

func setAlertActive(cmd *cobra.Command, id string, active bool) error {
	userID, _ := cmd.Flags().GetString("user")

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetAlertActive(cmd.Context(), userID, id, active); err != nil {
		return fmt.Errorf("update alert: %w", err)
	}

	state := "paused"
	if active {
		state = "resumed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Alert %s %s\n", id, state)
	return nil
}

func runAlertsDelete(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteAlert(cmd.Context(), userID, args[0]); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Alert %s deleted\n", args[0])
	return nil
}

func joinChannels(list model.ChannelList) string {
	names := make([]string, len(list))
	for i, k := range list {
		names[i] = string(k)
	}
	return strings.Join(names, ",")
}
