package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Read in-app notifications",
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent notifications",
	RunE:  runInboxList,
}

var inboxReadCmd = &cobra.Command{
	Use:   "read [notification-id...]",
	Short: "Mark notifications as read",
	RunE:  runInboxRead,
}

func init() {
	rootCmd.AddCommand(inboxCmd)
	inboxCmd.AddCommand(inboxListCmd, inboxReadCmd)

	inboxCmd.PersistentFlags().StringP("user", "u", "", "User ID")
	_ = inboxCmd.MarkPersistentFlagRequired("user")

	inboxListCmd.Flags().IntP("limit", "n", 50, "Maximum notifications to show")
	inboxReadCmd.Flags().Bool("all", false, "Mark every notification as read")
}

func runInboxList(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListNotifications(cmd.Context(), userID, limit)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No notifications.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTIME\tREAD\tMESSAGE\n")
	for _, n := range list {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", n.ID, n.CreatedAt.Local().Format(time.DateTime), n.Read, n.Message)
	}
	w.Flush()

	return nil
}

func runInboxRead(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	all, _ := cmd.Flags().GetBool("all")

	if !all && len(args) == 0 {
		return errors.New("pass notification IDs or --all")
	}

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	var updated int64
	if all {
		updated, err = store.MarkAllNotificationsRead(cmd.Context(), userID)
	} else {
		updated, err = store.MarkNotificationsRead(cmd.Context(), userID, args)
	}
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Marked %d notification(s) as read\n", updated)
	return nil
}
