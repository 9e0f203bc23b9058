package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage notification preferences",
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a user's contact details and enabled channels",
	Long: `Create or update a user's preferences. Only flags that are passed change;
an empty value clears a contact field.`,
	RunE: runPrefsSet,
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's preferences",
	RunE:  runPrefsShow,
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsSetCmd, prefsShowCmd)

	prefsCmd.PersistentFlags().StringP("user", "u", "", "User ID")
	_ = prefsCmd.MarkPersistentFlagRequired("user")

	prefsSetCmd.Flags().String("email", "", "Email address")
	prefsSetCmd.Flags().String("phone", "", "Phone number in E.164 format")
	prefsSetCmd.Flags().String("telegram-chat-id", "", "Telegram chat ID")
	prefsSetCmd.Flags().String("slack-webhook", "", "Slack incoming webhook URL")
	prefsSetCmd.Flags().String("webhook-url", "", "Generic webhook URL")
	prefsSetCmd.Flags().String("channels", "", "Comma-separated globally enabled channels")
}

func runPrefsSet(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	prefs, err := store.GetPreferences(cmd.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		prefs = &model.Preferences{UserID: userID, Channels: model.ChannelList{model.ChannelInApp}}
	} else if err != nil {
		return fmt.Errorf("get preferences: %w", err)
	}

	fields := map[string]*string{
		"email":            &prefs.Email,
		"phone":            &prefs.PhoneNumber,
		"telegram-chat-id": &prefs.TelegramChatID,
		"slack-webhook":    &prefs.SlackWebhookURL,
		"webhook-url":      &prefs.WebhookURL,
	}
	for flag, field := range fields {
		if cmd.Flags().Changed(flag) {
			*field, _ = cmd.Flags().GetString(flag)
		}
	}
	if cmd.Flags().Changed("channels") {
		raw, _ := cmd.Flags().GetString("channels")
		if prefs.Channels, err = parseChannels(raw); err != nil {
			return err
		}
	}

	if err := store.UpsertPreferences(cmd.Context(), prefs); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}

	printPrefs(cmd, prefs)
	return nil
}

func runPrefsShow(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	prefs, err := store.GetPreferences(cmd.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No preferences for %s. Use 'orbit prefs set' to create them.\n", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get preferences: %w", err)
	}

	printPrefs(cmd, prefs)
	return nil
}

func printPrefs(cmd *cobra.Command, p *model.Preferences) {
	out := cmd.OutOrStdout()
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	fmt.Fprintf(out, "Preferences for %s:\n", p.UserID)
	fmt.Fprintf(out, "  Channels:  %s\n", joinChannels(p.Channels))
	fmt.Fprintf(out, "  Email:     %s\n", orDash(p.Email))
	fmt.Fprintf(out, "  Phone:     %s\n", orDash(p.PhoneNumber))
	fmt.Fprintf(out, "  Telegram:  %s\n", orDash(p.TelegramChatID))
	fmt.Fprintf(out, "  Slack:     %s\n", orDash(p.SlackWebhookURL))
	fmt.Fprintf(out, "  Webhook:   %s\n", orDash(p.WebhookURL))
}
