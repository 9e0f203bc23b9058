package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/orbit-alerts/internal/app"
	"github.com/ogulcanaydogan/orbit-alerts/internal/config"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "orbit",
	Short: "ORBIT - Crypto price alerts with multi-channel notifications",
	Long: `ORBIT watches token prices against user-defined thresholds and notifies
users through in-app, email, SMS, voice, Telegram, Slack and webhook channels.
It can run a single check, a continuous monitor, or the full HTTP service.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.orbit/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initApp loads config and wires every component.
func initApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.NewLogger(cfg, cmd.ErrOrStderr()))
}

// initStorage opens only the database, for commands that never price or notify.
func initStorage() (storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenStorage(cfg)
}

func parseChannels(raw string) (model.ChannelList, error) {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	return model.ParseChannelList(names)
}
