package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/referral-cli/internal/config"
)

var (
	cfg *config.Config

	// Persistent flags shared by every command.
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "referral-cli",
	Short: "Referral acceptance decision engine",
	Long: "Evaluates incoming home health referrals against versioned business-rule " +
		"configurations and produces auditable accept/review/reject decisions.\n\n" +
		"Application settings come from --config (default ./config.yaml) and REFERRAL_* " +
		"environment variables; business rules are separate configuration files managed " +
		"with the config subcommands.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store_driver", cfg.Store.Driver),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "application config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
