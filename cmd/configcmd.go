package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/referral-cli/internal/engine"
	"github.com/sells-group/referral-cli/internal/loader"
	"github.com/sells-group/referral-cli/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage referral configurations",
	Long:  "Commands for validating, saving, showing and listing referral business-rule configurations.",
}

// -- config validate --

var configValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a configuration file without saving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loader.LoadConfiguration(args[0])
		if err != nil {
			return err
		}
		if err := engine.ValidateConfiguration(c); err != nil {
			printValidationErrors(cmd.ErrOrStderr(), err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
		return nil
	},
}

// -- config save --

var configSaveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Validate and store a configuration as a new version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "config save"))

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		c, err := loader.LoadConfiguration(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		saved, err := newService(st, nil).SaveConfiguration(ctx, c)
		if err != nil {
			printValidationErrors(cmd.ErrOrStderr(), err)
			return err
		}
		log.Info("configuration saved", zap.String("id", saved.ID), zap.Int("version", saved.Version))
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s version %d\n", saved.ID, saved.Version)
		return nil
	},
}

// -- config show --

var configShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		version, _ := cmd.Flags().GetInt("version")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if version > 0 {
			c, err := st.GetConfigurationVersion(ctx, args[0], version)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c)
		}
		c, err := st.GetConfiguration(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), c)
	},
}

// -- config list --

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored configurations (latest version of each)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.ListConfigurations(ctx, store.ListFilter{Limit: limit})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No configurations found.")
			return nil
		}
		formatConfigurationList(cmd.OutOrStdout(), list)
		return nil
	},
}

// printValidationErrors lists field failures one per line.
func printValidationErrors(out io.Writer, err error) {
	var verrs *engine.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, f := range verrs.Fields {
		fmt.Fprintf(out, "  %-14s %s: %s\n", f.Kind, f.Field, f.Message)
	}
}

func init() {
	configShowCmd.Flags().Int("version", 0, "configuration version (default latest)")
	configListCmd.Flags().Int("limit", store.DefaultListLimit, "max configurations to list")

	configCmd.AddCommand(configValidateCmd, configSaveCmd, configShowCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
