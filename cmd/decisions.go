package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/referral-cli/internal/store"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions <referral-id>",
	Short: "Show the decision history of a referral",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListDecisions(ctx, args[0], store.ListFilter{Limit: limit})
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No decisions found.")
			return nil
		}
		formatDecisionHistory(cmd.OutOrStdout(), recs)
		return nil
	},
}

func init() {
	decisionsCmd.Flags().Int("limit", 20, "max decisions to show")
	decisionsCmd.Flags().Bool("json", false, "print full decision records as JSON")
	rootCmd.AddCommand(decisionsCmd)
}
