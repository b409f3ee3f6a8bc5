package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/referral-cli/internal/intake"
	"github.com/sells-group/referral-cli/internal/loader"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate a file of referrals",
	Long:  "Evaluates every referral in a JSON, YAML, CSV or XLSX file against one configuration snapshot. Results keep the input order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := zap.L().With(zap.String("command", "batch"))

		input, _ := cmd.Flags().GetString("input")
		configFile, _ := cmd.Flags().GetString("config-file")
		configID, _ := cmd.Flags().GetString("config-id")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		format, _ := cmd.Flags().GetString("output")

		referrals, err := loader.LoadReferrals(input)
		if err != nil {
			return err
		}
		if len(referrals) == 0 {
			return eris.Errorf("batch: %s holds no referrals", input)
		}

		req, st, err := resolveRequest(cmd, configFile, configID, dryRun)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		start := time.Now()
		out, err := newService(st, nil).EvaluateBatch(cmd.Context(), intake.BatchRequest{
			ConfigID:  req.ConfigID,
			Config:    req.Config,
			Referrals: referrals,
			DryRun:    req.DryRun,
		})
		if err != nil {
			return err
		}
		log.Info("batch complete",
			zap.String("input", input),
			zap.Int("referrals", len(out)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return writeDecisions(cmd.OutOrStdout(), format, out)
	},
}

func init() {
	batchCmd.Flags().String("input", "", "referral file (JSON, YAML, CSV or XLSX)")
	_ = batchCmd.MarkFlagRequired("input")
	addConfigFlags(batchCmd, "table")
	rootCmd.AddCommand(batchCmd)
}
