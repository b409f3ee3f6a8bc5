package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/referral-cli/internal/intake"
	"github.com/sells-group/referral-cli/internal/loader"
	"github.com/sells-group/referral-cli/internal/model"
	"github.com/sells-group/referral-cli/internal/store"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one referral",
	Long: "Evaluates a referral file against a configuration. With --config-file the " +
		"configuration is read from disk and nothing is persisted; with --config-id " +
		"the stored configuration is used and the decision is recorded unless --dry-run is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := zap.L().With(zap.String("command", "evaluate"))

		referralPath, _ := cmd.Flags().GetString("referral")
		configFile, _ := cmd.Flags().GetString("config-file")
		configID, _ := cmd.Flags().GetString("config-id")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		format, _ := cmd.Flags().GetString("output")

		referrals, err := loader.LoadReferrals(referralPath)
		if err != nil {
			return err
		}
		if len(referrals) != 1 {
			return eris.Errorf("evaluate: %s holds %d referrals, use batch for more than one", referralPath, len(referrals))
		}

		req, st, err := resolveRequest(cmd, configFile, configID, dryRun)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		req.Referral = referrals[0]

		d, err := newService(st, nil).Evaluate(cmd.Context(), req)
		if err != nil {
			return err
		}
		log.Debug("decision ready", zap.String("referral_id", d.ReferralID))
		return writeDecisions(cmd.OutOrStdout(), format, []*model.ReferralDecisionFactors{d})
	},
}

// resolveRequest builds an evaluation request from the configuration flags.
// A stored configuration opens the store, which the caller must close.
func resolveRequest(cmd *cobra.Command, configFile, configID string, dryRun bool) (intake.EvaluateRequest, store.Store, error) {
	switch {
	case configFile != "" && configID != "":
		return intake.EvaluateRequest{}, nil, eris.New("set only one of --config-file and --config-id")
	case configFile != "":
		if err := cfg.Validate("evaluate"); err != nil {
			return intake.EvaluateRequest{}, nil, err
		}
		c, err := loader.LoadConfiguration(configFile)
		if err != nil {
			return intake.EvaluateRequest{}, nil, err
		}
		return intake.EvaluateRequest{Config: c, DryRun: true}, nil, nil
	case configID != "":
		if err := cfg.Validate("store"); err != nil {
			return intake.EvaluateRequest{}, nil, err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return intake.EvaluateRequest{}, nil, err
		}
		return intake.EvaluateRequest{ConfigID: configID, DryRun: dryRun}, st, nil
	}
	return intake.EvaluateRequest{}, nil, eris.New("one of --config-file or --config-id is required")
}

func addConfigFlags(cmd *cobra.Command, defaultOutput string) {
	cmd.Flags().String("config-file", "", "configuration file (YAML or JSON); evaluates without persisting")
	cmd.Flags().String("config-id", "", "stored configuration ID")
	cmd.Flags().Bool("dry-run", false, "with --config-id, evaluate without recording decisions or escalating")
	cmd.Flags().StringP("output", "o", defaultOutput, "output format: json, table or csv")
}

func init() {
	evaluateCmd.Flags().String("referral", "", "referral file (JSON, YAML, CSV or XLSX)")
	_ = evaluateCmd.MarkFlagRequired("referral")
	addConfigFlags(evaluateCmd, "json")
	rootCmd.AddCommand(evaluateCmd)
}
