package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [vaa-hex|-]",
	Short: "Decode a VAA and verify its signatures without consuming it",
	Long: `Decodes the VAA, checks its guardian signatures against the stored guardian
sets and prints the verified message. Nothing is written to the bridge state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	raw, err := readVAA(args)
	if err != nil {
		return err
	}

	b, store, err := openBridge(cmd.Context(), logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	verified, err := b.ParseAndVerify(cmd.Context(), raw, time.Now())
	if err != nil {
		logger.Warn("VAA failed verification", zap.Error(err))
		return err
	}
	return printJSON(cmd.OutOrStdout(), newVerifiedView(verified))
}
