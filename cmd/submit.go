package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/wormhole-demo/corebridge/internal/bridge"
	"github.com/wormhole-demo/corebridge/internal/config"
	"github.com/wormhole-demo/corebridge/internal/derive"
	"github.com/wormhole-demo/corebridge/internal/validate"
)

var submitCmd = &cobra.Command{
	Use:   "submit [vaa-hex|-]",
	Short: "Verify a VAA, claim it and apply it",
	Long: `Verifies the VAA, marks it consumed and, for governance VAAs, applies the
action (guardian set rotation, fees, upgrades, chain registration). A VAA can
only be submitted once.

With --claim-account the given account must be the claim account derived for
the VAA (a PDA of the Solana core program when one is configured) and must not
exist yet.`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), map[string]string{
			"solana-core-program": config.KeySolanaCoreProgram,
		})
		return nil
	},
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String(
		"claim-account",
		"",
		"Claim account the VAA will be recorded in (base58 or 32 byte hex)")

	submitCmd.Flags().String(
		"solana-core-program",
		"",
		"Derive claim accounts as PDAs of this program")
}

// parseIdentity accepts a base58 Solana address or 32 bytes of hex.
func parseIdentity(s string) (derive.Identity, error) {
	s = strings.TrimSpace(s)
	if hexText := strings.TrimPrefix(s, "0x"); len(hexText) == 64 {
		b, err := decodeHex(hexText)
		if err == nil {
			return derive.Identity(b), nil
		}
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return derive.Identity{}, fmt.Errorf("invalid account %q: %w", s, err)
	}
	return derive.Identity(pk), nil
}

// claimOptions turns the claim flags into bridge options.
func claimOptions(cfg *config.Config, account string) ([]bridge.Option, []bridge.SubmitOption, error) {
	var opts []bridge.Option
	if cfg.SolanaCoreProgram != "" {
		program, err := solana.PublicKeyFromBase58(cfg.SolanaCoreProgram)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", config.KeySolanaCoreProgram, err)
		}
		opts = append(opts, bridge.WithClaimDeriver(derive.SolanaPDA{ProgramID: program}))
	}
	if account == "" {
		return opts, nil, nil
	}
	id, err := parseIdentity(account)
	if err != nil {
		return nil, nil, err
	}
	return opts, []bridge.SubmitOption{bridge.WithClaimHandle(validate.Handle{ID: id, Writable: true})}, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	raw, err := readVAA(args)
	if err != nil {
		return err
	}
	account, _ := cmd.Flags().GetString("claim-account")
	bridgeOpts, submitOpts, err := claimOptions(cfg, account)
	if err != nil {
		return err
	}

	b, store, err := openBridge(cmd.Context(), logger, cfg, bridgeOpts...)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := b.Submit(cmd.Context(), raw, time.Now(), submitOpts...)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), newResultView(result))
}
