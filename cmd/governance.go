package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wormhole-demo/corebridge/internal/config"
	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

var governanceCmd = &cobra.Command{
	Use:   "governance",
	Short: "Build governance payloads and the VAA bodies guardians sign for them",
	Long: `Each subcommand encodes one governance action and prints the payload together
with the unsigned VAA body, emitted by the configured governance emitter, and
its signing digest.`,
}

var (
	guardianSetChangeCmd = &cobra.Command{
		Use:   "guardian-set-change",
		Short: "Core: install a new guardian set",
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _ := cmd.Flags().GetUint32("new-index")
			keyArgs, _ := cmd.Flags().GetStringSlice("keys")
			keys, err := config.ParseKeys(keyArgs)
			if err != nil {
				return err
			}
			return emitGovernance(cmd, governance.ModuleCore, governance.GuardianSetChange{NewIndex: index, Keys: keys})
		},
	}

	setFeeCmd = &cobra.Command{
		Use:   "set-fee",
		Short: "Core: set the message fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			fee, err := amountFlag(cmd, "fee")
			if err != nil {
				return err
			}
			return emitGovernance(cmd, governance.ModuleCore, governance.SetMessageFee{Fee: fee})
		},
	}

	transferFeesCmd = &cobra.Command{
		Use:   "transfer-fees",
		Short: "Core: pay collected fees to a recipient",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := amountFlag(cmd, "amount")
			if err != nil {
				return err
			}
			recipient, err := addressFlag(cmd, "recipient")
			if err != nil {
				return err
			}
			return emitGovernance(cmd, governance.ModuleCore, governance.TransferFees{Amount: amount, Recipient: recipient})
		},
	}

	contractUpgradeCmd = &cobra.Command{
		Use:   "contract-upgrade",
		Short: "Core or TokenBridge: upgrade the module to new code",
		RunE: func(cmd *cobra.Command, args []string) error {
			module, _ := cmd.Flags().GetString("module")
			target, err := addressFlag(cmd, "new-contract")
			if err != nil {
				return err
			}
			return emitGovernance(cmd, module, governance.ContractUpgrade{NewContract: target})
		},
	}

	registerChainCmd = &cobra.Command{
		Use:   "register-chain",
		Short: "TokenBridge: register the emitter of a foreign chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chainArg, _ := cmd.Flags().GetString("chain")
			chain, err := config.ParseChain(chainArg)
			if err != nil {
				return err
			}
			emitter, err := addressFlag(cmd, "emitter")
			if err != nil {
				return err
			}
			return emitGovernance(cmd, governance.ModuleTokenBridge, governance.RegisterChain{Chain: chain, Emitter: emitter})
		},
	}
)

func init() {
	rootCmd.AddCommand(governanceCmd)

	governanceCmd.PersistentFlags().String(
		"target-chain",
		"0",
		"Chain the action applies to (0 addresses every chain)")
	governanceCmd.PersistentFlags().Uint64(
		"sequence",
		0,
		"Sequence of the governance VAA")
	governanceCmd.PersistentFlags().Uint32(
		"nonce",
		0,
		"Nonce of the governance VAA")

	guardianSetChangeCmd.Flags().Uint32("new-index", 0, "Index of the new guardian set")
	guardianSetChangeCmd.Flags().StringSlice("keys", nil, "Guardian addresses of the new set, in signing order")
	guardianSetChangeCmd.MarkFlagRequired("new-index")
	guardianSetChangeCmd.MarkFlagRequired("keys")

	setFeeCmd.Flags().String("fee", "", "New message fee (decimal)")
	setFeeCmd.MarkFlagRequired("fee")

	transferFeesCmd.Flags().String("amount", "", "Amount to transfer (decimal)")
	transferFeesCmd.Flags().String("recipient", "", "Recipient address (hex, up to 32 bytes)")
	transferFeesCmd.MarkFlagRequired("amount")
	transferFeesCmd.MarkFlagRequired("recipient")

	contractUpgradeCmd.Flags().String("module", governance.ModuleCore, "Module to upgrade (Core, TokenBridge)")
	contractUpgradeCmd.Flags().String("new-contract", "", "Address of the new code (hex, up to 32 bytes)")
	contractUpgradeCmd.MarkFlagRequired("new-contract")

	registerChainCmd.Flags().String("chain", "", "Chain to register (name or id)")
	registerChainCmd.Flags().String("emitter", "", "Emitter address on that chain (hex, up to 32 bytes)")
	registerChainCmd.MarkFlagRequired("chain")
	registerChainCmd.MarkFlagRequired("emitter")

	governanceCmd.AddCommand(guardianSetChangeCmd, setFeeCmd, transferFeesCmd, contractUpgradeCmd, registerChainCmd)
}

func amountFlag(cmd *cobra.Command, name string) (*uint256.Int, error) {
	s, _ := cmd.Flags().GetString(name)
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func addressFlag(cmd *cobra.Command, name string) (vaa.Address, error) {
	s, _ := cmd.Flags().GetString(name)
	a, err := vaa.StringToAddress(s)
	if err != nil {
		return vaa.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

type governanceView struct {
	Action  string `json:"action"`
	Payload string `json:"payload"`
	bodyView
	Body   string `json:"body"`
	Digest string `json:"digest"`
}

func emitGovernance(cmd *cobra.Command, module string, action governance.Action) error {
	logger := configureLogging(cmd, nil)
	defer logger.Sync()

	authority, err := config.LoadAuthority(viper.GetViper())
	if err != nil {
		return err
	}
	targetArg, _ := cmd.Flags().GetString("target-chain")
	target, err := config.ParseChain(targetArg)
	if err != nil {
		return fmt.Errorf("target-chain: %w", err)
	}
	sequence, _ := cmd.Flags().GetUint64("sequence")
	nonce, _ := cmd.Flags().GetUint32("nonce")

	msg, err := governance.NewMessage(module, target, action)
	if err != nil {
		return err
	}
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}

	body := vaa.Body{
		Timestamp:        time.Unix(time.Now().Unix(), 0),
		Nonce:            nonce,
		EmitterChain:     authority.Chain,
		EmitterAddress:   authority.Emitter,
		Sequence:         sequence,
		ConsistencyLevel: 32,
		Payload:          payload,
	}
	raw := body.Marshal()

	return printJSON(cmd.OutOrStdout(), governanceView{
		Action:   msg.String(),
		Payload:  hex.EncodeToString(payload),
		bodyView: newBodyView(&body),
		Body:     hex.EncodeToString(raw),
		Digest:   vaa.SigningDigest(raw).Hex(),
	})
}
