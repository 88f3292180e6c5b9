package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/wormhole-demo/corebridge/internal/bridge"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Sequence an outbound message and print the body guardians sign",
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String(
		"emitter",
		"",
		"Hex identity of the sending program or account (required)")

	publishCmd.Flags().String(
		"payload",
		"",
		"Hex encoded payload")

	publishCmd.Flags().Uint32(
		"nonce",
		0,
		"Message nonce")

	publishCmd.Flags().Uint8(
		"consistency-level",
		1,
		"Requested consistency level")

	publishCmd.Flags().String(
		"fee",
		"0",
		"Fee paid with the message (decimal)")

	publishCmd.MarkFlagRequired("emitter")
}

type publishedView struct {
	bodyView
	Body   string `json:"body"`
	Digest string `json:"digest"`
}

func runPublish(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	emitterHex, _ := cmd.Flags().GetString("emitter")
	payloadHex, _ := cmd.Flags().GetString("payload")
	nonce, _ := cmd.Flags().GetUint32("nonce")
	consistency, _ := cmd.Flags().GetUint8("consistency-level")
	feeText, _ := cmd.Flags().GetString("fee")

	emitter, err := decodeHex(emitterHex)
	if err != nil {
		return fmt.Errorf("emitter: %w", err)
	}
	payload, err := decodeHex(payloadHex)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	fee, err := uint256.FromDecimal(feeText)
	if err != nil {
		return fmt.Errorf("fee: %w", err)
	}

	b, store, err := openBridge(cmd.Context(), logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	published, err := b.Publish(cmd.Context(), bridge.Message{
		Emitter:          emitter,
		Nonce:            nonce,
		ConsistencyLevel: consistency,
		Payload:          payload,
		Fee:              fee,
	}, time.Now())
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), publishedView{
		bodyView: newBodyView(&published.Body),
		Body:     hex.EncodeToString(published.Bytes),
		Digest:   published.Digest.Hex(),
	})
}
