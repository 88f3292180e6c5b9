package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/bridge"
	"github.com/wormhole-demo/corebridge/internal/clients"
	"github.com/wormhole-demo/corebridge/internal/config"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
)

var guardianSetCmd = &cobra.Command{
	Use:   "guardian-set",
	Short: "Inspect guardian sets or install one from an existing deployment",
}

var guardianSetShowCmd = &cobra.Command{
	Use:   "show [index]",
	Short: "Print a stored guardian set (the current one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGuardianSetShow,
}

var guardianSetSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Read the current guardian set from an EVM or Solana core bridge",
	Long: `Reads the current guardian set from the chosen source. An empty bridge state
is bootstrapped with it; otherwise it is compared with the stored current set.
Later sets only arrive through guardian set change governance.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), map[string]string{
			"evm-rpc-url":         config.KeyEVMRPCURL,
			"evm-core-contract":   config.KeyEVMCoreContract,
			"solana-rpc-url":      config.KeySolanaRPCURL,
			"solana-core-program": config.KeySolanaCoreProgram,
		})
		return nil
	},
	RunE: runGuardianSetSync,
}

func init() {
	rootCmd.AddCommand(guardianSetCmd)
	guardianSetCmd.AddCommand(guardianSetShowCmd, guardianSetSyncCmd)

	guardianSetSyncCmd.Flags().String("source", "evm", "Where to read the guardian set from (evm, solana)")
	guardianSetSyncCmd.Flags().String("evm-rpc-url", "", "RPC URL of the EVM chain")
	guardianSetSyncCmd.Flags().String("evm-core-contract", "", "Address of the EVM Wormhole core contract")
	guardianSetSyncCmd.Flags().String("solana-rpc-url", "", "RPC URL of the Solana cluster")
	guardianSetSyncCmd.Flags().String("solana-core-program", "", "Wormhole core program id (devnet by default)")
}

func runGuardianSetShow(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, store, err := openBridge(cmd.Context(), logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var gs *guardianset.GuardianSet
	if len(args) == 0 {
		gs, err = b.CurrentGuardianSet(cmd.Context())
	} else {
		index, perr := strconv.ParseUint(args[0], 10, 32)
		if perr != nil {
			return fmt.Errorf("invalid index %q: %w", args[0], perr)
		}
		gs, err = b.GuardianSet(cmd.Context(), uint32(index))
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), newGuardianSetView(gs))
}

func guardianSetSource(logger *zap.Logger, source string, cfg *config.Config) (guardianset.Source, error) {
	switch source {
	case "evm":
		if cfg.EVMRPCURL == "" || cfg.EVMCoreContract == "" {
			return nil, errors.New("evm source needs --evm-rpc-url and --evm-core-contract")
		}
		client, err := clients.NewEVMClient(logger, cfg.EVMRPCURL, "")
		if err != nil {
			return nil, err
		}
		return client.GuardianSets(common.HexToAddress(cfg.EVMCoreContract)), nil
	case "solana":
		if cfg.SolanaRPCURL == "" {
			return nil, errors.New("solana source needs --solana-rpc-url")
		}
		return clients.NewSolanaClient(logger, cfg.SolanaRPCURL, cfg.SolanaCoreProgram)
	default:
		return nil, fmt.Errorf("unknown guardian set source %q (valid: evm, solana)", source)
	}
}

// syncGuardianSet installs the source's current set into an empty bridge,
// or reports whether the stored current set matches it.
func syncGuardianSet(ctx context.Context, logger *zap.Logger, b *bridge.Bridge, source guardianset.Source) (*guardianset.GuardianSet, error) {
	index, err := source.CurrentGuardianSetIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current guardian set index: %w", err)
	}
	remote, err := source.GuardianSet(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("read guardian set %d: %w", index, err)
	}

	local, err := b.CurrentGuardianSet(ctx)
	switch {
	case errors.Is(err, guardianset.ErrInvalidGuardianSetIndex):
		return b.Bootstrap(ctx, remote.Index, remote.Keys)
	case err != nil:
		return nil, err
	}

	if local.Index != remote.Index || len(local.Keys) != len(remote.Keys) {
		logger.Warn("Stored guardian set differs from source",
			zap.Uint32("storedIndex", local.Index),
			zap.Uint32("sourceIndex", remote.Index))
		return remote, nil
	}
	for i := range local.Keys {
		if local.Keys[i] != remote.Keys[i] {
			logger.Warn("Stored guardian set keys differ from source",
				zap.Uint32("guardianSetIndex", local.Index),
				zap.Int("position", i))
			return remote, nil
		}
	}
	logger.Info("Guardian set in sync", zap.Uint32("guardianSetIndex", local.Index))
	return local, nil
}

func runGuardianSetSync(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	sourceName, _ := cmd.Flags().GetString("source")
	source, err := guardianSetSource(logger, sourceName, cfg)
	if err != nil {
		return err
	}

	b, store, err := openBridge(cmd.Context(), logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	gs, err := syncGuardianSet(cmd.Context(), logger, b, source)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), newGuardianSetView(gs))
}
