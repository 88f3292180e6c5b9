package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/clients"
	"github.com/wormhole-demo/corebridge/internal/config"
	"github.com/wormhole-demo/corebridge/internal/relayer"
	"github.com/wormhole-demo/corebridge/internal/submitter"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// watchCmd streams signed VAAs from a spy through the bridge
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Verify and consume VAAs streamed from a Wormhole spy",
	Long: `Subscribes to signed VAAs from a Wormhole spy, verifies and claims every VAA
from the configured source chains and emitter, applies governance VAAs and
forwards the accepted messages to an EVM contract and/or a webhook.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		printBanner()
		bindFlags(cmd.Flags(), map[string]string{
			"spy-rpc-host":        config.KeySpyRPCHost,
			"source-chains":       config.KeySourceChains,
			"emitter-address":     config.KeyEmitterAddress,
			"evm-rpc-url":         config.KeyEVMRPCURL,
			"private-key":         config.KeyEVMPrivateKey,
			"evm-target-contract": config.KeyEVMTargetContract,
			"evm-method":          config.KeyEVMMethod,
			"webhook-url":         config.KeyWebhookURL,
		})
		return nil
	},
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String(
		"spy-rpc-host",
		"localhost:7073",
		"Wormhole spy service endpoint")

	watchCmd.Flags().StringSlice(
		"source-chains",
		nil,
		"Source chains to accept VAAs from (names or ids, default all)")

	watchCmd.Flags().String(
		"emitter-address",
		"",
		"Source emitter address to filter (hex)")

	watchCmd.Flags().String(
		"evm-rpc-url",
		"",
		"RPC URL of the EVM chain accepted VAAs are forwarded to")

	watchCmd.Flags().String(
		"private-key",
		"",
		"Private key for EVM transactions")

	watchCmd.Flags().String(
		"evm-target-contract",
		"",
		"Contract accepted VAAs are sent to")

	watchCmd.Flags().String(
		"evm-method",
		"receiveMessage",
		"Method of the target contract taking the encoded VAA")

	watchCmd.Flags().String(
		"webhook-url",
		"",
		"HTTP endpoint accepted VAAs are posted to")
}

func buildSubmitter(logger *zap.Logger, cfg *config.Config) (submitter.VAASubmitter, error) {
	var out submitter.Multi
	if cfg.EVMTargetContract != "" {
		evmClient, err := clients.NewEVMClient(logger, cfg.EVMRPCURL, cfg.EVMPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create EVM client: %w", err)
		}
		logger.Info("Connected to EVM", zap.String("address", evmClient.GetAddress().Hex()))
		out = append(out, submitter.NewEVMSubmitter(logger, cfg.EVMTargetContract, cfg.EVMMethod, evmClient))
	}
	if cfg.WebhookURL != "" {
		out = append(out, submitter.NewHTTPSubmitter(logger, clients.NewWebhookClient(logger, cfg.WebhookURL)))
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// spyFilters subscribes to emitter on every source chain, plus the governance
// emitter. Without source chains the spy is left unfiltered.
func spyFilters(cfg *config.Config, emitter vaa.Address) []clients.EmitterFilter {
	if len(cfg.SourceChains) == 0 {
		return nil
	}
	filters := []clients.EmitterFilter{{Chain: cfg.Governance.Chain, Emitter: cfg.Governance.Emitter}}
	for _, c := range cfg.SourceChains {
		if c == cfg.Governance.Chain && emitter == cfg.Governance.Emitter {
			continue
		}
		filters = append(filters, clients.EmitterFilter{Chain: c, Emitter: emitter})
	}
	return filters
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var emitter *vaa.Address
	if cfg.EmitterAddress != "" {
		a, err := vaa.StringToAddress(cfg.EmitterAddress)
		if err != nil {
			return err
		}
		emitter = &a
	}

	logger.Info("Configuration",
		zap.Uint16("chainId", uint16(cfg.ChainID)),
		zap.String("governance", cfg.Governance.String()),
		zap.String("dbPath", cfg.DBPath),
		zap.String("spyRPC", cfg.SpyRPCHost),
		zap.Any("sourceChains", cfg.SourceChains),
		zap.String("emitterFilter", cfg.EmitterAddress),
		zap.String("evmTarget", cfg.EVMTargetContract),
		zap.String("webhook", cfg.WebhookURL))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	b, store, err := openBridge(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	forward, err := buildSubmitter(logger, cfg)
	if err != nil {
		return err
	}

	// the spy only filters on full emitters; chain-only filtering happens in
	// the processor
	var filters []clients.EmitterFilter
	if emitter != nil {
		filters = spyFilters(cfg, *emitter)
	}
	spyClient, err := clients.NewSpyClient(logger, cfg.SpyRPCHost, filters...)
	if err != nil {
		return fmt.Errorf("failed to create spy client: %w", err)
	}
	defer spyClient.Close()

	processor := relayer.NewDefaultVAAProcessor(logger, relayer.VAAProcessorConfig{
		Chains:         cfg.SourceChains,
		EmitterAddress: emitter,
		Governance:     &cfg.Governance,
	}, b, forward)
	r := relayer.NewRelayer(logger, spyClient, processor)

	var g run.Group
	g.Add(func() error {
		return r.Start(ctx)
	}, func(error) {
		cancel()
	})

	stop := make(chan struct{})
	g.Add(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			logger.Info("Received shutdown signal", zap.String("signal", s.String()))
		case <-stop:
		}
		return nil
	}, func(error) {
		close(stop)
	})

	if err := g.Run(); err != nil {
		return fmt.Errorf("relayer stopped with error: %w", err)
	}
	return nil
}
