package cmd

import (
	"fmt"
	"os"
	"strings"

	dotenv "github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wormhole-demo/corebridge/internal/config"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "corebridge",
	Short:         "Wormhole core bridge: verify, replay-protect and govern VAAs",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// bridgeFlags are shared by every command that opens the bridge state.
var bridgeFlags = map[string]string{
	"chain-id":             config.KeyChainID,
	"governance-chain":     config.KeyGovernanceChain,
	"governance-emitter":   config.KeyGovernanceEmitter,
	"guardian-set-expiry":  config.KeyGuardianSetExpiry,
	"parallel-recovery":    config.KeyParallelRecovery,
	"require-registration": config.KeyRequireRegistration,
	"db-path":              config.KeyDBPath,
	"genesis-index":        config.KeyGenesisIndex,
	"genesis-keys":         config.KeyGenesisKeys,
}

func init() {
	// Tentatively load .env file
	_ = dotenv.Load()

	rootCmd.PersistentFlags().Bool(
		"debug",
		false,
		"Enables debug output.")

	rootCmd.PersistentFlags().Bool(
		"json",
		false,
		"Enables structured logging in JSON format.")

	rootCmd.PersistentFlags().String(
		"chain-id",
		"",
		"Chain this bridge runs on (name or Wormhole chain id)")

	rootCmd.PersistentFlags().String(
		"governance-chain",
		"solana",
		"Chain of the governance emitter")

	rootCmd.PersistentFlags().String(
		"governance-emitter",
		"0x0000000000000000000000000000000000000000000000000000000000000004",
		"Governance emitter address")

	rootCmd.PersistentFlags().Duration(
		"guardian-set-expiry",
		guardianset.DefaultExpiry,
		"How long a superseded guardian set keeps verifying")

	rootCmd.PersistentFlags().Int(
		"parallel-recovery",
		0,
		"Concurrent signature recoveries per VAA (0 or 1 is sequential)")

	rootCmd.PersistentFlags().Bool(
		"require-registration",
		false,
		"Reject messages from emitters no RegisterChain action registered")

	rootCmd.PersistentFlags().String(
		"db-path",
		"corebridge.db",
		"SQLite database holding the bridge state (:memory: keeps it in memory)")

	rootCmd.PersistentFlags().Uint32(
		"genesis-index",
		0,
		"Index of the genesis guardian set")

	rootCmd.PersistentFlags().StringSlice(
		"genesis-keys",
		nil,
		"Genesis guardian addresses, installed on first start")

	bindFlags(rootCmd.PersistentFlags(), bridgeFlags)

	cobra.OnInitialize(initConfig)
}

// bindFlags binds flag names to viper keys. Flags local to a command are
// bound when that command runs, so commands sharing a key don't conflict.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printBanner() {
	colours := []string{
		"\033[38;5;81m", // Cyan
		"\033[38;5;75m", // Light Blue
		"\033[38;5;69m", // Sky Blue
		"\033[38;5;63m", // Dodger Blue
		"\033[38;5;57m", // Deep Sky Blue
		"\033[38;5;51m", // Cornflower Blue
	}
	banner := `
  ____               ____       _     _
 / ___|___  _ __ ___| __ ) _ __(_) __| | __ _  ___
| |   / _ \| '__/ _ \  _ \| '__| |/ _' |/ _' |/ _ \
| |__| (_) | | |  __/ |_) | |  | | (_| | (_| |  __/
 \____\___/|_|  \___|____/|_|  |_|\__,_|\__, |\___|
                                        |___/
`
	lines := strings.Split(banner, "\n")

	// remove empty lines
	for i := 0; i < len(lines); i++ {
		if lines[i] == "" {
			lines = append(lines[:i], lines[i+1:]...)
			i--
		}
	}

	for i, line := range lines {
		fmt.Printf("%s%s\n", colours[i%len(colours)], line)
	}

	fmt.Println("\033[0m") // Reset
}

func configureLogging(cmd *cobra.Command, _ []string) *zap.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	json, _ := cmd.Flags().GetBool("json")

	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.Development = true
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	// Configure JSON output if requested
	if json {
		config.Encoding = "json"
	} else {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		// Fallback to a basic logger if config fails
		logger, _ = zap.NewProduction()
	}

	// Replace the global logger
	zap.ReplaceGlobals(logger)

	return logger
}
