// Package config loads the corebridge settings from flags, environment and
// .env files through viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
	sdkvaa "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/wormhole-demo/corebridge/internal/bridge"
	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// EnvPrefix is prepended to every environment variable, e.g.
// COREBRIDGE_DB_PATH.
const EnvPrefix = "corebridge"

// Keys under which settings are bound in viper.
const (
	KeyChainID             = "chain_id"
	KeyGovernanceChain     = "governance_chain"
	KeyGovernanceEmitter   = "governance_emitter"
	KeyGuardianSetExpiry   = "guardian_set_expiry"
	KeyParallelRecovery    = "parallel_recovery"
	KeyRequireRegistration = "require_registration"
	KeyDBPath              = "db_path"
	KeyGenesisIndex        = "genesis_index"
	KeyGenesisKeys         = "genesis_keys"
	KeySpyRPCHost          = "spy_rpc_host"
	KeySourceChains        = "source_chains"
	KeyEmitterAddress      = "emitter_address"
	KeyEVMRPCURL           = "evm_rpc_url"
	KeyEVMPrivateKey       = "private_key"
	KeyEVMTargetContract   = "evm_target_contract"
	KeyEVMMethod           = "evm_method"
	KeyEVMCoreContract     = "evm_core_contract"
	KeyWebhookURL          = "webhook_url"
	KeySolanaRPCURL        = "solana_rpc_url"
	KeySolanaCoreProgram   = "solana_core_program"
)

// MemoryDB selects the in-memory store instead of a SQLite file.
const MemoryDB = ":memory:"

type Config struct {
	ChainID             vaa.ChainID
	Governance          governance.Authority
	GuardianSetExpiry   time.Duration
	ParallelRecovery    int
	RequireRegistration bool
	DBPath              string

	GenesisIndex uint32
	GenesisKeys  []common.Address

	SpyRPCHost     string
	SourceChains   []vaa.ChainID
	EmitterAddress string

	EVMRPCURL         string
	EVMPrivateKey     string
	EVMTargetContract string
	EVMMethod         string
	EVMCoreContract   string
	WebhookURL        string

	SolanaRPCURL      string
	SolanaCoreProgram string
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyGovernanceChain, "solana")
	v.SetDefault(KeyGovernanceEmitter, governance.DefaultAuthority.Emitter.String())
	v.SetDefault(KeyGuardianSetExpiry, guardianset.DefaultExpiry)
	v.SetDefault(KeyParallelRecovery, 0)
	v.SetDefault(KeyDBPath, "corebridge.db")
	v.SetDefault(KeyGenesisIndex, 0)
	v.SetDefault(KeySpyRPCHost, "localhost:7073")
	v.SetDefault(KeyEVMMethod, "receiveMessage")
}

// BindEnv makes every setting readable from COREBRIDGE_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		GuardianSetExpiry:   v.GetDuration(KeyGuardianSetExpiry),
		ParallelRecovery:    v.GetInt(KeyParallelRecovery),
		RequireRegistration: v.GetBool(KeyRequireRegistration),
		DBPath:              v.GetString(KeyDBPath),
		GenesisIndex:        v.GetUint32(KeyGenesisIndex),
		SpyRPCHost:          v.GetString(KeySpyRPCHost),
		EmitterAddress:      v.GetString(KeyEmitterAddress),
		EVMRPCURL:           v.GetString(KeyEVMRPCURL),
		EVMPrivateKey:       v.GetString(KeyEVMPrivateKey),
		EVMTargetContract:   v.GetString(KeyEVMTargetContract),
		EVMMethod:           v.GetString(KeyEVMMethod),
		EVMCoreContract:     v.GetString(KeyEVMCoreContract),
		WebhookURL:          v.GetString(KeyWebhookURL),
		SolanaRPCURL:        v.GetString(KeySolanaRPCURL),
		SolanaCoreProgram:   v.GetString(KeySolanaCoreProgram),
	}

	var err error
	if s := v.GetString(KeyChainID); s != "" {
		if cfg.ChainID, err = ParseChain(s); err != nil {
			return nil, fmt.Errorf("%s: %w", KeyChainID, err)
		}
	}
	if cfg.Governance, err = LoadAuthority(v); err != nil {
		return nil, err
	}
	if cfg.GenesisKeys, err = ParseKeys(v.GetStringSlice(KeyGenesisKeys)); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyGenesisKeys, err)
	}
	if cfg.SourceChains, err = ParseChains(v.GetStringSlice(KeySourceChains)); err != nil {
		return nil, fmt.Errorf("%s: %w", KeySourceChains, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAuthority reads only the governance emitter settings.
func LoadAuthority(v *viper.Viper) (governance.Authority, error) {
	var a governance.Authority
	var err error
	if a.Chain, err = ParseChain(v.GetString(KeyGovernanceChain)); err != nil {
		return a, fmt.Errorf("%s: %w", KeyGovernanceChain, err)
	}
	if a.Emitter, err = vaa.StringToAddress(v.GetString(KeyGovernanceEmitter)); err != nil {
		return a, fmt.Errorf("%s: %w", KeyGovernanceEmitter, err)
	}
	return a, nil
}

func (c *Config) Validate() error {
	forwardEVM := c.EVMTargetContract != ""
	return validation.ValidateStruct(c,
		validation.Field(&c.ChainID, validation.Required),
		validation.Field(&c.GuardianSetExpiry, validation.Min(time.Duration(0))),
		validation.Field(&c.ParallelRecovery, validation.Min(0)),
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.GenesisKeys, validation.Length(0, guardianset.MaxGuardians)),
		validation.Field(&c.EmitterAddress, validation.By(isAddress)),
		validation.Field(&c.EVMRPCURL, validation.Required.When(forwardEVM), validation.By(isURL)),
		validation.Field(&c.EVMPrivateKey, validation.Required.When(forwardEVM)),
		validation.Field(&c.EVMTargetContract, validation.By(isHexAddress)),
		validation.Field(&c.EVMMethod, validation.Required.When(forwardEVM)),
		validation.Field(&c.EVMCoreContract, validation.By(isHexAddress)),
		validation.Field(&c.WebhookURL, validation.By(isURL)),
		validation.Field(&c.SolanaRPCURL, validation.By(isURL)),
	)
}

// Bridge returns the bridge settings.
func (c *Config) Bridge() bridge.Config {
	return bridge.Config{
		ChainID:             c.ChainID,
		Governance:          c.Governance,
		GuardianSetExpiry:   c.GuardianSetExpiry,
		ParallelRecovery:    c.ParallelRecovery,
		RequireRegistration: c.RequireRegistration,
	}
}

// InMemory reports whether the bridge state lives only in memory.
func (c *Config) InMemory() bool {
	return c.DBPath == MemoryDB
}

// ParseChain accepts a chain number or a chain name known to the Wormhole
// SDK ("solana", "ethereum", ...).
func ParseChain(s string) (vaa.ChainID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return vaa.ChainIDUnset, errors.New("empty chain")
	}
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return vaa.ChainID(n), nil
	}
	id, err := sdkvaa.ChainIDFromString(s)
	if err != nil {
		return vaa.ChainIDUnset, fmt.Errorf("unknown chain %q", s)
	}
	return vaa.ChainID(id), nil
}

func ParseChains(values []string) ([]vaa.ChainID, error) {
	var chains []vaa.ChainID
	for _, s := range values {
		for _, part := range strings.Split(s, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := ParseChain(part)
			if err != nil {
				return nil, err
			}
			chains = append(chains, id)
		}
	}
	return chains, nil
}

// ParseKeys parses hex encoded guardian addresses. Entries may themselves be
// comma separated.
func ParseKeys(values []string) ([]common.Address, error) {
	var keys []common.Address
	for _, s := range values {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !common.IsHexAddress(part) {
				return nil, fmt.Errorf("invalid guardian key %q", part)
			}
			keys = append(keys, common.HexToAddress(part))
		}
	}
	return keys, nil
}

func isAddress(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := vaa.StringToAddress(s)
	return err
}

func isHexAddress(value interface{}) error {
	s, _ := value.(string)
	if s == "" || common.IsHexAddress(s) {
		return nil
	}
	return errors.New("must be a 20 byte hex address")
}

func isURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}
