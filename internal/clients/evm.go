package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/guardianset"
)

// ErrNoSigner is returned when a transaction is requested from a client
// created without a private key.
var ErrNoSigner = errors.New("EVM client has no private key")

const coreABIJSON = `[
	{
		"inputs": [],
		"name": "getCurrentGuardianSetIndex",
		"outputs": [{"internalType": "uint32", "name": "", "type": "uint32"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint32", "name": "index", "type": "uint32"}],
		"name": "getGuardianSet",
		"outputs": [{
			"components": [
				{"internalType": "address[]", "name": "keys", "type": "address[]"},
				{"internalType": "uint32", "name": "expirationTime", "type": "uint32"}
			],
			"internalType": "struct Structs.GuardianSet",
			"name": "",
			"type": "tuple"
		}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// CoreABI is the read-only surface of an EVM Wormhole core contract.
var CoreABI = mustParseABI(coreABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ReceiverABI describes a contract method taking a single encoded VAA.
func ReceiverABI(method string) (abi.ABI, error) {
	const tmpl = `[{
		"inputs": [{"internalType": "bytes", "name": "encodedVaa", "type": "bytes"}],
		"name": %q,
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}]`
	return abi.JSON(strings.NewReader(fmt.Sprintf(tmpl, method)))
}

// EVMBackend is the subset of ethclient.Client the client uses.
type EVMBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVMClient handles interactions with EVM-compatible blockchains
type EVMClient struct {
	client     EVMBackend
	privateKey *ecdsa.PrivateKey
	address    common.Address
	logger     *zap.Logger
}

// NewEVMClient creates a new client for EVM-compatible blockchains. An empty
// private key gives a read-only client.
func NewEVMClient(logger *zap.Logger, rpcURL, privateKeyHex string) (*EVMClient, error) {
	logger.Info("Connecting to EVM chain", zap.String("rpcURL", rpcURL))
	ethClient, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM node: %w", err)
	}
	return NewEVMClientWithBackend(logger, ethClient, privateKeyHex)
}

func NewEVMClientWithBackend(logger *zap.Logger, backend EVMBackend, privateKeyHex string) (*EVMClient, error) {
	client := &EVMClient{
		client: backend,
		logger: logger.With(zap.String("component", "EVMClient")),
	}
	if privateKeyHex == "" {
		return client, nil
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	client.privateKey = privateKey
	client.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	return client, nil
}

// GetAddress returns the public address for this client
func (c *EVMClient) GetAddress() common.Address {
	return c.address
}

func (c *EVMClient) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ABI pack error: %w", err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("ABI unpack error: %w", err)
	}
	return values, nil
}

// GuardianSets returns a guardianset.Source reading the core contract at
// core.
func (c *EVMClient) GuardianSets(core common.Address) *EVMGuardianSets {
	return &EVMGuardianSets{client: c, core: core}
}

// EVMGuardianSets reads guardian sets from an EVM core contract.
type EVMGuardianSets struct {
	client *EVMClient
	core   common.Address
}

var _ guardianset.Source = (*EVMGuardianSets)(nil)

type evmGuardianSet struct {
	Keys           []common.Address
	ExpirationTime uint32
}

func (s *EVMGuardianSets) CurrentGuardianSetIndex(ctx context.Context) (uint32, error) {
	values, err := s.client.call(ctx, s.core, CoreABI, "getCurrentGuardianSetIndex")
	if err != nil {
		return 0, err
	}
	index, ok := values[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected guardian set index type %T", values[0])
	}
	return index, nil
}

func (s *EVMGuardianSets) GuardianSet(ctx context.Context, index uint32) (*guardianset.GuardianSet, error) {
	values, err := s.client.call(ctx, s.core, CoreABI, "getGuardianSet", index)
	if err != nil {
		return nil, err
	}
	out := *abi.ConvertType(values[0], new(evmGuardianSet)).(*evmGuardianSet)
	if len(out.Keys) == 0 {
		return nil, fmt.Errorf("%w: %d", guardianset.ErrInvalidGuardianSetIndex, index)
	}

	gs := &guardianset.GuardianSet{Index: index, Keys: out.Keys}
	if out.ExpirationTime != 0 {
		gs.ExpirationTime = time.Unix(int64(out.ExpirationTime), 0)
	}
	s.client.logger.Debug("Read guardian set from core contract",
		zap.String("coreContract", s.core.Hex()),
		zap.Uint32("guardianSetIndex", index),
		zap.Int("guardians", len(gs.Keys)))
	return gs, nil
}

// RelayVAA sends vaaBytes to method(bytes) of targetContract and returns the
// transaction hash.
func (c *EVMClient) RelayVAA(ctx context.Context, targetContract common.Address, method string, vaaBytes []byte) (string, error) {
	if c.privateKey == nil {
		return "", ErrNoSigner
	}
	c.logger.Debug("Sending VAA transaction to EVM",
		zap.String("method", method),
		zap.Int("vaaLength", len(vaaBytes)))

	parsedABI, err := ReceiverABI(method)
	if err != nil {
		return "", fmt.Errorf("ABI parse error: %w", err)
	}
	data, err := parsedABI.Pack(method, vaaBytes)
	if err != nil {
		return "", fmt.Errorf("ABI pack error: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	chainID, err := c.client.NetworkID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain ID: %w", err)
	}
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get latest block header: %w", err)
	}
	if header.BaseFee == nil {
		return "", errors.New("chain does not support EIP-1559 transactions")
	}

	// 2x base fee plus a 0.1 gwei tip
	baseFee := header.BaseFee
	maxPriorityFeePerGas := big.NewInt(100000000)
	maxFeePerGas := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFeePerGas.Add(maxFeePerGas, maxPriorityFeePerGas)

	c.logger.Debug("Gas fees calculated",
		zap.String("baseFee", baseFee.String()),
		zap.String("maxFeePerGas", maxFeePerGas.String()),
		zap.String("maxPriorityFeePerGas", maxPriorityFeePerGas.String()))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: maxPriorityFeePerGas,
		GasFeeCap: maxFeePerGas,
		Gas:       3000000,
		To:        &targetContract,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.NewLondonSigner(chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}
