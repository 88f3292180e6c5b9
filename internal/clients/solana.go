package clients

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/derive"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
)

// Default Wormhole devnet program ID
var DefaultWormholeProgramID = solana.MustPublicKeyFromBase58("3u8hJUVTA4jH1wYAyUur7FFZVQ8H635K3tSHHF4ssjQ5")

// Core bridge PDA seeds
var (
	SeedBridge      = []byte("Bridge")
	SeedGuardianSet = []byte("GuardianSet")
)

// SolanaRPC is the subset of rpc.Client the client uses.
type SolanaRPC interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// SolanaBridge is the core bridge configuration account.
type SolanaBridge struct {
	GuardianSetIndex          uint32
	LastLamports              uint64
	GuardianSetExpirationTime uint32
	Fee                       uint64
}

type solanaGuardianSet struct {
	Index          uint32
	Keys           [][20]byte
	CreationTime   uint32
	ExpirationTime uint32
}

// SolanaClient reads state of the Wormhole core bridge program.
type SolanaClient struct {
	client            SolanaRPC
	wormholeProgramID solana.PublicKey
	pda               derive.SolanaPDA
	logger            *zap.Logger
}

var _ guardianset.Source = (*SolanaClient)(nil)

// NewSolanaClient creates a new Solana client
// If wormholeProgramID is empty, uses DefaultWormholeProgramID (devnet)
func NewSolanaClient(logger *zap.Logger, rpcURL string, wormholeProgramID string) (*SolanaClient, error) {
	logger.Info("Connecting to Solana", zap.String("rpcURL", rpcURL))
	return NewSolanaClientWithRPC(logger, rpc.New(rpcURL), wormholeProgramID)
}

func NewSolanaClientWithRPC(logger *zap.Logger, client SolanaRPC, wormholeProgramID string) (*SolanaClient, error) {
	programID := DefaultWormholeProgramID
	if wormholeProgramID != "" {
		var err error
		programID, err = solana.PublicKeyFromBase58(wormholeProgramID)
		if err != nil {
			return nil, fmt.Errorf("invalid wormhole program ID: %w", err)
		}
	}

	c := &SolanaClient{
		client:            client,
		wormholeProgramID: programID,
		pda:               derive.SolanaPDA{ProgramID: programID},
		logger:            logger.With(zap.String("component", "SolanaClient")),
	}
	c.logger.Info("Solana client initialized", zap.String("wormholeProgramID", programID.String()))
	return c, nil
}

// BridgeAddress derives the core bridge configuration account.
func (c *SolanaClient) BridgeAddress() (solana.PublicKey, error) {
	id, err := c.pda.Derive(SeedBridge)
	return solana.PublicKey(id), err
}

// GuardianSetAddress derives the account holding guardian set index.
func (c *SolanaClient) GuardianSetAddress(index uint32) (solana.PublicKey, error) {
	id, err := c.pda.Derive(SeedGuardianSet, binary.BigEndian.AppendUint32(nil, index))
	return solana.PublicKey(id), err
}

func (c *SolanaClient) account(ctx context.Context, address solana.PublicKey, v interface{}) error {
	res, err := c.client.GetAccountInfo(ctx, address)
	if err != nil {
		return fmt.Errorf("get account %s: %w", address, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return fmt.Errorf("account %s: %w", address, rpc.ErrNotFound)
	}
	if res.Value.Owner != c.wormholeProgramID {
		return fmt.Errorf("account %s is owned by %s, not the core bridge", address, res.Value.Owner)
	}
	if err := bin.NewBorshDecoder(res.Value.Data.GetBinary()).Decode(v); err != nil {
		return fmt.Errorf("decode account %s: %w", address, err)
	}
	return nil
}

// Bridge reads the core bridge configuration account.
func (c *SolanaClient) Bridge(ctx context.Context) (*SolanaBridge, error) {
	address, err := c.BridgeAddress()
	if err != nil {
		return nil, err
	}
	var out SolanaBridge
	if err := c.account(ctx, address, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SolanaClient) CurrentGuardianSetIndex(ctx context.Context) (uint32, error) {
	b, err := c.Bridge(ctx)
	if err != nil {
		return 0, err
	}
	return b.GuardianSetIndex, nil
}

func (c *SolanaClient) GuardianSet(ctx context.Context, index uint32) (*guardianset.GuardianSet, error) {
	address, err := c.GuardianSetAddress(index)
	if err != nil {
		return nil, err
	}
	var data solanaGuardianSet
	if err := c.account(ctx, address, &data); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", guardianset.ErrInvalidGuardianSetIndex, index)
		}
		return nil, err
	}
	if data.Index != index {
		return nil, fmt.Errorf("guardian set account %s holds index %d, expected %d", address, data.Index, index)
	}

	gs := &guardianset.GuardianSet{Index: index, Keys: make([]common.Address, len(data.Keys))}
	for i, k := range data.Keys {
		gs.Keys[i] = common.Address(k)
	}
	if data.ExpirationTime != 0 {
		gs.ExpirationTime = time.Unix(int64(data.ExpirationTime), 0)
	}
	c.logger.Debug("Read guardian set account",
		zap.String("account", address.String()),
		zap.Uint32("guardianSetIndex", index),
		zap.Int("guardians", len(gs.Keys)))
	return gs, nil
}
