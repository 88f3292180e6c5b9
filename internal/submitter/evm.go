package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultEVMTimeout bounds one forwarding transaction.
const DefaultEVMTimeout = 60 * time.Second

// EVMRelayer sends a VAA to a contract method taking the encoded VAA.
// *clients.EVMClient implements it.
type EVMRelayer interface {
	GetAddress() common.Address
	RelayVAA(ctx context.Context, targetContract common.Address, method string, vaaBytes []byte) (string, error)
}

// EVMSubmitter forwards accepted VAAs to a contract on an EVM chain
type EVMSubmitter struct {
	target  common.Address
	method  string
	relayer EVMRelayer
	timeout time.Duration
	logger  *zap.Logger
}

// NewEVMSubmitter creates a submitter calling method(bytes) on targetContract.
func NewEVMSubmitter(logger *zap.Logger, targetContract, method string, relayer EVMRelayer) *EVMSubmitter {
	return &EVMSubmitter{
		target:  common.HexToAddress(targetContract),
		method:  method,
		relayer: relayer,
		timeout: DefaultEVMTimeout,
		logger:  logger.With(zap.String("component", "EVMSubmitter")),
	}
}

// SubmitVAA sends the VAA and returns the transaction hash.
func (s *EVMSubmitter) SubmitVAA(ctx context.Context, vaaBytes []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Debug("Forwarding VAA",
		zap.Int("vaaLength", len(vaaBytes)),
		zap.String("target", s.target.Hex()),
		zap.String("method", s.method),
		zap.String("from", s.relayer.GetAddress().Hex()))

	txHash, err := s.relayer.RelayVAA(ctx, s.target, s.method, vaaBytes)
	if err != nil {
		return "", fmt.Errorf("forward VAA to %s: %w", s.target.Hex(), err)
	}

	s.logger.Info("VAA forwarded",
		zap.String("txHash", txHash),
		zap.String("target", s.target.Hex()))
	return txHash, nil
}
