package governance

import (
	"fmt"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// Authority is the emitter allowed to issue governance VAAs.
type Authority struct {
	Chain   vaa.ChainID
	Emitter vaa.Address
}

// DefaultAuthority is the mainnet governance emitter: Solana, address 0x04.
var DefaultAuthority = Authority{Chain: vaa.ChainIDSolana, Emitter: vaa.Address{31: 0x04}}

// Is reports whether body was emitted by the authority.
func (a Authority) Is(body *vaa.Body) bool {
	return body.EmitterChain == a.Chain && body.EmitterAddress == a.Emitter
}

// Check fails with ErrInvalidGovernanceKey unless body was emitted by the
// authority.
func (a Authority) Check(body *vaa.Body) error {
	if !a.Is(body) {
		return fmt.Errorf("%w: %d/%s", ErrInvalidGovernanceKey, body.EmitterChain, body.EmitterAddress)
	}
	return nil
}

func (a Authority) String() string {
	return fmt.Sprintf("%d/%s", a.Chain, a.Emitter)
}
