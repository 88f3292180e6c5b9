// Package verifier checks that a VAA carries a quorum of valid guardian
// signatures from a guardian set that is still valid.
package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

var (
	ErrUnsortedOrDuplicateSignature = errors.New("signatures unsorted or duplicated")
	ErrInvalidSignature             = errors.New("invalid signature")
	ErrInvalidSignatureKey          = errors.New("signature does not match guardian key")
	ErrQuorumNotMet                 = errors.New("quorum not met")
)

// GuardianSets resolves a guardian set by index. guardianset.Registry
// satisfies it.
type GuardianSets interface {
	Get(index uint32) (*guardianset.GuardianSet, error)
}

// Verified is the result of a successful verification.
type Verified struct {
	vaa.Body
	GuardianSetIndex uint32
	Digest           common.Hash
	// Signers are the guardian addresses that signed, in signature order.
	Signers []common.Address
}

// Verifier verifies guardian signatures. The zero value recovers signatures
// sequentially.
type Verifier struct {
	parallel int
}

// New returns a verifier that recovers up to parallel signatures at once.
// Values below 2 disable parallel recovery.
func New(parallel int) *Verifier {
	return &Verifier{parallel: parallel}
}

type recovered struct {
	addr common.Address
	err  error
}

// Verify checks v against the guardian set it names, as of now.
//
// Signatures are evaluated strictly in array order: each position must be
// greater than the previous one, recover to a public key, and match the
// guardian at that position. The first failure is returned. Sequential
// verification stops recovering at that failure; parallel recovery does all
// the work up front but never changes which error is reported.
func (ver *Verifier) Verify(v *vaa.VAA, sets GuardianSets, now time.Time) (*Verified, error) {
	if v.Version != vaa.SupportedVAAVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", vaa.ErrMalformed, v.Version)
	}

	gs, err := sets.Get(v.GuardianSetIndex)
	if err != nil {
		return nil, err
	}
	if gs.Expired(now) {
		return nil, fmt.Errorf("%w: set %d expired at %s", guardianset.ErrGuardianSetExpired,
			gs.Index, gs.ExpirationTime.UTC().Format(time.RFC3339))
	}

	digest := v.SigningDigest()
	keys := ver.recoverParallel(digest, v.Signatures)

	signers := make([]common.Address, 0, len(v.Signatures))
	last := -1
	for i, sig := range v.Signatures {
		position := int(sig.Index)
		if position <= last {
			return nil, fmt.Errorf("%w: signature %d has position %d after %d", ErrUnsortedOrDuplicateSignature, i, position, last)
		}
		last = position

		var key recovered
		if keys != nil {
			key = keys[i]
		} else {
			key.addr, key.err = recoverSignature(digest, sig)
		}
		if key.err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", ErrInvalidSignature, i, key.err)
		}
		if position >= len(gs.Keys) {
			return nil, fmt.Errorf("%w: position %d outside guardian set of %d", ErrInvalidSignature, position, len(gs.Keys))
		}
		if key.addr != gs.Keys[position] {
			return nil, fmt.Errorf("%w: position %d recovered %s, want %s", ErrInvalidSignatureKey, position, key.addr, gs.Keys[position])
		}
		signers = append(signers, key.addr)
	}

	if quorum := gs.Quorum(); len(signers) < quorum {
		return nil, fmt.Errorf("%w: %d of %d signatures, need %d", ErrQuorumNotMet, len(signers), len(gs.Keys), quorum)
	}

	return &Verified{
		Body:             v.Body,
		GuardianSetIndex: gs.Index,
		Digest:           digest,
		Signers:          signers,
	}, nil
}

// recoverParallel recovers every signature up front when parallel recovery
// is enabled. It returns nil otherwise, and Verify recovers each signature
// only once the ones before it have passed.
func (ver *Verifier) recoverParallel(digest common.Hash, sigs []vaa.Signature) []recovered {
	if ver == nil || ver.parallel < 2 || len(sigs) < 2 {
		return nil
	}

	out := make([]recovered, len(sigs))
	var g errgroup.Group
	g.SetLimit(ver.parallel)
	for i := range sigs {
		g.Go(func() error {
			out[i].addr, out[i].err = recoverSignature(digest, sigs[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

var recoverSignature = Recover

// Recover returns the guardian address that produced sig over digest.
func Recover(digest common.Hash, sig vaa.Signature) (common.Address, error) {
	pub, err := crypto.Ecrecover(digest.Bytes(), sig.Signature[:])
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(crypto.Keccak256(pub[1:])[12:]), nil
}
