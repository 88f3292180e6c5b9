// Package testutil holds deterministic guardian keys and VAA builders shared
// by the package tests.
package testutil

import (
	"crypto/ecdsa"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// GuardianKeys returns n deterministic secp256k1 keys. The same seed always
// yields the same keys so failures are reproducible.
func GuardianKeys(t testing.TB, seed string, n int) []*ecdsa.PrivateKey {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := crypto.ToECDSA(crypto.Keccak256([]byte(fmt.Sprintf("%s/guardian/%d", seed, i))))
		require.NoError(t, err)
		keys[i] = key
	}
	return keys
}

// Addresses returns the guardian addresses of the keys, in order.
func Addresses(keys []*ecdsa.PrivateKey) []common.Address {
	addrs := make([]common.Address, len(keys))
	for i, key := range keys {
		addrs[i] = crypto.PubkeyToAddress(key.PublicKey)
	}
	return addrs
}

// Body returns a well-formed body with the given emitter and sequence.
func Body(chain vaa.ChainID, emitter vaa.Address, sequence uint64, payload []byte) vaa.Body {
	return vaa.Body{
		Timestamp:        time.Unix(1_700_000_000, 0),
		Nonce:            42,
		EmitterChain:     chain,
		EmitterAddress:   emitter,
		Sequence:         sequence,
		ConsistencyLevel: 1,
		Payload:          payload,
	}
}

// Sign builds a VAA over body signed by keys[p] for every p in positions, in
// the order given. Positions may repeat or be out of order so tests can
// build invalid signature lists.
func Sign(t testing.TB, body vaa.Body, guardianSetIndex uint32, keys []*ecdsa.PrivateKey, positions ...int) *vaa.VAA {
	t.Helper()
	digest := body.SigningDigest()

	v := &vaa.VAA{
		Version:          vaa.SupportedVAAVersion,
		GuardianSetIndex: guardianSetIndex,
		Signatures:       make([]vaa.Signature, 0, len(positions)),
		Body:             body,
	}
	for _, p := range positions {
		sig, err := crypto.Sign(digest.Bytes(), keys[p])
		require.NoError(t, err)

		entry := vaa.Signature{Index: uint8(p)}
		copy(entry.Signature[:], sig)
		v.Signatures = append(v.Signatures, entry)
	}
	return v
}

// SignFirst signs body with the first n keys, in position order.
func SignFirst(t testing.TB, body vaa.Body, guardianSetIndex uint32, keys []*ecdsa.PrivateKey, n int) *vaa.VAA {
	t.Helper()
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i
	}
	return Sign(t, body, guardianSetIndex, keys, positions...)
}

// Marshal encodes v and fails the test on error.
func Marshal(t testing.TB, v *vaa.VAA) []byte {
	t.Helper()
	raw, err := v.Marshal()
	require.NoError(t, err)
	return raw
}
