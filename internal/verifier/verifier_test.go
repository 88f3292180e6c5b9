package verifier_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/testutil"
	"github.com/wormhole-demo/corebridge/internal/vaa"
	"github.com/wormhole-demo/corebridge/internal/verifier"
)

type sets map[uint32]*guardianset.GuardianSet

func (s sets) Get(index uint32) (*guardianset.GuardianSet, error) {
	gs, ok := s[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", guardianset.ErrInvalidGuardianSetIndex, index)
	}
	return gs, nil
}

var (
	now     = time.Unix(1_700_000_100, 0)
	emitter = vaa.Address{31: 0x42}
)

func singleSet(t *testing.T, n int) (sets, []common.Address) {
	keys := testutil.Addresses(testutil.GuardianKeys(t, "verifier", n))
	return sets{0: {Index: 0, Keys: keys}}, keys
}

func TestVerifyQuorumBoundary(t *testing.T) {
	keys := testutil.GuardianKeys(t, "verifier", 7)
	registry, addrs := singleSet(t, 7)
	body := testutil.Body(vaa.ChainIDEthereum, emitter, 10, []byte("transfer"))

	t.Run("four of seven", func(t *testing.T) {
		_, err := verifier.New(0).Verify(testutil.SignFirst(t, body, 0, keys, 4), registry, now)
		assert.ErrorIs(t, err, verifier.ErrQuorumNotMet)
	})

	t.Run("five of seven", func(t *testing.T) {
		verified, err := verifier.New(0).Verify(testutil.SignFirst(t, body, 0, keys, 5), registry, now)
		require.NoError(t, err)
		assert.Equal(t, body, verified.Body)
		assert.Equal(t, uint32(0), verified.GuardianSetIndex)
		assert.Equal(t, body.SigningDigest(), verified.Digest)
		assert.Equal(t, addrs[:5], verified.Signers)
	})

	t.Run("sparse positions", func(t *testing.T) {
		verified, err := verifier.New(0).Verify(testutil.Sign(t, body, 0, keys, 0, 2, 3, 5, 6), registry, now)
		require.NoError(t, err)
		assert.Len(t, verified.Signers, 5)
	})
}

func TestVerifyOrdering(t *testing.T) {
	keys := testutil.GuardianKeys(t, "verifier", 4)
	registry, _ := singleSet(t, 4)
	body := testutil.Body(vaa.ChainIDEthereum, emitter, 11, nil)

	tests := []struct {
		name      string
		positions []int
	}{
		{"decreasing", []int{3, 1, 2}},
		{"duplicate", []int{0, 1, 1, 2}},
		{"swapped tail", []int{0, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.New(0).Verify(testutil.Sign(t, body, 0, keys, tt.positions...), registry, now)
			assert.ErrorIs(t, err, verifier.ErrUnsortedOrDuplicateSignature)
		})
	}
}

func TestVerifyBadSignatures(t *testing.T) {
	keys := testutil.GuardianKeys(t, "verifier", 4)
	registry, _ := singleSet(t, 4)
	body := testutil.Body(vaa.ChainIDEthereum, emitter, 12, nil)

	t.Run("signed by the wrong guardian", func(t *testing.T) {
		v := testutil.SignFirst(t, body, 0, keys, 3)
		v.Signatures[1].Signature = testutil.Sign(t, body, 0, keys, 3).Signatures[0].Signature

		_, err := verifier.New(0).Verify(v, registry, now)
		assert.ErrorIs(t, err, verifier.ErrInvalidSignatureKey)
	})

	t.Run("unrecoverable signature", func(t *testing.T) {
		v := testutil.SignFirst(t, body, 0, keys, 3)
		for i := 0; i < 64; i++ {
			v.Signatures[0].Signature[i] = 0
		}

		_, err := verifier.New(0).Verify(v, registry, now)
		assert.ErrorIs(t, err, verifier.ErrInvalidSignature)
	})

	t.Run("position outside the set", func(t *testing.T) {
		more := testutil.GuardianKeys(t, "verifier", 6)
		v := testutil.Sign(t, body, 0, more, 0, 1, 2, 5)

		_, err := verifier.New(0).Verify(v, registry, now)
		assert.ErrorIs(t, err, verifier.ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		v := testutil.SignFirst(t, body, 0, keys, 3)
		v.Sequence++

		_, err := verifier.New(0).Verify(v, registry, now)
		assert.ErrorIs(t, err, verifier.ErrInvalidSignatureKey)
	})

	t.Run("unsupported version", func(t *testing.T) {
		v := testutil.SignFirst(t, body, 0, keys, 3)
		v.Version = 2

		_, err := verifier.New(0).Verify(v, registry, now)
		assert.ErrorIs(t, err, vaa.ErrMalformed)
	})
}

func TestVerifyGuardianSetLookup(t *testing.T) {
	keys := testutil.GuardianKeys(t, "verifier", 3)
	addrs := testutil.Addresses(keys)
	expiry := now.Add(time.Hour)
	registry := sets{
		4: {Index: 4, Keys: addrs, ExpirationTime: expiry},
		5: {Index: 5, Keys: addrs},
	}
	body := testutil.Body(vaa.ChainIDSolana, emitter, 13, nil)

	t.Run("unknown index", func(t *testing.T) {
		_, err := verifier.New(0).Verify(testutil.SignFirst(t, body, 9, keys, 3), registry, now)
		assert.ErrorIs(t, err, guardianset.ErrInvalidGuardianSetIndex)
	})

	t.Run("superseded set inside grace window", func(t *testing.T) {
		_, err := verifier.New(0).Verify(testutil.SignFirst(t, body, 4, keys, 3), registry, expiry.Add(-time.Second))
		assert.NoError(t, err)
	})

	t.Run("superseded set after expiry", func(t *testing.T) {
		_, err := verifier.New(0).Verify(testutil.SignFirst(t, body, 4, keys, 3), registry, expiry.Add(time.Second))
		assert.ErrorIs(t, err, guardianset.ErrGuardianSetExpired)
	})

	t.Run("active set never expires", func(t *testing.T) {
		_, err := verifier.New(0).Verify(testutil.SignFirst(t, body, 5, keys, 3), registry, expiry.Add(365*24*time.Hour))
		assert.NoError(t, err)
	})
}

func TestVerifyParallelMatchesSequential(t *testing.T) {
	keys := testutil.GuardianKeys(t, "verifier", 19)
	registry, _ := singleSet(t, 19)
	body := testutil.Body(vaa.ChainIDEthereum, emitter, 14, []byte("parallel"))

	good := testutil.SignFirst(t, body, 0, keys, 13)
	unsorted := testutil.Sign(t, body, 0, keys, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 12, 11)
	short := testutil.SignFirst(t, body, 0, keys, 12)

	for _, v := range []*vaa.VAA{good, unsorted, short} {
		_, seqErr := verifier.New(0).Verify(v, registry, now)
		_, parErr := verifier.New(4).Verify(v, registry, now)
		if seqErr == nil {
			assert.NoError(t, parErr)
			continue
		}
		assert.Equal(t, seqErr.Error(), parErr.Error())
	}

	_, err := verifier.New(8).Verify(good, registry, now)
	assert.NoError(t, err)
}

func TestRecover(t *testing.T) {
	keys := testutil.GuardianKeys(t, "recover", 1)
	body := testutil.Body(vaa.ChainIDEthereum, emitter, 1, nil)
	v := testutil.SignFirst(t, body, 0, keys, 1)

	addr, err := verifier.Recover(body.SigningDigest(), v.Signatures[0])
	require.NoError(t, err)
	assert.Equal(t, testutil.Addresses(keys)[0], addr)
}
