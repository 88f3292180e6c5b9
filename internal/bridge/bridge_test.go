package bridge_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/bridge"
	"github.com/wormhole-demo/corebridge/internal/derive"
	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/storage"
	"github.com/wormhole-demo/corebridge/internal/testutil"
	"github.com/wormhole-demo/corebridge/internal/validate"
	"github.com/wormhole-demo/corebridge/internal/vaa"
	"github.com/wormhole-demo/corebridge/internal/verifier"
)

var (
	now      = time.Unix(1_700_000_000, 0)
	emitter  = vaa.Address{12: 0xee, 31: 0x01}
	ownChain = vaa.ChainIDNear
)

type fixture struct {
	t      *testing.T
	bridge *bridge.Bridge
	keys   []*ecdsa.PrivateKey
	govSeq uint64
}

func newFixture(t *testing.T, cfg bridge.Config, opts ...bridge.Option) *fixture {
	t.Helper()
	if cfg.ChainID == 0 {
		cfg.ChainID = ownChain
	}
	b, err := bridge.New(zap.NewNop(), cfg, storage.NewMemoryStore(), opts...)
	require.NoError(t, err)

	keys := testutil.GuardianKeys(t, "bridge/0", 4)
	_, err = b.Bootstrap(context.Background(), 0, testutil.Addresses(keys))
	require.NoError(t, err)

	return &fixture{t: t, bridge: b, keys: keys}
}

func (f *fixture) message(seq uint64, payload []byte) []byte {
	body := testutil.Body(vaa.ChainIDEthereum, emitter, seq, payload)
	return testutil.Marshal(f.t, testutil.SignFirst(f.t, body, 0, f.keys, 3))
}

// governanceVAA signs a governance action with keys under set gsi.
func (f *fixture) governanceVAA(gsi uint32, keys []*ecdsa.PrivateKey, module string, chain vaa.ChainID, action governance.Action) []byte {
	f.t.Helper()
	msg, err := governance.NewMessage(module, chain, action)
	require.NoError(f.t, err)
	payload, err := msg.Marshal()
	require.NoError(f.t, err)

	f.govSeq++
	body := testutil.Body(governance.DefaultAuthority.Chain, governance.DefaultAuthority.Emitter, f.govSeq, payload)
	return testutil.Marshal(f.t, testutil.SignFirst(f.t, body, gsi, keys, guardianset.Quorum(len(keys))))
}

func (f *fixture) core(action governance.Action) []byte {
	return f.governanceVAA(0, f.keys, governance.ModuleCore, vaa.ChainIDUnset, action)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := bridge.New(zap.NewNop(), bridge.Config{}, storage.NewMemoryStore())
	assert.Error(t, err)

	_, err = bridge.New(zap.NewNop(), bridge.Config{ChainID: ownChain, ParallelRecovery: -1}, storage.NewMemoryStore())
	assert.Error(t, err)

	b, err := bridge.New(zap.NewNop(), bridge.Config{ChainID: ownChain}, storage.NewMemoryStore())
	require.NoError(t, err)
	assert.Equal(t, governance.DefaultAuthority, b.Config().Governance)
	assert.Equal(t, guardianset.DefaultExpiry, b.Config().GuardianSetExpiry)
}

func TestBootstrapOnce(t *testing.T) {
	f := newFixture(t, bridge.Config{})
	_, err := f.bridge.Bootstrap(context.Background(), 1, testutil.Addresses(f.keys))
	assert.ErrorIs(t, err, guardianset.ErrAlreadyBootstrapped)
}

func TestSubmitHandsPayloadToHandler(t *testing.T) {
	var got []*verifier.Verified
	handler := bridge.PayloadHandlerFunc(func(_ context.Context, _ storage.Tx, msg *verifier.Verified) error {
		got = append(got, msg)
		return nil
	})
	f := newFixture(t, bridge.Config{}, bridge.WithPayloadHandler(handler))
	ctx := context.Background()

	result, err := f.bridge.Submit(ctx, f.message(1, []byte("transfer")), now)
	require.NoError(t, err)
	assert.Nil(t, result.Governance)
	assert.Equal(t, uint64(1), result.Sequence)

	require.Len(t, got, 1)
	assert.Equal(t, []byte("transfer"), got[0].Payload)
	assert.Equal(t, vaa.ChainIDEthereum, got[0].EmitterChain)
	assert.Equal(t, emitter, got[0].EmitterAddress)
	assert.Equal(t, uint32(0), got[0].GuardianSetIndex)

	claimed, err := f.bridge.Claimed(ctx, replay.Key{EmitterChain: vaa.ChainIDEthereum, EmitterAddress: emitter, Sequence: 1})
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestSubmitReplay(t *testing.T) {
	f := newFixture(t, bridge.Config{})
	ctx := context.Background()

	_, err := f.bridge.Submit(ctx, f.message(7, []byte("first")), now)
	require.NoError(t, err)

	_, err = f.bridge.Submit(ctx, f.message(7, []byte("first")), now)
	assert.ErrorIs(t, err, replay.ErrAlreadyClaimed)

	_, err = f.bridge.Submit(ctx, f.message(7, []byte("same key, other payload")), now)
	assert.ErrorIs(t, err, replay.ErrAlreadyClaimed)

	_, err = f.bridge.Submit(ctx, f.message(8, []byte("first")), now)
	assert.NoError(t, err)
}

func TestSubmitRollsBackClaimWhenHandlerFails(t *testing.T) {
	fail := true
	handler := bridge.PayloadHandlerFunc(func(context.Context, storage.Tx, *verifier.Verified) error {
		if fail {
			return errors.New("consumer unavailable")
		}
		return nil
	})
	f := newFixture(t, bridge.Config{}, bridge.WithPayloadHandler(handler))
	raw := f.message(3, nil)

	_, err := f.bridge.Submit(context.Background(), raw, now)
	require.Error(t, err)

	fail = false
	_, err = f.bridge.Submit(context.Background(), raw, now)
	assert.NoError(t, err)
}

func TestSubmitRejectsUnverified(t *testing.T) {
	f := newFixture(t, bridge.Config{})
	body := testutil.Body(vaa.ChainIDEthereum, emitter, 1, nil)

	under := testutil.Marshal(t, testutil.SignFirst(t, body, 0, f.keys, 2))
	_, err := f.bridge.Submit(context.Background(), under, now)
	assert.ErrorIs(t, err, verifier.ErrQuorumNotMet)

	unsorted := testutil.Marshal(t, testutil.Sign(t, body, 0, f.keys, 2, 0, 1))
	_, err = f.bridge.Submit(context.Background(), unsorted, now)
	assert.ErrorIs(t, err, verifier.ErrUnsortedOrDuplicateSignature)

	_, err = f.bridge.Submit(context.Background(), []byte{1, 0}, now)
	assert.ErrorIs(t, err, vaa.ErrMalformed)

	// failed attempts must not consume the message
	_, err = f.bridge.Submit(context.Background(), f.message(1, nil), now)
	assert.NoError(t, err)
}

func TestConcurrentSubmitOfOneMessage(t *testing.T) {
	f := newFixture(t, bridge.Config{ParallelRecovery: 4})
	raw := f.message(11, []byte("race"))

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.bridge.Submit(context.Background(), raw, now); err == nil {
				accepted.Add(1)
			} else if !errors.Is(err, replay.ErrAlreadyClaimed) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}

func TestParseAndVerifyDoesNotClaim(t *testing.T) {
	f := newFixture(t, bridge.Config{})
	raw := f.message(2, nil)

	for i := 0; i < 2; i++ {
		verified, err := f.bridge.ParseAndVerify(context.Background(), raw, now)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), verified.Sequence)
	}
	_, err := f.bridge.Submit(context.Background(), raw, now)
	assert.NoError(t, err)
}

func TestGuardianSetRotation(t *testing.T) {
	f := newFixture(t, bridge.Config{GuardianSetExpiry: time.Hour})
	ctx := context.Background()
	next := testutil.GuardianKeys(t, "bridge/1", 7)

	t.Run("skipping an index fails and commits nothing", func(t *testing.T) {
		raw := f.core(governance.GuardianSetChange{NewIndex: 2, Keys: testutil.Addresses(next)})
		_, err := f.bridge.Submit(ctx, raw, now)
		assert.ErrorIs(t, err, guardianset.ErrInvalidGovernanceSetIndex)

		_, err = f.bridge.Submit(ctx, raw, now)
		assert.ErrorIs(t, err, guardianset.ErrInvalidGovernanceSetIndex, "claim was rolled back")
	})

	t.Run("empty set fails", func(t *testing.T) {
		_, err := f.bridge.Submit(ctx, f.core(governance.GuardianSetChange{NewIndex: 1}), now)
		assert.ErrorIs(t, err, guardianset.ErrEmptyGuardianSet)
	})

	t.Run("next index rotates", func(t *testing.T) {
		result, err := f.bridge.Submit(ctx, f.core(governance.GuardianSetChange{NewIndex: 1, Keys: testutil.Addresses(next)}), now)
		require.NoError(t, err)
		require.NotNil(t, result.Governance)
		assert.Equal(t, governance.ActionGuardianSetChange, result.Governance.Type)

		current, err := f.bridge.CurrentGuardianSet(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), current.Index)
		assert.True(t, current.Active())

		old, err := f.bridge.GuardianSet(ctx, 0)
		require.NoError(t, err)
		assert.False(t, old.Active())
		assert.Equal(t, now.Add(time.Hour).Unix(), old.ExpirationTime.Unix())
	})

	expiry := now.Add(time.Hour)

	t.Run("old set verifies inside the grace window", func(t *testing.T) {
		_, err := f.bridge.Submit(ctx, f.message(100, nil), expiry.Add(-time.Second))
		assert.NoError(t, err)
	})

	t.Run("old set fails after expiry", func(t *testing.T) {
		_, err := f.bridge.Submit(ctx, f.message(101, nil), expiry.Add(time.Second))
		assert.ErrorIs(t, err, guardianset.ErrGuardianSetExpired)
	})

	t.Run("new set verifies", func(t *testing.T) {
		body := testutil.Body(vaa.ChainIDEthereum, emitter, 102, nil)
		raw := testutil.Marshal(t, testutil.SignFirst(t, body, 1, next, 5))
		_, err := f.bridge.Submit(ctx, raw, expiry.Add(time.Second))
		assert.NoError(t, err)
	})

	t.Run("governance needs the current set", func(t *testing.T) {
		raw := f.core(governance.SetMessageFee{Fee: uint256.NewInt(1)})
		_, err := f.bridge.Submit(ctx, raw, now)
		assert.ErrorIs(t, err, bridge.ErrInvalidGovernanceSet)

		raw = f.governanceVAA(1, next, governance.ModuleCore, vaa.ChainIDUnset, governance.SetMessageFee{Fee: uint256.NewInt(1)})
		_, err = f.bridge.Submit(ctx, raw, now)
		assert.NoError(t, err)
	})
}

func TestGovernanceChecks(t *testing.T) {
	f := newFixture(t, bridge.Config{})
	ctx := context.Background()

	t.Run("wrong emitter", func(t *testing.T) {
		msg, err := governance.NewMessage(governance.ModuleCore, vaa.ChainIDUnset, governance.SetMessageFee{Fee: uint256.NewInt(9)})
		require.NoError(t, err)
		payload, err := msg.Marshal()
		require.NoError(t, err)

		body := testutil.Body(vaa.ChainIDSolana, vaa.Address{31: 0x05}, 1, payload)
		raw := testutil.Marshal(t, testutil.SignFirst(t, body, 0, f.keys, 3))

		_, err = f.bridge.ParseAndVerify(ctx, raw, now)
		require.NoError(t, err, "quorum on the envelope is fine")

		_, err = f.bridge.ExecuteGovernance(ctx, raw, now)
		assert.ErrorIs(t, err, governance.ErrInvalidGovernanceKey)

		_, err = f.bridge.Submit(ctx, raw, now)
		assert.ErrorIs(t, err, governance.ErrInvalidGovernanceKey)

		claimed, err := f.bridge.Claimed(ctx, replay.Key{EmitterChain: vaa.ChainIDSolana, EmitterAddress: vaa.Address{31: 0x05}, Sequence: 1})
		require.NoError(t, err)
		assert.False(t, claimed)

		st, err := f.bridge.State(ctx)
		require.NoError(t, err)
		assert.True(t, st.MessageFee.IsZero())
	})

	t.Run("other chain", func(t *testing.T) {
		raw := f.governanceVAA(0, f.keys, governance.ModuleCore, vaa.ChainIDEthereum, governance.SetMessageFee{Fee: uint256.NewInt(9)})
		_, err := f.bridge.Submit(ctx, raw, now)
		assert.ErrorIs(t, err, governance.ErrInvalidGovernanceChain)
	})

	t.Run("own chain", func(t *testing.T) {
		raw := f.governanceVAA(0, f.keys, governance.ModuleCore, ownChain, governance.SetMessageFee{Fee: uint256.NewInt(9)})
		_, err := f.bridge.Submit(ctx, raw, now)
		assert.NoError(t, err)
	})

	t.Run("not a governance payload", func(t *testing.T) {
		f.govSeq++
		body := testutil.Body(governance.DefaultAuthority.Chain, governance.DefaultAuthority.Emitter, f.govSeq, []byte("hi"))
		raw := testutil.Marshal(t, testutil.SignFirst(t, body, 0, f.keys, 3))
		_, err := f.bridge.Submit(ctx, raw, now)
		assert.ErrorIs(t, err, governance.ErrNotGovernance)
	})

	t.Run("replayed governance", func(t *testing.T) {
		raw := f.core(governance.SetMessageFee{Fee: uint256.NewInt(10)})
		_, err := f.bridge.Submit(ctx, raw, now)
		require.NoError(t, err)
		_, err = f.bridge.Submit(ctx, raw, now)
		assert.ErrorIs(t, err, replay.ErrAlreadyClaimed)
	})
}

func TestFeesAndPublishing(t *testing.T) {
	f := newFixture(t, bridge.Config{})
	ctx := context.Background()
	sender := []byte("sender.near")

	_, err := f.bridge.Submit(ctx, f.core(governance.SetMessageFee{Fee: uint256.NewInt(100)}), now)
	require.NoError(t, err)

	_, err = f.bridge.Publish(ctx, bridge.Message{Emitter: sender, Fee: uint256.NewInt(50)}, now)
	assert.ErrorIs(t, err, bridge.ErrInsufficientFee)

	next, err := f.bridge.NextSequence(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next, "a rejected publish does not consume a sequence")

	first, err := f.bridge.Publish(ctx, bridge.Message{Emitter: sender, Nonce: 5, Payload: []byte("hello"), Fee: uint256.NewInt(100)}, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Body.Sequence)
	assert.Equal(t, ownChain, first.Body.EmitterChain)
	assert.Equal(t, vaa.EmitterAddressFor(sender), first.Body.EmitterAddress)
	assert.Equal(t, vaa.SigningDigest(first.Bytes), first.Digest)

	decoded, err := vaa.UnmarshalBody(first.Bytes)
	require.NoError(t, err)
	assert.Equal(t, first.Body, *decoded)

	second, err := f.bridge.Publish(ctx, bridge.Message{Emitter: sender, Fee: uint256.NewInt(100)}, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Body.Sequence)

	t.Run("transfer above balance underflows", func(t *testing.T) {
		_, err := f.bridge.Submit(ctx, f.core(governance.TransferFees{Amount: uint256.NewInt(300), Recipient: vaa.Address{31: 1}}), now)
		assert.ErrorIs(t, err, bridge.ErrBankUnderflow)
	})

	t.Run("transfer within balance", func(t *testing.T) {
		_, err := f.bridge.Submit(ctx, f.core(governance.TransferFees{Amount: uint256.NewInt(150), Recipient: vaa.Address{31: 1}}), now)
		require.NoError(t, err)

		state, err := f.bridge.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), state.FeeBalance.Uint64())
		assert.Equal(t, uint64(100), state.MessageFee.Uint64())
	})
}

func TestRegisterChain(t *testing.T) {
	f := newFixture(t, bridge.Config{RequireRegistration: true})
	ctx := context.Background()
	register := func(chain vaa.ChainID, addr vaa.Address) []byte {
		return f.governanceVAA(0, f.keys, governance.ModuleTokenBridge, vaa.ChainIDUnset, governance.RegisterChain{Chain: chain, Emitter: addr})
	}

	_, err := f.bridge.Submit(ctx, f.message(1, nil), now)
	assert.ErrorIs(t, err, bridge.ErrUnregisteredEmitter)

	_, err = f.bridge.Submit(ctx, register(vaa.ChainIDEthereum, emitter), now)
	require.NoError(t, err)

	_, err = f.bridge.Submit(ctx, f.message(1, nil), now)
	assert.NoError(t, err)

	_, err = f.bridge.Submit(ctx, register(vaa.ChainIDEthereum, emitter), now)
	assert.ErrorIs(t, err, bridge.ErrChainAlreadyRegistered)

	_, err = f.bridge.Submit(ctx, register(ownChain, emitter), now)
	assert.ErrorIs(t, err, bridge.ErrInvalidRegistration)

	_, err = f.bridge.Submit(ctx, register(vaa.ChainIDEthereum, vaa.Address{31: 0x77}), now)
	assert.NoError(t, err, "write-once per chain and emitter pair")

	state, err := f.bridge.State(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Registrations, 2)
}

func TestContractUpgrade(t *testing.T) {
	f := newFixture(t, bridge.Config{})
	ctx := context.Background()
	core := vaa.Address{31: 0xc0}
	tokenBridge := vaa.Address{31: 0xb0}

	_, err := f.bridge.Submit(ctx, f.governanceVAA(0, f.keys, governance.ModuleCore, ownChain, governance.ContractUpgrade{NewContract: core}), now)
	require.NoError(t, err)
	_, err = f.bridge.Submit(ctx, f.governanceVAA(0, f.keys, governance.ModuleTokenBridge, ownChain, governance.ContractUpgrade{NewContract: tokenBridge}), now)
	require.NoError(t, err)

	state, err := f.bridge.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, core, state.Upgrades[governance.ModuleCore])
	assert.Equal(t, tokenBridge, state.Upgrades[governance.ModuleTokenBridge])
}

func TestClaimHandle(t *testing.T) {
	program := solana.MustPublicKeyFromBase58("worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth")
	owner := derive.Identity{31: 0x0f}
	f := newFixture(t, bridge.Config{ClaimOwner: owner}, bridge.WithClaimDeriver(derive.SolanaPDA{ProgramID: program}))
	ctx := context.Background()
	key := replay.Key{EmitterChain: vaa.ChainIDEthereum, EmitterAddress: emitter, Sequence: 4}

	id, err := f.bridge.ClaimIdentity(key)
	require.NoError(t, err)

	t.Run("wrong resource", func(t *testing.T) {
		other, err := f.bridge.ClaimIdentity(replay.Key{EmitterChain: vaa.ChainIDEthereum, EmitterAddress: emitter, Sequence: 5})
		require.NoError(t, err)
		handle := validate.Handle{ID: other, Owner: owner, Writable: true}
		_, err = f.bridge.Submit(ctx, f.message(4, nil), now, bridge.WithClaimHandle(handle))
		assert.ErrorIs(t, err, validate.ErrRuleFailed)
	})

	t.Run("foreign owner", func(t *testing.T) {
		handle := validate.Handle{ID: id, Owner: derive.Identity{1}, Writable: true}
		_, err := f.bridge.Submit(ctx, f.message(4, nil), now, bridge.WithClaimHandle(handle))
		assert.ErrorIs(t, err, validate.ErrRuleFailed)
	})

	t.Run("derived resource", func(t *testing.T) {
		handle := validate.Handle{ID: id, Owner: owner, Writable: true}
		_, err := f.bridge.Submit(ctx, f.message(4, nil), now, bridge.WithClaimHandle(handle))
		assert.NoError(t, err)
	})
}
