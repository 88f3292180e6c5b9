package guardianset_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/testutil"
)

type mapStorage struct {
	sets    map[uint32]*guardianset.GuardianSet
	current *uint32
}

func newMapStorage() *mapStorage {
	return &mapStorage{sets: map[uint32]*guardianset.GuardianSet{}}
}

func (m *mapStorage) GuardianSet(index uint32) (*guardianset.GuardianSet, error) {
	gs, ok := m.sets[index]
	if !ok {
		return nil, nil
	}
	return gs.Clone(), nil
}

func (m *mapStorage) PutGuardianSet(gs *guardianset.GuardianSet) error {
	m.sets[gs.Index] = gs.Clone()
	return nil
}

func (m *mapStorage) CurrentGuardianSetIndex() (uint32, bool, error) {
	if m.current == nil {
		return 0, false, nil
	}
	return *m.current, true, nil
}

func (m *mapStorage) SetCurrentGuardianSetIndex(index uint32) error {
	m.current = &index
	return nil
}

func activeCount(m *mapStorage) int {
	n := 0
	for _, gs := range m.sets {
		if gs.Active() {
			n++
		}
	}
	return n
}

func TestQuorum(t *testing.T) {
	tests := map[int]int{1: 1, 2: 2, 3: 3, 4: 3, 5: 4, 6: 5, 7: 5, 19: 13, 20: 14}
	for n, want := range tests {
		assert.Equal(t, want, guardianset.Quorum(n), "quorum for %d guardians", n)
	}
}

func TestBootstrap(t *testing.T) {
	store := newMapStorage()
	reg := guardianset.NewRegistry(store, time.Hour)
	keys := testutil.Addresses(testutil.GuardianKeys(t, "registry", 3))

	gs, err := reg.Bootstrap(0, keys)
	require.NoError(t, err)
	assert.True(t, gs.Active())

	current, err := reg.Current()
	require.NoError(t, err)
	assert.Equal(t, keys, current.Keys)

	_, err = reg.Bootstrap(1, keys)
	assert.ErrorIs(t, err, guardianset.ErrAlreadyBootstrapped)
}

func TestBootstrapRejectsEmptySet(t *testing.T) {
	reg := guardianset.NewRegistry(newMapStorage(), 0)
	_, err := reg.Bootstrap(0, nil)
	assert.ErrorIs(t, err, guardianset.ErrEmptyGuardianSet)
}

func TestGetUnknownIndex(t *testing.T) {
	reg := guardianset.NewRegistry(newMapStorage(), 0)
	_, err := reg.Get(3)
	assert.ErrorIs(t, err, guardianset.ErrInvalidGuardianSetIndex)

	_, err = reg.Current()
	assert.ErrorIs(t, err, guardianset.ErrInvalidGuardianSetIndex)
}

func TestRotate(t *testing.T) {
	store := newMapStorage()
	reg := guardianset.NewRegistry(store, 24*time.Hour)
	oldKeys := testutil.Addresses(testutil.GuardianKeys(t, "old", 3))
	newKeys := testutil.Addresses(testutil.GuardianKeys(t, "new", 4))
	now := time.Unix(1_700_000_000, 0)

	_, err := reg.Bootstrap(5, oldKeys)
	require.NoError(t, err)

	t.Run("skipping an index fails", func(t *testing.T) {
		_, err := reg.Rotate(7, newKeys, now)
		assert.ErrorIs(t, err, guardianset.ErrInvalidGovernanceSetIndex)
	})

	t.Run("same index fails", func(t *testing.T) {
		_, err := reg.Rotate(5, newKeys, now)
		assert.ErrorIs(t, err, guardianset.ErrInvalidGovernanceSetIndex)
	})

	t.Run("empty key list fails", func(t *testing.T) {
		_, err := reg.Rotate(6, []common.Address{}, now)
		assert.ErrorIs(t, err, guardianset.ErrEmptyGuardianSet)
		assert.Equal(t, 1, activeCount(store))
	})

	t.Run("next index succeeds", func(t *testing.T) {
		next, err := reg.Rotate(6, newKeys, now)
		require.NoError(t, err)
		assert.Equal(t, uint32(6), next.Index)

		current, err := reg.Current()
		require.NoError(t, err)
		assert.Equal(t, uint32(6), current.Index)
		assert.Equal(t, newKeys, current.Keys)

		old, err := reg.Get(5)
		require.NoError(t, err)
		assert.Equal(t, now.Add(24*time.Hour), old.ExpirationTime)
		assert.Equal(t, 1, activeCount(store))
	})
}

func TestExpiry(t *testing.T) {
	expiry := time.Unix(1_700_086_400, 0)
	gs := &guardianset.GuardianSet{Index: 1, ExpirationTime: expiry}

	assert.False(t, gs.Expired(expiry.Add(-time.Second)))
	assert.True(t, gs.Expired(expiry))
	assert.True(t, gs.Expired(expiry.Add(time.Second)))

	active := &guardianset.GuardianSet{Index: 2}
	assert.False(t, active.Expired(time.Unix(1<<40, 0)))
}

func TestKeyIndex(t *testing.T) {
	keys := testutil.Addresses(testutil.GuardianKeys(t, "idx", 3))
	gs := &guardianset.GuardianSet{Keys: keys}

	i, ok := gs.KeyIndex(keys[2])
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = gs.KeyIndex(common.Address{})
	assert.False(t, ok)
}
