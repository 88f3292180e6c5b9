package derive_test

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/corebridge/internal/derive"
)

var coreProgram = solana.MustPublicKeyFromBase58("worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth")

func TestKeccakIsDeterministic(t *testing.T) {
	d := derive.Keccak{Domain: []byte("claim")}

	a, err := d.Derive([]byte("emitter"), []byte{0, 2})
	require.NoError(t, err)
	b, err := d.Derive([]byte("emitter"), []byte{0, 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := derive.Keccak{Domain: []byte("registration")}.Derive([]byte("emitter"), []byte{0, 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestKeccakSeedBoundaries(t *testing.T) {
	d := derive.Keccak{}
	ab, err := d.Derive([]byte("ab"), []byte("c"))
	require.NoError(t, err)
	bc, err := d.Derive([]byte("a"), []byte("bc"))
	require.NoError(t, err)
	assert.NotEqual(t, ab, bc)
}

func TestSolanaPDAMatchesFindProgramAddress(t *testing.T) {
	d := derive.SolanaPDA{ProgramID: coreProgram}
	seeds := [][]byte{[]byte("GuardianSet"), {0, 0, 0, 3}}

	got, err := d.Derive(seeds...)
	require.NoError(t, err)

	want, _, err := solana.FindProgramAddress(seeds, coreProgram)
	require.NoError(t, err)
	assert.Equal(t, derive.Identity(want), got)
}

func TestInvalidSeeds(t *testing.T) {
	long := bytes.Repeat([]byte{1}, derive.MaxSeedLength+1)
	many := make([][]byte, derive.MaxSeeds+1)
	for i := range many {
		many[i] = []byte{byte(i)}
	}

	for _, d := range []derive.Deriver{derive.Keccak{}, derive.SolanaPDA{ProgramID: coreProgram}} {
		_, err := d.Derive(long)
		assert.ErrorIs(t, err, derive.ErrInvalidSeeds)

		_, err = d.Derive(many...)
		assert.ErrorIs(t, err, derive.ErrInvalidSeeds)
	}
}
