package vaa_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/corebridge/internal/testutil"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

func testEmitter(t *testing.T) vaa.Address {
	addr, err := vaa.StringToAddress("0x0290fb167208af455bb137780163b7b7a9a10c16")
	require.NoError(t, err)
	return addr
}

func TestBodyRoundTrip(t *testing.T) {
	body := testutil.Body(vaa.ChainIDEthereum, testEmitter(t), 1234, []byte("hello governance"))

	decoded, err := vaa.UnmarshalBody(body.Marshal())
	require.NoError(t, err)
	assert.Equal(t, body, *decoded)
}

func TestBodyRoundTripEmptyPayload(t *testing.T) {
	body := testutil.Body(vaa.ChainIDSolana, testEmitter(t), 0, []byte{})

	decoded, err := vaa.UnmarshalBody(body.Marshal())
	require.NoError(t, err)
	assert.Equal(t, body.Sequence, decoded.Sequence)
	assert.Empty(t, decoded.Payload)
	assert.Len(t, body.Marshal(), vaa.BodyMinLength)
}

func TestUnmarshalFullVAA(t *testing.T) {
	keys := testutil.GuardianKeys(t, "codec", 3)
	body := testutil.Body(vaa.ChainIDEthereum, testEmitter(t), 7, []byte{0xde, 0xad})
	signed := testutil.SignFirst(t, body, 4, keys, 3)

	raw := testutil.Marshal(t, signed)
	decoded, err := vaa.Unmarshal(raw)
	require.NoError(t, err)

	assert.Equal(t, uint8(vaa.SupportedVAAVersion), decoded.Version)
	assert.Equal(t, uint32(4), decoded.GuardianSetIndex)
	assert.Equal(t, signed.Signatures, decoded.Signatures)
	assert.Equal(t, body, decoded.Body)

	reencoded, err := decoded.Marshal()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, reencoded))
}

func TestUnmarshalMalformed(t *testing.T) {
	keys := testutil.GuardianKeys(t, "codec", 2)
	body := testutil.Body(vaa.ChainIDEthereum, testEmitter(t), 7, nil)
	raw := testutil.Marshal(t, testutil.SignFirst(t, body, 0, keys, 2))

	badVersion := append([]byte{}, raw...)
	badVersion[0] = 2

	inflatedCount := append([]byte{}, raw...)
	inflatedCount[5] = 10

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", raw[:6]},
		{"truncated signature", raw[:6+66+10]},
		{"truncated body", raw[:len(raw)-1]},
		{"unknown version", badVersion},
		{"signature count past end", inflatedCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := vaa.Unmarshal(tt.data)
			require.ErrorIs(t, err, vaa.ErrMalformed)
			assert.Nil(t, v)
		})
	}
}

func TestSignatureAccessors(t *testing.T) {
	var sig vaa.Signature
	for i := range sig.Signature {
		sig.Signature[i] = byte(i)
	}
	assert.Equal(t, byte(0), sig.R()[0])
	assert.Equal(t, byte(32), sig.S()[0])
	assert.Equal(t, uint8(64), sig.RecoveryID())
}

func TestStringToAddress(t *testing.T) {
	addr, err := vaa.StringToAddress("04")
	require.NoError(t, err)
	assert.Equal(t, byte(4), addr[31])
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000004", addr.String())

	_, err = vaa.StringToAddress("zz")
	assert.Error(t, err)

	_, err = vaa.StringToAddress("0x" + string(bytes.Repeat([]byte("ab"), 33)))
	assert.Error(t, err)
}

func TestEmitterAddressFor(t *testing.T) {
	short := vaa.EmitterAddressFor([]byte{1, 2, 3})
	assert.Equal(t, []byte{1, 2, 3}, short[29:])

	long := vaa.EmitterAddressFor(bytes.Repeat([]byte("a"), 64))
	assert.NotEqual(t, vaa.Address{}, long)
	assert.Equal(t, long, vaa.EmitterAddressFor(bytes.Repeat([]byte("a"), 64)))
}

func TestMessageID(t *testing.T) {
	body := vaa.Body{EmitterChain: vaa.ChainIDSolana, Sequence: 9, Timestamp: time.Unix(0, 0)}
	assert.Equal(t, "1/0000000000000000000000000000000000000000000000000000000000000000/9", body.MessageID())
}
