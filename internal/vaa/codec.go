package vaa

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned for any VAA that cannot be decoded. The codec
// never returns a partially decoded VAA.
var ErrMalformed = errors.New("malformed VAA")

// Unmarshal decodes a complete VAA.
//
// Layout (big-endian):
//
//	version u8 | guardian_set_index u32 | sig_count u8 |
//	sig_count * (index u8, r 32B, s 32B, recovery_id u8) | body
func Unmarshal(data []byte) (*VAA, error) {
	if len(data) < headerLength {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}

	v := &VAA{Version: data[0]}
	if v.Version != SupportedVAAVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, v.Version)
	}
	v.GuardianSetIndex = binary.BigEndian.Uint32(data[1:5])

	sigCount := int(data[5])
	bodyStart := headerLength + sigCount*signatureEntryLength
	if len(data) < bodyStart {
		return nil, fmt.Errorf("%w: %d signatures need %d bytes, have %d", ErrMalformed, sigCount, bodyStart, len(data))
	}

	v.Signatures = make([]Signature, sigCount)
	for i := 0; i < sigCount; i++ {
		offset := headerLength + i*signatureEntryLength
		v.Signatures[i].Index = data[offset]
		copy(v.Signatures[i].Signature[:], data[offset+1:offset+signatureEntryLength])
	}

	body, err := UnmarshalBody(data[bodyStart:])
	if err != nil {
		return nil, err
	}
	v.Body = *body

	return v, nil
}

// UnmarshalBody decodes the signed body of a VAA.
func UnmarshalBody(data []byte) (*Body, error) {
	if len(data) < BodyMinLength {
		return nil, fmt.Errorf("%w: body is %d bytes, need at least %d", ErrMalformed, len(data), BodyMinLength)
	}

	b := &Body{}
	b.Timestamp = time.Unix(int64(binary.BigEndian.Uint32(data[0:4])), 0)
	b.Nonce = binary.BigEndian.Uint32(data[4:8])
	b.EmitterChain = ChainID(binary.BigEndian.Uint16(data[8:10]))
	copy(b.EmitterAddress[:], data[10:42])
	b.Sequence = binary.BigEndian.Uint64(data[42:50])
	b.ConsistencyLevel = data[50]

	b.Payload = make([]byte, len(data)-BodyMinLength)
	copy(b.Payload, data[BodyMinLength:])

	return b, nil
}

// Marshal encodes the body in its signed wire form.
func (b *Body) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(BodyMinLength + len(b.Payload))

	// bytes.Buffer writes never fail
	_ = binary.Write(buf, binary.BigEndian, uint32(b.Timestamp.Unix()))
	_ = binary.Write(buf, binary.BigEndian, b.Nonce)
	_ = binary.Write(buf, binary.BigEndian, uint16(b.EmitterChain))
	buf.Write(b.EmitterAddress[:])
	_ = binary.Write(buf, binary.BigEndian, b.Sequence)
	buf.WriteByte(b.ConsistencyLevel)
	buf.Write(b.Payload)

	return buf.Bytes()
}

// Marshal encodes the full VAA. It is used to build governance messages and
// test fixtures; VAAs accepted from the network are never re-encoded.
func (v *VAA) Marshal() ([]byte, error) {
	if len(v.Signatures) > 255 {
		return nil, fmt.Errorf("too many signatures: %d", len(v.Signatures))
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(v.Version)
	_ = binary.Write(buf, binary.BigEndian, v.GuardianSetIndex)
	buf.WriteByte(uint8(len(v.Signatures)))
	for _, sig := range v.Signatures {
		buf.WriteByte(sig.Index)
		buf.Write(sig.Signature[:])
	}
	buf.Write(v.Body.Marshal())

	return buf.Bytes(), nil
}
