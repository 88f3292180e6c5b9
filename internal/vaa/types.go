package vaa

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SupportedVAAVersion is the only wire version accepted by Unmarshal.
	SupportedVAAVersion = 0x01

	// SignatureLength is the size of a recoverable secp256k1 signature (r || s || recovery id).
	SignatureLength = 65

	headerLength         = 6
	signatureEntryLength = 1 + SignatureLength
	// BodyMinLength covers every fixed body field; the payload may be empty.
	BodyMinLength = 4 + 4 + 2 + 32 + 8 + 1
)

// ChainID identifies a chain in the Wormhole numbering scheme.
type ChainID uint16

const (
	ChainIDUnset    ChainID = 0
	ChainIDSolana   ChainID = 1
	ChainIDEthereum ChainID = 2
	ChainIDTerra    ChainID = 3
	ChainIDBSC      ChainID = 4
	ChainIDPolygon  ChainID = 5
	ChainIDNear     ChainID = 15
	ChainIDAptos    ChainID = 22
	ChainIDSui      ChainID = 21
)

func (c ChainID) String() string {
	switch c {
	case ChainIDUnset:
		return "unset"
	case ChainIDSolana:
		return "solana"
	case ChainIDEthereum:
		return "ethereum"
	case ChainIDTerra:
		return "terra"
	case ChainIDBSC:
		return "bsc"
	case ChainIDPolygon:
		return "polygon"
	case ChainIDNear:
		return "near"
	case ChainIDSui:
		return "sui"
	case ChainIDAptos:
		return "aptos"
	default:
		return strconv.FormatUint(uint64(c), 10)
	}
}

// Address is a chain-agnostic 32 byte emitter or recipient address.
type Address [32]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, len(a))
	copy(b, a[:])
	return b
}

// StringToAddress parses a hex encoded address, with or without 0x prefix.
// Short inputs are left-padded with zeros.
func StringToAddress(value string) (Address, error) {
	var address Address
	value = strings.TrimPrefix(value, "0x")
	if len(value)%2 == 1 {
		value = "0" + value
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return address, fmt.Errorf("invalid address %q: %w", value, err)
	}
	if len(b) > len(address) {
		return address, fmt.Errorf("address %q longer than %d bytes", value, len(address))
	}
	copy(address[len(address)-len(b):], b)
	return address, nil
}

// EmitterAddressFor maps a chain-local emitter identity onto a 32 byte address.
// Identities that fit are left-padded; longer identities (account names, for
// example) are keccak256 hashed.
func EmitterAddressFor(identity []byte) Address {
	var address Address
	if len(identity) <= len(address) {
		copy(address[len(address)-len(identity):], identity)
		return address
	}
	copy(address[:], crypto.Keccak256(identity))
	return address
}

// Signature is a single guardian signature inside a VAA.
type Signature struct {
	// Index is the position of the signing guardian in the guardian set.
	Index     uint8
	Signature [SignatureLength]byte
}

// R returns the r scalar of the signature.
func (s Signature) R() []byte { return s.Signature[0:32] }

// S returns the s scalar of the signature.
func (s Signature) S() []byte { return s.Signature[32:64] }

// RecoveryID returns the public key recovery id.
func (s Signature) RecoveryID() uint8 { return s.Signature[64] }

// Body is the signed part of a VAA.
type Body struct {
	Timestamp        time.Time
	Nonce            uint32
	EmitterChain     ChainID
	EmitterAddress   Address
	Sequence         uint64
	ConsistencyLevel uint8
	Payload          []byte
}

// MessageID returns the canonical chain/emitter/sequence identifier of the body.
func (b *Body) MessageID() string {
	return fmt.Sprintf("%d/%s/%d", b.EmitterChain, b.EmitterAddress, b.Sequence)
}

// VAA is a Verified Action Approval: a header carrying guardian signatures
// followed by the signed body.
type VAA struct {
	Version          uint8
	GuardianSetIndex uint32
	Signatures       []Signature
	Body
}
