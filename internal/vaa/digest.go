package vaa

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SigningDigest returns keccak256(keccak256(body)), the value guardians sign.
// It depends only on the body bytes, so the same body re-signed under another
// guardian set has the same digest.
func SigningDigest(body []byte) common.Hash {
	return crypto.Keccak256Hash(crypto.Keccak256(body))
}

// SigningDigest returns the digest of the body.
func (b *Body) SigningDigest() common.Hash {
	return SigningDigest(b.Marshal())
}
