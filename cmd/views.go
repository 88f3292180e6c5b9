package cmd

import (
	"encoding/hex"
	"time"

	"github.com/wormhole-demo/corebridge/internal/bridge"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/vaa"
	"github.com/wormhole-demo/corebridge/internal/verifier"
)

type bodyView struct {
	Timestamp        time.Time `json:"timestamp"`
	Nonce            uint32    `json:"nonce"`
	EmitterChain     uint16    `json:"emitterChain"`
	EmitterAddress   string    `json:"emitterAddress"`
	Sequence         uint64    `json:"sequence"`
	ConsistencyLevel uint8     `json:"consistencyLevel"`
	Payload          string    `json:"payload"`
}

func newBodyView(b *vaa.Body) bodyView {
	return bodyView{
		Timestamp:        b.Timestamp.UTC(),
		Nonce:            b.Nonce,
		EmitterChain:     uint16(b.EmitterChain),
		EmitterAddress:   b.EmitterAddress.String(),
		Sequence:         b.Sequence,
		ConsistencyLevel: b.ConsistencyLevel,
		Payload:          hex.EncodeToString(b.Payload),
	}
}

type verifiedView struct {
	bodyView
	MessageID        string   `json:"messageId"`
	GuardianSetIndex uint32   `json:"guardianSetIndex"`
	Digest           string   `json:"digest"`
	Signers          []string `json:"signers"`
	Governance       string   `json:"governance,omitempty"`
}

func newVerifiedView(v *verifier.Verified) verifiedView {
	view := verifiedView{
		bodyView:         newBodyView(&v.Body),
		MessageID:        v.MessageID(),
		GuardianSetIndex: v.GuardianSetIndex,
		Digest:           v.Digest.Hex(),
	}
	for _, s := range v.Signers {
		view.Signers = append(view.Signers, s.Hex())
	}
	return view
}

func newResultView(r *bridge.Result) verifiedView {
	view := newVerifiedView(r.Verified)
	if r.Governance != nil {
		view.Governance = r.Governance.String()
	}
	return view
}

type guardianSetView struct {
	Index          uint32     `json:"index"`
	Keys           []string   `json:"keys"`
	Quorum         int        `json:"quorum"`
	ExpirationTime *time.Time `json:"expirationTime,omitempty"`
}

func newGuardianSetView(gs *guardianset.GuardianSet) guardianSetView {
	view := guardianSetView{Index: gs.Index, Quorum: gs.Quorum()}
	for _, k := range gs.Keys {
		view.Keys = append(view.Keys, k.Hex())
	}
	if !gs.Active() {
		exp := gs.ExpirationTime.UTC()
		view.ExpirationTime = &exp
	}
	return view
}
