package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/sequencer"
	"github.com/wormhole-demo/corebridge/internal/storage"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

// Message is an outbound message to publish.
type Message struct {
	// Emitter is the chain-local identity of the sender. It is mapped to a
	// 32 byte emitter address with vaa.EmitterAddressFor.
	Emitter          []byte
	Nonce            uint32
	ConsistencyLevel uint8
	Payload          []byte
	// Fee is the amount paid with the message; nil pays nothing.
	Fee *uint256.Int
}

// Published is the body handed to the host for the guardians to observe and
// sign.
type Published struct {
	Body   vaa.Body
	Bytes  []byte
	Digest common.Hash
}

// Publish assigns the message its emitter sequence and builds its body. The
// paid fee must cover the current message fee and is added to the fee
// balance.
func (b *Bridge) Publish(ctx context.Context, msg Message, now time.Time) (*Published, error) {
	paid := msg.Fee
	if paid == nil {
		paid = new(uint256.Int)
	}
	emitter := vaa.EmitterAddressFor(msg.Emitter)

	var out *Published
	err := b.store.Update(ctx, func(tx storage.Tx) error {
		fee, err := tx.MessageFee()
		if err != nil {
			return err
		}
		if paid.Lt(fee) {
			return fmt.Errorf("%w: paid %s, fee is %s", ErrInsufficientFee, paid.Dec(), fee.Dec())
		}
		if !paid.IsZero() {
			bank, err := tx.FeeBalance()
			if err != nil {
				return err
			}
			if _, overflow := bank.AddOverflow(bank, paid); overflow {
				return errors.New("fee balance overflow")
			}
			if err := tx.SetFeeBalance(bank); err != nil {
				return err
			}
		}

		seq, err := sequencer.New(tx).Next(emitter)
		if err != nil {
			return err
		}

		body := vaa.Body{
			Timestamp:        time.Unix(now.Unix(), 0),
			Nonce:            msg.Nonce,
			EmitterChain:     b.cfg.ChainID,
			EmitterAddress:   emitter,
			Sequence:         seq,
			ConsistencyLevel: msg.ConsistencyLevel,
			Payload:          append([]byte(nil), msg.Payload...),
		}
		raw := body.Marshal()
		out = &Published{Body: body, Bytes: raw, Digest: vaa.SigningDigest(raw)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("Published message",
		zap.String("emitterAddress", emitter.String()),
		zap.Uint64("sequence", out.Body.Sequence),
		zap.Uint32("nonce", out.Body.Nonce),
		zap.String("digest", out.Digest.Hex()))
	return out, nil
}
