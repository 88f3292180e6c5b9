package governance

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

func readFull(r io.Reader, b []byte) error {
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("%w: short read of %d bytes: %v", vaa.ErrMalformed, len(b), err)
	}
	return nil
}

func readBE(r io.Reader, data any) error {
	if err := binary.Read(r, binary.BigEndian, data); err != nil {
		return fmt.Errorf("%w: %v", vaa.ErrMalformed, err)
	}
	return nil
}

func writeBE(buf *bytes.Buffer, data any) {
	// bytes.Buffer writes never fail
	_ = binary.Write(buf, binary.BigEndian, data)
}

func readAddress(r io.Reader) (vaa.Address, error) {
	var a vaa.Address
	err := readFull(r, a[:])
	return a, err
}

func readAmount(r io.Reader) (*uint256.Int, error) {
	var b [32]byte
	if err := readFull(r, b[:]); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(b[:]), nil
}

func writeAmount(buf *bytes.Buffer, amount *uint256.Int) {
	if amount == nil {
		amount = new(uint256.Int)
	}
	b := amount.Bytes32()
	buf.Write(b[:])
}

func decodeContractUpgrade(r *bytes.Reader) (Action, error) {
	addr, err := readAddress(r)
	if err != nil {
		return nil, err
	}
	return ContractUpgrade{NewContract: addr}, nil
}

func (a ContractUpgrade) marshal(buf *bytes.Buffer) {
	buf.Write(a.NewContract[:])
}

func decodeGuardianSetChange(r *bytes.Reader) (Action, error) {
	var head struct {
		NewIndex uint32
		Count    uint8
	}
	if err := readBE(r, &head); err != nil {
		return nil, err
	}

	keys := make([]common.Address, head.Count)
	for i := range keys {
		if err := readFull(r, keys[i][:]); err != nil {
			return nil, err
		}
	}
	return GuardianSetChange{NewIndex: head.NewIndex, Keys: keys}, nil
}

func (a GuardianSetChange) marshal(buf *bytes.Buffer) {
	writeBE(buf, a.NewIndex)
	buf.WriteByte(uint8(len(a.Keys)))
	for _, k := range a.Keys {
		buf.Write(k[:])
	}
}

func decodeSetMessageFee(r *bytes.Reader) (Action, error) {
	fee, err := readAmount(r)
	if err != nil {
		return nil, err
	}
	return SetMessageFee{Fee: fee}, nil
}

func (a SetMessageFee) marshal(buf *bytes.Buffer) {
	writeAmount(buf, a.Fee)
}

func decodeTransferFees(r *bytes.Reader) (Action, error) {
	amount, err := readAmount(r)
	if err != nil {
		return nil, err
	}
	recipient, err := readAddress(r)
	if err != nil {
		return nil, err
	}
	return TransferFees{Amount: amount, Recipient: recipient}, nil
}

func (a TransferFees) marshal(buf *bytes.Buffer) {
	writeAmount(buf, a.Amount)
	buf.Write(a.Recipient[:])
}

func decodeRegisterChain(r *bytes.Reader) (Action, error) {
	var chain uint16
	if err := readBE(r, &chain); err != nil {
		return nil, err
	}
	emitter, err := readAddress(r)
	if err != nil {
		return nil, err
	}
	return RegisterChain{Chain: vaa.ChainID(chain), Emitter: emitter}, nil
}

func (a RegisterChain) marshal(buf *bytes.Buffer) {
	writeBE(buf, uint16(a.Chain))
	buf.Write(a.Emitter[:])
}
