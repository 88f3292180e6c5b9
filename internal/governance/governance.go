// Package governance decodes and encodes the governance payloads carried
// inside ordinary VAAs.
//
// Every payload starts with a header:
//
//	module 32B (name, left-padded with zeros) | action u8 | chain u16
//
// followed by the action body. Chain 0 addresses every chain.
package governance

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/wormhole-demo/corebridge/internal/vaa"
)

const (
	ModuleCore        = "Core"
	ModuleTokenBridge = "TokenBridge"

	headerLength = 32 + 1 + 2
)

var (
	ErrNotGovernance           = errors.New("not a governance payload")
	ErrInvalidGovernanceKey    = errors.New("invalid governance emitter")
	ErrInvalidGovernanceChain  = errors.New("governance action targets another chain")
	ErrInvalidGovernanceModule = errors.New("invalid governance module")
	ErrInvalidGovernanceAction = errors.New("invalid governance action")
)

// ActionType is the action code of a governance payload. Codes are scoped to
// their module.
type ActionType uint8

const (
	ActionCoreContractUpgrade        ActionType = 1
	ActionGuardianSetChange          ActionType = 2
	ActionSetMessageFee              ActionType = 3
	ActionTransferFees               ActionType = 4
	ActionRegisterChain              ActionType = 1
	ActionTokenBridgeContractUpgrade ActionType = 2
)

// Action is a decoded governance action body.
type Action interface {
	Name() string
	marshal(buf *bytes.Buffer)
}

// ContractUpgrade names the code the module should be upgraded to.
type ContractUpgrade struct {
	NewContract vaa.Address
}

// GuardianSetChange installs a new guardian set.
type GuardianSetChange struct {
	NewIndex uint32
	Keys     []common.Address
}

// SetMessageFee sets the fee charged for publishing a message.
type SetMessageFee struct {
	Fee *uint256.Int
}

// TransferFees pays collected fees out to Recipient.
type TransferFees struct {
	Amount    *uint256.Int
	Recipient vaa.Address
}

// RegisterChain binds a foreign emitter to a chain.
type RegisterChain struct {
	Chain   vaa.ChainID
	Emitter vaa.Address
}

func (ContractUpgrade) Name() string   { return "ContractUpgrade" }
func (GuardianSetChange) Name() string { return "GuardianSetChange" }
func (SetMessageFee) Name() string     { return "SetMessageFee" }
func (TransferFees) Name() string      { return "TransferFees" }
func (RegisterChain) Name() string     { return "RegisterChain" }

type actionKind struct {
	name   string
	decode func(r *bytes.Reader) (Action, error)
}

var modules = map[string]map[ActionType]actionKind{
	ModuleCore: {
		ActionCoreContractUpgrade: {"ContractUpgrade", decodeContractUpgrade},
		ActionGuardianSetChange:   {"GuardianSetChange", decodeGuardianSetChange},
		ActionSetMessageFee:       {"SetMessageFee", decodeSetMessageFee},
		ActionTransferFees:        {"TransferFees", decodeTransferFees},
	},
	ModuleTokenBridge: {
		ActionRegisterChain:              {"RegisterChain", decodeRegisterChain},
		ActionTokenBridgeContractUpgrade: {"ContractUpgrade", decodeContractUpgrade},
	},
}

// Message is a decoded governance payload.
type Message struct {
	Module string
	Type   ActionType
	// Chain is the target chain; ChainIDUnset addresses every chain.
	Chain  vaa.ChainID
	Action Action
}

// CheckChain fails unless the message targets own or every chain.
func (m *Message) CheckChain(own vaa.ChainID) error {
	if m.Chain != vaa.ChainIDUnset && m.Chain != own {
		return fmt.Errorf("%w: targets %s, this is %s", ErrInvalidGovernanceChain, m.Chain, own)
	}
	return nil
}

// CheckModule fails unless the message belongs to module.
func (m *Message) CheckModule(module string) error {
	if m.Module != module {
		return fmt.Errorf("%w: got %q, want %q", ErrInvalidGovernanceModule, m.Module, module)
	}
	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s.%s(chain %d)", m.Module, m.Action.Name(), m.Chain)
}

// Decode parses a governance payload. Payloads too short to carry a header
// return ErrNotGovernance; unknown modules or actions return
// ErrInvalidGovernanceModule or ErrInvalidGovernanceAction; a truncated or
// oversized action body is vaa.ErrMalformed.
func Decode(payload []byte) (*Message, error) {
	if len(payload) < headerLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotGovernance, len(payload))
	}

	module, err := moduleName(payload[:32])
	if err != nil {
		return nil, err
	}
	actions, ok := modules[module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGovernanceModule, module)
	}

	r := bytes.NewReader(payload[32:])
	var header struct {
		Action ActionType
		Chain  uint16
	}
	if err := readBE(r, &header); err != nil {
		return nil, err
	}

	kind, ok := actions[header.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s action %d", ErrInvalidGovernanceAction, module, header.Action)
	}
	action, err := kind.decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", module, kind.name, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s.%s", vaa.ErrMalformed, r.Len(), module, kind.name)
	}

	return &Message{
		Module: module,
		Type:   header.Action,
		Chain:  vaa.ChainID(header.Chain),
		Action: action,
	}, nil
}

// Marshal encodes the message. The action must be one its module defines
// under Type.
func (m *Message) Marshal() ([]byte, error) {
	actions, ok := modules[m.Module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGovernanceModule, m.Module)
	}
	kind, ok := actions[m.Type]
	if !ok || m.Action == nil || kind.name != m.Action.Name() {
		return nil, fmt.Errorf("%w: %s action %d", ErrInvalidGovernanceAction, m.Module, m.Type)
	}
	if gsc, ok := m.Action.(GuardianSetChange); ok && len(gsc.Keys) > 255 {
		return nil, fmt.Errorf("%w: %d guardian keys", ErrInvalidGovernanceAction, len(gsc.Keys))
	}

	buf := new(bytes.Buffer)
	var module [32]byte
	copy(module[32-len(m.Module):], m.Module)
	buf.Write(module[:])
	buf.WriteByte(byte(m.Type))
	writeBE(buf, uint16(m.Chain))
	m.Action.marshal(buf)
	return buf.Bytes(), nil
}

// NewMessage builds a message for action in module, picking the action code
// from the module's table.
func NewMessage(module string, chain vaa.ChainID, action Action) (*Message, error) {
	actions, ok := modules[module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGovernanceModule, module)
	}
	for code, kind := range actions {
		if kind.name == action.Name() {
			return &Message{Module: module, Type: code, Chain: chain, Action: action}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no %s", ErrInvalidGovernanceAction, module, action.Name())
}

func moduleName(field []byte) (string, error) {
	name := bytes.TrimLeft(field, "\x00")
	for _, c := range name {
		if c < 0x20 || c > 0x7e {
			return "", fmt.Errorf("%w: module field %x", ErrInvalidGovernanceModule, field)
		}
	}
	return string(name), nil
}
