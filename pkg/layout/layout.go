// Package layout implements the cobuild WitnessLayout union.
//
// A cobuild witness is a molecule union whose item ids live in the
// 0xFF000000 range, far above any plausible WitnessArgs total size, so a
// legacy WitnessArgs witness never decodes as a layout:
//
//	SighashAll      0xFF000001  { message: Message, seal: Bytes }
//	SighashAllOnly  0xFF000002  { seal: Bytes }
//	Otx             0xFF000003  { flag, fixed_* x4, dynamic_* x4, message, seals }
//	OtxStart        0xFF000004  { start_input_cell, start_output_cell,
//	                              start_cell_deps, start_header_deps }
//
// The schema is frozen: existing signers and deployed scripts depend on the
// exact field order and item ids.
package layout

import (
	"github.com/suffix-labs/ckb-cobuild/pkg/molecule"
)

// Union item ids.
const (
	SighashAllID     uint32 = 0xFF000001
	SighashAllOnlyID uint32 = 0xFF000002
	OtxID            uint32 = 0xFF000003
	OtxStartID       uint32 = 0xFF000004
)

// ScriptType is the role an Action's target script plays in a transaction.
type ScriptType byte

const (
	ScriptTypeInputLock  ScriptType = 0
	ScriptTypeInputType  ScriptType = 1
	ScriptTypeOutputType ScriptType = 2
)

// Action declares what a script is asked to do.
type Action struct {
	ScriptInfoHash [32]byte
	ScriptHash     [32]byte
	ScriptType     byte // raw byte; unknown values are rejected at check time
	Data           []byte
}

// Message is the set of actions a signer authorizes.
type Message struct {
	Actions []Action
}

// SealPair binds a seal to the script that must consume it.
type SealPair struct {
	ScriptHash [32]byte
	Seal       []byte
}

// WitnessLayout is one of *SighashAll, *SighashAllOnly, *Otx or *OtxStart.
type WitnessLayout interface {
	// ItemID returns the union item id of the variant.
	ItemID() uint32
	// Serialize encodes the variant's table, without the union header.
	Serialize() []byte

	isWitnessLayout()
}

// SighashAll authorizes the whole transaction and declares a Message.
type SighashAll struct {
	Message Message
	Seal    []byte
}

// SighashAllOnly authorizes the whole transaction without a Message.
type SighashAllOnly struct {
	Seal []byte
}

// OtxStart marks the first cell and dep indices claimed by the following
// run of Otx witnesses.
type OtxStart struct {
	StartInputCell  uint32
	StartOutputCell uint32
	StartCellDeps   uint32
	StartHeaderDeps uint32
}

// Otx is one party's open transaction: how many cells and deps it claims,
// which of those counts may still grow (dynamic), and the seals over its
// signing message hashes.
type Otx struct {
	Flag byte

	FixedInputCells  uint32
	FixedOutputCells uint32
	FixedCellDeps    uint32
	FixedHeaderDeps  uint32

	DynamicInputCells  uint32
	DynamicOutputCells uint32
	DynamicCellDeps    uint32
	DynamicHeaderDeps  uint32

	Message Message
	Seals   []SealPair
}

func (*SighashAll) ItemID() uint32     { return SighashAllID }
func (*SighashAllOnly) ItemID() uint32 { return SighashAllOnlyID }
func (*Otx) ItemID() uint32            { return OtxID }
func (*OtxStart) ItemID() uint32       { return OtxStartID }

func (*SighashAll) isWitnessLayout()     {}
func (*SighashAllOnly) isWitnessLayout() {}
func (*Otx) isWitnessLayout()            {}
func (*OtxStart) isWitnessLayout()       {}

// Encode returns the full witness bytes for l.
func Encode(l WitnessLayout) []byte {
	return molecule.PackUnion(l.ItemID(), l.Serialize())
}

// Name returns the variant name of l, or "None" for nil.
func Name(l WitnessLayout) string {
	switch l.(type) {
	case *SighashAll:
		return "SighashAll"
	case *SighashAllOnly:
		return "SighashAllOnly"
	case *Otx:
		return "Otx"
	case *OtxStart:
		return "OtxStart"
	default:
		return "None"
	}
}
