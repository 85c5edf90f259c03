package layout

import (
	"errors"
	"fmt"

	"github.com/suffix-labs/ckb-cobuild/pkg/molecule"
)

// ErrUnrecognized is returned by Decode for witnesses that are not a
// cobuild layout at all: wrong union id or a top-level table header that
// does not match the variant. Such witnesses are treated as legacy.
var ErrUnrecognized = errors.New("witness is not a cobuild layout")

var fieldCounts = map[uint32]struct {
	name   string
	fields int
}{
	SighashAllID:     {"SighashAll", 2},
	SighashAllOnlyID: {"SighashAllOnly", 1},
	OtxID:            {"Otx", 11},
	OtxStartID:       {"OtxStart", 4},
}

// Decode parses a witness in two stages. The first stage recognizes the
// union and the variant's table header; any failure there yields
// ErrUnrecognized. The second stage verifies every nested structure; a
// failure there means the witness claims to be a cobuild layout but is
// malformed, and the molecule verification error is returned as is.
func Decode(witness []byte) (WitnessLayout, error) {
	id, item, err := molecule.UnionItem("WitnessLayout", witness)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	variant, ok := fieldCounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: item id %#x", ErrUnrecognized, id)
	}
	fields, err := molecule.TableFields(variant.name, item, variant.fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	switch id {
	case SighashAllID:
		return decodeSighashAll(fields)
	case SighashAllOnlyID:
		return decodeSighashAllOnly(fields)
	case OtxID:
		return decodeOtx(fields)
	default:
		return decodeOtxStart(fields)
	}
}

func decodeSighashAll(fields [][]byte) (*SighashAll, error) {
	msg, err := DecodeMessage(fields[0])
	if err != nil {
		return nil, err
	}
	seal, err := molecule.UnpackBytes("SighashAll.seal", fields[1])
	if err != nil {
		return nil, err
	}
	return &SighashAll{Message: *msg, Seal: seal}, nil
}

func decodeSighashAllOnly(fields [][]byte) (*SighashAllOnly, error) {
	seal, err := molecule.UnpackBytes("SighashAllOnly.seal", fields[0])
	if err != nil {
		return nil, err
	}
	return &SighashAllOnly{Seal: seal}, nil
}

func decodeOtxStart(fields [][]byte) (*OtxStart, error) {
	var values [4]uint32
	for i := range values {
		v, err := molecule.UnpackUint32("OtxStart", fields[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &OtxStart{
		StartInputCell:  values[0],
		StartOutputCell: values[1],
		StartCellDeps:   values[2],
		StartHeaderDeps: values[3],
	}, nil
}

func decodeOtx(fields [][]byte) (*Otx, error) {
	flag, err := molecule.UnpackByte("Otx.flag", fields[0])
	if err != nil {
		return nil, err
	}

	var counts [8]uint32
	for i := range counts {
		v, err := molecule.UnpackUint32("Otx", fields[i+1])
		if err != nil {
			return nil, err
		}
		counts[i] = v
	}

	msg, err := DecodeMessage(fields[9])
	if err != nil {
		return nil, err
	}

	sealItems, err := molecule.DynVecItems("SealPairVec", fields[10])
	if err != nil {
		return nil, err
	}
	seals := make([]SealPair, len(sealItems))
	for i, item := range sealItems {
		pair, err := decodeSealPair(item)
		if err != nil {
			return nil, fmt.Errorf("seals[%d]: %w", i, err)
		}
		seals[i] = pair
	}

	return &Otx{
		Flag:               flag,
		FixedInputCells:    counts[0],
		FixedOutputCells:   counts[1],
		FixedCellDeps:      counts[2],
		FixedHeaderDeps:    counts[3],
		DynamicInputCells:  counts[4],
		DynamicOutputCells: counts[5],
		DynamicCellDeps:    counts[6],
		DynamicHeaderDeps:  counts[7],
		Message:            *msg,
		Seals:              seals,
	}, nil
}

func decodeSealPair(data []byte) (SealPair, error) {
	var pair SealPair
	fields, err := molecule.TableFields("SealPair", data, 2)
	if err != nil {
		return pair, err
	}
	if pair.ScriptHash, err = molecule.UnpackByte32("SealPair.script_hash", fields[0]); err != nil {
		return pair, err
	}
	if pair.Seal, err = molecule.UnpackBytes("SealPair.seal", fields[1]); err != nil {
		return pair, err
	}
	return pair, nil
}

// DecodeMessage parses and fully verifies a Message table.
func DecodeMessage(data []byte) (*Message, error) {
	fields, err := molecule.TableFields("Message", data, 1)
	if err != nil {
		return nil, err
	}
	items, err := molecule.DynVecItems("ActionVec", fields[0])
	if err != nil {
		return nil, err
	}

	msg := &Message{Actions: make([]Action, len(items))}
	for i, item := range items {
		action, err := decodeAction(item)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		msg.Actions[i] = action
	}
	return msg, nil
}

func decodeAction(data []byte) (Action, error) {
	var a Action
	fields, err := molecule.TableFields("Action", data, 4)
	if err != nil {
		return a, err
	}
	if a.ScriptInfoHash, err = molecule.UnpackByte32("Action.script_info_hash", fields[0]); err != nil {
		return a, err
	}
	if a.ScriptHash, err = molecule.UnpackByte32("Action.script_hash", fields[1]); err != nil {
		return a, err
	}
	if a.ScriptType, err = molecule.UnpackByte("Action.script_type", fields[2]); err != nil {
		return a, err
	}
	if a.Data, err = molecule.UnpackBytes("Action.data", fields[3]); err != nil {
		return a, err
	}
	return a, nil
}
