package layout

import (
	"github.com/suffix-labs/ckb-cobuild/pkg/molecule"
)

// Serialize encodes the Action table.
func (a *Action) Serialize() []byte {
	return molecule.PackTable(
		a.ScriptInfoHash[:],
		a.ScriptHash[:],
		[]byte{a.ScriptType},
		molecule.PackBytes(a.Data),
	)
}

// Serialize encodes the Message table. These are the bytes absorbed into
// signing message hashes.
func (m *Message) Serialize() []byte {
	actions := make([][]byte, len(m.Actions))
	for i := range m.Actions {
		actions[i] = m.Actions[i].Serialize()
	}
	return molecule.PackTable(molecule.PackDynVec(actions...))
}

// Serialize encodes the SealPair table.
func (s *SealPair) Serialize() []byte {
	return molecule.PackTable(s.ScriptHash[:], molecule.PackBytes(s.Seal))
}

// Serialize encodes the SighashAll table.
func (s *SighashAll) Serialize() []byte {
	return molecule.PackTable(s.Message.Serialize(), molecule.PackBytes(s.Seal))
}

// Serialize encodes the SighashAllOnly table.
func (s *SighashAllOnly) Serialize() []byte {
	return molecule.PackTable(molecule.PackBytes(s.Seal))
}

// Serialize encodes the OtxStart table.
func (o *OtxStart) Serialize() []byte {
	return molecule.PackTable(
		molecule.PackUint32(o.StartInputCell),
		molecule.PackUint32(o.StartOutputCell),
		molecule.PackUint32(o.StartCellDeps),
		molecule.PackUint32(o.StartHeaderDeps),
	)
}

// Serialize encodes the Otx table.
func (o *Otx) Serialize() []byte {
	seals := make([][]byte, len(o.Seals))
	for i := range o.Seals {
		seals[i] = o.Seals[i].Serialize()
	}
	return molecule.PackTable(
		[]byte{o.Flag},
		molecule.PackUint32(o.FixedInputCells),
		molecule.PackUint32(o.FixedOutputCells),
		molecule.PackUint32(o.FixedCellDeps),
		molecule.PackUint32(o.FixedHeaderDeps),
		molecule.PackUint32(o.DynamicInputCells),
		molecule.PackUint32(o.DynamicOutputCells),
		molecule.PackUint32(o.DynamicCellDeps),
		molecule.PackUint32(o.DynamicHeaderDeps),
		o.Message.Serialize(),
		molecule.PackDynVec(seals...),
	)
}
