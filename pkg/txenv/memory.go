package txenv

import (
	"fmt"

	"github.com/suffix-labs/ckb-cobuild/pkg/types"
)

// ResolvedInput is the live cell an input consumes.
type ResolvedInput struct {
	Output types.CellOutput
	Data   []byte
}

// MemoryEnv is an Env over a fully decoded transaction held in memory. It is
// the accessor used by tests and by the command line tool; the engine does
// not depend on it.
type MemoryEnv struct {
	tx         *types.Transaction
	inputs     []ResolvedInput
	scriptHash [32]byte
	txHash     [32]byte

	group          []int
	inputLocks     [][32]byte
	inputTypes     []*[32]byte
	outputTypes    []*[32]byte
	serialInputs   [][]byte
	serialCells    [][]byte
	serialOutputs  [][]byte
	serialCellDeps [][]byte
}

// NewMemoryEnv builds an Env for executing the script with the given hash.
// The script group is every input whose lock hash equals scriptHash.
func NewMemoryEnv(tx *types.Transaction, inputs []ResolvedInput, scriptHash [32]byte) (*MemoryEnv, error) {
	if len(inputs) != len(tx.Inputs) {
		return nil, fmt.Errorf("%d inputs but %d resolved cells", len(tx.Inputs), len(inputs))
	}
	if len(tx.OutputsData) != len(tx.Outputs) {
		return nil, fmt.Errorf("%d outputs but %d outputs_data", len(tx.Outputs), len(tx.OutputsData))
	}

	e := &MemoryEnv{
		tx:         tx,
		inputs:     inputs,
		scriptHash: scriptHash,
		txHash:     types.TxHash(tx),
	}

	for i := range inputs {
		lock := inputs[i].Output.Lock.Hash()
		e.inputLocks = append(e.inputLocks, lock)
		e.inputTypes = append(e.inputTypes, types.TypeHash(&inputs[i].Output))
		if lock == scriptHash {
			e.group = append(e.group, i)
		}
		e.serialInputs = append(e.serialInputs, types.SerializeCellInput(tx.Inputs[i]))
		e.serialCells = append(e.serialCells, types.SerializeCellOutput(&inputs[i].Output))
	}
	for _, output := range tx.Outputs {
		e.outputTypes = append(e.outputTypes, types.TypeHash(output))
		e.serialOutputs = append(e.serialOutputs, types.SerializeCellOutput(output))
	}
	for _, dep := range tx.CellDeps {
		e.serialCellDeps = append(e.serialCellDeps, types.SerializeCellDep(dep))
	}
	return e, nil
}

// Transaction returns the underlying transaction.
func (e *MemoryEnv) Transaction() *types.Transaction {
	return e.tx
}

// GroupIndices returns the transaction input indices of the script group.
func (e *MemoryEnv) GroupIndices() []int {
	return append([]int(nil), e.group...)
}

// ScriptHash implements Env.
func (e *MemoryEnv) ScriptHash() ([32]byte, error) { return e.scriptHash, nil }

// TxHash implements Env.
func (e *MemoryEnv) TxHash() ([32]byte, error) { return e.txHash, nil }

// Count implements Env.
func (e *MemoryEnv) Count(source Source) (int, error) {
	switch source {
	case SourceInput:
		return len(e.inputs), nil
	case SourceOutput:
		return len(e.tx.Outputs), nil
	case SourceCellDep:
		return len(e.tx.CellDeps), nil
	case SourceHeaderDep:
		return len(e.tx.HeaderDeps), nil
	case SourceGroupInput:
		return len(e.group), nil
	}
	return 0, fmt.Errorf("%w: count of %s", ErrItemMissing, source)
}

// WitnessCount implements Env.
func (e *MemoryEnv) WitnessCount() (int, error) {
	return len(e.tx.Witnesses), nil
}

// inputIndex maps a (index, source) pair onto a transaction input index.
func (e *MemoryEnv) inputIndex(index int, source Source) (int, error) {
	switch source {
	case SourceInput:
		if index < 0 || index >= len(e.inputs) {
			return 0, fmt.Errorf("%w: input %d", ErrIndexOutOfBound, index)
		}
		return index, nil
	case SourceGroupInput:
		if index < 0 || index >= len(e.group) {
			return 0, fmt.Errorf("%w: group input %d", ErrIndexOutOfBound, index)
		}
		return e.group[index], nil
	}
	return 0, fmt.Errorf("%w: %s is not an input source", ErrItemMissing, source)
}

func (e *MemoryEnv) outputIndex(index int) (int, error) {
	if index < 0 || index >= len(e.tx.Outputs) {
		return 0, fmt.Errorf("%w: output %d", ErrIndexOutOfBound, index)
	}
	return index, nil
}

// Input implements Env.
func (e *MemoryEnv) Input(index int, source Source) ([]byte, error) {
	i, err := e.inputIndex(index, source)
	if err != nil {
		return nil, err
	}
	return e.serialInputs[i], nil
}

// Cell implements Env.
func (e *MemoryEnv) Cell(index int, source Source) ([]byte, error) {
	if source == SourceOutput {
		i, err := e.outputIndex(index)
		if err != nil {
			return nil, err
		}
		return e.serialOutputs[i], nil
	}
	i, err := e.inputIndex(index, source)
	if err != nil {
		return nil, err
	}
	return e.serialCells[i], nil
}

// CellData implements Env.
func (e *MemoryEnv) CellData(index int, source Source) (CellData, error) {
	if source == SourceOutput {
		i, err := e.outputIndex(index)
		if err != nil {
			return nil, err
		}
		return Bytes(e.tx.OutputsData[i]), nil
	}
	i, err := e.inputIndex(index, source)
	if err != nil {
		return nil, err
	}
	return Bytes(e.inputs[i].Data), nil
}

// CellLockHash implements Env.
func (e *MemoryEnv) CellLockHash(index int, source Source) ([32]byte, error) {
	if source == SourceOutput {
		i, err := e.outputIndex(index)
		if err != nil {
			return [32]byte{}, err
		}
		return e.tx.Outputs[i].Lock.Hash(), nil
	}
	i, err := e.inputIndex(index, source)
	if err != nil {
		return [32]byte{}, err
	}
	return e.inputLocks[i], nil
}

// CellTypeHash implements Env.
func (e *MemoryEnv) CellTypeHash(index int, source Source) ([32]byte, bool, error) {
	var h *[32]byte
	if source == SourceOutput {
		i, err := e.outputIndex(index)
		if err != nil {
			return [32]byte{}, false, err
		}
		h = e.outputTypes[i]
	} else {
		i, err := e.inputIndex(index, source)
		if err != nil {
			return [32]byte{}, false, err
		}
		h = e.inputTypes[i]
	}
	if h == nil {
		return [32]byte{}, false, nil
	}
	return *h, true, nil
}

// CellDep implements Env.
func (e *MemoryEnv) CellDep(index int) ([]byte, error) {
	if index < 0 || index >= len(e.serialCellDeps) {
		return nil, fmt.Errorf("%w: cell dep %d", ErrIndexOutOfBound, index)
	}
	return e.serialCellDeps[index], nil
}

// HeaderDep implements Env.
func (e *MemoryEnv) HeaderDep(index int) ([32]byte, error) {
	if index < 0 || index >= len(e.tx.HeaderDeps) {
		return [32]byte{}, fmt.Errorf("%w: header dep %d", ErrIndexOutOfBound, index)
	}
	return e.tx.HeaderDeps[index], nil
}

// Witness implements Env.
func (e *MemoryEnv) Witness(index int, source Source) ([]byte, error) {
	switch source {
	case SourceInput:
	case SourceGroupInput:
		if index < 0 || index >= len(e.group) {
			return nil, fmt.Errorf("%w: group witness %d", ErrIndexOutOfBound, index)
		}
		index = e.group[index]
	default:
		return nil, fmt.Errorf("%w: witnesses of %s", ErrItemMissing, source)
	}
	if index < 0 || index >= len(e.tx.Witnesses) {
		return nil, fmt.Errorf("%w: witness %d", ErrIndexOutOfBound, index)
	}
	return e.tx.Witnesses[index], nil
}

var _ Env = (*MemoryEnv)(nil)
