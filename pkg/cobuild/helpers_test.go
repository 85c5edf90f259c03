package cobuild

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
	"github.com/suffix-labs/ckb-cobuild/pkg/types"
)

// testScript returns a distinct script for every n.
func testScript(n byte) *types.Script {
	return &types.Script{
		CodeHash: [32]byte{0xC0, n},
		HashType: types.HashTypeType,
		Args:     []byte{n, n, n},
	}
}

func scriptHash(n byte) [32]byte {
	return testScript(n).Hash()
}

type txBuilder struct {
	tx     types.Transaction
	inputs []txenv.ResolvedInput
}

func newTxBuilder() *txBuilder {
	return &txBuilder{}
}

func (b *txBuilder) input(lock byte, data []byte) *txBuilder {
	n := len(b.inputs)
	b.tx.Inputs = append(b.tx.Inputs, &types.CellInput{
		Since:          uint64(n),
		PreviousOutput: &types.OutPoint{TxHash: [32]byte{0xAA, byte(n)}, Index: uint32(n)},
	})
	b.inputs = append(b.inputs, txenv.ResolvedInput{
		Output: types.CellOutput{Capacity: 1000 + uint64(n), Lock: testScript(lock)},
		Data:   data,
	})
	return b
}

func (b *txBuilder) typedInput(lock, typ byte, data []byte) *txBuilder {
	b.input(lock, data)
	b.inputs[len(b.inputs)-1].Output.Type = testScript(typ)
	return b
}

func (b *txBuilder) output(lock byte, data []byte) *txBuilder {
	n := len(b.tx.Outputs)
	b.tx.Outputs = append(b.tx.Outputs, &types.CellOutput{Capacity: 500 + uint64(n), Lock: testScript(lock)})
	b.tx.OutputsData = append(b.tx.OutputsData, data)
	return b
}

func (b *txBuilder) typedOutput(lock, typ byte, data []byte) *txBuilder {
	b.output(lock, data)
	b.tx.Outputs[len(b.tx.Outputs)-1].Type = testScript(typ)
	return b
}

func (b *txBuilder) cellDep(n byte) *txBuilder {
	b.tx.CellDeps = append(b.tx.CellDeps, &types.CellDep{
		OutPoint: &types.OutPoint{TxHash: [32]byte{0xDD, n}, Index: uint32(n)},
		DepType:  types.DepTypeDepGroup,
	})
	return b
}

func (b *txBuilder) headerDep(n byte) *txBuilder {
	b.tx.HeaderDeps = append(b.tx.HeaderDeps, types.Hash{0xEE, n})
	return b
}

// witness appends a layout witness; nil appends an empty witness.
func (b *txBuilder) witness(l layout.WitnessLayout) *txBuilder {
	if l == nil {
		b.tx.Witnesses = append(b.tx.Witnesses, []byte{})
		return b
	}
	b.tx.Witnesses = append(b.tx.Witnesses, layout.Encode(l))
	return b
}

func (b *txBuilder) rawWitness(w []byte) *txBuilder {
	b.tx.Witnesses = append(b.tx.Witnesses, w)
	return b
}

// env builds the accessor seen by the script whose lock is testScript(lock).
func (b *txBuilder) env(t *testing.T, lock byte) *txenv.MemoryEnv {
	t.Helper()
	env, err := txenv.NewMemoryEnv(&b.tx, b.inputs, scriptHash(lock))
	require.NoError(t, err)
	return env
}

type verifyCall struct {
	seal []byte
	smh  [32]byte
}

// recordingVerifier accepts every seal unless reject is set, and records
// each invocation.
type recordingVerifier struct {
	calls  []verifyCall
	reject error
}

func (r *recordingVerifier) Verify(seal []byte, smh [32]byte) error {
	r.calls = append(r.calls, verifyCall{seal: append([]byte(nil), seal...), smh: smh})
	return r.reject
}

var errBadSeal = errors.New("bad seal")

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "unexpected error: %v", err)
}
