package cobuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/molecule"
)

func testEngine(t *testing.T) *Engine {
	return New(WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))), WithChunkSize(16))
}

func TestVerifyLegacy(t *testing.T) {
	// An empty WitnessArgs: table of three absent options.
	witnessArgs := molecule.PackTable(nil, nil, nil)
	env := newTxBuilder().
		input(1, nil).
		output(2, nil).
		rawWitness(witnessArgs).
		env(t, 1)

	v := &recordingVerifier{}
	out, err := testEngine(t).Verify(env, v)
	require.NoError(t, err)
	assert.False(t, out.Handled)
	assert.Empty(t, v.calls)
}

func TestVerifySighashAll(t *testing.T) {
	b := newTxBuilder().
		input(1, []byte("data")).
		input(2, nil).
		output(3, nil).
		witness(&layout.SighashAll{Seal: []byte("seal")}).
		witness(nil)
	env := b.env(t, 1)

	v := &recordingVerifier{}
	out, err := testEngine(t).Verify(env, v)
	require.NoError(t, err)
	assert.True(t, out.Handled)
	assert.Equal(t, 1, out.Verified)

	want, err := GenerateSighashAllSMH(env, &layout.Message{})
	require.NoError(t, err)
	require.Len(t, v.calls, 1)
	assert.Equal(t, []byte("seal"), v.calls[0].seal)
	assert.Equal(t, want, v.calls[0].smh)

	_, err = testEngine(t).Verify(env, &recordingVerifier{reject: errBadSeal})
	requireCode(t, err, CodeAuthError)
	assert.ErrorIs(t, err, errBadSeal)
}

func TestVerifySighashAllOnly(t *testing.T) {
	env := newTxBuilder().
		input(1, nil).
		witness(&layout.SighashAllOnly{Seal: []byte("only")}).
		env(t, 1)

	v := &recordingVerifier{}
	out, err := Verify(env, v)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Handled: true, Verified: 1}, out)

	want, err := GenerateSighashAllSMH(env, nil)
	require.NoError(t, err)
	assert.Equal(t, want, v.calls[0].smh)
}

func TestVerifySighashAllMessageChecked(t *testing.T) {
	msg := layout.Message{Actions: []layout.Action{{
		ScriptHash: scriptHash(9),
		ScriptType: byte(layout.ScriptTypeInputType),
	}}}
	env := newTxBuilder().
		input(1, nil).
		witness(&layout.SighashAll{Message: msg, Seal: []byte("seal")}).
		env(t, 1)

	_, err := testEngine(t).Verify(env, &recordingVerifier{})
	requireCode(t, err, CodeScriptHashAbsent)
}

func TestVerifySighashAllGroupWitnesses(t *testing.T) {
	t.Run("non-empty second group witness", func(t *testing.T) {
		env := newTxBuilder().
			input(1, nil).
			input(1, nil).
			witness(&layout.SighashAllOnly{Seal: []byte("seal")}).
			rawWitness([]byte{0x01}).
			env(t, 1)
		_, err := testEngine(t).Verify(env, &recordingVerifier{})
		requireCode(t, err, CodeWrongWitnessLayout)
	})

	t.Run("two SighashAll witnesses", func(t *testing.T) {
		env := newTxBuilder().
			input(1, nil).
			input(2, nil).
			witness(&layout.SighashAll{Seal: []byte("a")}).
			witness(&layout.SighashAll{Seal: []byte("b")}).
			env(t, 1)
		_, err := testEngine(t).Verify(env, &recordingVerifier{})
		requireCode(t, err, CodeWrongWitnessLayout)
	})

	t.Run("first group witness is not a seal", func(t *testing.T) {
		env := newTxBuilder().
			input(2, nil).
			input(1, nil).
			witness(&layout.SighashAllOnly{Seal: []byte("other")}).
			witness(nil).
			env(t, 1)
		_, err := testEngine(t).Verify(env, &recordingVerifier{})
		requireCode(t, err, CodeEncoding)
	})
}

func TestVerifyMalformedLayout(t *testing.T) {
	// An Otx table with the right shape but a two-byte flag.
	fields := [][]byte{{0, 0}}
	for i := 0; i < 8; i++ {
		fields = append(fields, molecule.PackUint32(1))
	}
	fields = append(fields, (&layout.Message{}).Serialize(), molecule.EmptyDynVec)
	bad := molecule.PackUnion(layout.OtxID, molecule.PackTable(fields...))
	env := newTxBuilder().input(1, nil).rawWitness(bad).env(t, 1)

	_, err := testEngine(t).Verify(env, &recordingVerifier{})
	requireCode(t, err, CodeEncoding)
}

// otxScenario is one input locked by script 1 and two outputs claimed by a
// single Otx.
func otxScenario(sealFor byte) *txBuilder {
	return newTxBuilder().
		input(1, []byte("in")).
		output(2, []byte("out0")).
		output(3, nil).
		witness(&layout.OtxStart{}).
		witness(&layout.Otx{
			FixedInputCells:  1,
			FixedOutputCells: 2,
			Seals:            []layout.SealPair{{ScriptHash: scriptHash(sealFor), Seal: []byte("otx seal")}},
		})
}

func TestVerifySingleOtx(t *testing.T) {
	env := otxScenario(1).env(t, 1)

	v := &recordingVerifier{}
	out, err := testEngine(t).Verify(env, v)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Handled: true, Verified: 1}, out)

	want, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{InputCount: 1, OutputCount: 2})
	require.NoError(t, err)
	require.Len(t, v.calls, 1)
	assert.Equal(t, []byte("otx seal"), v.calls[0].seal)
	assert.Equal(t, want, v.calls[0].smh)
}

func TestVerifyOtxNoSeal(t *testing.T) {
	env := otxScenario(5).env(t, 1)

	v := &recordingVerifier{}
	_, err := testEngine(t).Verify(env, v)
	requireCode(t, err, CodeNoSealFound)
	assert.Empty(t, v.calls)
}

func TestVerifyOtxNotContiguous(t *testing.T) {
	otx := &layout.Otx{FixedInputCells: 1}
	env := newTxBuilder().
		input(1, nil).
		input(2, nil).
		witness(&layout.OtxStart{}).
		witness(otx).
		witness(nil).
		witness(otx).
		env(t, 1)

	_, err := testEngine(t).Verify(env, &recordingVerifier{})
	requireCode(t, err, CodeWrongWitnessLayout)
}

func TestVerifyEmptyOtxRun(t *testing.T) {
	env := newTxBuilder().
		input(2, nil).
		input(1, nil).
		witness(&layout.OtxStart{}).
		witness(&layout.SighashAll{Seal: []byte("whole")}).
		env(t, 1)

	v := &recordingVerifier{}
	out, err := testEngine(t).Verify(env, v)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Handled: true, Verified: 1}, out)
	assert.Equal(t, []byte("whole"), v.calls[0].seal)
}

func TestVerifyOtxSkipsForeignOtx(t *testing.T) {
	b := newTxBuilder().
		input(2, nil).
		input(1, nil).
		output(2, nil).
		output(1, nil).
		cellDep(1).
		witness(&layout.OtxStart{}).
		witness(&layout.Otx{
			FixedInputCells:  1,
			FixedOutputCells: 1,
			Seals:            []layout.SealPair{{ScriptHash: scriptHash(2), Seal: []byte("theirs")}},
		}).
		witness(&layout.Otx{
			FixedInputCells:  1,
			FixedOutputCells: 1,
			FixedCellDeps:    1,
			Seals:            []layout.SealPair{{ScriptHash: scriptHash(1), Seal: []byte("mine")}},
		})
	env := b.env(t, 1)

	v := &recordingVerifier{}
	out, err := testEngine(t).Verify(env, v)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Verified)

	// The second Otx starts where the first one ends in every category.
	want, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{
		InputStart: 1, InputCount: 1,
		OutputStart: 1, OutputCount: 1,
		CellDepStart: 0, CellDepCount: 1,
	})
	require.NoError(t, err)
	require.Len(t, v.calls, 1)
	assert.Equal(t, []byte("mine"), v.calls[0].seal)
	assert.Equal(t, want, v.calls[0].smh)
}

func TestVerifyOtxFixedAndDynamic(t *testing.T) {
	mine := scriptHash(1)
	b := newTxBuilder().
		input(1, nil).
		input(1, nil).
		output(2, nil).
		witness(&layout.OtxStart{}).
		witness(&layout.Otx{
			Flag:              FlagDynamicInputs,
			FixedInputCells:   1,
			FixedOutputCells:  1,
			DynamicInputCells: 1,
			Seals: []layout.SealPair{
				{ScriptHash: mine, Seal: []byte("fixed")},
				{ScriptHash: scriptHash(2), Seal: []byte("other")},
				{ScriptHash: mine, Seal: []byte("dynamic")},
			},
		})
	env := b.env(t, 1)

	fixed, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{InputCount: 1, OutputCount: 1})
	require.NoError(t, err)
	dynamic, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{InputCount: 2, OutputCount: 1})
	require.NoError(t, err)
	require.NotEqual(t, fixed, dynamic)

	t.Run("seals at both ends", func(t *testing.T) {
		v := &recordingVerifier{}
		out, err := testEngine(t).Verify(env, v)
		require.NoError(t, err)
		assert.Equal(t, 2, out.Verified)
		require.Len(t, v.calls, 2)
		assert.Equal(t, verifyCall{seal: []byte("fixed"), smh: fixed}, v.calls[0])
		assert.Equal(t, verifyCall{seal: []byte("dynamic"), smh: dynamic}, v.calls[1])
	})

	t.Run("single seal covers only one range", func(t *testing.T) {
		b.tx.Witnesses[1] = layout.Encode(&layout.Otx{
			Flag:              FlagDynamicInputs,
			FixedInputCells:   1,
			FixedOutputCells:  1,
			DynamicInputCells: 1,
			Seals:             []layout.SealPair{{ScriptHash: mine, Seal: []byte("fixed")}},
		})
		calls := 0
		verifier := VerifierFunc(func(seal []byte, smh [32]byte) error {
			calls++
			if smh != fixed {
				return errBadSeal
			}
			return nil
		})
		_, err := testEngine(t).Verify(env, verifier)
		requireCode(t, err, CodeAuthError)
		assert.Equal(t, 2, calls)
	})
}

func TestVerifyOtxDynamicOnly(t *testing.T) {
	env := newTxBuilder().
		input(2, nil).
		input(1, nil).
		witness(&layout.OtxStart{}).
		witness(&layout.Otx{
			Flag:              FlagDynamicInputs,
			FixedInputCells:   1,
			DynamicInputCells: 1,
			Seals: []layout.SealPair{
				{ScriptHash: scriptHash(1), Seal: []byte("a")},
				{ScriptHash: scriptHash(1), Seal: []byte("b")},
			},
		}).
		env(t, 1)

	v := &recordingVerifier{}
	out, err := testEngine(t).Verify(env, v)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Verified)

	want, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{InputCount: 2})
	require.NoError(t, err)
	assert.Equal(t, verifyCall{seal: []byte("b"), smh: want}, v.calls[0])
}

func TestVerifyOtxCounts(t *testing.T) {
	cases := map[string]struct {
		otx  *layout.Otx
		code ErrorCode
	}{
		"reserved flag bit": {
			otx:  &layout.Otx{Flag: 0x10, FixedInputCells: 1},
			code: CodeInvalidOtxFlag,
		},
		"no fixed entries": {
			otx:  &layout.Otx{Flag: FlagDynamicInputs, DynamicInputCells: 1},
			code: CodeWrongCount,
		},
		"dynamic without flag": {
			otx:  &layout.Otx{FixedInputCells: 1, DynamicOutputCells: 1},
			code: CodeWrongCount,
		},
		"claims past the inputs": {
			otx:  &layout.Otx{FixedInputCells: 3},
			code: CodeWrongCount,
		},
		"claims past the header deps": {
			otx:  &layout.Otx{FixedInputCells: 1, FixedHeaderDeps: 1},
			code: CodeWrongCount,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTxBuilder().
				input(1, nil).
				input(2, nil).
				witness(&layout.OtxStart{}).
				witness(c.otx).
				env(t, 1)
			_, err := testEngine(t).Verify(env, &recordingVerifier{})
			requireCode(t, err, c.code)
		})
	}
}

// A claim past the end of an array makes the whole run malformed, so every
// script in the transaction rejects it, including scripts the Otx does not
// concern.
func TestVerifyForeignOtxPastArrayEnd(t *testing.T) {
	env := newTxBuilder().
		input(2, nil).
		input(1, nil).
		witness(&layout.OtxStart{}).
		witness(&layout.Otx{
			FixedInputCells:  1,
			FixedOutputCells: 1,
			Seals:            []layout.SealPair{{ScriptHash: scriptHash(2), Seal: []byte("theirs")}},
		}).
		witness(&layout.SighashAll{Seal: []byte("whole")}).
		env(t, 1)

	v := &recordingVerifier{}
	_, err := testEngine(t).Verify(env, v)
	requireCode(t, err, CodeWrongCount)
	assert.Empty(t, v.calls)
}

func TestVerifyOtxStartBeyondArrays(t *testing.T) {
	env := newTxBuilder().
		input(1, nil).
		witness(&layout.OtxStart{StartOutputCell: 1}).
		witness(&layout.Otx{FixedInputCells: 1}).
		env(t, 1)

	_, err := testEngine(t).Verify(env, &recordingVerifier{})
	requireCode(t, err, CodeWrongOtxStart)
}

func TestVerifyOtxMessageOutsideClaim(t *testing.T) {
	env := newTxBuilder().
		input(1, nil).
		typedInput(2, 7, nil).
		witness(&layout.OtxStart{}).
		witness(&layout.Otx{
			FixedInputCells: 1,
			Message: layout.Message{Actions: []layout.Action{{
				ScriptHash: scriptHash(7),
				ScriptType: byte(layout.ScriptTypeInputType),
			}}},
			Seals: []layout.SealPair{{ScriptHash: scriptHash(1), Seal: []byte("s")}},
		}).
		env(t, 1)

	_, err := testEngine(t).Verify(env, &recordingVerifier{})
	requireCode(t, err, CodeScriptHashAbsent)
}

func TestVerifyResidualInputs(t *testing.T) {
	otx := &layout.Otx{
		FixedInputCells: 1,
		Seals:           []layout.SealPair{{ScriptHash: scriptHash(1), Seal: []byte("otx")}},
	}

	t.Run("owned input before the run", func(t *testing.T) {
		env := newTxBuilder().
			input(1, nil).
			input(1, nil).
			witness(&layout.SighashAllOnly{Seal: []byte("whole")}).
			witness(nil).
			witness(&layout.OtxStart{StartInputCell: 1}).
			witness(otx).
			env(t, 1)

		v := &recordingVerifier{}
		out, err := testEngine(t).Verify(env, v)
		require.NoError(t, err)
		assert.Equal(t, Outcome{Handled: true, Verified: 2}, out)
		require.Len(t, v.calls, 2)
		assert.Equal(t, []byte("otx"), v.calls[0].seal)
		assert.Equal(t, []byte("whole"), v.calls[1].seal)

		whole, err := GenerateSighashAllSMH(env, nil)
		require.NoError(t, err)
		assert.Equal(t, whole, v.calls[1].smh)
	})

	t.Run("no owned input outside the run", func(t *testing.T) {
		env := newTxBuilder().
			input(2, nil).
			input(1, nil).
			witness(nil).
			witness(&layout.OtxStart{StartInputCell: 1}).
			witness(otx).
			env(t, 1)

		v := &recordingVerifier{}
		out, err := testEngine(t).Verify(env, v)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Verified)
	})

	t.Run("residual group witness must be empty", func(t *testing.T) {
		env := newTxBuilder().
			input(1, nil).
			input(1, nil).
			witness(&layout.SighashAllOnly{Seal: []byte("whole")}).
			witness(&layout.OtxStart{StartInputCell: 1}).
			witness(otx).
			env(t, 1)

		_, err := testEngine(t).Verify(env, &recordingVerifier{})
		requireCode(t, err, CodeWrongWitnessLayout)
	})
}

func TestVerifyPartition(t *testing.T) {
	// Three Otxs with dynamic entries in every category; the script owns
	// one input in each.
	b := newTxBuilder()
	for i := 0; i < 6; i++ {
		b.input(1, []byte{byte(i)}).output(2, []byte{byte(i)}).cellDep(byte(i)).headerDep(byte(i))
	}
	b.witness(&layout.OtxStart{})
	for i := 0; i < 3; i++ {
		b.witness(&layout.Otx{
			Flag:               0x0F,
			FixedInputCells:    1,
			FixedOutputCells:   1,
			FixedCellDeps:      1,
			FixedHeaderDeps:    1,
			DynamicInputCells:  1,
			DynamicOutputCells: 1,
			DynamicCellDeps:    1,
			DynamicHeaderDeps:  1,
			Seals: []layout.SealPair{
				{ScriptHash: scriptHash(1), Seal: []byte{'f', byte(i)}},
				{ScriptHash: scriptHash(1), Seal: []byte{'d', byte(i)}},
			},
		})
	}
	env := b.env(t, 1)

	v := &recordingVerifier{}
	out, err := testEngine(t).Verify(env, v)
	require.NoError(t, err)
	require.Equal(t, 6, out.Verified)

	for i := 0; i < 3; i++ {
		base := 2 * i
		fixed, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{
			InputStart: base, InputCount: 1,
			OutputStart: base, OutputCount: 1,
			CellDepStart: base, CellDepCount: 1,
			HeaderDepStart: base, HeaderDepCount: 1,
		})
		require.NoError(t, err)
		dynamic, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{
			InputStart: base, InputCount: 2,
			OutputStart: base, OutputCount: 1,
			CellDepStart: base, CellDepCount: 1,
			HeaderDepStart: base, HeaderDepCount: 1,
		})
		require.NoError(t, err)

		assert.Equal(t, verifyCall{seal: []byte{'f', byte(i)}, smh: fixed}, v.calls[2*i])
		assert.Equal(t, verifyCall{seal: []byte{'d', byte(i)}, smh: dynamic}, v.calls[2*i+1])
	}
}
