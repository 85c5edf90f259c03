package cobuild

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/ckb-cobuild/pkg/crypto"
	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
	"github.com/suffix-labs/ckb-cobuild/pkg/types"
)

func le32(v int) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func smhFixture() *txBuilder {
	return newTxBuilder().
		input(1, []byte("first input data")).
		input(2, nil).
		input(1, bytes.Repeat([]byte{0x5A}, 100)).
		output(3, []byte{0x01, 0x02}).
		output(4, nil).
		cellDep(1).
		cellDep(2).
		headerDep(1).
		headerDep(2)
}

func testMessage() *layout.Message {
	return &layout.Message{Actions: []layout.Action{{
		ScriptInfoHash: [32]byte{0x11},
		ScriptHash:     scriptHash(1),
		ScriptType:     byte(layout.ScriptTypeInputLock),
		Data:           []byte("transfer"),
	}}}
}

func TestOtxPreimageLayout(t *testing.T) {
	b := smhFixture()
	env := b.env(t, 1)
	msg := testMessage()

	r := OtxSigningRange{
		InputStart: 1, InputCount: 2,
		OutputStart: 0, OutputCount: 2,
		CellDepStart: 1, CellDepCount: 1,
		HeaderDepStart: 0, HeaderDepCount: 2,
	}

	var got bytes.Buffer
	require.NoError(t, newPreimageWriter(env, 7).writeOtx(&got, msg.Serialize(), r))

	tx := &b.tx
	want := cat(
		msg.Serialize(),
		le32(2),
		types.SerializeCellInput(tx.Inputs[1]), types.SerializeCellOutput(&b.inputs[1].Output), le32(0),
		types.SerializeCellInput(tx.Inputs[2]), types.SerializeCellOutput(&b.inputs[2].Output), le32(100), bytes.Repeat([]byte{0x5A}, 100),
		le32(2),
		types.SerializeCellOutput(tx.Outputs[0]), le32(2), []byte{0x01, 0x02},
		types.SerializeCellOutput(tx.Outputs[1]), le32(0),
		le32(1),
		types.SerializeCellDep(tx.CellDeps[1]),
		le32(2),
		tx.HeaderDeps[0][:], tx.HeaderDeps[1][:],
	)
	assert.Equal(t, want, got.Bytes())

	// The hash is the otx-personalized digest of exactly these bytes.
	h := crypto.NewOtxHasher()
	h.Write(want)
	smh, err := GenerateOtxSMH(env, msg, r)
	require.NoError(t, err)
	assert.Equal(t, crypto.Sum256(h), smh)
}

func TestOtxPreimageEmptyRange(t *testing.T) {
	env := smhFixture().env(t, 1)
	msg := &layout.Message{}

	var got bytes.Buffer
	require.NoError(t, newPreimageWriter(env, 0).writeOtx(&got, msg.Serialize(), OtxSigningRange{}))
	assert.Equal(t, cat(msg.Serialize(), le32(0), le32(0), le32(0), le32(0)), got.Bytes())
}

func TestOtxPreimageOutOfRange(t *testing.T) {
	env := smhFixture().env(t, 1)
	_, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{InputStart: 2, InputCount: 2})
	requireCode(t, err, CodeIndexOutOfBound)

	_, err = GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{HeaderDepStart: 2, HeaderDepCount: 1})
	requireCode(t, err, CodeIndexOutOfBound)
}

func TestSighashAllPreimageLayout(t *testing.T) {
	b := smhFixture()
	extra := []byte("extra witness")
	b.witness(nil).witness(nil).witness(nil).rawWitness(extra).witness(nil)
	env := b.env(t, 1)
	msg := testMessage()
	txHash := types.TxHash(&b.tx)

	cells := cat(
		types.SerializeCellOutput(&b.inputs[0].Output), le32(16), []byte("first input data"),
		types.SerializeCellOutput(&b.inputs[1].Output), le32(0),
		types.SerializeCellOutput(&b.inputs[2].Output), le32(100), bytes.Repeat([]byte{0x5A}, 100),
	)
	witnesses := cat(le32(len(extra)), extra, le32(0))

	t.Run("with message", func(t *testing.T) {
		var got bytes.Buffer
		require.NoError(t, newPreimageWriter(env, 3).writeSighashAll(&got, msg.Serialize()))
		want := cat(msg.Serialize(), txHash[:], cells, witnesses)
		assert.Equal(t, want, got.Bytes())

		h := crypto.NewSighashAllHasher()
		h.Write(want)
		smh, err := GenerateSighashAllSMH(env, msg)
		require.NoError(t, err)
		assert.Equal(t, crypto.Sum256(h), smh)
	})

	t.Run("without message", func(t *testing.T) {
		var got bytes.Buffer
		require.NoError(t, newPreimageWriter(env, 3).writeSighashAll(&got, nil))
		want := cat(txHash[:], cells, witnesses)
		assert.Equal(t, want, got.Bytes())

		h := crypto.NewSighashAllOnlyHasher()
		h.Write(want)
		smh, err := GenerateSighashAllSMH(env, nil)
		require.NoError(t, err)
		assert.Equal(t, crypto.Sum256(h), smh)
	})

	t.Run("empty message differs from no message", func(t *testing.T) {
		withEmpty, err := GenerateSighashAllSMH(env, &layout.Message{})
		require.NoError(t, err)
		without, err := GenerateSighashAllSMH(env, nil)
		require.NoError(t, err)
		assert.NotEqual(t, withEmpty, without)
	})
}

func TestSMHDeterministic(t *testing.T) {
	env := smhFixture().env(t, 1)
	r := OtxSigningRange{InputCount: 3, OutputCount: 2, CellDepCount: 2, HeaderDepCount: 2}

	first, err := GenerateOtxSMH(env, testMessage(), r)
	require.NoError(t, err)
	second, err := GenerateOtxSMH(env, testMessage(), r)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	whole1, err := GenerateSighashAllSMH(env, testMessage())
	require.NoError(t, err)
	whole2, err := GenerateSighashAllSMH(env, testMessage())
	require.NoError(t, err)
	assert.Equal(t, whole1, whole2)
}

func TestSMHIndependentOfChunkSize(t *testing.T) {
	env := smhFixture().env(t, 1)
	r := OtxSigningRange{InputCount: 3, OutputCount: 2}

	want, err := GenerateOtxSMH(env, testMessage(), r)
	require.NoError(t, err)
	for _, size := range []int{1, 2, 13, 64, 1 << 20} {
		got, err := generateOtxSMH(newPreimageWriter(env, size), testMessage(), r)
		require.NoError(t, err)
		assert.Equal(t, want, got, "chunk size %d", size)
	}
}

type truncatedEnv struct {
	*txenv.MemoryEnv
}

type shortData struct{ txenv.Bytes }

func (s shortData) Size() int64 { return int64(len(s.Bytes)) + 10 }

func (e truncatedEnv) CellData(index int, source txenv.Source) (txenv.CellData, error) {
	data, err := e.MemoryEnv.CellData(index, source)
	if err != nil {
		return nil, err
	}
	return shortData{data.(txenv.Bytes)}, nil
}

func TestSMHShortCellData(t *testing.T) {
	env := truncatedEnv{smhFixture().env(t, 1)}
	_, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{InputCount: 1})
	requireCode(t, err, CodeLengthNotEnough)
}

var errDiskRead = errors.New("disk read failed")

type brokenData struct{ txenv.Bytes }

func (brokenData) ReadAt(p []byte, off int64) (int, error) { return 0, errDiskRead }

type brokenEnv struct {
	*txenv.MemoryEnv
}

func (e brokenEnv) CellData(index int, source txenv.Source) (txenv.CellData, error) {
	data, err := e.MemoryEnv.CellData(index, source)
	if err != nil {
		return nil, err
	}
	return brokenData{data.(txenv.Bytes)}, nil
}

func TestSMHCellDataReadFailure(t *testing.T) {
	env := brokenEnv{smhFixture().env(t, 1)}
	_, err := GenerateOtxSMH(env, &layout.Message{}, OtxSigningRange{InputCount: 1})
	requireCode(t, err, CodeEncoding)
	assert.ErrorIs(t, err, errDiskRead)
}
