package cobuild

import (
	"encoding/binary"
	"io"

	"github.com/suffix-labs/ckb-cobuild/pkg/crypto"
	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// DefaultChunkSize is the buffer used to stream cell data into a hasher.
const DefaultChunkSize = 32 * 1024

// OtxSigningRange is the slice of each transaction array one signing
// message hash commits to.
type OtxSigningRange struct {
	InputStart     int
	InputCount     int
	OutputStart    int
	OutputCount    int
	CellDepStart   int
	CellDepCount   int
	HeaderDepStart int
	HeaderDepCount int
}

// preimageWriter writes signing message hash preimages. Hashing and
// preimage construction are kept apart so the exact bytes can be checked.
type preimageWriter struct {
	env txenv.Env
	buf []byte
}

func newPreimageWriter(env txenv.Env, chunkSize int) *preimageWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &preimageWriter{env: env, buf: make([]byte, chunkSize)}
}

func writeUint32(w io.Writer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

// writeCellData absorbs len(data):u32le followed by the data itself,
// streamed in chunks.
func (p *preimageWriter) writeCellData(w io.Writer, index int, source txenv.Source) error {
	data, err := p.env.CellData(index, source)
	if err != nil {
		return hostError(err, "loading data of %s %d", source, index)
	}
	writeUint32(w, uint32(data.Size()))
	if _, err := txenv.StreamCellData(w, data, p.buf); err != nil {
		return hostError(err, "reading data of %s %d", source, index)
	}
	return nil
}

// writeOtx writes the preimage of an open transaction commitment:
//
//	message
//	input_count:u32   || (CellInput || CellOutput || data_len:u32 || data) per input
//	output_count:u32  || (CellOutput || data_len:u32 || data) per output
//	cell_dep_count:u32   || CellDep per dep
//	header_dep_count:u32 || Byte32 per dep
//
// Output data framing is the molecule Bytes encoding of outputs_data[i],
// which is byte-identical to data_len:u32 || data.
func (p *preimageWriter) writeOtx(w io.Writer, message []byte, r OtxSigningRange) error {
	w.Write(message)

	writeUint32(w, uint32(r.InputCount))
	for i := r.InputStart; i < r.InputStart+r.InputCount; i++ {
		input, err := p.env.Input(i, txenv.SourceInput)
		if err != nil {
			return hostError(err, "loading input %d", i)
		}
		w.Write(input)

		cell, err := p.env.Cell(i, txenv.SourceInput)
		if err != nil {
			return hostError(err, "loading input cell %d", i)
		}
		w.Write(cell)

		if err := p.writeCellData(w, i, txenv.SourceInput); err != nil {
			return err
		}
	}

	writeUint32(w, uint32(r.OutputCount))
	for i := r.OutputStart; i < r.OutputStart+r.OutputCount; i++ {
		cell, err := p.env.Cell(i, txenv.SourceOutput)
		if err != nil {
			return hostError(err, "loading output %d", i)
		}
		w.Write(cell)

		if err := p.writeCellData(w, i, txenv.SourceOutput); err != nil {
			return err
		}
	}

	writeUint32(w, uint32(r.CellDepCount))
	for i := r.CellDepStart; i < r.CellDepStart+r.CellDepCount; i++ {
		dep, err := p.env.CellDep(i)
		if err != nil {
			return hostError(err, "loading cell dep %d", i)
		}
		w.Write(dep)
	}

	writeUint32(w, uint32(r.HeaderDepCount))
	for i := r.HeaderDepStart; i < r.HeaderDepStart+r.HeaderDepCount; i++ {
		dep, err := p.env.HeaderDep(i)
		if err != nil {
			return hostError(err, "loading header dep %d", i)
		}
		w.Write(dep[:])
	}
	return nil
}

// writeSighashAll writes the preimage of a whole-transaction commitment:
//
//	[message]
//	tx_hash
//	(CellOutput || data_len:u32 || data) per input
//	(witness_len:u32 || witness) per witness at index >= input count
//
// message is nil for SighashAllOnly; the personalization distinguishes the
// two modes.
func (p *preimageWriter) writeSighashAll(w io.Writer, message []byte) error {
	if message != nil {
		w.Write(message)
	}

	txHash, err := p.env.TxHash()
	if err != nil {
		return hostError(err, "loading tx hash")
	}
	w.Write(txHash[:])

	inputs, err := p.env.Count(txenv.SourceInput)
	if err != nil {
		return hostError(err, "counting inputs")
	}
	for i := 0; i < inputs; i++ {
		cell, err := p.env.Cell(i, txenv.SourceInput)
		if err != nil {
			return hostError(err, "loading input cell %d", i)
		}
		w.Write(cell)

		if err := p.writeCellData(w, i, txenv.SourceInput); err != nil {
			return err
		}
	}

	witnesses, err := p.env.WitnessCount()
	if err != nil {
		return hostError(err, "counting witnesses")
	}
	for i := inputs; i < witnesses; i++ {
		witness, err := p.env.Witness(i, txenv.SourceInput)
		if err != nil {
			return hostError(err, "loading witness %d", i)
		}
		writeUint32(w, uint32(len(witness)))
		w.Write(witness)
	}
	return nil
}

// GenerateOtxSMH computes the signing message hash of an open transaction
// over the cells and deps selected by r.
func GenerateOtxSMH(env txenv.Env, message *layout.Message, r OtxSigningRange) ([32]byte, error) {
	return generateOtxSMH(newPreimageWriter(env, DefaultChunkSize), message, r)
}

func generateOtxSMH(p *preimageWriter, message *layout.Message, r OtxSigningRange) ([32]byte, error) {
	h := crypto.NewOtxHasher()
	if err := p.writeOtx(h, message.Serialize(), r); err != nil {
		return [32]byte{}, err
	}
	return crypto.Sum256(h), nil
}

// GenerateSighashAllSMH computes the whole-transaction signing message
// hash. A nil message selects SighashAllOnly mode.
func GenerateSighashAllSMH(env txenv.Env, message *layout.Message) ([32]byte, error) {
	return generateSighashAllSMH(newPreimageWriter(env, DefaultChunkSize), message)
}

func generateSighashAllSMH(p *preimageWriter, message *layout.Message) ([32]byte, error) {
	h := crypto.NewSighashAllOnlyHasher()
	var msgBytes []byte
	if message != nil {
		h = crypto.NewSighashAllHasher()
		msgBytes = message.Serialize()
	}
	if err := p.writeSighashAll(h, msgBytes); err != nil {
		return [32]byte{}, err
	}
	return crypto.Sum256(h), nil
}
