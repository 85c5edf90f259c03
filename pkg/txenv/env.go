// Package txenv defines the transaction accessor the cobuild engine reads
// from.
//
// The accessor is index based, in the style of the CKB syscalls: every
// field is addressed by (index, source) and reading past the end of a
// source fails with ErrIndexOutOfBound. Cell data is exposed through
// CellData so large payloads can be streamed into a hasher without being
// copied into one buffer.
package txenv

import (
	"errors"
	"fmt"
	"io"
)

// Source selects which array of the transaction an index refers to.
type Source int

const (
	// SourceInput addresses transaction inputs (and, for witnesses, the
	// full witness array).
	SourceInput Source = iota + 1
	// SourceOutput addresses transaction outputs.
	SourceOutput
	// SourceCellDep addresses cell deps.
	SourceCellDep
	// SourceHeaderDep addresses header deps.
	SourceHeaderDep
	// SourceGroupInput addresses the inputs whose lock is the current
	// script, and the witnesses at the same positions.
	SourceGroupInput
)

func (s Source) String() string {
	switch s {
	case SourceInput:
		return "input"
	case SourceOutput:
		return "output"
	case SourceCellDep:
		return "cell_dep"
	case SourceHeaderDep:
		return "header_dep"
	case SourceGroupInput:
		return "group_input"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

var (
	// ErrIndexOutOfBound is returned when an index is past the end of
	// its source.
	ErrIndexOutOfBound = errors.New("index out of bound")

	// ErrItemMissing is returned when a field is not available from the
	// requested source (e.g. cell data of a header dep).
	ErrItemMissing = errors.New("item missing")

	// ErrLengthNotEnough is returned when a CellData yields fewer bytes
	// than its declared size.
	ErrLengthNotEnough = errors.New("length not enough")
)

// CellData is a cell payload that can be read piecewise.
type CellData interface {
	io.ReaderAt
	// Size returns the payload length in bytes.
	Size() int64
}

// Env gives read access to the transaction under verification.
// Implementations must be deterministic and side-effect free.
type Env interface {
	// ScriptHash returns the hash of the script being executed.
	ScriptHash() ([32]byte, error)
	// TxHash returns the transaction hash.
	TxHash() ([32]byte, error)

	// Count returns the number of entries in source. Witnesses are
	// counted separately by WitnessCount.
	Count(source Source) (int, error)
	// WitnessCount returns the number of witnesses in the transaction.
	WitnessCount() (int, error)

	// Input returns the molecule CellInput at index of SourceInput or
	// SourceGroupInput.
	Input(index int, source Source) ([]byte, error)
	// Cell returns the molecule CellOutput of the cell at index.
	Cell(index int, source Source) ([]byte, error)
	// CellData returns the payload of the cell at index.
	CellData(index int, source Source) (CellData, error)
	// CellLockHash returns the lock script hash of the cell at index.
	CellLockHash(index int, source Source) ([32]byte, error)
	// CellTypeHash returns the type script hash of the cell at index;
	// ok is false when the cell has no type script.
	CellTypeHash(index int, source Source) (hash [32]byte, ok bool, err error)
	// CellDep returns the molecule CellDep at index.
	CellDep(index int) ([]byte, error)
	// HeaderDep returns the header dep hash at index.
	HeaderDep(index int) ([32]byte, error)
	// Witness returns the witness at index of SourceInput (the whole
	// witness array) or SourceGroupInput.
	Witness(index int, source Source) ([]byte, error)
}

// Bytes is a CellData backed by an in-memory slice.
type Bytes []byte

// Size implements CellData.
func (b Bytes) Size() int64 { return int64(len(b)) }

// ReadAt implements io.ReaderAt.
func (b Bytes) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("txenv: negative offset")
	}
	if off >= int64(len(b)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// StreamCellData copies the whole payload of data into w using buf as the
// transfer buffer, so at most len(buf) bytes are held at a time. A payload
// shorter than its declared size fails with ErrLengthNotEnough.
func StreamCellData(w io.Writer, data CellData, buf []byte) (int64, error) {
	size := data.Size()
	n, err := io.CopyBuffer(w, io.NewSectionReader(data, 0, size), buf)
	if err != nil {
		return n, err
	}
	if n != size {
		return n, fmt.Errorf("%w: read %d of %d bytes", ErrLengthNotEnough, n, size)
	}
	return n, nil
}
