package molecule

import (
	"encoding/binary"
	"fmt"
)

// Kinds of verification failures, mirroring the checks molecule readers
// perform before a structure can be trusted.
const (
	ErrKindHeader      = "header"
	ErrKindTotalSize   = "total size"
	ErrKindItemCount   = "item count"
	ErrKindOffsets     = "offsets"
	ErrKindFieldCount  = "field count"
	ErrKindUnknownItem = "unknown item"
)

// VerificationError reports a structure whose bytes violate the molecule
// layout rules.
type VerificationError struct {
	Type string // Molecule type name being verified (e.g. "CellOutput")
	Kind string // One of the ErrKind constants
	Msg  string // Human-readable detail
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("molecule: %s: %s: %s", e.Type, e.Kind, e.Msg)
}

func verifyErr(typ, kind, format string, args ...interface{}) error {
	return &VerificationError{Type: typ, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// UnpackUint32 decodes a Uint32 array.
func UnpackUint32(typ string, data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, verifyErr(typ, ErrKindTotalSize, "expected 4 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

// UnpackUint64 decodes a Uint64 array.
func UnpackUint64(typ string, data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, verifyErr(typ, ErrKindTotalSize, "expected 8 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

// UnpackByte32 decodes a Byte32 array.
func UnpackByte32(typ string, data []byte) ([32]byte, error) {
	var out [32]byte
	if len(data) != 32 {
		return out, verifyErr(typ, ErrKindTotalSize, "expected 32 bytes, got %d", len(data))
	}
	copy(out[:], data)
	return out, nil
}

// UnpackByte decodes a single byte field.
func UnpackByte(typ string, data []byte) (byte, error) {
	if len(data) != 1 {
		return 0, verifyErr(typ, ErrKindTotalSize, "expected 1 byte, got %d", len(data))
	}
	return data[0], nil
}

// UnpackBytes decodes a Bytes fixvec and returns its payload. The returned
// slice aliases data.
func UnpackBytes(typ string, data []byte) ([]byte, error) {
	if len(data) < NumberSize {
		return nil, verifyErr(typ, ErrKindHeader, "expected at least %d bytes, got %d", NumberSize, len(data))
	}
	count := binary.LittleEndian.Uint32(data)
	if uint64(count) != uint64(len(data)-NumberSize) {
		return nil, verifyErr(typ, ErrKindTotalSize, "header says %d bytes, got %d", count, len(data)-NumberSize)
	}
	return data[NumberSize:], nil
}

// FixVecItems splits a fixvec into its items. Items alias data.
func FixVecItems(typ string, data []byte, itemSize int) ([][]byte, error) {
	if len(data) < NumberSize {
		return nil, verifyErr(typ, ErrKindHeader, "expected at least %d bytes, got %d", NumberSize, len(data))
	}
	count := int(binary.LittleEndian.Uint32(data))
	if count > (len(data)-NumberSize)/itemSize {
		return nil, verifyErr(typ, ErrKindTotalSize, "%d items of %d bytes do not fit in %d bytes", count, itemSize, len(data))
	}
	expected := NumberSize + count*itemSize
	if len(data) != expected {
		return nil, verifyErr(typ, ErrKindTotalSize, "expected %d bytes, got %d", expected, len(data))
	}

	items := make([][]byte, count)
	for i := 0; i < count; i++ {
		start := NumberSize + i*itemSize
		items[i] = data[start : start+itemSize]
	}
	return items, nil
}

// DynVecItems splits a dynvec into its items. Items alias data.
func DynVecItems(typ string, data []byte) ([][]byte, error) {
	offsets, err := readOffsets(typ, data)
	if err != nil {
		return nil, err
	}
	return sliceItems(data, offsets), nil
}

// TableFields splits a table into exactly fieldCount fields. Tables carrying
// extra trailing fields are rejected.
func TableFields(typ string, data []byte, fieldCount int) ([][]byte, error) {
	offsets, err := readOffsets(typ, data)
	if err != nil {
		return nil, err
	}
	if len(offsets) != fieldCount {
		return nil, verifyErr(typ, ErrKindFieldCount, "expected %d fields, got %d", fieldCount, len(offsets))
	}
	return sliceItems(data, offsets), nil
}

// UnionItem splits a union into its item id and item bytes.
func UnionItem(typ string, data []byte) (uint32, []byte, error) {
	if len(data) < NumberSize {
		return 0, nil, verifyErr(typ, ErrKindHeader, "expected at least %d bytes, got %d", NumberSize, len(data))
	}
	return binary.LittleEndian.Uint32(data), data[NumberSize:], nil
}

// readOffsets validates a dynvec/table header and returns the item offsets.
func readOffsets(typ string, data []byte) ([]int, error) {
	if len(data) < NumberSize {
		return nil, verifyErr(typ, ErrKindHeader, "expected at least %d bytes, got %d", NumberSize, len(data))
	}
	totalSize := binary.LittleEndian.Uint32(data)
	if uint64(totalSize) != uint64(len(data)) {
		return nil, verifyErr(typ, ErrKindTotalSize, "header says %d bytes, got %d", totalSize, len(data))
	}
	if len(data) == NumberSize {
		return nil, nil
	}
	if len(data) < NumberSize*2 {
		return nil, verifyErr(typ, ErrKindHeader, "expected at least %d bytes, got %d", NumberSize*2, len(data))
	}

	first := int(binary.LittleEndian.Uint32(data[NumberSize:]))
	if first%NumberSize != 0 || first < NumberSize*2 {
		return nil, verifyErr(typ, ErrKindOffsets, "first offset %d is invalid", first)
	}
	if first > len(data) {
		return nil, verifyErr(typ, ErrKindHeader, "header of %d bytes exceeds total size %d", first, len(data))
	}

	count := first/NumberSize - 1
	offsets := make([]int, count)
	prev := first
	for i := 0; i < count; i++ {
		off := int(binary.LittleEndian.Uint32(data[NumberSize*(i+1):]))
		if off < prev || off > len(data) {
			return nil, verifyErr(typ, ErrKindOffsets, "offset %d of item %d is out of order", off, i)
		}
		offsets[i] = off
		prev = off
	}
	return offsets, nil
}

func sliceItems(data []byte, offsets []int) [][]byte {
	items := make([][]byte, len(offsets))
	for i, start := range offsets {
		end := len(data)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		items[i] = data[start:end]
	}
	return items
}
