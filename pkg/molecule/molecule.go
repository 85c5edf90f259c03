// Package molecule implements the molecule primitives behind the cobuild
// witness layouts. The blockchain structures use the generated readers of
// ckb-sdk-go; the cobuild schema is not part of it.
//
// Molecule is a canonical, non self-describing serialization format, and
// signing message hashes are computed over the raw molecule bytes. The encoders in this package therefore have to be byte
// exact: a single misplaced offset changes every digest built on top.
//
// Wire rules (all integers are little-endian):
//
//	byte          1 byte
//	array/struct  fixed size, fields back to back
//	fixvec<T>     item_count:u32 || items
//	dynvec<T>     total_size:u32 || offset:u32 * n || items
//	table         same header as dynvec, one item per field
//	option<T>     empty for None, the inner encoding otherwise
//	union         item_id:u32 || item
package molecule

import (
	"encoding/binary"
)

// NumberSize is the size of every molecule header word.
const NumberSize = 4

// EmptyDynVec is the encoding of a dynvec (or table) with no items.
var EmptyDynVec = []byte{0x04, 0x00, 0x00, 0x00}

// PackUint32 encodes a Uint32 array.
func PackUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// PackUint64 encodes a Uint64 array.
func PackUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// PackBytes encodes a Bytes fixvec: length prefix followed by the data.
func PackBytes(data []byte) []byte {
	buf := make([]byte, NumberSize, NumberSize+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// PackFixVec encodes a fixvec from already encoded fixed-size items.
func PackFixVec(items ...[]byte) []byte {
	size := NumberSize
	for _, item := range items {
		size += len(item)
	}
	buf := make([]byte, NumberSize, size)
	binary.LittleEndian.PutUint32(buf, uint32(len(items)))
	for _, item := range items {
		buf = append(buf, item...)
	}
	return buf
}

// PackDynVec encodes a dynvec from already encoded items.
func PackDynVec(items ...[]byte) []byte {
	headerSize := NumberSize * (len(items) + 1)
	totalSize := headerSize
	for _, item := range items {
		totalSize += len(item)
	}

	buf := make([]byte, headerSize, totalSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(totalSize))
	offset := headerSize
	for i, item := range items {
		binary.LittleEndian.PutUint32(buf[NumberSize*(i+1):], uint32(offset))
		offset += len(item)
	}
	for _, item := range items {
		buf = append(buf, item...)
	}
	return buf
}

// PackTable encodes a table. The layout is identical to a dynvec whose
// items are the table fields in declaration order.
func PackTable(fields ...[]byte) []byte {
	return PackDynVec(fields...)
}

// PackUnion encodes a union item with the given item id.
func PackUnion(id uint32, item []byte) []byte {
	buf := make([]byte, NumberSize, NumberSize+len(item))
	binary.LittleEndian.PutUint32(buf, id)
	return append(buf, item...)
}

// PackOption encodes an option: nil stays empty.
func PackOption(inner []byte) []byte {
	if inner == nil {
		return []byte{}
	}
	return inner
}
