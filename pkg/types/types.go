// Package types exposes the CKB transaction structures touched by cobuild
// authorization. The structures, their molecule encoding and the script and
// transaction hashes come from ckb-sdk-go; this package adds the decoding
// entry points and the fixed sizes the engine relies on.
package types

import (
	ckb "github.com/nervosnetwork/ckb-sdk-go/v2/types"
)

// Fixed struct sizes of blockchain.mol.
const (
	OutPointSize  = 36
	CellInputSize = 44
	CellDepSize   = 37
	HeaderDepSize = 32
)

type (
	Hash           = ckb.Hash
	ScriptHashType = ckb.ScriptHashType
	DepType        = ckb.DepType
	Script         = ckb.Script
	OutPoint       = ckb.OutPoint
	CellInput      = ckb.CellInput
	CellOutput     = ckb.CellOutput
	CellDep        = ckb.CellDep
	Transaction    = ckb.Transaction
)

const (
	HashTypeData  = ckb.HashTypeData
	HashTypeType  = ckb.HashTypeType
	HashTypeData1 = ckb.HashTypeData1
	HashTypeData2 = ckb.HashTypeData2

	DepTypeCode     = ckb.DepTypeCode
	DepTypeDepGroup = ckb.DepTypeDepGroup
)

// TxHash returns the transaction hash. Witnesses are not covered.
func TxHash(tx *Transaction) [32]byte {
	return tx.ComputeHash()
}

// TypeHash returns the hash of c's type script, or nil when it has none.
func TypeHash(c *CellOutput) *[32]byte {
	if c.Type == nil {
		return nil
	}
	h := [32]byte(c.Type.Hash())
	return &h
}
