package types

import (
	"fmt"

	"github.com/nervosnetwork/ckb-sdk-go/v2/types/molecule"

	ckb "github.com/nervosnetwork/ckb-sdk-go/v2/types"
)

// SerializeScript encodes the Script table.
func SerializeScript(s *Script) []byte { return s.Pack().AsSlice() }

// SerializeCellInput encodes the CellInput struct.
func SerializeCellInput(c *CellInput) []byte { return c.Pack().AsSlice() }

// SerializeCellDep encodes the CellDep struct.
func SerializeCellDep(c *CellDep) []byte { return c.Pack().AsSlice() }

// SerializeCellOutput encodes the CellOutput table.
func SerializeCellOutput(c *CellOutput) []byte { return c.Pack().AsSlice() }

// SerializeRawTransaction encodes the RawTransaction table, the preimage of
// the transaction hash.
func SerializeRawTransaction(tx *Transaction) []byte {
	return tx.PackToRawTransaction().AsSlice()
}

// SerializeTransaction encodes the Transaction table.
func SerializeTransaction(tx *Transaction) []byte { return tx.Pack().AsSlice() }

// ParseScript decodes a Script table.
func ParseScript(data []byte) (*Script, error) {
	m, err := molecule.ScriptFromSlice(data, false)
	if err != nil {
		return nil, fmt.Errorf("Script: %w", err)
	}
	return ckb.UnpackScript(m), nil
}

// ParseCellOutput decodes a CellOutput table.
func ParseCellOutput(data []byte) (*CellOutput, error) {
	m, err := molecule.CellOutputFromSlice(data, false)
	if err != nil {
		return nil, fmt.Errorf("CellOutput: %w", err)
	}
	return ckb.UnpackCellOutput(m), nil
}

// ParseCellInput decodes a CellInput struct.
func ParseCellInput(data []byte) (*CellInput, error) {
	m, err := molecule.CellInputFromSlice(data, false)
	if err != nil {
		return nil, fmt.Errorf("CellInput: %w", err)
	}
	return ckb.UnpackCellInput(m), nil
}

// ParseCellDep decodes a CellDep struct.
func ParseCellDep(data []byte) (*CellDep, error) {
	m, err := molecule.CellDepFromSlice(data, false)
	if err != nil {
		return nil, fmt.Errorf("CellDep: %w", err)
	}
	return ckb.UnpackCellDep(m), nil
}

// ParseTransaction decodes a Transaction table and fills in its hash.
// Tables carrying extra trailing fields are rejected.
func ParseTransaction(data []byte) (*Transaction, error) {
	m, err := molecule.TransactionFromSlice(data, false)
	if err != nil {
		return nil, fmt.Errorf("Transaction: %w", err)
	}
	tx := ckb.UnpackTransaction(m)
	if len(tx.OutputsData) != len(tx.Outputs) {
		return nil, fmt.Errorf("Transaction: %d outputs but %d outputs_data", len(tx.Outputs), len(tx.OutputsData))
	}
	tx.Hash = tx.ComputeHash()
	return tx, nil
}
