// Package fixture stores transactions and their resolved inputs as JSON.
//
// Molecule structures are kept as 0x-prefixed hex, the way CKB RPC
// clients print raw bytes:
//
//	{
//	  "transaction": "0x...",            // molecule Transaction
//	  "inputs": [
//	    {"output": "0x...", "data": "0x..."}  // molecule CellOutput, raw data
//	  ]
//	}
package fixture

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gofrs/flock"

	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
	"github.com/suffix-labs/ckb-cobuild/pkg/types"
)

// ErrLocked is returned when another process holds the fixture lock.
var ErrLocked = errors.New("fixture is locked by another process")

// Fixture is a transaction together with the cells its inputs consume.
type Fixture struct {
	Tx     *types.Transaction
	Inputs []txenv.ResolvedInput
}

type jsonInput struct {
	Output string `json:"output"`
	Data   string `json:"data"`
}

type jsonFixture struct {
	Transaction string      `json:"transaction"`
	Inputs      []jsonInput `json:"inputs"`
}

// Env returns an accessor over the fixture for the script with scriptHash.
func (f *Fixture) Env(scriptHash [32]byte) (*txenv.MemoryEnv, error) {
	return txenv.NewMemoryEnv(f.Tx, f.Inputs, scriptHash)
}

// LockHashes returns the distinct input lock hashes in input order.
func (f *Fixture) LockHashes() [][32]byte {
	seen := make(map[[32]byte]bool)
	var hashes [][32]byte
	for i := range f.Inputs {
		h := f.Inputs[i].Output.Lock.Hash()
		if !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	return hashes
}

// Read decodes a fixture.
func Read(r io.Reader) (*Fixture, error) {
	var raw jsonFixture
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}

	txBytes, err := DecodeHex(raw.Transaction)
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	tx, err := types.ParseTransaction(txBytes)
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}

	f := &Fixture{Tx: tx}
	for i, in := range raw.Inputs {
		outBytes, err := DecodeHex(in.Output)
		if err != nil {
			return nil, fmt.Errorf("input %d output: %w", i, err)
		}
		output, err := types.ParseCellOutput(outBytes)
		if err != nil {
			return nil, fmt.Errorf("input %d output: %w", i, err)
		}
		data, err := DecodeHex(in.Data)
		if err != nil {
			return nil, fmt.Errorf("input %d data: %w", i, err)
		}
		f.Inputs = append(f.Inputs, txenv.ResolvedInput{Output: *output, Data: data})
	}
	if len(f.Inputs) != len(tx.Inputs) {
		return nil, fmt.Errorf("fixture resolves %d of %d inputs", len(f.Inputs), len(tx.Inputs))
	}
	return f, nil
}

// Write encodes the fixture as indented JSON.
func (f *Fixture) Write(w io.Writer) error {
	raw := jsonFixture{
		Transaction: EncodeHex(types.SerializeTransaction(f.Tx)),
		Inputs:      make([]jsonInput, len(f.Inputs)),
	}
	for i := range f.Inputs {
		raw.Inputs[i] = jsonInput{
			Output: EncodeHex(types.SerializeCellOutput(&f.Inputs[i].Output)),
			Data:   EncodeHex(f.Inputs[i].Data),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&raw)
}

// Load reads the fixture at path.
func Load(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file)
}

// Save writes the fixture to path.
func (f *Fixture) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Update loads the fixture at path, applies fn and saves the result, holding
// an exclusive lock on path+".lock" so concurrent signers do not overwrite
// each other's seals.
func Update(path string, fn func(*Fixture) error) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock fixture: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, path)
	}
	defer lock.Unlock()

	f, err := Load(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return f.Save(path)
}

// EncodeHex formats b as 0x-prefixed lowercase hex.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DecodeHex parses hex with or without the 0x prefix. The empty string
// decodes to an empty slice.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
