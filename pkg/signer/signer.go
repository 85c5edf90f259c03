// Package signer fills cobuild seals with secp256k1 signatures.
//
// It computes signing message hashes with the same routines the engine
// verifies with, so a transaction signed here verifies under
// crypto.Blake160Verifier. Sign open transactions before the whole
// transaction: Otx witnesses placed after the inputs are covered by the
// sighash-all digest.
package signer

import (
	"errors"
	"fmt"

	"github.com/suffix-labs/ckb-cobuild/pkg/cobuild"
	"github.com/suffix-labs/ckb-cobuild/pkg/crypto"
	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
	"github.com/suffix-labs/ckb-cobuild/pkg/types"
)

// Secp256k1Blake160CodeHash is the type hash of the secp256k1-blake160
// sighash-all lock deployed in the CKB genesis block.
var Secp256k1Blake160CodeHash = [32]byte{
	0x9b, 0xd7, 0xe0, 0x6f, 0x3e, 0xcf, 0x4b, 0xe0,
	0xf2, 0xfc, 0xd2, 0x18, 0x8b, 0x23, 0xf1, 0xb9,
	0xfc, 0xc8, 0x8e, 0x5d, 0x4b, 0x65, 0xa8, 0x63,
	0x7b, 0x17, 0x72, 0x3b, 0xbd, 0xa3, 0xcc, 0xe8,
}

// Secp256k1Blake160Lock returns the lock script owned by pub.
func Secp256k1Blake160Lock(pub *crypto.PublicKey) *types.Script {
	args := pub.Blake160()
	return &types.Script{
		CodeHash: Secp256k1Blake160CodeHash,
		HashType: types.HashTypeType,
		Args:     args[:],
	}
}

var (
	// ErrNotSealable is returned when the target witness has no seal slot
	// of the requested kind.
	ErrNotSealable = errors.New("witness cannot hold this seal")

	// ErrCoveredWitness is returned when sealing a witness would change a
	// digest that already covers it.
	ErrCoveredWitness = errors.New("witness is covered by the sighash-all digest")
)

// Signer adds seals to a transaction in place.
type Signer struct {
	tx  *types.Transaction
	env *txenv.MemoryEnv
}

// New creates a Signer over tx, whose inputs resolve to inputs.
func New(tx *types.Transaction, inputs []txenv.ResolvedInput) (*Signer, error) {
	env, err := txenv.NewMemoryEnv(tx, inputs, [32]byte{})
	if err != nil {
		return nil, err
	}
	return &Signer{tx: tx, env: env}, nil
}

// Transaction returns the transaction being signed.
func (s *Signer) Transaction() *types.Transaction {
	return s.tx
}

// SighashAllHash returns the whole-transaction signing message hash.
func (s *Signer) SighashAllHash() ([32]byte, error) {
	layouts, _, err := cobuild.ParseWitnessLayouts(s.env)
	if err != nil {
		return [32]byte{}, err
	}
	msg, err := cobuild.FetchMessage(layouts)
	if err != nil {
		return [32]byte{}, err
	}
	return cobuild.GenerateSighashAllSMH(s.env, msg)
}

// SignSighashAll seals the SighashAll or SighashAllOnly witness at
// witnessIndex.
func (s *Signer) SignSighashAll(key *crypto.PrivateKey, witnessIndex int) error {
	if witnessIndex < 0 || witnessIndex >= len(s.tx.Witnesses) {
		return fmt.Errorf("witness %d out of range (have %d)", witnessIndex, len(s.tx.Witnesses))
	}
	if witnessIndex >= len(s.tx.Inputs) {
		return fmt.Errorf("%w: witness %d", ErrCoveredWitness, witnessIndex)
	}

	l, err := layout.Decode(s.tx.Witnesses[witnessIndex])
	if err != nil {
		return fmt.Errorf("witness %d: %w", witnessIndex, err)
	}

	smh, err := s.SighashAllHash()
	if err != nil {
		return fmt.Errorf("failed to compute signing message hash: %w", err)
	}
	seal := key.Sign(smh)

	switch v := l.(type) {
	case *layout.SighashAll:
		v.Seal = seal
	case *layout.SighashAllOnly:
		v.Seal = seal
	default:
		return fmt.Errorf("%w: witness %d is %s", ErrNotSealable, witnessIndex, layout.Name(l))
	}
	s.tx.Witnesses[witnessIndex] = layout.Encode(l)
	return nil
}

// OtxHash returns the signing message hash of the Otx at witnessIndex,
// over its fixed range or, when dynamic is set, its dynamic range.
func (s *Signer) OtxHash(witnessIndex int, dynamic bool) ([32]byte, *layout.Otx, error) {
	plan, err := s.otxPlan(witnessIndex)
	if err != nil {
		return [32]byte{}, nil, err
	}
	r := plan.Fixed
	if dynamic {
		r = plan.Dynamic
	}
	smh, err := cobuild.GenerateOtxSMH(s.env, &plan.Otx.Message, r)
	if err != nil {
		return [32]byte{}, nil, err
	}
	return smh, plan.Otx, nil
}

// SignOtx adds a seal for lock to the Otx at witnessIndex. Fixed-range
// seals go to the front of the seal list and dynamic-range seals to the
// back, matching the order in which verification searches them.
func (s *Signer) SignOtx(key *crypto.PrivateKey, lock [32]byte, witnessIndex int, dynamic bool) error {
	smh, otx, err := s.OtxHash(witnessIndex, dynamic)
	if err != nil {
		return err
	}

	pair := layout.SealPair{ScriptHash: lock, Seal: key.Sign(smh)}
	if dynamic {
		otx.Seals = append(otx.Seals, pair)
	} else {
		otx.Seals = append([]layout.SealPair{pair}, otx.Seals...)
	}
	s.tx.Witnesses[witnessIndex] = layout.Encode(otx)
	return nil
}

func (s *Signer) otxPlan(witnessIndex int) (*cobuild.OtxPlan, error) {
	layouts, _, err := cobuild.ParseWitnessLayouts(s.env)
	if err != nil {
		return nil, err
	}
	run, found, err := cobuild.FindOtxStart(layouts)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: transaction has no OtxStart", ErrNotSealable)
	}
	plans, err := cobuild.PlanOtxs(s.env, layouts, run)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].WitnessIndex == witnessIndex {
			return &plans[i], nil
		}
	}
	return nil, fmt.Errorf("%w: witness %d is %s", ErrNotSealable, witnessIndex, layout.Name(witnessAt(layouts, witnessIndex)))
}

func witnessAt(layouts []layout.WitnessLayout, i int) layout.WitnessLayout {
	if i < 0 || i >= len(layouts) {
		return nil
	}
	return layouts[i]
}
