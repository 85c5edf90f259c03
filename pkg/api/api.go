// Package api is the high-level entry point used by the command line tool.
//
// It works on fixtures (a transaction plus the cells its inputs consume)
// and wires the engine to the secp256k1-blake160 verifier:
//
//  1. Inspect - Classifies witnesses and lays out the OTX run
//  2. Hashes - Computes every signing message hash of the transaction
//  3. Sign - Fills sighash-all and OTX seals with a private key
//  4. Verify / VerifyAll - Runs the engine for one or every input lock
package api

import (
	"errors"
	"fmt"

	"github.com/suffix-labs/ckb-cobuild/pkg/cobuild"
	"github.com/suffix-labs/ckb-cobuild/pkg/crypto"
	"github.com/suffix-labs/ckb-cobuild/pkg/fixture"
	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/signer"
	"github.com/suffix-labs/ckb-cobuild/pkg/types"
)

// ErrUnknownLock is returned when no input is locked by the requested script.
var ErrUnknownLock = errors.New("no input uses this lock")

// WitnessInfo describes one witness.
type WitnessInfo struct {
	Index  int
	Layout string // Variant name, or "None"
	Size   int
}

// OtxInfo describes one Otx of the run.
type OtxInfo struct {
	WitnessIndex int
	Flag         byte
	Fixed        cobuild.OtxSigningRange
	Dynamic      cobuild.OtxSigningRange
	Seals        int
	Actions      int
}

// LockGroup lists the inputs locked by one script.
type LockGroup struct {
	ScriptHash [32]byte
	Inputs     []int
}

// Report is the result of Inspect.
type Report struct {
	TxHash    [32]byte
	Activated bool
	Witnesses []WitnessInfo
	Locks     []LockGroup
	OtxStart  *cobuild.OtxRun // nil without an OtxStart
	Otxs      []OtxInfo
}

// ============================================================================
// API Function 1: Inspect
// ============================================================================

// Inspect classifies the witnesses of f and, if present, computes the
// claimed ranges of every Otx. Seals are not checked.
func Inspect(f *fixture.Fixture) (*Report, error) {
	env, err := f.Env([32]byte{})
	if err != nil {
		return nil, err
	}
	layouts, activated, err := cobuild.ParseWitnessLayouts(env)
	if err != nil {
		return nil, err
	}

	r := &Report{TxHash: types.TxHash(f.Tx), Activated: activated}
	for i, l := range layouts {
		r.Witnesses = append(r.Witnesses, WitnessInfo{
			Index:  i,
			Layout: layout.Name(l),
			Size:   len(f.Tx.Witnesses[i]),
		})
	}

	for _, h := range f.LockHashes() {
		group := LockGroup{ScriptHash: h}
		for i := range f.Inputs {
			if f.Inputs[i].Output.Lock.Hash() == h {
				group.Inputs = append(group.Inputs, i)
			}
		}
		r.Locks = append(r.Locks, group)
	}

	run, found, err := cobuild.FindOtxStart(layouts)
	if err != nil || !found {
		return r, err
	}
	r.OtxStart = run

	plans, err := cobuild.PlanOtxs(env, layouts, run)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		r.Otxs = append(r.Otxs, OtxInfo{
			WitnessIndex: p.WitnessIndex,
			Flag:         p.Otx.Flag,
			Fixed:        p.Fixed,
			Dynamic:      p.Dynamic,
			Seals:        len(p.Otx.Seals),
			Actions:      len(p.Otx.Message.Actions),
		})
	}
	return r, nil
}

// ============================================================================
// API Function 2: Hashes
// ============================================================================

// OtxHashes are the two signing message hashes of one Otx.
type OtxHashes struct {
	WitnessIndex int
	Fixed        [32]byte
	Dynamic      [32]byte
}

// HashReport is the result of Hashes.
type HashReport struct {
	SighashAll  [32]byte
	WithMessage bool // SighashAll carries the transaction's Message
	Otxs        []OtxHashes
}

// Hashes computes the whole-transaction hash and the fixed and dynamic
// hashes of every Otx.
func Hashes(f *fixture.Fixture) (*HashReport, error) {
	s, err := signer.New(f.Tx, f.Inputs)
	if err != nil {
		return nil, err
	}
	report, err := Inspect(f)
	if err != nil {
		return nil, err
	}

	hr := &HashReport{}
	if hr.SighashAll, err = s.SighashAllHash(); err != nil {
		return nil, fmt.Errorf("sighash-all: %w", err)
	}
	for _, w := range report.Witnesses {
		if w.Layout == "SighashAll" {
			hr.WithMessage = true
		}
	}

	for _, o := range report.Otxs {
		h := OtxHashes{WitnessIndex: o.WitnessIndex}
		if h.Fixed, _, err = s.OtxHash(o.WitnessIndex, false); err != nil {
			return nil, fmt.Errorf("otx %d: %w", o.WitnessIndex, err)
		}
		if h.Dynamic, _, err = s.OtxHash(o.WitnessIndex, true); err != nil {
			return nil, fmt.Errorf("otx %d: %w", o.WitnessIndex, err)
		}
		hr.Otxs = append(hr.Otxs, h)
	}
	return hr, nil
}

// ============================================================================
// API Function 3: Sign
// ============================================================================

// SignRequest selects the seals to fill.
type SignRequest struct {
	// Otxs are Otx witness indices to seal over their fixed range.
	Otxs []int
	// DynamicOtxs are Otx witness indices to seal over their dynamic range.
	DynamicOtxs []int
	// SighashAll is the witness index of the whole-transaction seal, or
	// -1 to skip it.
	SighashAll int
}

// Sign fills the requested seals of f with key, as the owner of the
// secp256k1-blake160 lock of key. Otx seals are filled first since the
// whole-transaction hash may cover Otx witnesses.
func Sign(f *fixture.Fixture, key *crypto.PrivateKey, req SignRequest) error {
	s, err := signer.New(f.Tx, f.Inputs)
	if err != nil {
		return err
	}
	lock := signer.Secp256k1Blake160Lock(key.PublicKey())
	lockHash := lock.Hash()

	for _, i := range req.Otxs {
		if err := s.SignOtx(key, lockHash, i, false); err != nil {
			return fmt.Errorf("otx %d: %w", i, err)
		}
	}
	for _, i := range req.DynamicOtxs {
		if err := s.SignOtx(key, lockHash, i, true); err != nil {
			return fmt.Errorf("otx %d: %w", i, err)
		}
	}
	if req.SighashAll >= 0 {
		if err := s.SignSighashAll(key, req.SighashAll); err != nil {
			return fmt.Errorf("sighash-all: %w", err)
		}
	}
	return nil
}

// ============================================================================
// API Function 4: Verify
// ============================================================================

// Verify runs the engine for the input lock with hash scriptHash. The lock
// must be a secp256k1-blake160 lock; its args are the expected pubkey hash.
func Verify(f *fixture.Fixture, scriptHash [32]byte, opts ...cobuild.Option) (cobuild.Outcome, error) {
	var verifier *crypto.Blake160Verifier
	for i := range f.Inputs {
		lock := f.Inputs[i].Output.Lock
		if lock.Hash() != scriptHash {
			continue
		}
		if lock.CodeHash != signer.Secp256k1Blake160CodeHash || len(lock.Args) != 20 {
			return cobuild.Outcome{}, fmt.Errorf("lock %x is not a secp256k1-blake160 lock", scriptHash)
		}
		verifier = &crypto.Blake160Verifier{}
		copy(verifier.PubkeyHash[:], lock.Args)
		break
	}
	if verifier == nil {
		return cobuild.Outcome{}, fmt.Errorf("%w: %x", ErrUnknownLock, scriptHash)
	}

	env, err := f.Env(scriptHash)
	if err != nil {
		return cobuild.Outcome{}, err
	}
	return cobuild.New(opts...).Verify(env, verifier)
}

// LockResult is the outcome of verifying one input lock.
type LockResult struct {
	ScriptHash [32]byte
	Outcome    cobuild.Outcome
	Err        error
}

// VerifyAll runs Verify for every distinct input lock, in input order.
// It returns every result and the first error.
func VerifyAll(f *fixture.Fixture, opts ...cobuild.Option) ([]LockResult, error) {
	var (
		results  []LockResult
		firstErr error
	)
	for _, h := range f.LockHashes() {
		out, err := Verify(f, h, opts...)
		results = append(results, LockResult{ScriptHash: h, Outcome: out, Err: err})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
