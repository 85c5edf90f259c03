// Package cobuild implements the transaction cobuild authorization engine
// for CKB lock scripts.
//
// A lock script hands the engine a transaction accessor and a Verifier.
// The engine classifies the witnesses, derives every signing message hash
// the current script is responsible for, and calls the Verifier once per
// obligation:
//
//   - a transaction without any cobuild witness is legacy and is not
//     handled, leaving the script to its own WitnessArgs logic;
//   - a transaction without an OtxStart is authorized as a whole through
//     its SighashAll or SighashAllOnly witness;
//   - a transaction with open transactions (OTXs) is authorized per OTX,
//     and once more as a whole if the script also owns inputs outside the
//     OTX run.
//
// Every failure is an *Error carrying a stable ErrorCode.
package cobuild

import (
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// Verifier checks a seal against a signing message hash. The seal format
// is opaque to the engine.
type Verifier interface {
	Verify(seal []byte, smh [32]byte) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(seal []byte, smh [32]byte) error

// Verify implements Verifier.
func (f VerifierFunc) Verify(seal []byte, smh [32]byte) error {
	return f(seal, smh)
}

// Outcome is the result of a successful verification.
type Outcome struct {
	// Handled is false for legacy transactions; the caller must then fall
	// back to its own verification.
	Handled bool
	// Verified counts verifier invocations. It is diagnostic only.
	Verified int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithChunkSize sets the buffer size used to stream cell data into the
// hashers. Non-positive values select DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// Engine verifies cobuild transactions. It holds no per-transaction state
// and is safe for concurrent use.
type Engine struct {
	logger    *zap.Logger
	chunkSize int
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:    zap.NewNop(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify runs one verification with a default Engine.
func Verify(env txenv.Env, verifier Verifier) (Outcome, error) {
	return New().Verify(env, verifier)
}

// verification is the state of one Verify call.
type verification struct {
	env      txenv.Env
	verifier Verifier
	log      *zap.Logger
	preimage *preimageWriter

	scriptHash [32]byte
	layouts    []layout.WitnessLayout
	index      *ScriptIndex
	verified   int
}

// Verify authorizes the current script against the transaction exposed by
// env. It returns the first failure encountered.
func (e *Engine) Verify(env txenv.Env, verifier Verifier) (Outcome, error) {
	layouts, activated, err := ParseWitnessLayouts(env)
	if err != nil {
		return Outcome{}, err
	}
	if !activated {
		e.logger.Debug("no cobuild witness, deferring to legacy verification")
		return Outcome{}, nil
	}

	scriptHash, err := env.ScriptHash()
	if err != nil {
		return Outcome{}, hostError(err, "loading script hash")
	}
	index, err := NewScriptIndex(env)
	if err != nil {
		return Outcome{}, err
	}

	v := &verification{
		env:        env,
		verifier:   verifier,
		log:        e.logger.With(zap.String("script", shortHash(scriptHash))),
		preimage:   newPreimageWriter(env, e.chunkSize),
		scriptHash: scriptHash,
		layouts:    layouts,
		index:      index,
	}
	v.log.Debug("classified witnesses", zap.Strings("layouts", layoutNames(layouts)))

	run, found, err := FindOtxStart(layouts)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		if err := v.verifySighashAll(); err != nil {
			return Outcome{}, err
		}
		return Outcome{Handled: true, Verified: v.verified}, nil
	}

	state, err := v.verifyOtxs(run)
	if err != nil {
		return Outcome{}, err
	}

	if loc, ok := index.Location(scriptHash); ok {
		for _, i := range loc.InputLock {
			if i < state.inputStart || i >= state.inputEnd {
				v.log.Debug("script owns an input outside the otx run",
					zap.Int("input", i),
					zap.Int("input_start", state.inputStart),
					zap.Int("input_end", state.inputEnd))
				if err := v.verifySighashAll(); err != nil {
					return Outcome{}, err
				}
				break
			}
		}
	}
	return Outcome{Handled: true, Verified: v.verified}, nil
}

// authorize invokes the verifier once.
func (v *verification) authorize(seal []byte, smh [32]byte, what string) error {
	v.verified++
	v.log.Debug("invoking verifier",
		zap.String("obligation", what),
		zap.Binary("smh", smh[:]),
		zap.Int("seal_len", len(seal)))
	if err := v.verifier.Verify(seal, smh); err != nil {
		return wrapError(CodeAuthError, err, "%s", what)
	}
	return nil
}

func layoutNames(layouts []layout.WitnessLayout) []string {
	names := make([]string, len(layouts))
	for i, l := range layouts {
		names[i] = layout.Name(l)
	}
	return names
}

func shortHash(h [32]byte) string {
	return hex.EncodeToString(h[:8])
}
