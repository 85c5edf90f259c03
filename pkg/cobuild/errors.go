package cobuild

import (
	"errors"
	"fmt"

	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// ErrorCode identifies why a verification failed. Codes are surfaced as the
// script exit code and must never be renumbered: deployed scripts and
// off-chain tooling match on them.
type ErrorCode int8

const (
	// Host/environment failures.
	CodeIndexOutOfBound ErrorCode = 1
	CodeItemMissing     ErrorCode = 2
	CodeLengthNotEnough ErrorCode = 3

	// Malformed witness or transaction structure.
	CodeEncoding ErrorCode = 4

	// The verifier rejected a seal.
	CodeAuthError ErrorCode = 5

	// Protocol violations.
	CodeWrongSighashAll    ErrorCode = 6
	CodeWrongWitnessLayout ErrorCode = 7
	CodeWrongOtxStart      ErrorCode = 8
	CodeInvalidOtxFlag     ErrorCode = 9
	CodeWrongCount         ErrorCode = 10

	// Structurally valid but not authorized.
	CodeNoSealFound      ErrorCode = 11
	CodeScriptHashAbsent ErrorCode = 12
	CodeWrongScriptType  ErrorCode = 13
)

var codeNames = map[ErrorCode]string{
	CodeIndexOutOfBound:    "IndexOutOfBound",
	CodeItemMissing:        "ItemMissing",
	CodeLengthNotEnough:    "LengthNotEnough",
	CodeEncoding:           "MoleculeEncoding",
	CodeAuthError:          "AuthError",
	CodeWrongSighashAll:    "WrongSighashAll",
	CodeWrongWitnessLayout: "WrongWitnessLayout",
	CodeWrongOtxStart:      "WrongOtxStart",
	CodeInvalidOtxFlag:     "InvalidOtxFlag",
	CodeWrongCount:         "WrongCount",
	CodeNoSealFound:        "NoSealFound",
	CodeScriptHashAbsent:   "ScriptHashAbsent",
	CodeWrongScriptType:    "WrongScriptType",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int8(c))
}

// Error is returned for every failed verification.
type Error struct {
	Code    ErrorCode // Stable error code
	Message string    // Human-readable detail
	Cause   error     // Underlying error (if any)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("cobuild error [%s]", e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code, so callers
// can match with errors.Is(err, cobuild.ErrNoSealFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrIndexOutOfBound    = &Error{Code: CodeIndexOutOfBound}
	ErrItemMissing        = &Error{Code: CodeItemMissing}
	ErrLengthNotEnough    = &Error{Code: CodeLengthNotEnough}
	ErrEncoding           = &Error{Code: CodeEncoding}
	ErrAuth               = &Error{Code: CodeAuthError}
	ErrWrongSighashAll    = &Error{Code: CodeWrongSighashAll}
	ErrWrongWitnessLayout = &Error{Code: CodeWrongWitnessLayout}
	ErrWrongOtxStart      = &Error{Code: CodeWrongOtxStart}
	ErrInvalidOtxFlag     = &Error{Code: CodeInvalidOtxFlag}
	ErrWrongCount         = &Error{Code: CodeWrongCount}
	ErrNoSealFound        = &Error{Code: CodeNoSealFound}
	ErrScriptHashAbsent   = &Error{Code: CodeScriptHashAbsent}
	ErrWrongScriptType    = &Error{Code: CodeWrongScriptType}
)

func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// hostError classifies a failure reported by the transaction accessor or by
// the molecule layer. Failures outside the accessor's error set, such as a
// CellData read error, mean the bytes could not be obtained and are
// reported as Encoding.
func hostError(err error, format string, args ...interface{}) error {
	var cerr *Error
	if errors.As(err, &cerr) {
		return err
	}

	switch {
	case errors.Is(err, txenv.ErrIndexOutOfBound):
		return wrapError(CodeIndexOutOfBound, err, format, args...)
	case errors.Is(err, txenv.ErrItemMissing):
		return wrapError(CodeItemMissing, err, format, args...)
	case errors.Is(err, txenv.ErrLengthNotEnough):
		return wrapError(CodeLengthNotEnough, err, format, args...)
	default:
		// molecule.VerificationError and read failures
		return wrapError(CodeEncoding, err, format, args...)
	}
}

// CodeOf extracts the error code from err. It returns 0 for nil and for
// errors not produced by this package.
func CodeOf(err error) ErrorCode {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return 0
}
