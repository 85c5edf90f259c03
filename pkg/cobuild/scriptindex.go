package cobuild

import (
	"sort"

	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// ScriptLocation lists, per role, the cell indices where a script occurs.
// Each list is strictly increasing.
type ScriptLocation struct {
	InputLock  []int
	InputType  []int
	OutputType []int
}

func (l *ScriptLocation) indices(role layout.ScriptType) []int {
	switch role {
	case layout.ScriptTypeInputLock:
		return l.InputLock
	case layout.ScriptTypeInputType:
		return l.InputType
	case layout.ScriptTypeOutputType:
		return l.OutputType
	}
	return nil
}

// ScriptIndex maps script hashes to their locations in the transaction.
// It is built once per verification and read-only afterwards.
type ScriptIndex struct {
	locations map[[32]byte]*ScriptLocation
}

// NewScriptIndex scans input locks, input types and output types once.
// Cells without a type script are skipped.
func NewScriptIndex(env txenv.Env) (*ScriptIndex, error) {
	idx := &ScriptIndex{locations: make(map[[32]byte]*ScriptLocation)}

	inputs, err := env.Count(txenv.SourceInput)
	if err != nil {
		return nil, hostError(err, "counting inputs")
	}
	for i := 0; i < inputs; i++ {
		lock, err := env.CellLockHash(i, txenv.SourceInput)
		if err != nil {
			return nil, hostError(err, "loading lock hash of input %d", i)
		}
		loc := idx.location(lock)
		loc.InputLock = append(loc.InputLock, i)
	}
	for i := 0; i < inputs; i++ {
		typ, ok, err := env.CellTypeHash(i, txenv.SourceInput)
		if err != nil {
			return nil, hostError(err, "loading type hash of input %d", i)
		}
		if ok {
			loc := idx.location(typ)
			loc.InputType = append(loc.InputType, i)
		}
	}

	outputs, err := env.Count(txenv.SourceOutput)
	if err != nil {
		return nil, hostError(err, "counting outputs")
	}
	for i := 0; i < outputs; i++ {
		typ, ok, err := env.CellTypeHash(i, txenv.SourceOutput)
		if err != nil {
			return nil, hostError(err, "loading type hash of output %d", i)
		}
		if ok {
			loc := idx.location(typ)
			loc.OutputType = append(loc.OutputType, i)
		}
	}
	return idx, nil
}

func (idx *ScriptIndex) location(hash [32]byte) *ScriptLocation {
	loc, ok := idx.locations[hash]
	if !ok {
		loc = &ScriptLocation{}
		idx.locations[hash] = loc
	}
	return loc
}

// Location returns where hash occurs, if anywhere.
func (idx *ScriptIndex) Location(hash [32]byte) (ScriptLocation, bool) {
	loc, ok := idx.locations[hash]
	if !ok {
		return ScriptLocation{}, false
	}
	return *loc, true
}

// Exists reports whether hash occurs at least once in role.
func (idx *ScriptIndex) Exists(hash [32]byte, role layout.ScriptType) bool {
	loc, ok := idx.locations[hash]
	return ok && len(loc.indices(role)) > 0
}

// IncludedIn reports whether hash occurs in role at an index within the
// half-open range [start, end).
func (idx *ScriptIndex) IncludedIn(hash [32]byte, role layout.ScriptType, start, end int) bool {
	loc, ok := idx.locations[hash]
	if !ok || start >= end {
		return false
	}
	indices := loc.indices(role)
	i := sort.SearchInts(indices, start)
	return i < len(indices) && indices[i] < end
}

func parseScriptType(b byte) (layout.ScriptType, error) {
	switch t := layout.ScriptType(b); t {
	case layout.ScriptTypeInputLock, layout.ScriptTypeInputType, layout.ScriptTypeOutputType:
		return t, nil
	}
	return 0, newError(CodeWrongScriptType, "unknown script type %d", b)
}

// CheckMessage verifies that every action of msg targets a script present
// in the transaction under the declared role.
func CheckMessage(idx *ScriptIndex, msg *layout.Message) error {
	for i := range msg.Actions {
		action := &msg.Actions[i]
		role, err := parseScriptType(action.ScriptType)
		if err != nil {
			return err
		}
		if !idx.Exists(action.ScriptHash, role) {
			return newError(CodeScriptHashAbsent, "action %d targets %x which is not an %s", i, action.ScriptHash, roleName(role))
		}
	}
	return nil
}

// OtxClaim is the full (fixed plus dynamic) input and output range of one
// open transaction, as half-open intervals.
type OtxClaim struct {
	InputStart, InputEnd   int
	OutputStart, OutputEnd int
}

// CheckMessageInRange is CheckMessage restricted to the cells claimed by
// one open transaction.
func CheckMessageInRange(idx *ScriptIndex, msg *layout.Message, claim OtxClaim) error {
	for i := range msg.Actions {
		action := &msg.Actions[i]
		role, err := parseScriptType(action.ScriptType)
		if err != nil {
			return err
		}
		start, end := claim.InputStart, claim.InputEnd
		if role == layout.ScriptTypeOutputType {
			start, end = claim.OutputStart, claim.OutputEnd
		}
		if !idx.IncludedIn(action.ScriptHash, role, start, end) {
			return newError(CodeScriptHashAbsent, "action %d targets %x which is not an %s in [%d, %d)", i, action.ScriptHash, roleName(role), start, end)
		}
	}
	return nil
}

func roleName(role layout.ScriptType) string {
	switch role {
	case layout.ScriptTypeInputLock:
		return "input lock"
	case layout.ScriptTypeInputType:
		return "input type"
	default:
		return "output type"
	}
}
