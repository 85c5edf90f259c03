package cobuild

import (
	"go.uber.org/zap"

	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// Otx flag bits. The high nibble is reserved and must be zero.
const (
	FlagDynamicInputs     byte = 1 << 0
	FlagDynamicOutputs    byte = 1 << 1
	FlagDynamicCellDeps   byte = 1 << 2
	FlagDynamicHeaderDeps byte = 1 << 3

	flagReserved byte = 0xF0
)

// OtxDynamicConfigs records which categories of an Otx may carry dynamic
// (appendable) entries.
type OtxDynamicConfigs struct {
	InputCells  bool
	OutputCells bool
	CellDeps    bool
	HeaderDeps  bool
}

// ParseOtxFlag decodes an Otx flag byte.
func ParseOtxFlag(flag byte) (OtxDynamicConfigs, error) {
	if flag&flagReserved != 0 {
		return OtxDynamicConfigs{}, newError(CodeInvalidOtxFlag, "reserved bits set in flag %#02x", flag)
	}
	return OtxDynamicConfigs{
		InputCells:  flag&FlagDynamicInputs != 0,
		OutputCells: flag&FlagDynamicOutputs != 0,
		CellDeps:    flag&FlagDynamicCellDeps != 0,
		HeaderDeps:  flag&FlagDynamicHeaderDeps != 0,
	}, nil
}

// checkOtxCounts validates the fixed and dynamic counts of otx against its
// flag.
func checkOtxCounts(otx *layout.Otx, dyn OtxDynamicConfigs) error {
	if otx.FixedInputCells == 0 && otx.FixedOutputCells == 0 &&
		otx.FixedCellDeps == 0 && otx.FixedHeaderDeps == 0 {
		return newError(CodeWrongCount, "otx claims no fixed cells or deps")
	}

	dynamic := []struct {
		name    string
		enabled bool
		count   uint32
	}{
		{"input cells", dyn.InputCells, otx.DynamicInputCells},
		{"output cells", dyn.OutputCells, otx.DynamicOutputCells},
		{"cell deps", dyn.CellDeps, otx.DynamicCellDeps},
		{"header deps", dyn.HeaderDeps, otx.DynamicHeaderDeps},
	}
	for _, d := range dynamic {
		if !d.enabled && d.count != 0 {
			return newError(CodeWrongCount, "%d dynamic %s without the flag bit", d.count, d.name)
		}
	}
	return nil
}

// cobuildState holds the cursors of an OTX run. Each *End field is the
// first index not yet claimed by a processed Otx.
type cobuildState struct {
	inputStart int

	inputEnd     int
	outputEnd    int
	cellDepEnd   int
	headerDepEnd int
}

// arrayLengths are the sizes of the four transaction arrays.
type arrayLengths struct {
	inputs, outputs, cellDeps, headerDeps int
}

func loadArrayLengths(env txenv.Env) (arrayLengths, error) {
	var l arrayLengths
	for _, c := range []struct {
		source txenv.Source
		dst    *int
	}{
		{txenv.SourceInput, &l.inputs},
		{txenv.SourceOutput, &l.outputs},
		{txenv.SourceCellDep, &l.cellDeps},
		{txenv.SourceHeaderDep, &l.headerDeps},
	} {
		n, err := env.Count(c.source)
		if err != nil {
			return l, hostError(err, "counting %s", c.source)
		}
		*c.dst = n
	}
	return l, nil
}

// advance returns cursor+fixed+dynamic, failing when it passes limit.
func advance(cursor int, fixed, dynamic uint32, limit int, source txenv.Source) (int, error) {
	end := uint64(cursor) + uint64(fixed) + uint64(dynamic)
	if end > uint64(limit) {
		return 0, newError(CodeWrongCount, "otx claims %s up to %d but there are only %d", source, end, limit)
	}
	return int(end), nil
}

// verifyOtxs walks the Otx run and verifies every Otx that concerns the
// current script.
func (v *verification) verifyOtxs(run *OtxRun) (*cobuildState, error) {
	if err := checkOtxStart(v.env, &run.Start); err != nil {
		return nil, err
	}
	lengths, err := loadArrayLengths(v.env)
	if err != nil {
		return nil, err
	}

	state := &cobuildState{
		inputStart:   int(run.Start.StartInputCell),
		inputEnd:     int(run.Start.StartInputCell),
		outputEnd:    int(run.Start.StartOutputCell),
		cellDepEnd:   int(run.Start.StartCellDeps),
		headerDepEnd: int(run.Start.StartHeaderDeps),
	}

	end := run.StartIndex + 1
	for ; end < len(v.layouts); end++ {
		otx, ok := v.layouts[end].(*layout.Otx)
		if !ok {
			break
		}
		if err := v.verifyOtx(end, otx, state, lengths); err != nil {
			return nil, err
		}
	}

	for i, l := range v.layouts {
		if _, ok := l.(*layout.Otx); ok && (i <= run.StartIndex || i >= end) {
			return nil, newError(CodeWrongWitnessLayout,
				"Otx at witness %d outside the run (%d, %d)", i, run.StartIndex, end)
		}
	}

	v.log.Debug("otx run verified",
		zap.Int("otxs", end-run.StartIndex-1),
		zap.Int("input_start", state.inputStart),
		zap.Int("input_end", state.inputEnd),
		zap.Int("output_end", state.outputEnd),
		zap.Int("cell_dep_end", state.cellDepEnd),
		zap.Int("header_dep_end", state.headerDepEnd))
	return state, nil
}

// verifyOtx handles the Otx at witness index i and advances the cursors.
func (v *verification) verifyOtx(i int, otx *layout.Otx, state *cobuildState, lengths arrayLengths) error {
	dyn, err := ParseOtxFlag(otx.Flag)
	if err != nil {
		return err
	}
	if err := checkOtxCounts(otx, dyn); err != nil {
		return err
	}

	inputEnd, err := advance(state.inputEnd, otx.FixedInputCells, otx.DynamicInputCells, lengths.inputs, txenv.SourceInput)
	if err != nil {
		return err
	}
	outputEnd, err := advance(state.outputEnd, otx.FixedOutputCells, otx.DynamicOutputCells, lengths.outputs, txenv.SourceOutput)
	if err != nil {
		return err
	}
	cellDepEnd, err := advance(state.cellDepEnd, otx.FixedCellDeps, otx.DynamicCellDeps, lengths.cellDeps, txenv.SourceCellDep)
	if err != nil {
		return err
	}
	headerDepEnd, err := advance(state.headerDepEnd, otx.FixedHeaderDeps, otx.DynamicHeaderDeps, lengths.headerDeps, txenv.SourceHeaderDep)
	if err != nil {
		return err
	}

	fixedInputEnd := state.inputEnd + int(otx.FixedInputCells)
	inFixed := v.index.IncludedIn(v.scriptHash, layout.ScriptTypeInputLock, state.inputEnd, fixedInputEnd)
	inDynamic := v.index.IncludedIn(v.scriptHash, layout.ScriptTypeInputLock, fixedInputEnd, inputEnd)

	v.log.Debug("otx",
		zap.Int("witness", i),
		zap.Uint8("flag", otx.Flag),
		zap.Int("input_start", state.inputEnd),
		zap.Int("input_end", inputEnd),
		zap.Int("output_start", state.outputEnd),
		zap.Int("output_end", outputEnd),
		zap.Bool("fixed", inFixed),
		zap.Bool("dynamic", inDynamic))

	if inFixed || inDynamic {
		claim := OtxClaim{
			InputStart:  state.inputEnd,
			InputEnd:    inputEnd,
			OutputStart: state.outputEnd,
			OutputEnd:   outputEnd,
		}
		if err := CheckMessageInRange(v.index, &otx.Message, claim); err != nil {
			return err
		}
	}

	fixed, dynamic := signingRanges(state, otx)
	if inFixed {
		if err := v.verifyOtxRange(i, otx, fixed, false); err != nil {
			return err
		}
	}
	if inDynamic {
		if err := v.verifyOtxRange(i, otx, dynamic, true); err != nil {
			return err
		}
	}

	state.inputEnd = inputEnd
	state.outputEnd = outputEnd
	state.cellDepEnd = cellDepEnd
	state.headerDepEnd = headerDepEnd
	return nil
}

// signingRanges returns the ranges committed to by the fixed and dynamic
// seals of otx, whose claim begins at the current cursors. The dynamic
// range extends only the inputs.
func signingRanges(state *cobuildState, otx *layout.Otx) (fixed, dynamic OtxSigningRange) {
	fixed = OtxSigningRange{
		InputStart:     state.inputEnd,
		InputCount:     int(otx.FixedInputCells),
		OutputStart:    state.outputEnd,
		OutputCount:    int(otx.FixedOutputCells),
		CellDepStart:   state.cellDepEnd,
		CellDepCount:   int(otx.FixedCellDeps),
		HeaderDepStart: state.headerDepEnd,
		HeaderDepCount: int(otx.FixedHeaderDeps),
	}
	dynamic = fixed
	dynamic.InputCount += int(otx.DynamicInputCells)
	return fixed, dynamic
}

// OtxPlan is where one Otx of a run sits and what its seals commit to.
type OtxPlan struct {
	WitnessIndex int
	Otx          *layout.Otx
	Fixed        OtxSigningRange
	Dynamic      OtxSigningRange
}

// PlanOtxs walks run and returns the signing ranges of each Otx, applying
// the same flag and count rules as verification. Signers use it to find
// the hash a new seal must cover.
func PlanOtxs(env txenv.Env, layouts []layout.WitnessLayout, run *OtxRun) ([]OtxPlan, error) {
	if err := checkOtxStart(env, &run.Start); err != nil {
		return nil, err
	}
	lengths, err := loadArrayLengths(env)
	if err != nil {
		return nil, err
	}

	state := &cobuildState{
		inputEnd:     int(run.Start.StartInputCell),
		outputEnd:    int(run.Start.StartOutputCell),
		cellDepEnd:   int(run.Start.StartCellDeps),
		headerDepEnd: int(run.Start.StartHeaderDeps),
	}
	var plans []OtxPlan
	for i := run.StartIndex + 1; i < run.EndIndex; i++ {
		otx := layouts[i].(*layout.Otx)
		dyn, err := ParseOtxFlag(otx.Flag)
		if err != nil {
			return nil, err
		}
		if err := checkOtxCounts(otx, dyn); err != nil {
			return nil, err
		}

		fixed, dynamic := signingRanges(state, otx)
		plans = append(plans, OtxPlan{WitnessIndex: i, Otx: otx, Fixed: fixed, Dynamic: dynamic})

		if state.inputEnd, err = advance(state.inputEnd, otx.FixedInputCells, otx.DynamicInputCells, lengths.inputs, txenv.SourceInput); err != nil {
			return nil, err
		}
		if state.outputEnd, err = advance(state.outputEnd, otx.FixedOutputCells, otx.DynamicOutputCells, lengths.outputs, txenv.SourceOutput); err != nil {
			return nil, err
		}
		if state.cellDepEnd, err = advance(state.cellDepEnd, otx.FixedCellDeps, otx.DynamicCellDeps, lengths.cellDeps, txenv.SourceCellDep); err != nil {
			return nil, err
		}
		if state.headerDepEnd, err = advance(state.headerDepEnd, otx.FixedHeaderDeps, otx.DynamicHeaderDeps, lengths.headerDeps, txenv.SourceHeaderDep); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// verifyOtxRange hashes r and checks it against the current script's seal.
// The fixed range takes the first matching seal, the dynamic range the
// last one.
func (v *verification) verifyOtxRange(i int, otx *layout.Otx, r OtxSigningRange, dynamic bool) error {
	smh, err := generateOtxSMH(v.preimage, &otx.Message, r)
	if err != nil {
		return err
	}

	kind := "fixed"
	if dynamic {
		kind = "dynamic"
	}
	seal, ok := findSeal(otx.Seals, v.scriptHash, dynamic)
	if !ok {
		return newError(CodeNoSealFound, "otx at witness %d has no seal for the %s range", i, kind)
	}
	return v.authorize(seal, smh, "otx "+kind+" range")
}

func findSeal(seals []layout.SealPair, scriptHash [32]byte, reverse bool) ([]byte, bool) {
	if reverse {
		for i := len(seals) - 1; i >= 0; i-- {
			if seals[i].ScriptHash == scriptHash {
				return seals[i].Seal, true
			}
		}
		return nil, false
	}
	for i := range seals {
		if seals[i].ScriptHash == scriptHash {
			return seals[i].Seal, true
		}
	}
	return nil, false
}
